// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"testing"

	"github.com/cloudvault/cloudvault/lib/sqlitepool"
)

func openTestService(t *testing.T) *Service {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: "file::memory:?mode=memory&cache=shared", PoolSize: 1})
	if err != nil {
		t.Fatalf("sqlitepool.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	svc, err := Open(pool)
	if err != nil {
		t.Fatalf("auth.Open: %v", err)
	}
	return svc
}

func TestRegisterAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t)

	ok, err := svc.Register(ctx, "alice", "correct-horse")
	if err != nil || !ok {
		t.Fatalf("Register: ok=%v err=%v", ok, err)
	}

	valid, err := svc.Validate(ctx, "alice", "correct-horse")
	if err != nil || !valid {
		t.Fatalf("Validate correct password: valid=%v err=%v", valid, err)
	}

	valid, err = svc.Validate(ctx, "alice", "wrong-password")
	if err != nil || valid {
		t.Fatalf("Validate wrong password: valid=%v err=%v", valid, err)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t)

	if ok, err := svc.Register(ctx, "alice", "first-password"); err != nil || !ok {
		t.Fatalf("first Register: ok=%v err=%v", ok, err)
	}
	ok, err := svc.Register(ctx, "alice", "second-password")
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if ok {
		t.Fatal("second Register with same username should be rejected")
	}

	valid, err := svc.Validate(ctx, "alice", "first-password")
	if err != nil || !valid {
		t.Fatalf("original password should still be active: valid=%v err=%v", valid, err)
	}
}

func TestRegisterRejectsEmptyFields(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t)

	if ok, err := svc.Register(ctx, "", "password"); err != nil || ok {
		t.Fatalf("Register empty username: ok=%v err=%v", ok, err)
	}
	if ok, err := svc.Register(ctx, "alice", ""); err != nil || ok {
		t.Fatalf("Register empty password: ok=%v err=%v", ok, err)
	}
}

func TestValidateUnknownUser(t *testing.T) {
	ctx := context.Background()
	svc := openTestService(t)

	valid, err := svc.Validate(ctx, "nobody", "anything")
	if err != nil || valid {
		t.Fatalf("Validate unknown user: valid=%v err=%v", valid, err)
	}
}
