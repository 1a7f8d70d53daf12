// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSubmitRunsAllTasks(t *testing.T) {
	p := New(4, 16, nil)

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		p.Submit(func() {
			defer wg.Done()
			count.Add(1)
		})
	}
	wg.Wait()
	p.Shutdown()

	if got := count.Load(); got != 100 {
		t.Fatalf("count = %d, want 100", got)
	}
}

func TestPanickingTaskDoesNotKillWorker(t *testing.T) {
	p := New(1, 4, nil)

	var ran atomic.Bool
	var wg sync.WaitGroup

	wg.Add(1)
	p.Submit(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	wg.Add(1)
	p.Submit(func() {
		defer wg.Done()
		ran.Store(true)
	})
	wg.Wait()
	p.Shutdown()

	if !ran.Load() {
		t.Fatal("task submitted after a panic never ran")
	}
}

func TestShutdownWaitsForInFlightTasks(t *testing.T) {
	p := New(2, 4, nil)

	var done atomic.Bool
	p.Submit(func() { done.Store(true) })
	p.Shutdown()

	if !done.Load() {
		t.Fatal("Shutdown returned before submitted task completed")
	}
}
