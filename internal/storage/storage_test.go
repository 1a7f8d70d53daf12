// Copyright 2026 The CloudVault Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestResolveRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("alice", "../../etc/passwd"); err != ErrPathTraversal {
		t.Fatalf("Resolve traversal = %v, want ErrPathTraversal", err)
	}
}

func TestResolveNormalizesDotSegments(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Resolve("alice", "a/./b/../c")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	userRoot, _ := s.UserRoot("alice")
	want := filepath.Join(userRoot, "a", "c")
	if got != want {
		t.Fatalf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveToleratesMissingTail(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Resolve("alice", "brand/new/file.txt"); err != nil {
		t.Fatalf("Resolve on nonexistent path: %v", err)
	}
}

func TestEnsureDirectoryAndList(t *testing.T) {
	s := newTestStore(t)
	if ok, err := s.EnsureDirectory("alice", "docs"); err != nil || !ok {
		t.Fatalf("EnsureDirectory: ok=%v err=%v", ok, err)
	}

	target, _ := s.Resolve("alice", "docs/note.txt")
	if err := os.WriteFile(target, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := s.List("alice", "docs")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "note.txt" || entries[0].Size != 2 {
		t.Fatalf("List = %+v", entries)
	}
}

func TestListOfMissingDirIsEmpty(t *testing.T) {
	s := newTestStore(t)
	entries, err := s.List("alice", "never-created")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("List = %+v, want empty", entries)
	}
}

func TestUploadResumeLifecycle(t *testing.T) {
	s := newTestStore(t)
	digest := "abc123"
	total := uint64(10)

	cp, err := s.PrepareUpload("alice", digest, "file.bin", total)
	if err != nil {
		t.Fatalf("PrepareUpload: %v", err)
	}
	if cp.Received != 0 {
		t.Fatalf("fresh checkpoint Received = %d, want 0", cp.Received)
	}

	first := []byte("hello")
	if err := s.WriteChunk(cp, 0, first); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if err := s.UpdateProgress(cp, uint64(len(first))); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	resumed, err := s.PrepareUpload("alice", digest, "file.bin", total)
	if err != nil {
		t.Fatalf("PrepareUpload (resume): %v", err)
	}
	if resumed.Received != uint64(len(first)) {
		t.Fatalf("resumed.Received = %d, want %d", resumed.Received, len(first))
	}

	second := []byte("world")
	if err := s.WriteChunk(resumed, resumed.Received, second); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	resumed.Received += uint64(len(second))
	if err := s.UpdateProgress(resumed, resumed.Received); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	finalPath, err := s.FinalizeUpload(resumed)
	if err != nil {
		t.Fatalf("FinalizeUpload: %v", err)
	}
	data, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatalf("reading finalized file: %v", err)
	}
	if !bytes.Equal(data, []byte("helloworld")) {
		t.Fatalf("finalized contents = %q", data)
	}
	if _, err := os.Stat(resumed.MetaPath); !os.IsNotExist(err) {
		t.Fatalf("meta file should be removed after finalize, stat err = %v", err)
	}
}

func TestReceivedNeverExceedsBytesOnDisk(t *testing.T) {
	s := newTestStore(t)
	cp, err := s.PrepareUpload("alice", "digest", "f.bin", 100)
	if err != nil {
		t.Fatalf("PrepareUpload: %v", err)
	}

	// WriteChunk succeeds but UpdateProgress is never called: on a
	// crash between the two, the checkpoint must not claim bytes that
	// were never durably recorded as received.
	if err := s.WriteChunk(cp, 0, []byte("0123456789")); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	reloaded, err := s.PrepareUpload("alice", "digest", "f.bin", 100)
	if err != nil {
		t.Fatalf("PrepareUpload (reload): %v", err)
	}
	if reloaded.Received != 0 {
		t.Fatalf("Received = %d, want 0 (UpdateProgress was never called)", reloaded.Received)
	}
}

func TestComputeMD5(t *testing.T) {
	s := newTestStore(t)
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	digest, err := s.ComputeMD5(path)
	if err != nil {
		t.Fatalf("ComputeMD5: %v", err)
	}
	const want = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	if digest != want {
		t.Fatalf("ComputeMD5 = %s, want %s", digest, want)
	}
}

func TestCopyFileInstantTransfer(t *testing.T) {
	s := newTestStore(t)
	src := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst, err := s.Resolve("bob", "copy.bin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := s.CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("reading copy: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("copied contents = %q", data)
	}
}

func TestRemoveFileAndDirectory(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.EnsureDirectory("alice", "dir"); err != nil {
		t.Fatal(err)
	}
	filePath, _ := s.Resolve("alice", "lone.txt")
	if err := os.WriteFile(filePath, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Remove("alice", "lone.txt")
	if err != nil || !removed {
		t.Fatalf("Remove file: removed=%v err=%v", removed, err)
	}
	removed, err = s.Remove("alice", "dir")
	if err != nil || !removed {
		t.Fatalf("Remove dir: removed=%v err=%v", removed, err)
	}
	removed, err = s.Remove("alice", "never-existed")
	if err != nil || removed {
		t.Fatalf("Remove missing: removed=%v err=%v", removed, err)
	}
}
