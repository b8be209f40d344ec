package state

import (
	"testing"

	"github.com/torrents3/torrents3/internal/hashlist"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddUploadingAndStatus(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddUploading("archive.zip", []string{"inner.bin", "readme.txt"}); err != nil {
		t.Fatalf("AddUploading: %v", err)
	}

	status, ok, err := s.GetStatus("archive.zip")
	if err != nil || !ok || status != StatusUploading {
		t.Fatalf("archive.zip status = %v, %v, %v", status, ok, err)
	}

	parent, ok, err := s.GetUploadingParent("inner.bin")
	if err != nil || !ok || parent != "archive.zip" {
		t.Fatalf("GetUploadingParent(inner.bin) = %q, %v, %v", parent, ok, err)
	}

	uploading, err := s.GetUploadingFiles()
	if err != nil {
		t.Fatalf("GetUploadingFiles: %v", err)
	}
	children := uploading["archive.zip"]
	if len(children) != 2 {
		t.Fatalf("expected 2 uploading children, got %v", children)
	}
}

func TestMarkReadyAndUploadingParentAfterReady(t *testing.T) {
	s := openTestStore(t)
	if err := s.AddUploading("archive.zip", []string{"inner.bin"}); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkReady("inner.bin"); err != nil {
		t.Fatal(err)
	}

	// GetUploadingParent only returns parent while status is UPLOADING.
	_, ok, err := s.GetUploadingParent("inner.bin")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected no uploading parent once inner.bin is READY")
	}

	completed, err := s.GetCompletedFiles()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := completed["archive.zip"]; !ok {
		t.Fatalf("expected archive.zip as a parent key in completed files")
	}
}

func TestAddUploadingRebindsChildToNewParent(t *testing.T) {
	s := openTestStore(t)
	if err := s.AddUploading("a.zip", []string{"shared.bin"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddUploading("b.zip", []string{"shared.bin"}); err != nil {
		t.Fatal(err)
	}

	parent, ok, err := s.GetUploadingParent("shared.bin")
	if err != nil || !ok || parent != "b.zip" {
		t.Fatalf("shared.bin parent = %q, %v, %v, want b.zip", parent, ok, err)
	}
}

func TestHashlistRoundTrip(t *testing.T) {
	s := openTestStore(t)

	hl := hashlist.Hashlist{
		"a.txt": {Hashes: [][]byte{{1, 2}, {3, 4}, {5, 6}}},
		"b.zip": {Hashes: [][]byte{{9}}, LinkedFiles: []string{"inner.bin"}},
	}

	if err := s.SaveHashlist(hl); err != nil {
		t.Fatalf("SaveHashlist: %v", err)
	}

	got, err := s.GetHashlist()
	if err != nil {
		t.Fatalf("GetHashlist: %v", err)
	}

	a := got["a.txt"]
	if len(a.Hashes) != 3 {
		t.Fatalf("a.txt hashes = %v, want 3 entries in order", a.Hashes)
	}
	for i, want := range [][]byte{{1, 2}, {3, 4}, {5, 6}} {
		if string(a.Hashes[i]) != string(want) {
			t.Fatalf("a.txt hash[%d] = %v, want %v (order not preserved)", i, a.Hashes[i], want)
		}
	}

	b := got["b.zip"]
	if len(b.LinkedFiles) != 1 || b.LinkedFiles[0] != "inner.bin" {
		t.Fatalf("b.zip linked files = %v", b.LinkedFiles)
	}
	if _, ok := got["inner.bin"]; !ok {
		t.Fatalf("expected inner.bin to appear as a hashlist key")
	}
}

func TestResetDropsPriorState(t *testing.T) {
	s, err := Open(":memory:", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddUploading("a.txt", nil); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// A fresh :memory: handle can't share state across Open calls, so
	// this only exercises that reset=true doesn't error against an
	// empty schema.
	s2, err := Open(":memory:", true)
	if err != nil {
		t.Fatalf("Open with reset: %v", err)
	}
	defer s2.Close()

	if _, ok, err := s2.GetStatus("a.txt"); err != nil || ok {
		t.Fatalf("expected clean state after reset, got ok=%v err=%v", ok, err)
	}
}
