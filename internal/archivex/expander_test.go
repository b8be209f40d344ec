package archivex

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFolderForUnpacked(t *testing.T) {
	cases := map[string]string{
		"dir/foo.zip":    "dir/foo_zip",
		"foo.rar":        "foo_rar",
		"a/b/c.7z":       "a/b/c_7z",
	}
	for in, want := range cases {
		got := FolderForUnpacked(in)
		if filepath.ToSlash(got) != want {
			t.Errorf("FolderForUnpacked(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsPackedRejectsNonArchiveExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.bin")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if IsPacked(path) {
		t.Fatalf("plain.bin should not be reported as packed")
	}
}

func TestZipOneAndUnpackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "payload.bin")
	want := []byte("the quick brown fox")
	if err := os.WriteFile(srcPath, want, 0o644); err != nil {
		t.Fatal(err)
	}

	zipPath := filepath.Join(dir, "payload.zip")
	if err := ZipOne(srcPath, zipPath); err != nil {
		t.Fatalf("ZipOne: %v", err)
	}

	if !IsPacked(zipPath) {
		t.Fatalf("expected freshly-written zip to be recognized as packed")
	}

	destDir := FolderForUnpacked(zipPath)
	entries, err := Unpack(zipPath, destDir)
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if len(entries) != 1 || entries[0].Err != nil {
		t.Fatalf("entries = %+v", entries)
	}

	got, err := os.ReadFile(filepath.Join(destDir, "payload.bin"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("extracted content = %q, want %q", got, want)
	}
}
