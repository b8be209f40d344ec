package torrentdl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSourceRejectsMissingLocalPath(t *testing.T) {
	_, err := ResolveSource(nil, "/does/not/exist.torrent", t.TempDir(), "", nil)
	if err == nil {
		t.Fatalf("expected error for nonexistent local path")
	}
}

func TestResolveSourceRejectsNonTorrentLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ResolveSource(nil, path, dir, "", nil)
	if err == nil {
		t.Fatalf("expected parse error for a local file that is not bencoded torrent data")
	}
}
