// Package archivex detects and expands packed torrent files (.zip,
// .rar, .7z) the way the original implementation's libarchive-backed
// expander did: probe by extension then attempt-to-open, extract into
// a deterministic sibling folder, and report one result per entry so
// the caller can fall back to uploading the archive unmodified on any
// failure.
package archivex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// UnpackEntry records the outcome of extracting one archive entry.
type UnpackEntry struct {
	Name string
	Err  error
}

func kindOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return "zip"
	case ".rar":
		return "rar"
	case ".7z":
		return "7z"
	default:
		return ""
	}
}

// IsPacked reports whether path looks like a supported archive: its
// extension matches one of the three supported formats, and the
// matching backend can actually open it for reading.
func IsPacked(path string) bool {
	switch kindOf(path) {
	case "zip":
		return tryOpenZip(path) == nil
	case "rar":
		return tryOpenRar(path) == nil
	case "7z":
		return tryOpenSevenZip(path) == nil
	default:
		return false
	}
}

func tryOpenZip(path string) error {
	// unpackZip is reused as the probe: attempting to list entries is
	// the cheapest "can we actually read this" check.
	return unpackZip(path, "", true)
}

func tryOpenRar(path string) error {
	r, err := rardecode.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return nil
}

func tryOpenSevenZip(path string) error {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	return nil
}

// FolderForUnpacked returns the deterministic sibling folder a packed
// file extracts into: its parent directory, plus its stem, plus "_"
// plus its extension without the dot. E.g. dir/foo.zip -> dir/foo_zip.
func FolderForUnpacked(path string) string {
	dir := filepath.Dir(path)
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(dir, stem+"_"+ext)
}

// Unpack extracts every entry of src into destDir, preserving the
// archive's internal paths underneath it. A top-level open/read
// failure is returned as an error; per-entry failures are reported in
// the returned slice instead of aborting the whole extraction.
func Unpack(src, destDir string) ([]UnpackEntry, error) {
	switch kindOf(src) {
	case "zip":
		return unpackZipEntries(src, destDir)
	case "rar":
		return unpackRarEntries(src, destDir)
	case "7z":
		return unpackSevenZipEntries(src, destDir)
	default:
		return nil, fmt.Errorf("unsupported archive format for %q", src)
	}
}

func writeEntry(destDir, name string, r io.Reader) error {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}

// ZipOne produces a single-entry deflate ZIP at destZipPath
// containing src under its basename.
func ZipOne(src, destZipPath string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(destZipPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := newZipWriter(out)
	defer zw.Close()

	w, err := zw.CreateDeflate(filepath.Base(src))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
