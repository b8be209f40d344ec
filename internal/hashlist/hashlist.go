// Package hashlist computes and diffs per-file piece-hash sequences
// against a previously persisted snapshot. Piece-hash equality is the
// resync oracle for the whole sync: any byte-level change to a file's
// content changes its piece range's hashes.
package hashlist

import "bytes"

// FileEntry describes one file's placement inside a torrent's
// concatenated piece stream.
type FileEntry struct {
	// Path is the torrent-native path, exactly as the torrent names
	// it (OS-native separators, never round-tripped through an OS
	// path API that might case-fold or normalize it).
	Path   string
	Offset int64
	Size   int64
}

// Layout is the subset of torrent metadata the hashlist needs: the
// piece length, the ordered file list, and the full piece-hash table
// in torrent order. torrentdl builds this from metainfo.Info once the
// torrent's metadata is available.
type Layout struct {
	PieceLength int64
	Files       []FileEntry
	PieceHashes [][]byte
}

// PieceRange returns [first, last) piece indices covering f, per
// spec: first = floor(offset/P), last = floor((offset+size-1)/P)+1.
// A zero-size file has an empty range.
func PieceRange(pieceLength int64, offset, size int64) (first, last int) {
	if size == 0 {
		first = int(offset / pieceLength)
		return first, first
	}
	first = int(offset / pieceLength)
	last = int((offset+size-1)/pieceLength) + 1
	return first, last
}

func fileHashes(l Layout, f FileEntry) [][]byte {
	first, last := PieceRange(l.PieceLength, f.Offset, f.Size)
	hashes := make([][]byte, 0, last-first)
	for i := first; i < last; i++ {
		if i < 0 || i >= len(l.PieceHashes) {
			continue
		}
		hashes = append(hashes, l.PieceHashes[i])
	}
	return hashes
}

// Record is one file's entry in a Hashlist: its ordered piece-hash
// sequence plus any linked (archive-extracted child) files.
type Record struct {
	Hashes      [][]byte
	LinkedFiles []string
}

// Hashlist maps a torrent file path to its Record.
type Hashlist map[string]Record

// Build walks every file in the torrent and collects its piece-hash
// sequence, attaching the caller-supplied linked-files set for any
// path that is an archive parent (empty otherwise).
func Build(layout Layout, linkedFiles map[string][]string) Hashlist {
	files := make(Hashlist, len(layout.Files))
	for _, f := range layout.Files {
		children := linkedFiles[f.Path]
		files[f.Path] = Record{
			Hashes:      fileHashes(layout, f),
			LinkedFiles: append([]string(nil), children...),
		}
	}
	return files
}

func hashesEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// DiffUpdated returns every torrent file whose current piece-hash
// sequence is not bytewise equal to previous[path]. A file absent
// from previous counts as updated.
func DiffUpdated(layout Layout, previous Hashlist) map[string]struct{} {
	updated := make(map[string]struct{})
	for _, f := range layout.Files {
		current := fileHashes(layout, f)
		prev, ok := previous[f.Path]
		if !ok || !hashesEqual(current, prev.Hashes) {
			updated[f.Path] = struct{}{}
		}
	}
	return updated
}

// DiffRemoved returns every path present in previous but absent from
// the torrent's current file listing.
func DiffRemoved(layout Layout, previous Hashlist) map[string]struct{} {
	removed := make(map[string]struct{}, len(previous))
	for path := range previous {
		removed[path] = struct{}{}
	}
	for _, f := range layout.Files {
		delete(removed, f.Path)
	}
	return removed
}
