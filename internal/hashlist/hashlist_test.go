package hashlist

import "testing"

func TestPieceRange(t *testing.T) {
	cases := []struct {
		pieceLen, offset, size int64
		first, last            int
	}{
		{16, 0, 16, 0, 1},
		{16, 0, 32, 0, 2},
		{16, 15, 2, 0, 2},   // spans a boundary
		{16, 16, 0, 1, 1},   // empty file
		{16, 100, 1, 6, 7},
	}
	for _, c := range cases {
		first, last := PieceRange(c.pieceLen, c.offset, c.size)
		if first != c.first || last != c.last {
			t.Errorf("PieceRange(%d,%d,%d) = (%d,%d), want (%d,%d)",
				c.pieceLen, c.offset, c.size, first, last, c.first, c.last)
		}
	}
}

func hash(b byte) []byte { return []byte{b, b, b} }

func testLayout() Layout {
	return Layout{
		PieceLength: 10,
		Files: []FileEntry{
			{Path: "a.txt", Offset: 0, Size: 10},
			{Path: "b.txt", Offset: 10, Size: 15},
		},
		PieceHashes: [][]byte{hash(1), hash(2), hash(3)},
	}
}

func TestBuild(t *testing.T) {
	layout := testLayout()
	hl := Build(layout, map[string][]string{"b.txt": {"inner.bin"}})

	if len(hl["a.txt"].Hashes) != 1 {
		t.Fatalf("a.txt expected 1 hash, got %d", len(hl["a.txt"].Hashes))
	}
	if len(hl["b.txt"].Hashes) != 2 {
		t.Fatalf("b.txt expected 2 hashes, got %d", len(hl["b.txt"].Hashes))
	}
	if len(hl["a.txt"].LinkedFiles) != 0 {
		t.Fatalf("a.txt should have no linked files")
	}
	if len(hl["b.txt"].LinkedFiles) != 1 || hl["b.txt"].LinkedFiles[0] != "inner.bin" {
		t.Fatalf("b.txt linked files mismatch: %v", hl["b.txt"].LinkedFiles)
	}
}

func TestDiffUpdated(t *testing.T) {
	layout := testLayout()
	prev := Build(layout, nil)

	updated := DiffUpdated(layout, prev)
	if len(updated) != 0 {
		t.Fatalf("expected no updates against identical hashlist, got %v", updated)
	}

	// absent file counts as updated
	delete(prev, "a.txt")
	updated = DiffUpdated(layout, prev)
	if _, ok := updated["a.txt"]; !ok {
		t.Fatalf("expected a.txt to be updated, got %v", updated)
	}

	// changed hash counts as updated
	prev = Build(layout, nil)
	rec := prev["b.txt"]
	rec.Hashes = [][]byte{hash(9), hash(9)}
	prev["b.txt"] = rec
	updated = DiffUpdated(layout, prev)
	if _, ok := updated["b.txt"]; !ok {
		t.Fatalf("expected b.txt to be updated after hash change, got %v", updated)
	}
	if _, ok := updated["a.txt"]; ok {
		t.Fatalf("a.txt should not be updated, got %v", updated)
	}
}

func TestDiffRemoved(t *testing.T) {
	layout := testLayout()
	prev := Build(layout, nil)
	prev["gone.txt"] = Record{Hashes: [][]byte{hash(7)}}

	removed := DiffRemoved(layout, prev)
	if len(removed) != 1 {
		t.Fatalf("expected 1 removed file, got %v", removed)
	}
	if _, ok := removed["gone.txt"]; !ok {
		t.Fatalf("expected gone.txt in removed set, got %v", removed)
	}
}
