package folders

import "testing"

func TestAddAndParentOf(t *testing.T) {
	tr := New()
	tr.Add("dir", []string{"dir/a.txt", "dir/b.txt"})

	if p, ok := tr.ParentOf("dir/a.txt"); !ok || p != "dir" {
		t.Fatalf("ParentOf(dir/a.txt) = %q, %v", p, ok)
	}
	files := tr.Files()
	if len(files["dir"]) != 2 {
		t.Fatalf("expected 2 children under dir, got %v", files["dir"])
	}
}

func TestRemoveChildEmptiesParent(t *testing.T) {
	tr := New()
	tr.Add("dir", []string{"dir/a.txt"})
	tr.RemoveChild("dir/a.txt")

	if _, ok := tr.ParentOf("dir/a.txt"); ok {
		t.Fatalf("expected dir/a.txt unbound")
	}
	if !tr.Empty() {
		t.Fatalf("expected tracker empty after last child removed, got %v", tr.Files())
	}
}

func TestRemoveChildLeavesNonEmptyParent(t *testing.T) {
	tr := New()
	tr.Add("dir", []string{"dir/a.txt", "dir/b.txt"})
	tr.RemoveChild("dir/a.txt")

	files := tr.Files()
	if len(files["dir"]) != 1 || files["dir"][0] != "dir/b.txt" {
		t.Fatalf("expected dir/b.txt to remain, got %v", files["dir"])
	}
}

func TestRemoveParentDropsOnlyThatParent(t *testing.T) {
	tr := New()
	tr.Add("dir1", []string{"dir1/a.txt"})
	tr.Add("dir2", []string{"dir2/b.txt"})

	tr.RemoveParent("dir1")

	if _, ok := tr.ParentOf("dir1/a.txt"); ok {
		t.Fatalf("expected dir1/a.txt to be unbound")
	}
	if p, ok := tr.ParentOf("dir2/b.txt"); !ok || p != "dir2" {
		t.Fatalf("dir2/b.txt should be untouched, got %q, %v", p, ok)
	}
}

func TestHasChildren(t *testing.T) {
	tr := New()
	tr.Add("dir", []string{"dir/a.txt"})
	if !tr.HasChildren("dir") {
		t.Fatalf("expected dir to have children")
	}
	tr.RemoveChild("dir/a.txt")
	if tr.HasChildren("dir") {
		t.Fatalf("expected dir to have no children after removing its only child")
	}
}

func TestAddRebindsChildToNewestParent(t *testing.T) {
	tr := New()
	tr.Add("dir1", []string{"shared.txt"})
	tr.Add("dir2", []string{"shared.txt"})

	if p, ok := tr.ParentOf("shared.txt"); !ok || p != "dir2" {
		t.Fatalf("expected shared.txt bound to dir2, got %q, %v", p, ok)
	}
	files := tr.Files()
	if len(files["dir1"]) != 0 {
		t.Fatalf("expected dir1 to have no children left, got %v", files["dir1"])
	}
}
