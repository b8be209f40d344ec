package torrentdl

import "testing"

func TestJoinPath(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"a"}, "a"},
		{[]string{"a", "b", "c.txt"}, "a/b/c.txt"},
		{nil, ""},
	}
	for _, c := range cases {
		if got := joinPath(c.in); got != c.want {
			t.Errorf("joinPath(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTryNextOnEmptyProgressQueue(t *testing.T) {
	d := &Downloader{progress: make(chan Event, 1)}
	if _, ok := d.TryNext(); ok {
		t.Fatalf("expected no event on empty queue")
	}

	d.progress <- Event{Kind: EventDownloadOk, Path: "a.txt"}
	ev, ok := d.TryNext()
	if !ok || ev.Path != "a.txt" {
		t.Fatalf("TryNext = %+v, %v", ev, ok)
	}
}
