package notify

import "testing"

func TestNoOpSatisfiesNotifier(t *testing.T) {
	var n Notifier = NoOp{}
	n.SyncStarted("example.torrent")
	n.SyncCompleted("example.torrent", 2)
	n.FileUploadFailed("a.txt", "example.torrent", "boom")
	n.LowFreeSpace("example.torrent", 100, 1000)
}
