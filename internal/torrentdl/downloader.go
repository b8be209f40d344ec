// Package torrentdl wraps a session-per-instance BitTorrent engine the
// way internal/utils/magnet.go already uses anacrolix/torrent in the
// teacher repo: a torrent.Client started with every file priority set
// to "don't download", files enabled one request at a time by the
// sync orchestrator, completion surfaced on a polled progress queue.
package torrentdl

import (
	"fmt"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/types"

	"github.com/torrents3/torrents3/internal/hashlist"
	"github.com/torrents3/torrents3/internal/logging"
)

const pollInterval = 150 * time.Millisecond

type EventKind int

const (
	EventDownloadOk EventKind = iota
	EventDownloadError
)

type Event struct {
	Kind EventKind
	Path string
	Err  error
}

// Downloader owns the torrent.Client and the single active torrent
// for this process's lifetime (spec.md's "no parallel torrents per
// process" Non-goal).
type Downloader struct {
	client *torrent.Client
	t      *torrent.Torrent
	logger *logging.Logger

	progress chan Event
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu          sync.Mutex
	requested   map[string]bool
	seenDone    map[string]bool
	acceptsWork bool
}

// New starts a torrent.Client (no seeding, no uploading, matching the
// "no seeding after sync completes" Non-goal) and adds mi with every
// file priority at None.
func New(mi *metainfo.MetaInfo, dataDir string, logger *logging.Logger) (*Downloader, error) {
	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = dataDir
	cfg.NoUpload = true
	cfg.Seed = false
	cfg.DisablePEX = true

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create torrent client: %w", err)
	}

	t, err := client.AddTorrent(mi)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to add torrent: %w", err)
	}

	<-t.GotInfo()
	for _, f := range t.Files() {
		f.SetPriority(types.PiecePriorityNone)
	}

	return &Downloader{
		client:      client,
		t:           t,
		logger:      logger,
		progress:    make(chan Event, 256),
		stopCh:      make(chan struct{}),
		requested:   make(map[string]bool),
		seenDone:    make(map[string]bool),
		acceptsWork: true,
	}, nil
}

// Layout builds the hashlist.Layout for this torrent, independent of
// any particular file-path normalization the runtime torrent client
// might apply.
func (d *Downloader) Layout() hashlist.Layout {
	info := d.t.Info()
	layout := hashlist.Layout{PieceLength: info.PieceLength}

	var offset int64
	for _, f := range info.UpvertedFiles() {
		path := joinPath(f.Path)
		layout.Files = append(layout.Files, hashlist.FileEntry{
			Path:   path,
			Offset: offset,
			Size:   f.Length,
		})
		offset += f.Length
	}

	numPieces := info.NumPieces()
	layout.PieceHashes = make([][]byte, numPieces)
	for i := 0; i < numPieces; i++ {
		h := info.Piece(i).V1Hash().Unwrap()
		layout.PieceHashes[i] = h[:]
	}
	return layout
}

func joinPath(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}

// Start spawns the event-loop goroutine.
func (d *Downloader) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop tears down the session synchronously: no forced abort of any
// single in-flight request, but no further alerts are polled either.
// Safe to call more than once (process_torrent_error's inline stop and
// the orchestrator's final stop() both reach here).
func (d *Downloader) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
		d.client.Close()
	})
}

func (d *Downloader) Progress() <-chan Event {
	return d.progress
}

// TryNext mirrors s3up's non-blocking drain contract.
func (d *Downloader) TryNext() (Event, bool) {
	select {
	case ev := <-d.progress:
		return ev, true
	default:
		return Event{}, false
	}
}

// DownloadFiles enqueues add-file requests; duplicates are
// idempotent. Paths that already finished downloading before being
// requested (because BitTorrent's piece allocation can satisfy
// overlapping files) are served immediately without re-downloading.
func (d *Downloader) DownloadFiles(paths []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acceptsWork {
		return
	}

	byPath := d.filesByPath()
	for _, p := range paths {
		if d.requested[p] {
			continue
		}
		d.requested[p] = true

		f, ok := byPath[p]
		if !ok {
			// Requests for paths not in the torrent are silently
			// ignored, per spec.md §4.5.
			continue
		}

		if d.seenDone[p] {
			d.emit(Event{Kind: EventDownloadOk, Path: p})
			continue
		}
		f.SetPriority(types.PiecePriorityNormal)
	}
}

func (d *Downloader) filesByPath() map[string]*torrent.File {
	out := make(map[string]*torrent.File)
	for _, f := range d.t.Files() {
		out[f.Path()] = f
	}
	return out
}

func (d *Downloader) emit(ev Event) {
	select {
	case d.progress <- ev:
	default:
		// Progress queue is generously buffered; a full queue here
		// would mean the orchestrator has stopped draining, which
		// only happens after Stop(). Drop rather than block the
		// event loop forever.
	}
}

func (d *Downloader) loop() {
	defer d.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-d.t.Closed():
			d.ReportEngineError(fmt.Errorf("torrent session closed unexpectedly"))
			return
		case <-ticker.C:
			d.pollCompletions()
		}
	}
}

func (d *Downloader) pollCompletions() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, f := range d.t.Files() {
		path := f.Path()
		if d.seenDone[path] {
			continue
		}
		if f.Length() > 0 && f.BytesCompleted() < f.Length() {
			continue
		}
		d.seenDone[path] = true
		if d.requested[path] {
			d.emit(Event{Kind: EventDownloadOk, Path: path})
		}
	}
}

// ReportEngineError emits a single DownloadError and stops accepting
// new file requests; the session is still torn down only when the
// orchestrator calls Stop.
func (d *Downloader) ReportEngineError(err error) {
	d.mu.Lock()
	if !d.acceptsWork {
		d.mu.Unlock()
		return
	}
	d.acceptsWork = false
	d.mu.Unlock()
	d.logger.Error("torrent engine error:", err)
	d.emit(Event{Kind: EventDownloadError, Err: err})
}
