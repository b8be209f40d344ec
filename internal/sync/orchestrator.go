// Package sync is the control loop described in spec.md §4.8: it owns
// no I/O primitives of its own, only the bookkeeping that decides, on
// every download or upload event, what to do next. It is grounded
// directly on original_source/src/app_sync/sync.cpp, translated from
// that file's single-threaded event-driven design into the same shape
// using Go channels for the two progress queues.
package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/torrents3/torrents3/internal/admission"
	"github.com/torrents3/torrents3/internal/archivex"
	"github.com/torrents3/torrents3/internal/folders"
	"github.com/torrents3/torrents3/internal/hashlist"
	"github.com/torrents3/torrents3/internal/logging"
	"github.com/torrents3/torrents3/internal/notify"
	"github.com/torrents3/torrents3/internal/s3up"
	"github.com/torrents3/torrents3/internal/state"
	"github.com/torrents3/torrents3/internal/torrentdl"
)

// Snapshot is a best-effort progress broadcast for the optional status
// server; it carries no reference to live subsystem state so the
// status server can hold it across goroutines safely.
type Snapshot struct {
	Requested int
	InFlight  int
	Completed int
	Errors    int
}

const idleSleep = 50 * time.Millisecond

// Downloader is the subset of *torrentdl.Downloader the orchestrator
// drives, narrowed to an interface the way internal/clients/torrent's
// TorrentClient interface decouples callers from one concrete engine
// (here: so tests can drive the control loop with a fake swarm).
type Downloader interface {
	Layout() hashlist.Layout
	Start()
	Stop()
	TryNext() (torrentdl.Event, bool)
	DownloadFiles(paths []string)
}

// Uploader is the subset of *s3up.Uploader the orchestrator drives.
type Uploader interface {
	Start(ctx context.Context) error
	Stop()
	NewFile(pathRelative string, archiveBeforeUpload bool)
	TryNext() (s3up.Event, bool)
	Delete(ctx context.Context, relativePath string) error
}

// FileUploadError is one accumulated per-file upload failure, returned
// from Stop so the caller can report it without halting the sync.
type FileUploadError struct {
	FileName string
	Error    string
}

// Config bundles the run-level options that don't belong to any one
// subsystem.
type Config struct {
	DownloadPath string
	LimitSize    int64
	ExtractFiles bool
	ArchiveFiles bool
}

// Orchestrator drives one sync run to completion. It is not safe for
// concurrent use and is meant to be driven by a single goroutine, the
// same "AppSync is not thread-safe" contract the teacher's control
// loop documents.
type Orchestrator struct {
	store      *state.Store
	uploader   Uploader
	downloader Downloader
	folders    *folders.Tracker
	logger     *logging.Logger
	cfg        Config

	layout   hashlist.Layout
	files    []admission.File
	previous hashlist.Hashlist

	requested map[string]struct{}
	inFlight  map[string]struct{}
	completed map[string]struct{}

	downloadError     bool
	hasUploadingFiles bool
	fileErrors        []FileUploadError

	torrentName string
	notifier    notify.Notifier
	statusCh    chan<- Snapshot
}

// SetNotifier wires a Pushbullet (or no-op) notifier; torrentName is
// used purely for the notification body text.
func (o *Orchestrator) SetNotifier(n notify.Notifier, torrentName string) {
	o.notifier = n
	o.torrentName = torrentName
}

// SetStatusChannel wires the optional status server's broadcast
// channel. Publishing is always a non-blocking best-effort send.
func (o *Orchestrator) SetStatusChannel(ch chan<- Snapshot) {
	o.statusCh = ch
}

func (o *Orchestrator) publishSnapshot() {
	if o.statusCh == nil {
		return
	}
	snap := Snapshot{
		Requested: len(o.requested),
		InFlight:  len(o.inFlight),
		Completed: len(o.completed),
		Errors:    len(o.fileErrors),
	}
	select {
	case o.statusCh <- snap:
	default:
	}
}

// New builds an Orchestrator and runs Init: it loads the previous
// hashlist, computes the requested-files set, and seeds the Folder
// Tracker with every ancestor directory of each requested file.
func New(store *state.Store, uploader Uploader, downloader Downloader, cfg Config, logger *logging.Logger) (*Orchestrator, error) {
	o := &Orchestrator{
		store:      store,
		uploader:   uploader,
		downloader: downloader,
		folders:    folders.New(),
		logger:     logger,
		cfg:        cfg,
		notifier:   notify.NoOp{},
	}
	if err := o.initDownloading(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) initDownloading() error {
	o.layout = o.downloader.Layout()

	previous, err := o.store.GetHashlist()
	if err != nil {
		return fmt.Errorf("failed to load previous hashlist: %w", err)
	}
	o.previous = previous

	updated := hashlist.DiffUpdated(o.layout, previous)
	requested := make(map[string]struct{}, len(updated))
	for path := range updated {
		status, ok, err := o.store.GetStatus(path)
		if err != nil {
			return fmt.Errorf("failed to read status for %s: %w", path, err)
		}
		if ok && status == state.StatusReady {
			continue
		}
		requested[path] = struct{}{}
	}

	o.requested = requested
	o.inFlight = make(map[string]struct{})
	o.completed = make(map[string]struct{})
	o.files = o.files[:0]
	for _, f := range o.layout.Files {
		o.files = append(o.files, admission.File{Path: f.Path, Size: f.Size})
	}

	o.folders = folders.New()
	for path := range requested {
		populateFolders(o.folders, path)
	}

	o.downloadError = false
	o.hasUploadingFiles = false
	o.fileErrors = nil
	return nil
}

// populateFolders mirrors sync.cpp's populate_folders: it walks a
// file's path upward, linking each directory to its immediate child,
// stopping as soon as it reaches a directory already tracked (someone
// else's walk already covered the rest of the way up).
func populateFolders(tracker *folders.Tracker, path string) {
	child := path
	for {
		parent := filepath.Dir(child)
		if parent == "." || parent == child {
			return
		}
		if _, ok := tracker.ParentOf(child); ok {
			return
		}
		tracker.Add(parent, []string{child})
		child = parent
	}
}

// Start starts the Downloader and Uploader, then submits the first
// admission chunk.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.downloader.Start()
	if err := o.uploader.Start(ctx); err != nil {
		return err
	}
	o.notifier.SyncStarted(o.torrentName)

	chunk := o.nextChunk()
	if len(chunk) > 0 {
		o.downloader.DownloadFiles(chunk)
	}
	return nil
}

func (o *Orchestrator) nextChunk() []string {
	chunk := admission.NextChunk(o.files, admission.Sets{
		Requested: o.requested,
		InFlight:  o.inFlight,
		Completed: o.completed,
	}, o.cfg.LimitSize)
	for _, path := range chunk {
		o.inFlight[path] = struct{}{}
	}
	return chunk
}

// Run drains both progress queues until the sync is complete, then
// finalizes the hashlist and stops every subsystem. It is the Go
// rendering of sync.cpp's full_sync, split so the caller can still
// call Stop separately on a startup failure.
func (o *Orchestrator) Run(ctx context.Context) ([]FileUploadError, error) {
	for !o.isCompleted() {
		select {
		case <-ctx.Done():
			return o.Stop(), ctx.Err()
		default:
		}

		drainedAny := false
		for {
			ev, ok := o.downloader.TryNext()
			if !ok {
				break
			}
			drainedAny = true
			o.handleDownloadEvent(ev)
		}
		for {
			ev, ok := o.uploader.TryNext()
			if !ok {
				break
			}
			drainedAny = true
			o.handleUploadEvent(ev)
		}
		if !drainedAny {
			time.Sleep(idleSleep)
		}
	}

	o.logger.Info("downloading torrent completed")
	if err := o.updateHashlist(); err != nil {
		o.logger.Error("failed to update hashlist:", err)
	}
	if err := o.deleteRemovedFiles(ctx); err != nil {
		o.logger.Error("failed to remove stale S3 objects:", err)
	}
	fileErrors := o.Stop()
	o.notifier.SyncCompleted(o.torrentName, len(fileErrors))
	return fileErrors, nil
}

func (o *Orchestrator) handleDownloadEvent(ev torrentdl.Event) {
	switch ev.Kind {
	case torrentdl.EventDownloadError:
		o.logger.Error("error during downloading torrent files:", ev.Err)
		o.downloadError = true
		o.notifier.FileUploadFailed(ev.Path, o.torrentName, ev.Err.Error())
		o.downloader.Stop()
	case torrentdl.EventDownloadOk:
		o.handleDownload(ev.Path)
	}
	o.publishSnapshot()
}

func (o *Orchestrator) handleUploadEvent(ev s3up.Event) {
	switch ev.Kind {
	case s3up.EventUploadError:
		o.logger.Error("error during uploading file", ev.Path, ":", ev.Err)
		o.fileErrors = append(o.fileErrors, FileUploadError{FileName: ev.Path, Error: ev.Err.Error()})
		o.notifier.FileUploadFailed(ev.Path, o.torrentName, ev.Err.Error())
		o.handleUpload(ev.Path)
	case s3up.EventUploadOk:
		o.handleUpload(ev.Path)
	}
	o.publishSnapshot()
}

// handleDownload implements sync.cpp's process_torrent_file: optional
// archive extraction, state.add_uploading, and enqueuing every
// resulting file for upload.
func (o *Orchestrator) handleDownload(path string) {
	fullPath := filepath.Join(o.cfg.DownloadPath, path)
	var children []string

	if o.cfg.ExtractFiles && archivex.IsPacked(fullPath) {
		extractDir := archivex.FolderForUnpacked(fullPath)
		entries, err := archivex.Unpack(fullPath, extractDir)
		if err != nil {
			o.logger.Error("could not extract file", fullPath, ":", err)
		} else {
			ok := true
			for _, e := range entries {
				if e.Err != nil {
					o.logger.Error("failed to extract entry from", fullPath, ":", e.Err)
					ok = false
				}
			}
			if !ok {
				o.logger.Error("some files were not extracted from", fullPath)
			} else {
				for _, e := range entries {
					full := filepath.Join(extractDir, filepath.FromSlash(e.Name))
					rel, err := filepath.Rel(o.cfg.DownloadPath, full)
					if err != nil {
						continue
					}
					rel = filepath.ToSlash(rel)
					rel = strings.TrimPrefix(rel, "./")
					children = append(children, rel)
				}
				os.Remove(fullPath)
				o.folders.RemoveChild(path)
				for _, child := range children {
					populateFolders(o.folders, child)
				}
			}
		}
	}

	if err := o.store.AddUploading(path, children); err != nil {
		o.logger.Error("failed to record uploading state for", path, ":", err)
		return
	}

	if len(children) == 0 {
		o.hasUploadingFiles = true
		o.uploader.NewFile(path, o.cfg.ArchiveFiles && !archivex.IsPacked(fullPath))
	}
	for _, child := range children {
		o.hasUploadingFiles = true
		childFullPath := filepath.Join(o.cfg.DownloadPath, child)
		o.uploader.NewFile(child, o.cfg.ArchiveFiles && !archivex.IsPacked(childFullPath))
	}
}

// handleUpload implements sync.cpp's process_s3_file /
// process_s3_file_error shared accounting (s3_file_upload_complete
// plus the admission-advance tail). It runs for failed uploads as well
// as successful ones, so a failed file still counts as completed for
// admission.
func (o *Orchestrator) handleUpload(path string) {
	parent, hadParent, _ := o.store.GetUploadingParent(path)

	o.deleteChild(path)
	if err := o.store.MarkReady(path); err != nil {
		o.logger.Error("failed to mark", path, "ready:", err)
	}

	if !hadParent {
		o.completed[path] = struct{}{}
		delete(o.inFlight, path)
	} else {
		siblings, err := o.store.GetUploadingFiles()
		if err == nil {
			if children, ok := siblings[parent]; !ok || len(children) == 0 {
				o.completed[parent] = struct{}{}
				delete(o.inFlight, parent)
				if err := o.store.MarkReady(parent); err != nil {
					o.logger.Error("failed to mark parent", parent, "ready:", err)
				}
			}
		}
	}

	uploading, err := o.store.GetUploadingFiles()
	if err == nil && len(uploading) == 0 {
		o.hasUploadingFiles = false
	}

	if o.downloadError {
		return
	}
	if _, stillHasParent, _ := o.store.GetUploadingParent(path); stillHasParent {
		return
	}
	chunk := o.nextChunk()
	if len(chunk) > 0 {
		o.downloader.DownloadFiles(chunk)
	}
}

// deleteChild mirrors sync.cpp's delete_child: remove the file from
// the scratch directory, then walk upward through the Folder Tracker,
// deleting each directory that is left with no children, stopping at
// the first still-populated ancestor (or the tracker's root).
func (o *Orchestrator) deleteChild(path string) {
	for path != "" && path != "." {
		full := filepath.Join(o.cfg.DownloadPath, path)
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			o.logger.Warn("failed to delete", full, ":", err)
		}

		parent, ok := o.folders.ParentOf(path)
		if !ok {
			return
		}
		o.folders.RemoveChild(path)
		if o.folders.HasChildren(parent) {
			return
		}
		path = parent
	}
}

func (o *Orchestrator) isCompleted() bool {
	admissionDone := o.admissionIsCompleted()
	return (admissionDone || o.downloadError) && !o.hasUploadingFiles
}

func (o *Orchestrator) admissionIsCompleted() bool {
	for path := range o.requested {
		if _, done := o.completed[path]; !done {
			return false
		}
	}
	return true
}

// updateHashlist implements sync.cpp's update_hashlist: build a fresh
// hashlist from the torrent's current layout plus the completed
// linked-files map, then erase any path that ended in a file error so
// the next run retries it.
func (o *Orchestrator) updateHashlist() error {
	completedLinked, err := o.store.GetCompletedFiles()
	if err != nil {
		return fmt.Errorf("failed to read completed files: %w", err)
	}

	newHashlist := hashlist.Build(o.layout, completedLinked)
	for _, fe := range o.fileErrors {
		delete(newHashlist, fe.FileName)
	}
	return o.store.SaveHashlist(newHashlist)
}

// deleteRemovedFiles implements the post-finalize tail of spec.md
// §4.8: every path present in the previous hashlist but absent from
// the torrent's current listing gets removed from S3.
func (o *Orchestrator) deleteRemovedFiles(ctx context.Context) error {
	removed := hashlist.DiffRemoved(o.layout, o.previous)

	// A removed archive parent's linked children land in `removed` too
	// (GetHashlist always materializes child keys), so collect into a
	// set first rather than deleting a child once per parent that
	// references it.
	toDelete := make(map[string]struct{}, len(removed))
	for path := range removed {
		toDelete[path] = struct{}{}
		for _, child := range o.previous[path].LinkedFiles {
			toDelete[child] = struct{}{}
		}
	}

	var firstErr error
	for path := range toDelete {
		if err := o.uploader.Delete(ctx, path); err != nil {
			o.logger.Error("failed to delete removed file", path, "from S3:", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Stop tears down the Downloader and Uploader and returns the
// accumulated per-file upload errors.
func (o *Orchestrator) Stop() []FileUploadError {
	o.downloader.Stop()
	o.uploader.Stop()
	return o.fileErrors
}
