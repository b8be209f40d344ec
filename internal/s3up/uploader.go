// Package s3up is the pool of S3 upload workers described in
// spec.md §4.7: a fixed-size pool consuming a work queue, retrying
// transient failures with exponential backoff, and reporting
// per-file success/error on a separate progress queue the
// orchestrator drains.
package s3up

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/torrents3/torrents3/internal/archivex"
	"github.com/torrents3/torrents3/internal/logging"
)

const defaultWorkerCount = 16

const (
	backoffInitial = 5 * time.Second
	backoffFactor  = 2
	backoffCap     = 60 * time.Second
	maxAttempts    = 5
)

// EventKind discriminates progress-queue messages (the Go rendering
// of spec.md §9's tagged sum types, used in place of inheritance).
type EventKind int

const (
	EventUploadOk EventKind = iota
	EventUploadError
)

type Event struct {
	Kind EventKind
	Path string
	Err  error
}

type message struct {
	terminate bool
	path      string
	archive   bool
}

// Uploader owns the worker pool, the work queue, and the progress
// queue. It shares no state with the torrent downloader.
type Uploader struct {
	client     *minio.Client
	bucket     string
	prefix     string
	pathFrom   string
	workers    int
	logger     *logging.Logger

	queue    chan message
	progress chan Event
	wg       sync.WaitGroup
	started  bool
}

// Config bundles the connection parameters for New.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	// UploadPrefix is the S3 key prefix; empty means bucket root.
	UploadPrefix string
	// PathFrom is the local scratch directory files are resolved
	// relative to.
	PathFrom string
	Workers  int
}

func New(cfg Config, logger *logging.Logger) (*Uploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkerCount
	}

	return &Uploader{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.UploadPrefix,
		pathFrom: cfg.PathFrom,
		workers:  workers,
		logger:   logger,
		queue:    make(chan message, 256),
		progress: make(chan Event, 256),
	}, nil
}

// Start verifies the bucket exists and is writable (PUT + DELETE of a
// random empty probe object under the configured prefix) before
// spawning any workers. On any failure no workers are started.
func (u *Uploader) Start(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %q: %w", u.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", u.bucket)
	}

	probeKey := u.objectKey(".torrents3-probe-" + uuid.NewString())
	_, err = u.client.PutObject(ctx, u.bucket, probeKey, strings.NewReader(""), 0, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to write probe object: %w", err)
	}
	if err := u.client.RemoveObject(ctx, u.bucket, probeKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete probe object: %w", err)
	}

	u.started = true
	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go u.worker(i + 1)
	}
	return nil
}

// Stop enqueues one terminate sentinel per worker and waits for every
// in-flight upload's current retry attempt to finish.
func (u *Uploader) Stop() {
	if !u.started {
		return
	}
	for i := 0; i < u.workers; i++ {
		u.queue <- message{terminate: true}
	}
	u.wg.Wait()
}

// NewFile enqueues a file for upload. archiveBeforeUpload requests
// that the file be zipped into a temporary single-entry archive
// before upload (the --extract-files / archive_files policy lives in
// the orchestrator, not here).
func (u *Uploader) NewFile(pathRelative string, archiveBeforeUpload bool) {
	u.queue <- message{path: pathRelative, archive: archiveBeforeUpload}
}

// Progress is the consumer-visible progress stream; the orchestrator
// drains it non-blockingly via TryNext.
func (u *Uploader) Progress() <-chan Event {
	return u.progress
}

// TryNext returns the next queued event without blocking, matching
// the "pop_waiting"/"empty" contract from spec.md §9: ok is false
// when the queue currently has nothing for the caller to drain.
func (u *Uploader) TryNext() (Event, bool) {
	select {
	case ev := <-u.progress:
		return ev, true
	default:
		return Event{}, false
	}
}

func (u *Uploader) objectKey(relative string) string {
	key := strings.ReplaceAll(relative, "\\", "/")
	if u.prefix == "" {
		return key
	}
	return strings.TrimSuffix(u.prefix, "/") + "/" + key
}

func (u *Uploader) worker(id int) {
	defer u.wg.Done()
	for {
		msg := <-u.queue
		if msg.terminate {
			return
		}
		u.handle(msg)
	}
}

func (u *Uploader) handle(msg message) {
	sourcePath := filepath.Join(u.pathFrom, filepath.FromSlash(msg.path))

	if msg.archive {
		tmp, err := os.CreateTemp("", "torrents3-upload-*.zip")
		if err != nil {
			u.progress <- Event{Kind: EventUploadError, Path: msg.path, Err: fmt.Errorf("failed to create temp zip: %w", err)}
			return
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := archivex.ZipOne(sourcePath, tmpPath); err != nil {
			u.progress <- Event{Kind: EventUploadError, Path: msg.path, Err: fmt.Errorf("failed to zip before upload: %w", err)}
			return
		}
		sourcePath = tmpPath
	}

	if err := u.putWithBackoff(msg.path, sourcePath); err != nil {
		u.progress <- Event{Kind: EventUploadError, Path: msg.path, Err: err}
		return
	}
	u.progress <- Event{Kind: EventUploadOk, Path: msg.path}
}

func (u *Uploader) putWithBackoff(relativePath, sourcePath string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", sourcePath, err)
	}

	key := u.objectKey(relativePath)
	wait := backoffInitial

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		f, err := os.Open(sourcePath)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", sourcePath, err)
		}

		_, err = u.client.PutObject(context.Background(), u.bucket, key, f, info.Size(), minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		})
		f.Close()
		if err == nil {
			return nil
		}

		if !isTransient(err) || attempt == maxAttempts {
			return fmt.Errorf("failed to upload %s: %w", relativePath, err)
		}

		u.logger.Warn("transient S3 error uploading", relativePath, "attempt", attempt, "retrying in", wait, err)
		time.Sleep(wait)
		wait *= backoffFactor
		if wait > backoffCap {
			wait = backoffCap
		}
	}
	return fmt.Errorf("failed to upload %s: retries exhausted", relativePath)
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	return resp.StatusCode == 429 || resp.StatusCode == 0
}

// Delete removes an object (and its archive-before-upload twin is not
// relevant here — the persisted object is always the final key).
func (u *Uploader) Delete(ctx context.Context, relativePath string) error {
	key := u.objectKey(relativePath)
	wait := backoffInitial
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := u.client.RemoveObject(ctx, u.bucket, key, minio.RemoveObjectOptions{})
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) || attempt == maxAttempts {
			return fmt.Errorf("failed to delete %s: %w", relativePath, err)
		}
		time.Sleep(wait)
		wait *= backoffFactor
		if wait > backoffCap {
			wait = backoffCap
		}
	}
	return lastErr
}

// Exists probes StatObject, treating the two well-known "does not
// exist" error strings as a clean false rather than an error.
func (u *Uploader) Exists(ctx context.Context, relativePath string) (bool, error) {
	key := u.objectKey(relativePath)
	_, err := u.client.StatObject(ctx, u.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	msg := err.Error()
	if msg == "NoSuchKey: Object does not exist" || msg == "NoSuchBucket: Bucket does not exist" {
		return false, nil
	}
	return false, err
}

func (u *Uploader) BucketExists(ctx context.Context) (bool, error) {
	return u.client.BucketExists(ctx, u.bucket)
}
