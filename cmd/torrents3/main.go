package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/torrents3/torrents3/internal/config"
	"github.com/torrents3/torrents3/internal/logging"
	"github.com/torrents3/torrents3/internal/monitor"
	"github.com/torrents3/torrents3/internal/notify"
	"github.com/torrents3/torrents3/internal/s3up"
	"github.com/torrents3/torrents3/internal/schedule"
	"github.com/torrents3/torrents3/internal/state"
	"github.com/torrents3/torrents3/internal/status"
	syncpkg "github.com/torrents3/torrents3/internal/sync"
	"github.com/torrents3/torrents3/internal/torrentdl"
	"github.com/torrents3/torrents3/internal/watch"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if cfg.PrintVersion {
		fmt.Println("torrents3", version)
		return
	}

	logger := logging.New(cfg.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		logger.Info("shutdown signal received")
		cancel()
	}()

	runOnce := func() error { return runSync(ctx, cfg, logger) }

	if cfg.Schedule != "" {
		sched, err := schedule.New(cfg.Schedule, runOnce, logger)
		if err != nil {
			logger.Fatal("invalid --schedule expression:", err)
		}
		sched.Start()
		logger.Info("scheduled sync started with expression", cfg.Schedule)
		<-ctx.Done()
		sched.Stop()
		return
	}

	if err := runOnce(); err != nil {
		logger.Error("sync failed:", err)
		os.Exit(1)
	}
}

// runSync performs exactly one init -> run -> stop cycle, the unit
// the Scheduler repeats when --schedule is set.
func runSync(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	mi, err := torrentdl.ResolveSource(ctx, cfg.Torrent, cfg.DownloadPath, cfg.S3Proxy, logger)
	if err != nil {
		return fmt.Errorf("failed to resolve torrent source: %w", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return fmt.Errorf("failed to read torrent info: %w", err)
	}
	torrentName := info.Name

	store, err := state.Open(cfg.StateFile, false)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer store.Close()

	downloader, err := torrentdl.New(mi, cfg.DownloadPath, logger)
	if err != nil {
		return fmt.Errorf("failed to start torrent downloader: %w", err)
	}

	endpoint, secure, err := parseS3Endpoint(cfg.S3URL)
	if err != nil {
		return fmt.Errorf("invalid --s3-url: %w", err)
	}
	uploader, err := s3up.New(s3up.Config{
		Endpoint:     endpoint,
		Secure:       secure,
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Bucket:       cfg.S3Bucket,
		UploadPrefix: cfg.S3UploadPath,
		PathFrom:     cfg.DownloadPath,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to build S3 uploader: %w", err)
	}

	orchestrator, err := syncpkg.New(store, uploader, downloader, syncpkg.Config{
		DownloadPath: cfg.DownloadPath,
		LimitSize:    cfg.LimitSize,
		ExtractFiles: cfg.ExtractFiles,
		ArchiveFiles: cfg.ArchiveFiles,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize sync: %w", err)
	}

	var notifier notify.Notifier = notify.NoOp{}
	if cfg.PushbulletToken != "" {
		notifier = notify.NewPushbulletClient(cfg.PushbulletToken, logger)
	}
	orchestrator.SetNotifier(notifier, torrentName)

	monCtx, monCancel := context.WithCancel(ctx)
	defer monCancel()
	mon := monitor.New(cfg.DownloadPath, cfg.LimitSize, logger)
	mon.OnLowSpace(func(free, budget int64) {
		notifier.LowFreeSpace(torrentName, free, budget)
	})
	go mon.Run(monCtx)

	var watcher *watch.Watcher
	if cfg.WatchScratch {
		watcher, err = watch.New(cfg.DownloadPath, logger)
		if err != nil {
			logger.Warn("failed to start scratch watcher:", err)
		} else {
			defer watcher.Close()
		}
	}

	var statusServer *status.Server
	if cfg.StatusAddr != "" {
		statusServer = status.New(cfg.StatusAddr, logger)
		statusServer.Start()
		defer statusServer.Stop(context.Background())

		statusCh := make(chan syncpkg.Snapshot, 16)
		orchestrator.SetStatusChannel(statusCh)
		defer close(statusCh)
		go func() {
			for snap := range statusCh {
				select {
				case statusServer.Publish <- status.Snapshot{
					Requested: snap.Requested,
					InFlight:  snap.InFlight,
					Completed: snap.Completed,
					Errors:    snap.Errors,
				}:
				default:
				}
			}
		}()
	}

	if err := orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}

	fileErrors, err := orchestrator.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync run failed: %w", err)
	}
	for _, fe := range fileErrors {
		logger.Error("file upload failed:", fe.FileName, fe.Error)
	}
	logger.Info("sync complete with", len(fileErrors), "file error(s)")
	return nil
}

// parseS3Endpoint splits a URL like "https://s3.example.com:9000" into
// the bare host:port minio-go's client expects plus whether TLS
// should be used.
func parseS3Endpoint(raw string) (endpoint string, secure bool, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, err
	}
	if u.Host == "" {
		return raw, true, nil
	}
	return u.Host, u.Scheme != "http", nil
}
