package torrentdl

import (
	"context"
	"fmt"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/torrents3/torrents3/internal/logging"
)

const (
	magnetStallTimeout = 60 * time.Second
	magnetMaxRetries   = 5
)

// ResolveMagnet fetches metadata for a magnet URI using a dedicated
// metadata-only session (no-download, no-upload). A stall watchdog
// restarts the fetch if no peer-count progress is observed for 60s,
// up to 5 retries; the final failure surfaces as an error, mirroring
// internal/utils/magnet.go's timeout handling but with retry.
func ResolveMagnet(ctx context.Context, magnetURI, dataDir string, logger *logging.Logger) (*metainfo.MetaInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= magnetMaxRetries+1; attempt++ {
		mi, err := resolveMagnetOnce(ctx, magnetURI, dataDir)
		if err == nil {
			return mi, nil
		}
		lastErr = err
		logger.Warn("magnet metadata fetch stalled, retrying, attempt", attempt, err)
	}
	return nil, fmt.Errorf("failed to fetch magnet metadata after %d attempts: %w", magnetMaxRetries+1, lastErr)
}

func resolveMagnetOnce(ctx context.Context, magnetURI, dataDir string) (*metainfo.MetaInfo, error) {
	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = dataDir
	cfg.NoUpload = true
	cfg.DisablePEX = true

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata torrent client: %w", err)
	}
	defer client.Close()

	t, err := client.AddMagnet(magnetURI)
	if err != nil {
		return nil, fmt.Errorf("failed to add magnet: %w", err)
	}

	stall := time.NewTimer(magnetStallTimeout)
	defer stall.Stop()

	progress := time.NewTicker(2 * time.Second)
	defer progress.Stop()

	lastPeers := -1
	for {
		select {
		case <-t.GotInfo():
			mi := t.Metainfo()
			return &mi, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-stall.C:
			return nil, fmt.Errorf("no metadata progress within %s", magnetStallTimeout)
		case <-progress.C:
			peers := t.Stats().ActivePeers
			if peers > lastPeers {
				lastPeers = peers
				if !stall.Stop() {
					<-stall.C
				}
				stall.Reset(magnetStallTimeout)
			}
		}
	}
}
