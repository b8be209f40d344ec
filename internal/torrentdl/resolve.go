package torrentdl

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/torrents3/torrents3/internal/httpfetch"
	"github.com/torrents3/torrents3/internal/logging"
)

var httpURLPattern = regexp.MustCompile(`(?i)^https?://`)

// ResolveSource turns the -t/--torrent argument into a *metainfo.MetaInfo,
// detecting its kind the way spec.md's CLI table describes: a
// successful magnet parse wins first, then an http(s):// URL match,
// then a local path that must exist.
func ResolveSource(ctx context.Context, source, dataDir, proxyURL string, logger *logging.Logger) (*metainfo.MetaInfo, error) {
	if _, err := metainfo.ParseMagnetUri(source); err == nil {
		return ResolveMagnet(ctx, source, dataDir, logger)
	}

	if httpURLPattern.MatchString(source) {
		blob, err := httpfetch.Fetch(source, proxyURL)
		if err != nil {
			return nil, err
		}
		return metainfo.Load(bytes.NewReader(blob))
	}

	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("torrent source %q is not a valid magnet URI, HTTP URL, or local path: %w", source, err)
	}
	mi, err := metainfo.LoadFromFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse local torrent file %q: %w", source, err)
	}
	return mi, nil
}
