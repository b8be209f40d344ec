// Package httpfetch retrieves a .torrent blob from an http(s):// URL,
// the way internal/clients/indexers/scarf.go builds a timeout-bound
// http.Client for a single request-response exchange, with an
// optional SOCKS5 proxy for environments that require one.
package httpfetch

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

const fetchTimeout = 30 * time.Second

// Fetch downloads the body at url and returns it as bencoded .torrent
// bytes. proxyURL, if non-empty, must be a socks5:// address and is
// used for the outbound connection only.
func Fetch(url, proxyURL string) ([]byte, error) {
	client, err := newClient(proxyURL)
	if err != nil {
		return nil, err
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch torrent blob from %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch torrent blob from %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent blob from %s: %w", url, err)
	}
	return body, nil
}

func newClient(proxyURL string) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{Timeout: fetchTimeout}, nil
	}

	addr := proxyURL
	if u, err := url.Parse(proxyURL); err == nil && u.Host != "" {
		addr = u.Host
	}
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to configure SOCKS5 proxy %s: %w", proxyURL, err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("SOCKS5 proxy dialer does not support context dialing")
	}

	transport := &http.Transport{DialContext: contextDialer.DialContext}
	return &http.Client{Timeout: fetchTimeout, Transport: transport}, nil
}
