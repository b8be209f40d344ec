package config

import "testing"

func TestParseRequiredFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"--torrent", "magnet:?xt=urn:btih:abc",
		"--s3-url", "http://localhost:9000",
		"--s3-bucket", "bucket",
		"--s3-access-key", "key",
		"--s3-secret-key", "secret",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.StateFile != "default.sqlite" && cfg.StateFile != "./default.sqlite" {
		t.Fatalf("expected default state file under download path, got %q", cfg.StateFile)
	}
}

func TestParseMissingRequiredFlagFails(t *testing.T) {
	_, err := Parse([]string{"--torrent", "magnet:?xt=urn:btih:abc"})
	if err == nil {
		t.Fatalf("expected error for missing required flags")
	}
}

func TestParseShorthandFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"-t", "magnet:?xt=urn:btih:abc",
		"-s", "http://localhost:9000",
		"-b", "bucket",
		"-a", "key",
		"-k", "secret",
		"-l", "1024",
		"-x",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.LimitSize != 1024 || !cfg.ExtractFiles {
		t.Fatalf("shorthand flags not applied: %+v", cfg)
	}
}
