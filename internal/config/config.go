// Package config parses the CLI surface described in spec.md §6 the
// way internal's original config.go loaded a YAML file and applied
// defaults: an optional --config file supplies defaults, and every
// flag explicitly passed on the command line overrides it.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is every value main needs to wire the sync together.
type Config struct {
	Torrent      string `yaml:"torrent"`
	S3URL        string `yaml:"s3_url"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Region     string `yaml:"s3_region"`
	S3UploadPath string `yaml:"s3_upload_path"`
	S3AccessKey  string `yaml:"s3_access_key"`
	S3SecretKey  string `yaml:"s3_secret_key"`
	S3Proxy      string `yaml:"s3_proxy"`

	DownloadPath string `yaml:"download_path"`
	LimitSize    int64  `yaml:"limit_size"`
	ExtractFiles bool   `yaml:"extract_files"`
	ArchiveFiles bool   `yaml:"archive_files"`
	StateFile    string `yaml:"state_file"`
	Debug        bool   `yaml:"debug"`

	PushbulletToken string `yaml:"pushbullet_token"`
	StatusAddr      string `yaml:"status_addr"`
	WatchScratch    bool   `yaml:"watch_scratch"`
	Schedule        string `yaml:"schedule"`

	PrintVersion bool `yaml:"-"`
}

func setDefaults(cfg *Config) {
	cfg.DownloadPath = "."
	cfg.LimitSize = 0
	cfg.StateFile = ""
}

// Parse reads --config (if given) for defaults, then applies every
// flag present in args, which always wins over the file.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	setDefaults(cfg)

	fs := flag.NewFlagSet("torrents3", flag.ContinueOnError)

	configPath := fs.String("config", "", "optional YAML file supplying flag defaults")

	torrent := fs.String("torrent", "", "local .torrent path, http(s):// URL, or magnet: URI")
	fs.StringVar(torrent, "t", "", "shorthand for --torrent")

	s3URL := fs.String("s3-url", "", "S3 endpoint URL")
	fs.StringVar(s3URL, "s", "", "shorthand for --s3-url")

	s3Bucket := fs.String("s3-bucket", "", "S3 bucket name")
	fs.StringVar(s3Bucket, "b", "", "shorthand for --s3-bucket")

	s3Region := fs.String("s3-region", "", "S3 region")
	fs.StringVar(s3Region, "r", "", "shorthand for --s3-region")

	s3UploadPath := fs.String("s3-upload-path", "", "S3 key prefix; empty means bucket root")
	fs.StringVar(s3UploadPath, "u", "", "shorthand for --s3-upload-path")

	s3AccessKey := fs.String("s3-access-key", "", "S3 access key")
	fs.StringVar(s3AccessKey, "a", "", "shorthand for --s3-access-key")

	s3SecretKey := fs.String("s3-secret-key", "", "S3 secret key")
	fs.StringVar(s3SecretKey, "k", "", "shorthand for --s3-secret-key")

	s3Proxy := fs.String("s3-proxy", "", "optional SOCKS5 proxy URL for the HTTP torrent fetcher")
	fs.StringVar(s3Proxy, "p", "", "shorthand for --s3-proxy")

	downloadPath := fs.String("download-path", "", "scratch directory")
	fs.StringVar(downloadPath, "d", "", "shorthand for --download-path")

	limitSize := fs.Int64("limit-size", 0, "scratch byte budget; 0 means unlimited")
	fs.Int64Var(limitSize, "l", 0, "shorthand for --limit-size")

	extractFiles := fs.Bool("extract-files", false, "enable archive expansion")
	fs.BoolVar(extractFiles, "x", false, "shorthand for --extract-files")

	stateFile := fs.String("state-file", "", "persisted state database path")
	fs.StringVar(stateFile, "q", "", "shorthand for --state-file")

	debug := fs.Bool("debug", false, "verbose logging")

	pushbulletToken := fs.String("pushbullet-token", "", "optional Pushbullet API token for run notifications")
	statusAddr := fs.String("status-addr", "", "optional host:port for the live status HTTP+WebSocket server")
	watchScratch := fs.Bool("watch-scratch", false, "log unexpected external writes to the scratch directory")
	schedule := fs.String("schedule", "", "optional cron expression to repeat the sync sequentially")

	version := fs.Bool("version", false, "print version and exit")
	fs.BoolVar(version, "v", false, "shorthand for --version")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := loadYAMLDefaults(cfg, *configPath); err != nil {
			return nil, err
		}
	}

	overrideIfSet(fs, "torrent", torrent, &cfg.Torrent)
	overrideIfSet(fs, "t", torrent, &cfg.Torrent)
	overrideIfSet(fs, "s3-url", s3URL, &cfg.S3URL)
	overrideIfSet(fs, "s", s3URL, &cfg.S3URL)
	overrideIfSet(fs, "s3-bucket", s3Bucket, &cfg.S3Bucket)
	overrideIfSet(fs, "b", s3Bucket, &cfg.S3Bucket)
	overrideIfSet(fs, "s3-region", s3Region, &cfg.S3Region)
	overrideIfSet(fs, "r", s3Region, &cfg.S3Region)
	overrideIfSet(fs, "s3-upload-path", s3UploadPath, &cfg.S3UploadPath)
	overrideIfSet(fs, "u", s3UploadPath, &cfg.S3UploadPath)
	overrideIfSet(fs, "s3-access-key", s3AccessKey, &cfg.S3AccessKey)
	overrideIfSet(fs, "a", s3AccessKey, &cfg.S3AccessKey)
	overrideIfSet(fs, "s3-secret-key", s3SecretKey, &cfg.S3SecretKey)
	overrideIfSet(fs, "k", s3SecretKey, &cfg.S3SecretKey)
	overrideIfSet(fs, "s3-proxy", s3Proxy, &cfg.S3Proxy)
	overrideIfSet(fs, "p", s3Proxy, &cfg.S3Proxy)
	overrideIfSet(fs, "download-path", downloadPath, &cfg.DownloadPath)
	overrideIfSet(fs, "d", downloadPath, &cfg.DownloadPath)
	overrideIfSet(fs, "state-file", stateFile, &cfg.StateFile)
	overrideIfSet(fs, "q", stateFile, &cfg.StateFile)
	overrideIfSet(fs, "pushbullet-token", pushbulletToken, &cfg.PushbulletToken)
	overrideIfSet(fs, "status-addr", statusAddr, &cfg.StatusAddr)
	overrideIfSet(fs, "schedule", schedule, &cfg.Schedule)

	if isSet(fs, "limit-size") || isSet(fs, "l") {
		cfg.LimitSize = *limitSize
	}
	if isSet(fs, "extract-files") || isSet(fs, "x") {
		cfg.ExtractFiles = *extractFiles
	}
	if isSet(fs, "debug") {
		cfg.Debug = *debug
	}
	if isSet(fs, "watch-scratch") {
		cfg.WatchScratch = *watchScratch
	}
	cfg.PrintVersion = *version

	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(cfg.DownloadPath, "default.sqlite")
	}

	if cfg.PrintVersion {
		return cfg, nil
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func overrideIfSet(fs *flag.FlagSet, name string, value *string, target *string) {
	if isSet(fs, name) {
		*target = *value
	}
}

func loadYAMLDefaults(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func validate(cfg *Config) error {
	missing := func(name, value string) string {
		if value == "" {
			return name + " "
		}
		return ""
	}
	problems := missing("--torrent", cfg.Torrent) +
		missing("--s3-url", cfg.S3URL) +
		missing("--s3-bucket", cfg.S3Bucket) +
		missing("--s3-access-key", cfg.S3AccessKey) +
		missing("--s3-secret-key", cfg.S3SecretKey)
	if problems != "" {
		return fmt.Errorf("missing required flags: %s", problems)
	}
	return nil
}
