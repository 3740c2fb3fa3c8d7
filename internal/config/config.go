package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/matheus3301/wahub/internal/paths"
)

// Duration is a time.Duration encoded as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.wahub/config.toml.
type Config struct {
	DataDir    string           `toml:"data_dir"`
	HTTP       HTTPConfig       `toml:"http"`
	Control    ControlConfig    `toml:"control"`
	Supervisor SupervisorConfig `toml:"supervisor"`
	Media      MediaConfig      `toml:"media"`
	Log        LogConfig        `toml:"log"`
	Device     DeviceConfig     `toml:"device"`
	Jobs       JobsConfig       `toml:"jobs"`
}

type HTTPConfig struct {
	Listen string `toml:"listen"`
}

// ControlConfig holds the local control socket. Empty means <data_dir>/wahubd.sock.
type ControlConfig struct {
	Socket string `toml:"socket"`
}

type SupervisorConfig struct {
	ReconnectDelay    Duration `toml:"reconnect_delay"`
	ProfileDelay      Duration `toml:"profile_delay"`
	ProfileRetryDelay Duration `toml:"profile_retry_delay"`
	RestoreOnStart    bool     `toml:"restore_on_start"`
}

// MediaConfig controls where downloaded media lands. Empty dir means <data_dir>/media.
type MediaConfig struct {
	Dir             string `toml:"dir"`
	PublicPrefix    string `toml:"public_prefix"`
	DownloadWorkers int    `toml:"download_workers"`
	DownloadHistory bool   `toml:"download_history"`
}

// LogConfig controls the daemon log sink. Empty file means <data_dir>/logs/wahubd.log.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

type DeviceConfig struct {
	OSName string `toml:"os_name"`
}

type JobsConfig struct {
	SnapshotInterval Duration `toml:"snapshot_interval"`
	MediaGC          bool     `toml:"media_gc"`
}

// Default returns a config with every value populated.
func Default() *Config {
	return &Config{
		DataDir: paths.BaseDir(),
		HTTP:    HTTPConfig{Listen: ":3000"},
		Supervisor: SupervisorConfig{
			ReconnectDelay:    Duration{5 * time.Second},
			ProfileDelay:      Duration{1500 * time.Millisecond},
			ProfileRetryDelay: Duration{5 * time.Second},
			RestoreOnStart:    true,
		},
		Media: MediaConfig{
			PublicPrefix:    "/media",
			DownloadWorkers: 8,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Device: DeviceConfig{OSName: "wahub"},
		Jobs: JobsConfig{
			SnapshotInterval: Duration{30 * time.Second},
			MediaGC:          true,
		},
	}
}

// Load reads config from the given path on top of Default. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault reads config from path, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return nil, fmt.Errorf("load config %s: %w", path, err)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv loads a .env file from the working directory if present and applies
// PORT, WAHUB_DATA_DIR and WAHUB_LOG_LEVEL overrides.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		host, _, err := net.SplitHostPort(c.HTTP.Listen)
		if err != nil {
			host = ""
		}
		c.HTTP.Listen = net.JoinHostPort(host, port)
	}
	if dir := strings.TrimSpace(os.Getenv("WAHUB_DATA_DIR")); dir != "" {
		c.DataDir = dir
	}
	if lvl := strings.TrimSpace(os.Getenv("WAHUB_LOG_LEVEL")); lvl != "" {
		c.Log.Level = lvl
	}
}

// Layout returns the on-disk layout for the configured data directory.
func (c *Config) Layout() paths.Layout {
	return paths.New(c.DataDir)
}

// SocketPath returns the control socket, defaulting under the data dir.
func (c *Config) SocketPath() string {
	if c.Control.Socket != "" {
		return c.Control.Socket
	}
	return c.Layout().SocketPath()
}

// MediaDir returns the media root, defaulting under the data dir.
func (c *Config) MediaDir() string {
	if c.Media.Dir != "" {
		return c.Media.Dir
	}
	return c.Layout().MediaDir()
}

// LogFile returns the log file path, defaulting under the data dir.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return c.Layout().LogPath()
}

// DialAddr turns a listen address into one a local client can dial.
func DialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
