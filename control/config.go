// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed runtime configuration: defaults, ini file overlay, environment
// overrides and a thread-safe store with reload propagation.

package control

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Unconsumed input policies for stream sockets.
const (
	UnconsumedKeep    = "keep"
	UnconsumedDiscard = "discard"
)

// Config holds every tunable of the reactor and socket layer.
type Config struct {
	Workers        int           // reactor worker goroutines; 0 = NumCPU
	BatchSize      int           // strand tasks per worker turn
	ReadBufferSize int           // bytes per read call / max datagram size
	MaxBuffered    int           // cap on unconsumed stream input
	MaxConnections int           // live children per listener; 0 = unlimited
	ConnectTimeout time.Duration // default for facade dials; 0 = infinite
	ReusePort      bool
	Unconsumed     string // UnconsumedKeep or UnconsumedDiscard
	LogLevel       string
	LogFormat      string // "text" or "json"
	MetricsAddr    string // listen address for the metrics endpoint, empty = off
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Workers:        0,
		BatchSize:      16,
		ReadBufferSize: 64 * 1024,
		MaxBuffered:    4 * 1024 * 1024,
		MaxConnections: 0,
		ConnectTimeout: 0,
		Unconsumed:     UnconsumedKeep,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate reports the first inconsistent value.
func (c Config) Validate() error {
	switch {
	case c.Workers < 0:
		return errors.Errorf("config: workers must be >= 0, got %d", c.Workers)
	case c.BatchSize <= 0:
		return errors.Errorf("config: batch_size must be > 0, got %d", c.BatchSize)
	case c.ReadBufferSize <= 0:
		return errors.Errorf("config: read_buffer must be > 0, got %d", c.ReadBufferSize)
	case c.MaxBuffered < 0:
		return errors.Errorf("config: max_buffered must be >= 0, got %d", c.MaxBuffered)
	case c.MaxConnections < 0:
		return errors.Errorf("config: max_connections must be >= 0, got %d", c.MaxConnections)
	case c.ConnectTimeout < 0:
		return errors.Errorf("config: connect_timeout must be >= 0, got %s", c.ConnectTimeout)
	}
	switch c.Unconsumed {
	case UnconsumedKeep, UnconsumedDiscard:
	default:
		return errors.Errorf("config: unconsumed must be %q or %q, got %q", UnconsumedKeep, UnconsumedDiscard, c.Unconsumed)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("config: log format must be text or json, got %q", c.LogFormat)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// fileConfig mirrors the ini layout; each struct is one section.
type fileConfig struct {
	Reactor struct {
		Workers   int `ini:"workers"`
		BatchSize int `ini:"batch_size"`
	} `ini:"reactor"`
	Socket struct {
		ReadBuffer     int           `ini:"read_buffer"`
		MaxBuffered    int           `ini:"max_buffered"`
		MaxConnections int           `ini:"max_connections"`
		ConnectTimeout time.Duration `ini:"connect_timeout"`
		ReusePort      bool          `ini:"reuse_port"`
		Unconsumed     string        `ini:"unconsumed"`
	} `ini:"socket"`
	Log struct {
		Level  string `ini:"level"`
		Format string `ini:"format"`
	} `ini:"log"`
	Metrics struct {
		Addr string `ini:"addr"`
	} `ini:"metrics"`
}

func (fc *fileConfig) from(c Config) {
	fc.Reactor.Workers = c.Workers
	fc.Reactor.BatchSize = c.BatchSize
	fc.Socket.ReadBuffer = c.ReadBufferSize
	fc.Socket.MaxBuffered = c.MaxBuffered
	fc.Socket.MaxConnections = c.MaxConnections
	fc.Socket.ConnectTimeout = c.ConnectTimeout
	fc.Socket.ReusePort = c.ReusePort
	fc.Socket.Unconsumed = c.Unconsumed
	fc.Log.Level = c.LogLevel
	fc.Log.Format = c.LogFormat
	fc.Metrics.Addr = c.MetricsAddr
}

func (fc *fileConfig) to() Config {
	return Config{
		Workers:        fc.Reactor.Workers,
		BatchSize:      fc.Reactor.BatchSize,
		ReadBufferSize: fc.Socket.ReadBuffer,
		MaxBuffered:    fc.Socket.MaxBuffered,
		MaxConnections: fc.Socket.MaxConnections,
		ConnectTimeout: fc.Socket.ConnectTimeout,
		ReusePort:      fc.Socket.ReusePort,
		Unconsumed:     strings.ToLower(fc.Socket.Unconsumed),
		LogLevel:       fc.Log.Level,
		LogFormat:      strings.ToLower(fc.Log.Format),
		MetricsAddr:    fc.Metrics.Addr,
	}
}

// LoadFile overlays the ini file at path onto base. Keys absent from the
// file keep the value from base.
func LoadFile(path string, base Config) (Config, error) {
	f, err := ini.Load(path)
	if err != nil {
		return base, errors.Wrapf(err, "config: load %s", path)
	}
	return loadINI(f, base, path)
}

// LoadBytes is LoadFile for in-memory content.
func LoadBytes(data []byte, base Config) (Config, error) {
	f, err := ini.Load(data)
	if err != nil {
		return base, errors.Wrap(err, "config: parse")
	}
	return loadINI(f, base, "<memory>")
}

func loadINI(f *ini.File, base Config, name string) (Config, error) {
	var fc fileConfig
	fc.from(base)
	if err := f.MapTo(&fc); err != nil {
		return base, errors.Wrapf(err, "config: map %s", name)
	}
	cfg := fc.to()
	if err := cfg.Validate(); err != nil {
		return base, errors.WithMessage(err, name)
	}
	return cfg, nil
}

// SaveFile writes c as an ini file.
func SaveFile(path string, c Config) error {
	var fc fileConfig
	fc.from(c)
	f := ini.Empty()
	if err := f.ReflectFrom(&fc); err != nil {
		return errors.Wrap(err, "config: reflect")
	}
	return errors.Wrapf(f.SaveTo(path), "config: save %s", path)
}

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HIOLOAD_"

// ApplyEnv overrides c from HIOLOAD_* environment variables.
func ApplyEnv(c Config) (Config, error) {
	return applyEnv(c, os.LookupEnv)
}

func applyEnv(c Config, lookup func(string) (string, bool)) (Config, error) {
	ints := []struct {
		key string
		dst *int
	}{
		{"WORKERS", &c.Workers},
		{"BATCH_SIZE", &c.BatchSize},
		{"READ_BUFFER", &c.ReadBufferSize},
		{"MAX_BUFFERED", &c.MaxBuffered},
		{"MAX_CONNECTIONS", &c.MaxConnections},
	}
	for _, e := range ints {
		v, ok := lookup(EnvPrefix + e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return c, errors.Wrapf(err, "config: %s%s", EnvPrefix, e.key)
		}
		*e.dst = n
	}
	if v, ok := lookup(EnvPrefix + "CONNECT_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, errors.Wrapf(err, "config: %sCONNECT_TIMEOUT", EnvPrefix)
		}
		c.ConnectTimeout = d
	}
	if v, ok := lookup(EnvPrefix + "REUSE_PORT"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return c, errors.Wrapf(err, "config: %sREUSE_PORT", EnvPrefix)
		}
		c.ReusePort = b
	}
	strs := []struct {
		key string
		dst *string
	}{
		{"UNCONSUMED", &c.Unconsumed},
		{"LOG_LEVEL", &c.LogLevel},
		{"LOG_FORMAT", &c.LogFormat},
		{"METRICS_ADDR", &c.MetricsAddr},
	}
	for _, e := range strs {
		if v, ok := lookup(EnvPrefix + e.key); ok && v != "" {
			*e.dst = v
		}
	}
	// legacy debug level variable
	if _, ok := lookup(EnvPrefix + "LOG_LEVEL"); !ok {
		if v, ok := lookup("GD_LEVEL"); ok && v != "" {
			c.LogLevel = v
		}
	}
	c.Unconsumed = strings.ToLower(c.Unconsumed)
	c.LogFormat = strings.ToLower(c.LogFormat)
	return c, c.Validate()
}

// ConfigStore keeps the live configuration snapshot and notifies listeners
// when it changes.
type ConfigStore struct {
	mu        sync.RWMutex
	config    Config
	listeners []func(Config)
}

// NewConfigStore initializes a store holding cfg.
func NewConfigStore(cfg Config) *ConfigStore {
	return &ConfigStore{config: cfg}
}

// GetSnapshot returns a copy of the current configuration.
func (cs *ConfigStore) GetSnapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// SetConfig validates and installs cfg, then runs every listener
// synchronously with the new snapshot.
func (cs *ConfigStore) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := slices.Clone(cs.listeners)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
	return nil
}

// OnReload registers a listener called after each successful SetConfig.
func (cs *ConfigStore) OnReload(fn func(Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
