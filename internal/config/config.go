package config

import (
	"os"
	"path/filepath"

	jlconfig "github.com/JeremyLoy/config"
	"github.com/cockroachdb/errors"

	"github.com/eigerco/objstore/internal/bridge"
	"github.com/eigerco/objstore/internal/idb"
	"github.com/eigerco/objstore/pkg/db"
	"github.com/eigerco/objstore/pkg/db/bolt"
	"github.com/eigerco/objstore/pkg/db/pebble"
	"github.com/eigerco/objstore/pkg/log"
)

const (
	BackendPebble = "pebble"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Config is read from defaults, then an optional file of KEY=value lines,
// then the environment. Later sources win.
type Config struct {
	Backend   string `config:"OBJSTORE_BACKEND"`
	DataDir   string `config:"OBJSTORE_DATA_DIR"`
	LogLevel  string `config:"OBJSTORE_LOG_LEVEL"`
	LogFormat string `config:"OBJSTORE_LOG_FORMAT"`
}

func Default() Config {
	return Config{
		Backend:   BackendPebble,
		DataDir:   "data",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads the configuration. An empty file skips the file source.
func Load(file string) (Config, error) {
	cfg := Default()
	b := jlconfig.FromEnv()
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return Config{}, errors.Wrap(err, "config file")
		}
		b = jlconfig.From(file).FromEnv()
	}
	if err := b.To(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	return cfg, nil
}

// LogOptions maps the logging settings onto pkg/log.
func (c Config) LogOptions() (log.Options, error) {
	level, err := log.ParseLogLevel(c.LogLevel)
	if err != nil {
		return log.Options{}, err
	}
	typ, err := log.ParseLoggerType(c.LogFormat)
	if err != nil {
		return log.Options{}, err
	}
	return log.Options{LogLevel: level, Type: typ, Output: os.Stderr}, nil
}

// OpenFunc returns the engine's KV opener for the configured backend.
// Each database gets its own pebble directory or bolt file under DataDir.
func (c Config) OpenFunc() (idb.OpenFunc, error) {
	switch c.Backend {
	case BackendPebble:
		dir := c.DataDir
		return func(name string) (db.KVStore, error) {
			return pebble.Open(filepath.Join(dir, name))
		}, nil
	case BackendBolt:
		dir := c.DataDir
		return func(name string) (db.KVStore, error) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
			return bolt.Open(filepath.Join(dir, name+".bolt"))
		}, nil
	case BackendMemory:
		return func(string) (db.KVStore, error) {
			return pebble.NewKVStore()
		}, nil
	default:
		return nil, errors.Wrapf(bridge.ErrNoBackend, "backend %q", c.Backend)
	}
}

// NewFactory builds the engine factory for the configured backend.
func NewFactory(c Config) (*idb.Factory, error) {
	open, err := c.OpenFunc()
	if err != nil {
		return nil, err
	}
	return idb.NewFactory(open), nil
}
