package configcache

import (
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseName is the configuration file used when no name is given.
	DefaultBaseName = "app.json"
	// DefaultEnvVar names the environment variable holding the environment tag.
	DefaultEnvVar = "APP_ENV"

	defaultStatWarnInterval = time.Minute
)

// Option configures a Cache.
type Option func(*Cache)

// WithFileSystem overrides the file access, primarily for tests.
func WithFileSystem(fsys FileSystem) Option {
	return func(c *Cache) {
		c.fs = fsys
	}
}

// WithLogger sets the diagnostic logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock overrides the time source used to stamp loads.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithBaseName changes the file used when callers pass an empty name.
func WithBaseName(name string) Option {
	return func(c *Cache) {
		c.baseName = name
	}
}

// WithEnvVar changes the environment variable read for the environment tag.
// It is read on every call.
func WithEnvVar(name string) Option {
	return func(c *Cache) {
		c.environment = func() string {
			return strings.TrimSpace(getenv(name))
		}
	}
}

// WithEnvironment replaces the environment tag lookup.
func WithEnvironment(lookup func() string) Option {
	return func(c *Cache) {
		c.environment = lookup
	}
}

// WithDecoder registers dec for files with extension ext (".json", ".yaml").
func WithDecoder(ext string, dec Decoder) Option {
	return func(c *Cache) {
		c.decoders[strings.ToLower(ext)] = dec
	}
}

// WithStatWarnInterval sets how often a failing modification time probe is
// logged per file. The first failure is always logged.
func WithStatWarnInterval(d time.Duration) Option {
	return func(c *Cache) {
		c.statWarnInterval = d
	}
}

func (c *Cache) decoderFor(filename string) Decoder {
	if dec, ok := c.decoders[strings.ToLower(filepath.Ext(filename))]; ok {
		return dec
	}
	return JSONDecoder{}
}
