package configcache

import (
	"errors"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

var getenv = os.Getenv

// Stats reports cache activity since construction.
type Stats struct {
	Hits     int64
	Loads    int64
	Failures int64
	Entries  int
}

// Cache is a read-through cache of configuration documents keyed by resolved
// filename. Entries live as long as the Cache; a file is re-read only when its
// modification time is later than the last successful read.
//
// A Cache is safe for concurrent use. At most one load per filename is in
// flight at a time.
type Cache struct {
	fs               FileSystem
	logger           *zap.Logger
	clock            func() time.Time
	baseName         string
	environment      func() string
	decoders         map[string]Decoder
	statWarnInterval time.Duration

	resolver *Resolver
	store    *store

	hits     atomic.Int64
	loads    atomic.Int64
	failures atomic.Int64
}

// New constructs a Cache with the provided options.
func New(opts ...Option) *Cache {
	c := &Cache{
		fs:       OSFS{},
		logger:   zap.NewNop(),
		clock:    time.Now,
		baseName: DefaultBaseName,
		decoders: map[string]Decoder{
			".json": JSONDecoder{},
			".yaml": YAMLDecoder{},
			".yml":  YAMLDecoder{},
		},
		statWarnInterval: defaultStatWarnInterval,
	}
	WithEnvVar(DefaultEnvVar)(c)
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = NewResolver(c.fs, c.logger, c.baseName)
	c.store = newStore(c.statWarnInterval)
	return c
}

// Resolve returns the file Instance and CheckedInstance would load for name
// under the current environment tag.
func (c *Cache) Resolve(name string) string {
	return c.resolver.Resolve(name, c.environment())
}

// Instance returns the configuration document for file, loading it on first
// use or after the file changed. An empty file selects the base name.
//
// The returned document is the cached one, not a copy: changes made by the
// caller are visible to later calls until the file is reloaded.
func (c *Cache) Instance(file string) (*Document, error) {
	return c.Get(c.Resolve(file), nil, "")
}

// SubInstance is Instance narrowed to the object under subkey. The returned
// document carries the parent's "lastreadAt" and "configfile".
func (c *Cache) SubInstance(file, subkey string) (*Document, error) {
	return c.Get(c.Resolve(file), nil, subkey)
}

// CheckedInstance is SubInstance with a schema check against shape; an empty
// subkey checks the whole document. See Check.
func (c *Cache) CheckedInstance(shape Shape, file, subkey string) (*Document, error) {
	return c.Get(c.Resolve(file), &shape, subkey)
}

// Get serves filename, which is used as-is, from the cache or loads it when
// stale. A non-nil shape checks the document (or subkey) before it is
// returned; on a fresh load a failed check leaves the cache untouched.
func (c *Cache) Get(filename string, shape *Shape, subkey string) (*Document, error) {
	doc, err := c.get(filename, shape, subkey)
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	return doc, nil
}

func (c *Cache) get(filename string, shape *Shape, subkey string) (*Document, error) {
	sl := c.store.slot(filename)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	stale, info := c.isStale(filename, sl)
	if !stale {
		view, err := extractSubkey(sl.doc, subkey)
		if err != nil {
			return nil, err
		}
		if shape != nil {
			if _, err := Check(*shape, view, ""); err != nil {
				return nil, err
			}
		}
		c.hits.Add(1)
		return view, nil
	}

	doc, digest, err := c.load(filename)
	if err != nil {
		return nil, err
	}
	if shape != nil {
		if _, err := Check(*shape, doc, subkey); err != nil {
			return nil, err
		}
	}

	if sl.doc != nil && sl.entry.Digest == digest {
		c.logger.Debug("config content unchanged", zap.String("file", filename))
	}
	entry := Entry{File: filename, ReadAt: doc.LastReadAt(), Digest: digest}
	if info != nil {
		entry.ModTime = info.ModTime()
		entry.Size = info.Size()
	}
	c.store.replace(sl, doc, entry)
	c.loads.Add(1)

	return extractSubkey(doc, subkey)
}

// isStale reports whether filename must be (re)loaded. A failing probe of a
// cached file keeps the cached copy. Must be called with sl.mu held.
func (c *Cache) isStale(filename string, sl *slot) (bool, fs.FileInfo) {
	info, err := c.fs.Stat(filename)
	if sl.doc == nil {
		c.logger.Debug("config not cached", zap.String("file", filename))
		if err != nil {
			return true, nil
		}
		return true, info
	}
	if err != nil {
		sl.statWarn.Do(func() {
			c.logger.Warn("config file stat failed", zap.String("file", filename), zap.Error(err))
		})
		return false, nil
	}
	return info.ModTime().After(sl.entry.ReadAt), info
}

// load reads, parses and stamps filename.
func (c *Cache) load(filename string) (*Document, uint64, error) {
	c.logger.Debug("reading config file", zap.String("file", filename))

	data, err := c.fs.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Info("config file not found", zap.String("file", filename))
			return nil, 0, newConfigError(ErrFileNotFound, filename, err)
		}
		c.logger.Info("config file not parseable", zap.String("file", filename), zap.Error(err))
		return nil, 0, newConfigError(ErrParseFailure, filename, err)
	}

	doc, err := c.decoderFor(filename).Decode(data)
	if err != nil {
		c.logger.Info("config file not parseable", zap.String("file", filename), zap.Error(err))
		return nil, 0, newConfigError(ErrParseFailure, filename, err)
	}

	doc.stamp(filename, c.clock())
	return doc, xxhash.Sum64(data), nil
}

// extractSubkey returns doc, or the object under subkey decorated with the
// load stamp of doc.
func extractSubkey(doc *Document, subkey string) (*Document, error) {
	if subkey == "" {
		return doc, nil
	}
	sub, ok := doc.Sub(subkey)
	if !ok {
		return nil, &ConfigError{Kind: ErrSubkeyNotFound, File: doc.ConfigFile(), Key: subkey}
	}
	sub.decorate(doc)
	return sub, nil
}

// Entry returns the cached metadata for filename, used as-is.
func (c *Cache) Entry(filename string) (Entry, bool) {
	sl, ok := c.store.lookup(filename)
	if !ok {
		return Entry{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.doc == nil {
		return Entry{}, false
	}
	return sl.entry, true
}

// Len returns the number of cached files.
func (c *Cache) Len() int {
	return c.store.len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Loads:    c.loads.Load(),
		Failures: c.failures.Load(),
		Entries:  c.store.len(),
	}
}
