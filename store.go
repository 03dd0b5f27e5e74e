package configcache

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Entry describes the cached state of one configuration file.
type Entry struct {
	File    string
	ReadAt  time.Time
	ModTime time.Time
	Size    int64
	Digest  uint64
}

// slot holds one cache entry. mu serialises staleness checks, reloads and
// schema checks for the file.
type slot struct {
	mu       sync.Mutex
	doc      *Document
	entry    Entry
	statWarn rate.Sometimes
}

// store keeps one slot per resolved filename and guards the index with a
// RWMutex.
type store struct {
	mu     sync.RWMutex
	slots  map[string]*slot
	loaded atomic.Int64

	statWarnInterval time.Duration
}

func newStore(statWarnInterval time.Duration) *store {
	return &store{
		slots:            make(map[string]*slot),
		statWarnInterval: statWarnInterval,
	}
}

// slot returns the slot for filename, creating an empty one if needed.
func (s *store) slot(filename string) *slot {
	s.mu.RLock()
	sl, ok := s.slots[filename]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sl, ok := s.slots[filename]; ok {
		return sl
	}
	sl = &slot{
		entry:    Entry{File: filename},
		statWarn: rate.Sometimes{First: 1, Interval: s.statWarnInterval},
	}
	s.slots[filename] = sl
	return sl
}

// lookup returns the slot for filename without creating it.
func (s *store) lookup(filename string) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.slots[filename]
	return sl, ok
}

// replace installs doc as the cached document of sl. Must be called with
// sl.mu held.
func (s *store) replace(sl *slot, doc *Document, entry Entry) {
	if sl.doc == nil {
		s.loaded.Add(1)
	}
	sl.doc = doc
	sl.entry = entry
}

func (s *store) len() int {
	return int(s.loaded.Load())
}
