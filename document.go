package configcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Reserved keys injected by the cache. They are always allowed by Check.
const (
	KeyLastReadAt    = "lastreadAt"
	KeyConfigFile    = "configfile"
	KeyConfigChecked = "configchecked"
)

var reservedKeys = []string{KeyConfigChecked, KeyConfigFile, KeyLastReadAt}

// Document is an ordered configuration object. Keys keep the order in which
// they were first set; nested JSON objects decode into nested Documents.
//
// A Document returned by a Cache is shared with the cache: mutations are
// visible to later cache hits until the backing file is reloaded. All methods
// are safe for concurrent use. The zero value is an empty Document.
type Document struct {
	mu     sync.RWMutex
	keys   []string
	values map[string]any
}

// NewDocument returns an empty Document.
func NewDocument() *Document {
	return &Document{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.values[key]
	return v, ok
}

// Set stores value under key. A new key is appended to the key order; an
// existing key keeps its position.
func (d *Document) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.setLocked(key, value)
}

// Delete removes key from the document.
func (d *Document) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.values[key]; !ok {
		return
	}
	delete(d.values, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
}

// Keys returns a copy of the document keys in insertion order.
func (d *Document) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.keys)
}

// Len returns the number of keys, reserved keys included.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.keys)
}

// String returns the value under key if it is a string.
func (d *Document) String(key string) (string, bool) {
	v, ok := d.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Sub returns the nested document stored under key.
func (d *Document) Sub(key string) (*Document, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*Document)
	return sub, ok
}

// LastReadAt returns the time of the last successful load of the backing file.
func (d *Document) LastReadAt() time.Time {
	v, _ := d.Get(KeyLastReadAt)
	t, _ := v.(time.Time)
	return t
}

// ConfigFile returns the resolved filename the document was loaded from.
func (d *Document) ConfigFile() string {
	s, _ := d.String(KeyConfigFile)
	return s
}

// Checked reports whether the document passed a schema check.
func (d *Document) Checked() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.checkedLocked()
}

// Decode stores the document into the value pointed to by v, using the
// encoding/json rules for struct fields.
func (d *Document) Decode(v any) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// MarshalJSON encodes the document as a JSON object in key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, fmt.Errorf("encode key %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) setLocked(key string, value any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

func (d *Document) checkedLocked() bool {
	checked, _ := d.values[KeyConfigChecked].(bool)
	return checked
}

// stamp records a successful load of filename at t.
func (d *Document) stamp(filename string, t time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.setLocked(KeyLastReadAt, t)
	d.setLocked(KeyConfigFile, filename)
}

// decorate copies the load stamp of parent onto d.
func (d *Document) decorate(parent *Document) {
	readAt := parent.LastReadAt()
	file := parent.ConfigFile()
	d.stamp(file, readAt)
}
