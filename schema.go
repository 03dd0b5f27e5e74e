package configcache

import (
	"reflect"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Shape is the set of keys a checked document may hold. Reserved keys are
// always allowed in addition to the shape keys.
type Shape struct {
	keys map[string]struct{}
}

// NewShape returns a Shape allowing keys.
func NewShape(keys ...string) Shape {
	s := Shape{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		s.keys[k] = struct{}{}
	}
	return s
}

// ShapeOf derives a Shape from an exemplar value: a struct (or pointer to
// one) contributes its JSON field names, a map with string keys its keys and
// a Document its keys.
func ShapeOf(v any) (Shape, error) {
	if doc, ok := v.(*Document); ok && doc != nil {
		return NewShape(doc.Keys()...), nil
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return Shape{}, zerr.New("shape exemplar is nil")
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Shape{}, zerr.New("shape exemplar is nil")
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Struct:
		return NewShape(structKeys(rv.Type())...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Shape{}, zerr.With(zerr.New("shape map keys must be strings"), "type", rv.Type().String())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		return NewShape(keys...), nil
	default:
		return Shape{}, zerr.With(zerr.New("unsupported shape exemplar"), "type", rv.Type().String())
	}
}

// Keys returns the shape keys in sorted order.
func (s Shape) Keys() []string {
	keys := make([]string, 0, len(s.keys))
	for k := range s.keys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s Shape) allows(key string) bool {
	if _, ok := s.keys[key]; ok {
		return true
	}
	return slices.Contains(reservedKeys, key)
}

func structKeys(t reflect.Type) []string {
	keys := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		keys = append(keys, name)
	}
	return keys
}

// Check validates doc, or its subkey when subkey is non-empty, against shape.
//
// The target fails when it holds a key outside the shape and the reserved
// keys; the first such key in document order is reported. Fewer keys than the
// shape is fine. A target already marked "configchecked" is not checked again.
// On success the target is marked and doc itself is returned.
func Check(shape Shape, doc *Document, subkey string) (*Document, error) {
	file := doc.ConfigFile()
	target := doc
	if subkey != "" {
		sub, ok := doc.Sub(subkey)
		if !ok {
			return nil, &ConfigError{Kind: ErrSubkeyNotFound, File: file, Key: subkey}
		}
		target = sub
	}

	target.mu.Lock()
	defer target.mu.Unlock()

	if target.checkedLocked() {
		return doc, nil
	}

	for _, key := range target.keys {
		if !shape.allows(key) {
			return nil, &ConfigError{Kind: ErrSchemaMismatch, File: file, Key: key}
		}
	}

	target.setLocked(KeyConfigChecked, true)
	return doc, nil
}
