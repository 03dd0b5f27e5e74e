package configcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Decoder parses raw file content into a Document. The top-level value must
// be an object.
type Decoder interface {
	Decode(data []byte) (*Document, error)
}

// JSONDecoder decodes JSON objects, keeping key order. Numbers decode to
// float64 as with encoding/json.
type JSONDecoder struct{}

// Decode implements Decoder.
func (JSONDecoder) Decode(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, zerr.Wrap(err, "invalid json")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, notObjectError(fmt.Sprint(tok))
	}

	doc, err := decodeJSONObject(dec)
	if err != nil {
		return nil, zerr.Wrap(err, "invalid json")
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, zerr.With(zerr.New("unexpected data after top-level object"), "offset", strconv.FormatInt(dec.InputOffset(), 10))
	}
	return doc, nil
}

func decodeJSONObject(dec *json.Decoder) (*Document, error) {
	doc := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		value, err := decodeJSONValue(dec)
		if err != nil {
			return nil, err
		}
		doc.setLocked(key, value)
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		return decodeJSONObject(dec)
	case '[':
		items := []any{}
		for dec.More() {
			item, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// YAMLDecoder decodes YAML mappings, keeping key order. Recursive aliases and
// documents that expand excessively through aliases are rejected.
type YAMLDecoder struct{}

// Decode implements Decoder.
func (YAMLDecoder) Decode(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, zerr.Wrap(err, "invalid yaml")
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, notObjectError("")
	}

	st := &yamlState{expanding: make(map[*yaml.Node]bool)}
	node, release, err := st.deref(root.Content[0])
	if err != nil {
		return nil, err
	}
	defer release()

	if node.Kind != yaml.MappingNode {
		return nil, notObjectError(node.Value)
	}
	return st.mapping(node)
}

// Alias expansion limits, as applied by yaml.v3 when decoding into values.
const (
	aliasRatioRangeLow  = 400000
	aliasRatioRangeHigh = 4000000
	aliasRatioRange     = float64(aliasRatioRangeHigh - aliasRatioRangeLow)
)

func allowedAliasRatio(decoded int) float64 {
	switch {
	case decoded <= aliasRatioRangeLow:
		return 0.99
	case decoded >= aliasRatioRangeHigh:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(decoded-aliasRatioRangeLow)/aliasRatioRange)
	}
}

// yamlState tracks alias expansion while walking a yaml.Node tree.
type yamlState struct {
	// anchors currently being expanded on the walk path
	expanding map[*yaml.Node]bool
	depth     int
	decoded   int
	aliased   int
}

// deref follows an alias node. The returned release func must be called
// once the target has been decoded.
func (s *yamlState) deref(node *yaml.Node) (*yaml.Node, func(), error) {
	if node.Kind != yaml.AliasNode {
		return node, func() {}, nil
	}
	target := node.Alias
	if target == nil {
		return nil, nil, zerr.With(zerr.New("unknown alias"), "line", strconv.Itoa(node.Line))
	}
	if s.expanding[target] {
		return nil, nil, zerr.With(zerr.New("recursive alias"), "line", strconv.Itoa(node.Line))
	}
	s.expanding[target] = true
	s.depth++
	return target, func() {
		delete(s.expanding, target)
		s.depth--
	}, nil
}

func (s *yamlState) count(node *yaml.Node) error {
	s.decoded++
	if s.depth > 0 {
		s.aliased++
	}
	if s.aliased > 100 && s.decoded > 1000 &&
		float64(s.aliased)/float64(s.decoded) > allowedAliasRatio(s.decoded) {
		return zerr.With(zerr.New("excessive aliasing"), "line", strconv.Itoa(node.Line))
	}
	return nil
}

func (s *yamlState) mapping(node *yaml.Node) (*Document, error) {
	doc := NewDocument()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := resolveAlias(node.Content[i])
		if key.ShortTag() == "!!merge" {
			if err := s.merge(doc, node.Content[i+1]); err != nil {
				return nil, err
			}
			continue
		}
		value, err := s.value(node.Content[i+1])
		if err != nil {
			return nil, zerr.With(err, "key", key.Value)
		}
		doc.setLocked(key.Value, value)
	}
	return doc, nil
}

// merge applies a "<<" merge: keys already present in doc win.
func (s *yamlState) merge(doc *Document, node *yaml.Node) error {
	node, release, err := s.deref(node)
	if err != nil {
		return err
	}
	defer release()

	sources := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		sources = node.Content
	}
	for _, src := range sources {
		if err := s.mergeSource(doc, src); err != nil {
			return err
		}
	}
	return nil
}

func (s *yamlState) mergeSource(doc *Document, src *yaml.Node) error {
	src, release, err := s.deref(src)
	if err != nil {
		return err
	}
	defer release()

	if src.Kind != yaml.MappingNode {
		return zerr.With(zerr.New("merge value is not a mapping"), "line", strconv.Itoa(src.Line))
	}
	merged, err := s.mapping(src)
	if err != nil {
		return err
	}
	for _, k := range merged.keys {
		if _, ok := doc.values[k]; !ok {
			doc.setLocked(k, merged.values[k])
		}
	}
	return nil
}

func (s *yamlState) value(node *yaml.Node) (any, error) {
	node, release, err := s.deref(node)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.count(node); err != nil {
		return nil, err
	}

	switch node.Kind {
	case yaml.MappingNode:
		return s.mapping(node)
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := s.value(child)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, zerr.Wrap(err, "invalid yaml scalar")
		}
		return v, nil
	}
}

// resolveAlias follows a key alias. Anchored nodes are never aliases
// themselves, so this stops after one step.
func resolveAlias(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		return node.Alias
	}
	return node
}

func notObjectError(value string) error {
	return zerr.With(zerr.New("configuration is not an object"), "value", value)
}
