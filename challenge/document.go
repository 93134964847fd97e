package challenge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// keyOrder is the order fields are written in when a document is saved.
var keyOrder = []string{
	"name", "author", "category", "description", "value",
	"type", "extra", "image", "protocol", "host",
	"connection_info", "healthcheck", "attempts", "flags",
	"files", "topics", "tags", "hints",
	"requirements", "state", "version",
}

// top-level keys preceded by an empty line in saved documents
var spacedKeys = regexp.MustCompile(`(?m)^(extra|image|attempts|flags|topics|tags|files|hints|requirements|state|version):`)

// Document is a single challenge definition loaded from a YAML file.
type Document struct {
	fields *Fields
	path   string
	dir    string

	// ID is the remote challenge id, 0 until resolved against the remote.
	ID int
}

// Load reads the challenge definition at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Errorf(KindInvalidDocument, "", "challenge file at %s could not be found: %w", path, err)
	}

	fields, err := parseFields(data)
	if err != nil {
		return nil, Errorf(KindInvalidDocument, "", "challenge file at %s could not be loaded: %w", path, err)
	}

	return &Document{
		fields: fields,
		path:   path,
		dir:    filepath.Dir(path),
	}, nil
}

// LoadWithOverrides reads the definition at path and replaces the fields
// named in overrides.
func LoadWithOverrides(path string, overrides map[string]any) (*Document, error) {
	d, err := Load(path)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.Set(k, Canonical(overrides[k]))
	}
	return d, nil
}

// New returns an unsaved document that will be written to path.
func New(path string, fields *Fields) *Document {
	if fields == nil {
		fields = NewFields()
	}
	return &Document{fields: fields, path: path, dir: filepath.Dir(path)}
}

func parseFields(data []byte) (*Fields, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("document is either empty or not a mapping")
	}

	mapping := root.Content[0]
	fields := NewFields()
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		var key string
		if err := mapping.Content[i].Decode(&key); err != nil {
			return nil, fmt.Errorf("line %d: %w", mapping.Content[i].Line, err)
		}
		var value any
		if err := mapping.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("line %d: %w", mapping.Content[i+1].Line, err)
		}
		fields.Set(key, Canonical(value))
	}
	return fields, nil
}

func (d *Document) String() string { return d.Name() }

// Path returns the location of the YAML file.
func (d *Document) Path() string { return d.path }

// Dir returns the directory holding the YAML file. Asset paths are relative
// to it.
func (d *Document) Dir() string { return d.dir }

func (d *Document) Get(key string) (any, bool) { return d.fields.Get(key) }

// GetOr returns the value under key, or def when the key is absent.
func (d *Document) GetOr(key string, def any) any {
	if v, ok := d.fields.Get(key); ok {
		return v
	}
	return def
}

func (d *Document) Set(key string, v any) { d.fields.Set(key, v) }
func (d *Document) Has(key string) bool   { return d.fields.Has(key) }
func (d *Document) Delete(key string)     { d.fields.Delete(key) }
func (d *Document) Keys() []string        { return d.fields.Keys() }

// truthy mirrors YAML authors' expectations: absent, null, empty strings and
// empty sequences all count as "not provided".
func (d *Document) truthy(key string) bool {
	v, ok := d.fields.Get(key)
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case bool:
		return t
	}
	return true
}

// Provides reports whether key holds a non-empty value.
func (d *Document) Provides(key string) bool { return d.truthy(key) }

func (d *Document) str(key string) string {
	v, ok := d.fields.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (d *Document) Name() string        { return d.str("name") }
func (d *Document) Category() string    { return d.str("category") }
func (d *Document) Description() string { return d.str("description") }
func (d *Document) Image() string       { return d.str("image") }
func (d *Document) Host() string        { return d.str("host") }
func (d *Document) Protocol() string    { return d.str("protocol") }

// Type returns the challenge type, defaulting to standard.
func (d *Document) Type() string {
	if t := d.str("type"); t != "" {
		return t
	}
	return DefaultType
}

// State returns the requested visibility, defaulting to visible.
func (d *Document) State() string {
	if s := d.str("state"); s != "" {
		return s
	}
	return DefaultState
}

// Value returns the challenge value when it is numeric.
func (d *Document) Value() (int, bool) {
	v, ok := d.fields.Get("value")
	if !ok || v == nil {
		return 0, false
	}
	return AsInt(v)
}

// Attempts returns the maximum number of attempts, 0 meaning unlimited.
func (d *Document) Attempts() int {
	n, _ := AsInt(d.GetOr("attempts", 0))
	return n
}

// ConnectionInfo returns the connection info and whether it is set.
func (d *Document) ConnectionInfo() (string, bool) {
	v, ok := d.fields.Get("connection_info")
	if !ok || v == nil {
		return "", false
	}
	return d.str("connection_info"), true
}

func (d *Document) Tags() []string   { return StringList(d.GetOr("tags", nil)) }
func (d *Document) Topics() []string { return StringList(d.GetOr("topics", nil)) }
func (d *Document) Files() []string  { return StringList(d.GetOr("files", nil)) }

// Extra returns the extra payload fields.
func (d *Document) Extra() map[string]any {
	if m, ok := d.GetOr("extra", nil).(map[string]any); ok {
		return m
	}
	return nil
}

// Flags parses the flags sequence.
func (d *Document) Flags() ([]FlagSpec, error) {
	items, _ := d.GetOr("flags", nil).([]any)
	out := make([]FlagSpec, 0, len(items))
	for i, item := range items {
		f, err := ParseFlag(item)
		if err != nil {
			return nil, Errorf(KindInvalidDocument, d.Name(), "flags[%d]: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Hints parses the hints sequence.
func (d *Document) Hints() ([]HintSpec, error) {
	items, _ := d.GetOr("hints", nil).([]any)
	out := make([]HintSpec, 0, len(items))
	for i, item := range items {
		h, err := ParseHint(item)
		if err != nil {
			return nil, Errorf(KindInvalidDocument, d.Name(), "hints[%d]: %w", i, err)
		}
		out = append(out, h)
	}
	return out, nil
}

// Requirements parses the requirements sequence.
func (d *Document) Requirements() ([]Requirement, error) {
	items, _ := d.GetOr("requirements", nil).([]any)
	out := make([]Requirement, 0, len(items))
	for i, item := range items {
		r, err := ParseRequirement(item)
		if err != nil {
			return nil, Errorf(KindInvalidDocument, d.Name(), "requirements[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// ValidateFiles checks that every referenced file exists on disk.
func (d *Document) ValidateFiles() error {
	for _, f := range d.Files() {
		if _, err := os.Stat(filepath.Join(d.dir, f)); err != nil {
			return Errorf(KindInvalidDocument, d.Name(), "file %s could not be loaded: %w", f, err)
		}
	}
	return nil
}

// Marshal renders the document in its canonical on-disk form.
func (d *Document) Marshal() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add := func(key string, value any) error {
		vn, err := valueNode(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, vn)
		return nil
	}

	known := make(map[string]bool, len(keyOrder))
	for _, key := range keyOrder {
		known[key] = true
		value, ok := d.fields.Get(key)
		if !ok || IsDefault(key, value) {
			continue
		}
		if err := add(key, value); err != nil {
			return nil, err
		}
	}

	var unknown []string
	for _, key := range d.fields.Keys() {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		value, _ := d.fields.Get(key)
		if err := add(key, value); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	out := spacedKeys.ReplaceAll(buf.Bytes(), []byte("\n$0"))
	return bytes.TrimLeft(out, "\n"), nil
}

// Save writes the document back to Path.
func (d *Document) Save() error {
	data, err := d.Marshal()
	if err != nil {
		return Errorf(KindInvalidDocument, d.Name(), "challenge file could not be saved: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, ".challenge-*.yml")
	if err != nil {
		return Errorf(KindInvalidDocument, d.Name(), "challenge file could not be saved: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Errorf(KindInvalidDocument, d.Name(), "challenge file could not be saved: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Errorf(KindInvalidDocument, d.Name(), "challenge file could not be saved: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return Errorf(KindInvalidDocument, d.Name(), "challenge file could not be saved: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		return Errorf(KindInvalidDocument, d.Name(), "challenge file could not be saved: %w", err)
	}
	return nil
}

func valueNode(v any) (*yaml.Node, error) {
	switch t := v.(type) {
	case string:
		return stringNode(t), nil
	case []string:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, s := range t {
			n.Content = append(n.Content, stringNode(s))
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range t {
			child, err := valueNode(e)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case map[string]any:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range sortedKeys(t) {
			child, err := valueNode(t[k])
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, child)
		}
		return n, nil
	}

	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

// stringNode picks a literal block for multi-line text and a folded block for
// long single lines.
func stringNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	switch {
	case strings.ContainsAny(s, "\r\n"):
		n.Value = trimLines(s)
		n.Style = yaml.LiteralStyle
	case len(s) > 80:
		n.Value = strings.TrimRight(s, " \t")
		n.Style = yaml.FoldedStyle
	}
	return n
}

func trimLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.Join(lines, "\n")
}
