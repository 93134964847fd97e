package challenge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "challenge.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Equal(t, KindInvalidDocument, KindOf(err))
}

func TestLoadRejectsNonMapping(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "sequence", content: "- a\n- b\n"},
		{name: "scalar", content: "just text\n"},
		{name: "broken", content: "name: [unterminated\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeDoc(t, tc.content))
			require.Error(t, err)
			assert.Equal(t, KindInvalidDocument, KindOf(err))
		})
	}
}

func TestLoadWithOverrides(t *testing.T) {
	path := writeDoc(t, "name: Warmup\nvalue: 100\nstate: visible\n")
	d, err := LoadWithOverrides(path, map[string]any{"state": "hidden", "value": int64(200)})
	require.NoError(t, err)
	assert.Equal(t, "hidden", d.State())
	v, ok := d.Value()
	assert.True(t, ok)
	assert.Equal(t, 200, v)
	assert.Equal(t, []string{"name", "value", "state"}, d.Keys())
}

func TestLoadAccessors(t *testing.T) {
	path := writeDoc(t, `
name: Warmup
category: misc
value: "150"
attempts: 3
flags:
  - flag{one}
  - type: regex
    content: flag{.*}
    data: case_insensitive
hints:
  - free hint
  - content: paid hint
    cost: 10
requirements:
  - Intro
  - 7
files:
  - dist/a.txt
connection_info: nc example.com 1337
`)
	d, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "category", "value", "attempts", "flags", "hints", "requirements", "files", "connection_info"}, d.Keys())
	assert.Equal(t, "Warmup", d.Name())
	assert.Equal(t, "misc", d.Category())
	assert.Equal(t, DefaultType, d.Type())
	assert.Equal(t, DefaultState, d.State())
	assert.Equal(t, 3, d.Attempts())
	assert.Equal(t, filepath.Dir(path), d.Dir())

	v, ok := d.Value()
	assert.True(t, ok)
	assert.Equal(t, 150, v)

	ci, ok := d.ConnectionInfo()
	assert.True(t, ok)
	assert.Equal(t, "nc example.com 1337", ci)

	flags, err := d.Flags()
	require.NoError(t, err)
	assert.Equal(t, []FlagSpec{
		{Type: "static", Content: "flag{one}"},
		{Type: "regex", Content: "flag{.*}", Data: "case_insensitive"},
	}, flags)

	hints, err := d.Hints()
	require.NoError(t, err)
	assert.Equal(t, []HintSpec{{Content: "free hint"}, {Content: "paid hint", Cost: 10}}, hints)

	reqs, err := d.Requirements()
	require.NoError(t, err)
	assert.Equal(t, []Requirement{{Name: "Intro"}, {ID: 7}}, reqs)

	assert.Equal(t, []string{"dist/a.txt"}, d.Files())
}

func TestValidateFiles(t *testing.T) {
	path := writeDoc(t, "name: A\nfiles:\n  - present.txt\n  - missing.txt\n")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "present.txt"), []byte("x"), 0644))

	d, err := Load(path)
	require.NoError(t, err)

	err = d.ValidateFiles()
	require.Error(t, err)
	assert.Equal(t, KindInvalidDocument, KindOf(err))
	assert.Contains(t, err.Error(), "missing.txt")
}

func TestMarshalKeyOrderAndDefaults(t *testing.T) {
	fields := NewFields()
	fields.Set("zzz_custom", "last")
	fields.Set("state", "visible")
	fields.Set("tags", []any{"web"})
	fields.Set("attempts", 0)
	fields.Set("flags", []any{"flag{x}"})
	fields.Set("value", 100)
	fields.Set("type", "standard")
	fields.Set("topics", []any{})
	fields.Set("category", "web")
	fields.Set("aaa_custom", "extra key")
	fields.Set("connection_info", nil)
	fields.Set("name", "Ordered")

	out, err := New(filepath.Join(t.TempDir(), "challenge.yml"), fields).Marshal()
	require.NoError(t, err)
	text := string(out)

	for _, omitted := range []string{"state:", "attempts:", "type:", "topics:", "connection_info:"} {
		assert.NotContains(t, text, omitted)
	}

	order := []string{"name:", "category:", "value:", "flags:", "tags:", "aaa_custom:", "zzz_custom:"}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, key)
		require.GreaterOrEqual(t, idx, 0, key)
		assert.Greater(t, idx, last, key)
		last = idx
	}

	assert.True(t, strings.HasPrefix(text, "name: Ordered\n"))
	assert.Contains(t, text, "\n\nflags:")
	assert.Contains(t, text, "\n\ntags:")
}

func TestMarshalStringStyles(t *testing.T) {
	fields := NewFields()
	fields.Set("name", "Styles")
	fields.Set("description", "line one   \nline two\n")
	fields.Set("author", strings.Repeat("long ", 20))

	out, err := New(filepath.Join(t.TempDir(), "challenge.yml"), fields).Marshal()
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "description: |-\n  line one\n  line two\n")
	assert.Contains(t, text, "author: >-")
}

func TestSaveRoundTrip(t *testing.T) {
	path := writeDoc(t, `
name: Round Trip
author: someone
category: crypto
description: |
  Multi
  line
value: 500
type: dynamic
extra:
  initial: 500
  decay: 25
  minimum: 100
flags:
  - flag{a}
  - content: flag{b}
    type: static
    data: case_insensitive
tags: [one, two]
hints:
  - content: costly
    cost: 50
requirements: [Warmup, 3]
state: hidden
custom_key: kept
`)
	before, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, before.Save())

	after, err := Load(path)
	require.NoError(t, err)

	for _, key := range before.Keys() {
		want, _ := before.Get(key)
		got, ok := after.Get(key)
		require.True(t, ok, key)
		if key == "description" {
			assert.Equal(t, "Multi\nline", got)
			continue
		}
		assert.True(t, Equal(want, got), "%s: %v != %v", key, want, got)
	}
	assert.Equal(t, "custom_key", after.Keys()[len(after.Keys())-1])
}

func TestSaveIsStable(t *testing.T) {
	path := writeDoc(t, "value: 10\nname: Stable\ntags:\n- a\n")
	d, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, d.Save())
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	d, err = Load(path)
	require.NoError(t, err)
	require.NoError(t, d.Save())
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
