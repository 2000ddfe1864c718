package upsert

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func render(c *Chunk) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "docs: %d\nnquads: %d\nquery:\n%s\n", c.Docs, c.NQuads, c.Query)
	for i, m := range c.Mutations {
		fmt.Fprintf(&b, "mutation %d cond=%q\n%s\n", i, m.Cond, m.SetJSON)
	}
	return []byte(b.String())
}

func TestCompileChunkGolden(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		patterns []string
		lines    []Line
	}{
		{
			name: "shared_department",
			keys: []string{"name"},
			lines: []Line{
				{Index: 0, Text: `{"name":"Alice","dept":{"name":"Eng"}}`},
				{Index: 1, Text: `{"name":"Bob","dept":{"name":"Eng"},"age":41}`},
			},
		},
		{
			name:     "patterns_union_and_geo",
			patterns: []string{"_id$"},
			lines: []Line{
				{Index: 3, Text: `{"user_id":"u1","account_id":7,"profile":{"bio":"hi <3","geo":{"type":"Point","coordinates":[1.5,2]}},"friends":[{"user_id":"u2"},{"nick":"x"}]}`},
			},
		},
	}

	g := goldie.New(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, err := NewKeyMatcher(tt.keys, tt.patterns)
			require.NoError(t, err)

			chunk, err := NewCompiler(keys, NewClassifier()).CompileChunk(tt.lines)
			require.NoError(t, err)

			g.Assert(t, tt.name, render(chunk))
		})
	}
}

func TestCompileChunkWithoutKeysHasNoQuery(t *testing.T) {
	chunk, err := NewCompiler(nil, nil).CompileChunk([]Line{
		{Index: 10, Text: `{"name":"Alice","dept":{"name":"Eng"}}`},
		{Index: 11, Text: `{"name":"Bob"}`},
	})
	require.NoError(t, err)

	require.Empty(t, chunk.Query)
	require.Equal(t, 2, chunk.Docs)
	require.Equal(t, 10, chunk.First)
	require.Equal(t, uint64(3), chunk.NQuads)
	require.Len(t, chunk.Mutations, 1)
	require.Empty(t, chunk.Mutations[0].Cond)

	set := gjson.ParseBytes(chunk.Mutations[0].SetJSON)
	require.Equal(t, int64(3), set.Get("#").Int())
	for _, node := range set.Array() {
		require.True(t, strings.HasPrefix(node.Get("uid").String(), "_:"))
	}
	require.Equal(t, "_:v_10_2", set.Get("1.dept.uid").String())
	require.Equal(t, "_:v_11_1", set.Get("2.uid").String())
}

func TestCompileChunkEmptyDocumentsProduceNoMutations(t *testing.T) {
	chunk, err := NewCompiler(nil, nil).CompileChunk([]Line{{Index: 0, Text: `{}`}, {Index: 1, Text: ` { } `}})
	require.NoError(t, err)
	require.Empty(t, chunk.Query)
	require.Empty(t, chunk.Mutations)
	require.Equal(t, 2, chunk.Docs)
}

func TestCompileChunkStructuralErrors(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target error
	}{
		{name: "malformed", text: `{"name":`},
		{name: "empty_line", text: ``},
		{name: "trailing_data", text: `{"a":1} {"b":2}`},
		{name: "array_root", text: `[{"a":1}]`, target: ErrNotObject},
		{name: "string_root", text: `"a"`, target: ErrNotObject},
		{name: "reserved_field", text: `{"uid":"0x1"}`, target: ErrReservedField},
	}

	compiler := NewCompiler(NewFieldKeyMatcher([]string{"name"}), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, err := compiler.CompileChunk([]Line{
				{Index: 4, Text: `{"name":"ok"}`},
				{Index: 5, Text: tt.text},
			})
			require.Nil(t, chunk)
			require.ErrorIs(t, err, ErrStructural)
			if tt.target != nil {
				require.ErrorIs(t, err, tt.target)
			}

			var structural *StructuralError
			require.True(t, errors.As(err, &structural))
			require.Equal(t, 5, structural.Index)
			require.Equal(t, tt.text, structural.Raw)
			require.Contains(t, err.Error(), "document 5: ")
		})
	}
}

func TestStructuralErrorTruncatesRaw(t *testing.T) {
	raw := `{"v":"` + strings.Repeat("x", 1000) + `"`
	err := newStructuralError(1, raw, ErrNotObject)
	require.Len(t, err.Raw, maxRawLength+3)
	require.True(t, strings.HasSuffix(err.Raw, "..."))
}
