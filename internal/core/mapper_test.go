package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapEntry(t *testing.T) {
	mapping := Mapping{0: "product.code", 1: "product.label", 5: "product.status"}

	entry := MapEntry([]string{" p1 ", "", "ignored"}, mapping)

	assert.Equal(t, Entry{"product.code": "p1", "product.label": ""}, entry)
	assert.True(t, entry.Has("product.label"), "mapped empty column is present")
	assert.False(t, entry.Has("product.status"), "position beyond the row is omitted")
	assert.Equal(t, "fallback", entry.Val("product.label", "fallback"))
	assert.Equal(t, "p1", entry.Val("product.code", "fallback"))
}

func TestMapChunks(t *testing.T) {
	mapping := Mapping{
		1: "text.type", 2: "text.content",
		3: "text.type", 4: "text.content",
		5: "text.type", 6: "text.content",
	}

	tests := []struct {
		name     string
		row      []string
		maxCount int
		want     []Entry
	}{
		{
			name: "repeated groups",
			row:  []string{"p1", "name", "Demo", "short", "Short", "long", "Long"},
			want: []Entry{
				{"text.type": "name", "text.content": "Demo"},
				{"text.type": "short", "text.content": "Short"},
				{"text.type": "long", "text.content": "Long"},
			},
		},
		{
			name: "empty group dropped",
			row:  []string{"p1", "name", "Demo", " ", "", "long", "Long"},
			want: []Entry{
				{"text.type": "name", "text.content": "Demo"},
				{"text.type": "long", "text.content": "Long"},
			},
		},
		{
			name: "short row",
			row:  []string{"p1", "name"},
			want: []Entry{{"text.type": "name"}},
		},
		{
			name:     "max count",
			row:      []string{"p1", "name", "Demo", "short", "Short", "long", "Long"},
			maxCount: 2,
			want: []Entry{
				{"text.type": "name", "text.content": "Demo"},
				{"text.type": "short", "text.content": "Short"},
			},
		},
		{
			name: "nothing mapped",
			row:  []string{"p1"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapChunks(tt.row, mapping, tt.maxCount))
		})
	}
}

func TestMapChunks_PartialValuesKeepGroup(t *testing.T) {
	mapping := Mapping{0: "a", 1: "b", 2: "a", 3: "b"}

	chunks := MapChunks([]string{"", "x", "", ""}, mapping, 0)

	require.Len(t, chunks, 1)
	assert.Equal(t, Entry{"a": "", "b": "x"}, chunks[0])
	assert.False(t, chunks[0].Satisfies([]string{"a"}), "empty value does not satisfy a required key")
	assert.True(t, chunks[0].Satisfies([]string{"b"}))
}

func TestFilterEntries(t *testing.T) {
	entries := []Entry{
		{"price.value": "1.00"},
		{"price.value": " "},
		{"price.currencyid": "EUR"},
		{"price.value": "2.00"},
	}

	assert.Equal(t, []Entry{{"price.value": "1.00"}, {"price.value": "2.00"}},
		FilterEntries(entries, []string{"price.value"}))
	assert.Len(t, FilterEntries(entries, nil), 4)
}

func TestMapping_PositionsAndKeys(t *testing.T) {
	m := Mapping{4: "b", 0: "a", 2: "b"}

	assert.Equal(t, []int{0, 2, 4}, m.Positions())
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}

func TestParseMapping(t *testing.T) {
	m, err := ParseMapping(map[string]string{"0": "product.code", " 3 ": "product.label"})
	require.NoError(t, err)
	assert.Equal(t, Mapping{0: "product.code", 3: "product.label"}, m)

	for _, bad := range []string{"x", "-1", ""} {
		_, err := ParseMapping(map[string]string{bad: "product.code"})
		assert.True(t, errors.Is(err, ErrInvalidConfiguration), "position %q", bad)
		assert.True(t, IsConfigError(err))
	}
}
