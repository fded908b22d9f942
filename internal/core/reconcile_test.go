package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sub struct {
	id    string
	key   string
	value string
	pos   int
}

func subs(keys ...string) []*sub {
	out := make([]*sub, len(keys))
	for i, k := range keys {
		out[i] = &sub{id: "s" + string(rune('1'+i)), key: k}
	}
	return out
}

func newSub() *sub { return &sub{} }

func applyValue(s *sub, e Entry, pos int) error {
	s.key = e["key"]
	s.value = e["value"]
	s.pos = pos
	return nil
}

func ids(list []*sub) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.id
	}
	return out
}

func TestPositional(t *testing.T) {
	tests := []struct {
		name        string
		existing    int
		entries     int
		wantReused  int
		wantCreated int
		wantRemoved []string
	}{
		{"same length", 2, 2, 2, 0, nil},
		{"more entries", 1, 3, 1, 2, nil},
		{"fewer entries", 3, 1, 1, 0, []string{"s2", "s3"}},
		{"no entries", 2, 0, 0, 0, []string{"s1", "s2"}},
		{"nothing existing", 0, 2, 0, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := subs(make([]string, tt.existing)...)
			entries := make([]Entry, tt.entries)
			for i := range entries {
				entries[i] = Entry{"value": string(rune('a' + i))}
			}

			out, err := Positional(existing, entries, newSub, applyValue)
			require.NoError(t, err)

			assert.Equal(t, tt.wantReused, out.Reused)
			assert.Equal(t, tt.wantCreated, out.Created)
			assert.Equal(t, tt.wantRemoved, nilIfEmpty(ids(out.Removed)))
			require.Len(t, out.Kept, tt.entries)
			for i, s := range out.Kept {
				assert.Equal(t, i, s.pos)
				assert.Equal(t, string(rune('a'+i)), s.value)
				if i < tt.existing {
					assert.Same(t, existing[i], s, "entry %d reuses existing %d", i, i)
				}
			}
		})
	}
}

func TestPositional_ApplyErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Positional(subs("a", "b"), []Entry{{}, {}, {}}, newSub, func(*sub, Entry, int) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestKeyed(t *testing.T) {
	existing := subs("size", "color", "size", "weight")
	entries := []Entry{
		{"key": "size", "value": "L"},
		{"key": "material", "value": "wool"},
		{"key": "color", "value": "red"},
	}

	out, err := Keyed(existing, entries,
		func(s *sub) string { return s.key },
		func(e Entry) string { return e["key"] },
		newSub, applyValue)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Reused)
	assert.Equal(t, 1, out.Created)
	require.Len(t, out.Kept, 3)
	assert.Same(t, existing[0], out.Kept[0], "first size record is reused first")
	assert.Equal(t, "", out.Kept[1].id, "material is new")
	assert.Same(t, existing[1], out.Kept[2])
	assert.Equal(t, []string{"s3", "s4"}, ids(out.Removed), "removed in original order")
}

func TestKeyed_DuplicateKeysReusedInOrder(t *testing.T) {
	existing := subs("default", "default")
	entries := []Entry{{"key": "default"}, {"key": "default"}, {"key": "default"}}

	out, err := Keyed(existing, entries,
		func(s *sub) string { return s.key },
		func(e Entry) string { return e["key"] },
		newSub, applyValue)
	require.NoError(t, err)

	assert.Equal(t, 2, out.Reused)
	assert.Equal(t, 1, out.Created)
	assert.Same(t, existing[0], out.Kept[0])
	assert.Same(t, existing[1], out.Kept[1])
	assert.Empty(t, out.Removed)
}

func TestKeyed_ApplyMayChangeKey(t *testing.T) {
	existing := subs("a", "b")
	entries := []Entry{{"key": "a", "value": "x"}}

	out, err := Keyed(existing, entries,
		func(s *sub) string { return s.key },
		func(e Entry) string { return e["key"] },
		newSub,
		func(s *sub, e Entry, pos int) error {
			s.key = "b" // collides with the unmatched existing key
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"s2"}, ids(out.Removed))
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
