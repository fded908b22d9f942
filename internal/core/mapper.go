package core

import (
	"sort"
	"strconv"
	"strings"
)

// Mapping maps CSV column positions to field keys such as
// "product.property.value". A key may appear several times to describe
// repeated field groups within one row.
type Mapping map[int]string

// Positions returns the mapped positions in ascending order.
func (m Mapping) Positions() []int {
	pos := make([]int, 0, len(m))
	for p := range m {
		pos = append(pos, p)
	}
	sort.Ints(pos)
	return pos
}

// Keys returns the distinct field keys in position order.
func (m Mapping) Keys() []string {
	seen := make(map[string]bool, len(m))
	var keys []string
	for _, p := range m.Positions() {
		if k := m[p]; !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// ParseMapping builds a Mapping from string positions, as they come from
// query parameters or flags. Entries with invalid positions are rejected.
func ParseMapping(raw map[string]string) (Mapping, error) {
	m := make(Mapping, len(raw))
	for pos, key := range raw {
		p, err := strconv.Atoi(strings.TrimSpace(pos))
		if err != nil || p < 0 {
			return nil, &ConfigError{Name: pos, Err: ErrInvalidConfiguration}
		}
		m[p] = key
	}
	return m, nil
}

// Entry is one normalized unit of incoming data, keyed by field key.
//
// Values are trimmed but kept when empty: raw access distinguishes a mapped
// but empty column from an unmapped one, while Val treats both as absent.
type Entry map[string]string

// Val returns the trimmed value of key, or def if the key is missing or
// its value is empty.
func (e Entry) Val(key, def string) string {
	if v := strings.TrimSpace(e[key]); v != "" {
		return v
	}
	return def
}

// Has reports whether the key was mapped at all, even to an empty value.
func (e Entry) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Satisfies reports whether every required key has a non-empty value.
func (e Entry) Satisfies(required []string) bool {
	for _, key := range required {
		if e.Val(key, "") == "" {
			return false
		}
	}
	return true
}

// Empty reports whether all values are empty.
func (e Entry) Empty() bool {
	for _, v := range e {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// MapEntry applies the mapping 1:1 to row. Positions beyond the end of the
// row are omitted.
func MapEntry(row []string, mapping Mapping) Entry {
	entry := make(Entry, len(mapping))
	for pos, key := range mapping {
		if pos >= 0 && pos < len(row) {
			entry[key] = strings.TrimSpace(row[pos])
		}
	}
	return entry
}

// MapChunks partitions row into repeated field groups. Positions are walked
// in ascending order and a new chunk starts whenever a key repeats within
// the current chunk. Chunks without any value are dropped. A maxCount
// above zero limits the number of chunks returned.
func MapChunks(row []string, mapping Mapping, maxCount int) []Entry {
	var (
		chunks  []Entry
		current = Entry{}
		seen    = map[string]bool{}
	)

	flush := func() {
		if !current.Empty() {
			chunks = append(chunks, current)
		}
		current = Entry{}
		seen = map[string]bool{}
	}

	for _, pos := range mapping.Positions() {
		key := mapping[pos]
		if seen[key] {
			flush()
		}
		seen[key] = true
		if pos < len(row) {
			current[key] = strings.TrimSpace(row[pos])
		}
	}
	flush()

	if maxCount > 0 && len(chunks) > maxCount {
		chunks = chunks[:maxCount]
	}
	return chunks
}

// FilterEntries returns the entries satisfying required in source order.
func FilterEntries(entries []Entry, required []string) []Entry {
	if len(required) == 0 {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Satisfies(required) {
			out = append(out, e)
		}
	}
	return out
}
