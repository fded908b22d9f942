package core

// Outcome is the result of reconciling incoming entries with the existing
// sub-items of an item.
type Outcome[T any] struct {
	// Kept holds the reused or created sub-items in entry order.
	Kept []T
	// Removed holds the existing sub-items no entry matched, in their
	// original order. The caller deletes them from the parent.
	Removed []T

	Reused  int
	Created int
}

// ApplyFunc updates a reused or new sub-item from entry. pos is the index
// of the entry among all entries, i.e. its target position.
type ApplyFunc[T any] func(sub T, entry Entry, pos int) error

// queue is a FIFO of existing sub-items.
type queue[T any] struct {
	items []T
	next  int
}

func (q *queue[T]) pop() (T, bool) {
	var zero T
	if q.next >= len(q.items) {
		return zero, false
	}
	v := q.items[q.next]
	q.next++
	return v, true
}

func (q *queue[T]) rest() []T { return q.items[q.next:] }

// Positional reconciles by position: the n-th entry reuses the n-th
// existing sub-item regardless of its content. Surplus entries create new
// sub-items, surplus existing sub-items are returned as removed.
//
// existing must be in its persisted order.
func Positional[T any](existing []T, entries []Entry, create func() T, apply ApplyFunc[T]) (Outcome[T], error) {
	q := &queue[T]{items: existing}
	out := Outcome[T]{Kept: make([]T, 0, len(entries))}

	for pos, entry := range entries {
		sub, ok := q.pop()
		if ok {
			out.Reused++
		} else {
			sub = create()
			out.Created++
		}
		if err := apply(sub, entry, pos); err != nil {
			return out, err
		}
		out.Kept = append(out.Kept, sub)
	}

	out.Removed = append(out.Removed, q.rest()...)
	return out, nil
}

// Keyed reconciles by business key: an entry reuses an existing sub-item
// with the same key. Several existing sub-items sharing a key are reused in
// their original order. Entries with a new key create sub-items, existing
// sub-items whose key has no entry are returned as removed.
func Keyed[T any](
	existing []T,
	entries []Entry,
	subKey func(T) string,
	entryKey func(Entry) string,
	create func() T,
	apply ApplyFunc[T],
) (Outcome[T], error) {
	keys := make([]string, len(existing))
	byKey := make(map[string]*queue[T], len(existing))
	for i, sub := range existing {
		k := subKey(sub)
		keys[i] = k
		q, ok := byKey[k]
		if !ok {
			q = &queue[T]{}
			byKey[k] = q
		}
		q.items = append(q.items, sub)
	}

	matched := make(map[*queue[T]]int)
	out := Outcome[T]{Kept: make([]T, 0, len(entries))}

	for pos, entry := range entries {
		var (
			sub T
			ok  bool
		)
		if q := byKey[entryKey(entry)]; q != nil {
			sub, ok = q.pop()
			if ok {
				matched[q]++
			}
		}
		if ok {
			out.Reused++
		} else {
			sub = create()
			out.Created++
		}
		if err := apply(sub, entry, pos); err != nil {
			return out, err
		}
		out.Kept = append(out.Kept, sub)
	}

	// Keys are taken before apply, which may change the sub-items.
	taken := make(map[*queue[T]]int, len(matched))
	for i, sub := range existing {
		q := byKey[keys[i]]
		if taken[q] < matched[q] {
			taken[q]++
			continue
		}
		out.Removed = append(out.Removed, sub)
	}
	return out, nil
}
