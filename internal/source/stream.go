package source

import (
	"bufio"
	"bytes"
	"io"
	"sync/atomic"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM returns a reader without the leading UTF-8 byte order mark that
// spreadsheet programs on Windows like to add.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// Sanitizer replaces invalid UTF-8 bytes with '?' while streaming, so a
// stray Latin-1 byte fails neither the CSV parser nor the database.
// A multi-byte sequence split across reads is carried over to the next read.
type Sanitizer struct {
	r       io.Reader
	pending []byte
}

// NewSanitizer wraps r.
func NewSanitizer(r io.Reader) *Sanitizer {
	return &Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

// Read implements io.Reader.
func (s *Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}
	if ascii(p[:n]) {
		return n, err
	}

	n = s.sanitize(p[:n], err == io.EOF)
	if n == 0 && err == nil && len(s.pending) > 0 && len(p) >= utf8.UTFMax {
		// Only the start of a sequence was read; fetch more before returning.
		return s.Read(p)
	}
	return n, err
}

func ascii(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// sanitize rewrites data in place and returns the number of bytes to hand
// out. Unless atEOF, an incomplete sequence at the end is kept for the next
// read.
func (s *Sanitizer) sanitize(data []byte, atEOF bool) int {
	w := 0
	for r := 0; r < len(data); {
		if !atEOF && !utf8.FullRune(data[r:]) {
			s.pending = append(s.pending, data[r:]...)
			return w
		}
		ch, size := utf8.DecodeRune(data[r:])
		if ch == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		w += copy(data[w:], data[r:r+size])
		r += size
	}
	return w
}

// Counter counts the bytes read through it. BytesRead may be called from
// other goroutines, e.g. to report progress.
type Counter struct {
	r     io.Reader
	n     atomic.Int64
	total int64
}

// NewCounter wraps r. total is the expected size or 0 if unknown.
func NewCounter(r io.Reader, total int64) *Counter {
	return &Counter{r: r, total: total}
}

// Read implements io.Reader.
func (c *Counter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *Counter) BytesRead() int64 { return c.n.Load() }

// Total returns the expected size or 0.
func (c *Counter) Total() int64 { return c.total }

// Wrap prepares raw input for parsing: the BOM is stripped first, invalid
// UTF-8 is replaced next, and the counter sees the raw bytes.
func Wrap(r io.Reader, total int64) (io.Reader, *Counter) {
	c := NewCounter(r, total)
	return NewSanitizer(SkipBOM(c)), c
}
