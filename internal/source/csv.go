// Package source turns CSV files, XML files and Redis lists into the
// records consumed by core.Importer.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/shopimport/internal/core"
)

// CSVOptions controls how CSV input is parsed.
type CSVOptions struct {
	Separator  rune // field separator, ',' if zero
	SkipLines  int  // leading records to skip, e.g. 1 for a header row
	CleanCells bool // strip spreadsheet artifacts, see CleanCell
}

// CSVOptionsFrom reads "<domain>/csv/separator", "<domain>/csv/skip-lines"
// and "<domain>/csv/clean-cells". The separator may be given as a single
// character or as "tab".
func CSVOptionsFrom(cfg core.Config, dom string) CSVOptions {
	var opts CSVOptions
	if cfg == nil {
		return opts
	}
	opts.Separator = parseSeparator(cfg.String(dom+"/csv/separator", ""))
	opts.SkipLines = cfg.Int(dom+"/csv/skip-lines", 0)
	opts.CleanCells = cfg.Bool(dom+"/csv/clean-cells", false)
	return opts
}

func parseSeparator(s string) rune {
	switch strings.ToLower(s) {
	case "":
		return 0
	case "tab", `\t`:
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0
	}
	return r
}

// CSVReader reads CSV rows as records. Rows may have differing lengths;
// quotes are parsed leniently like spreadsheet exports need.
type CSVReader struct {
	r       *csv.Reader
	counter *Counter
	skip    int
	clean   bool
}

var _ core.RecordReader = (*CSVReader)(nil)

// NewCSVReader reads from r. size is the expected input size for progress
// reporting, 0 if unknown.
func NewCSVReader(r io.Reader, size int64, opts CSVOptions) *CSVReader {
	in, counter := Wrap(r, size)

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Separator != 0 {
		cr.Comma = opts.Separator
	}
	return &CSVReader{r: cr, counter: counter, skip: opts.SkipLines, clean: opts.CleanCells}
}

// Next returns the next row or io.EOF.
func (c *CSVReader) Next() (core.Record, error) {
	for {
		row, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			return core.Record{}, io.EOF
		}
		if err != nil {
			return core.Record{}, fmt.Errorf("parse csv: %w", err)
		}
		if c.skip > 0 {
			c.skip--
			continue
		}
		if c.clean {
			for i, cell := range row {
				row[i] = CleanCell(cell)
			}
		}
		line, _ := c.r.FieldPos(0)
		return core.Record{Line: line, Row: row}, nil
	}
}

// CleanCell removes common spreadsheet export artifacts from a cell:
// surrounding whitespace, an Excel formula prefix (="..." or =...) and
// surrounding quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// BytesRead returns the number of input bytes consumed.
func (c *CSVReader) BytesRead() int64 { return c.counter.BytesRead() }
