package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shopimport/internal/config"
	"github.com/JonMunkholm/shopimport/internal/core"
)

func readAll(t *testing.T, r core.RecordReader) []core.Record {
	t.Helper()
	var out []core.Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestCSVReader(t *testing.T) {
	input := "\xEF\xBB\xBFcode,label\np1,\"Demo, large\"\n\np2,Second,extra\n"
	r := NewCSVReader(strings.NewReader(input), int64(len(input)), CSVOptions{SkipLines: 1})

	recs := readAll(t, r)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"p1", "Demo, large"}, recs[0].Row)
	assert.Equal(t, 2, recs[0].Line)
	assert.Equal(t, []string{"p2", "Second", "extra"}, recs[1].Row)
	assert.Equal(t, 4, recs[1].Line)
	assert.Equal(t, int64(len(input)), r.BytesRead())
}

func TestCSVReader_Separator(t *testing.T) {
	r := NewCSVReader(strings.NewReader("p1;Demo\n"), 0, CSVOptions{Separator: ';'})

	recs := readAll(t, r)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"p1", "Demo"}, recs[0].Row)
}

func TestCSVReader_CleanCells(t *testing.T) {
	input := "=\"00123\", 'Demo' ,=A1\n"

	raw := readAll(t, NewCSVReader(strings.NewReader(input), 0, CSVOptions{}))
	require.Len(t, raw, 1)
	assert.Equal(t, `="00123"`, raw[0].Row[0])

	clean := readAll(t, NewCSVReader(strings.NewReader(input), 0, CSVOptions{CleanCells: true}))
	require.Len(t, clean, 1)
	assert.Equal(t, []string{"00123", "Demo", "A1"}, clean[0].Row)
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unchanged", "hello", "hello"},
		{"empty", "", ""},
		{"surrounding whitespace", "  hello  ", "hello"},
		{"formula with quotes", `="12345"`, "12345"},
		{"bare formula", "=SUM(A1)", "SUM(A1)"},
		{"double quotes", `"hello"`, "hello"},
		{"text prefix", "'12345", "12345"},
		{"formula with whitespace", `  ="test"  `, "test"},
		{"only quotes", `""`, ""},
		{"truncated formula", `="`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanCell(tt.input))
		})
	}
}

func TestCSVOptionsFrom(t *testing.T) {
	tree, err := config.ParseTree([]byte(`
product:
  csv:
    separator: tab
    skip-lines: 1
customer:
  csv:
    separator: ";"
    clean-cells: yes
`))
	require.NoError(t, err)

	assert.Equal(t, CSVOptions{Separator: '\t', SkipLines: 1}, CSVOptionsFrom(tree, "product"))
	assert.Equal(t, CSVOptions{Separator: ';', CleanCells: true}, CSVOptionsFrom(tree, "customer"))
	assert.Equal(t, CSVOptions{}, CSVOptionsFrom(tree, "supplier"))
	assert.Equal(t, CSVOptions{}, CSVOptionsFrom(nil, "product"))
}

const productsXML = `<?xml version="1.0" encoding="UTF-8"?>
<products>
  <!-- exported -->
  <product ref="p1">
    <product.label>Demo</product.label>
    <lists>
      <text>
        <textitem text.type="name"><text.content> Demo article </text.content></textitem>
      </text>
    </lists>
  </product>
  <product ref="p2"/>
</products>
`

func TestXMLReader(t *testing.T) {
	r := NewXMLReader(strings.NewReader(productsXML), 0)

	recs := readAll(t, r)
	require.Len(t, recs, 2)

	p1 := recs[0].Node
	assert.Equal(t, "product", p1.Name)
	assert.Equal(t, "p1", p1.Attr("ref"))
	assert.Equal(t, "Demo", p1.Values()["product.label"])
	assert.Equal(t, 4, recs[0].Line)

	item := p1.Child("lists").Child("text").Child("textitem")
	require.NotNil(t, item)
	assert.Equal(t, "name", item.Attr("text.type"))
	assert.Equal(t, "Demo article", item.Values()["text.content"])

	assert.Equal(t, "p2", recs[1].Node.Attr("ref"))
	assert.True(t, recs[1].Node.IsLeaf())

	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF, "reading past the end stays at EOF")
	assert.Positive(t, r.BytesRead())
}

func TestXMLReader_Malformed(t *testing.T) {
	r := NewXMLReader(strings.NewReader(`<products><product ref="p1"><product.label>x</product></products>`), 0)

	_, err := r.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse xml")
}

func TestParseElement(t *testing.T) {
	node, err := ParseElement(`<product ref="p9"><product.label>Nine</product.label></product>`)
	require.NoError(t, err)
	assert.Equal(t, "p9", node.Attr("ref"))
	assert.Equal(t, "Nine", node.Values()["product.label"])

	_, err = ParseElement("   ")
	assert.Error(t, err)
}

// fakeList pops from an in-memory slice like BLPOP on a Redis list.
type fakeList struct {
	msgs []string
	err  error
	keys []string
}

func (f *fakeList) BLPop(_ context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	f.keys = keys
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	if len(f.msgs) == 0 {
		return redis.NewStringSliceResult(nil, redis.Nil)
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return redis.NewStringSliceResult([]string{keys[0], msg}, nil)
}

func TestQueueReader_CSV(t *testing.T) {
	list := &fakeList{msgs: []string{"p1,Demo", `p2,"Two; parts"`}}
	r := NewQueueReader(context.Background(), list, "import:product", QueueOptions{})

	recs := readAll(t, r)
	require.Len(t, recs, 2)
	assert.Equal(t, core.Record{Line: 1, Row: []string{"p1", "Demo"}}, recs[0])
	assert.Equal(t, core.Record{Line: 2, Row: []string{"p2", "Two; parts"}}, recs[1])
	assert.Equal(t, []string{"import:product"}, list.keys)
}

func TestQueueReader_XML(t *testing.T) {
	list := &fakeList{msgs: []string{`<product ref="p1"/>`}}
	r := NewQueueReader(context.Background(), list, "import:product", QueueOptions{Kind: core.KindXML})

	recs := readAll(t, r)
	require.Len(t, recs, 1)
	assert.Equal(t, "p1", recs[0].Node.Attr("ref"))
}

func TestQueueReader_Errors(t *testing.T) {
	boom := errors.New("connection refused")
	r := NewQueueReader(context.Background(), &fakeList{err: boom}, "q", QueueOptions{})
	_, err := r.Next()
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r = NewQueueReader(ctx, &fakeList{err: context.Canceled}, "q", QueueOptions{})
	_, err = r.Next()
	assert.ErrorIs(t, err, context.Canceled)

	r = NewQueueReader(context.Background(), &fakeList{msgs: []string{"<product"}}, "q", QueueOptions{Kind: core.KindXML})
	_, err = r.Next()
	assert.ErrorContains(t, err, "message 1")
}
