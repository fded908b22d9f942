package processors

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shopimport/internal/config"
	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/store/memory"
)

// records is an in-memory RecordReader.
type records struct {
	recs []core.Record
	next int
}

func (r *records) Next() (core.Record, error) {
	if r.next >= len(r.recs) {
		return core.Record{}, io.EOF
	}
	rec := r.recs[r.next]
	r.next++
	return rec, nil
}

func csvRows(rows ...[]string) *records {
	r := &records{}
	for i, row := range rows {
		r.recs = append(r.recs, core.Record{Line: i + 1, Row: row})
	}
	return r
}

func xmlNodes(nodes ...*core.Node) *records {
	r := &records{}
	for i, n := range nodes {
		r.recs = append(r.recs, core.Record{Line: i + 1, Node: n})
	}
	return r
}

// el builds an element; leaf builds an element holding text.
func el(name string, attrs map[string]string, children ...*core.Node) *core.Node {
	return &core.Node{Name: name, Attrs: attrs, Children: children}
}

func leaf(name, text string) *core.Node {
	return &core.Node{Name: name, Text: text}
}

type fixture struct {
	t     *testing.T
	store *memory.Store
	tree  *config.Tree
}

func newFixture(t *testing.T, yaml string) *fixture {
	t.Helper()
	tree, err := config.ParseTree([]byte(yaml))
	require.NoError(t, err)
	return &fixture{t: t, store: memory.NewStore(), tree: tree}
}

func (f *fixture) importer() *core.Importer {
	return f.importerWith(core.ImporterConfig{})
}

func (f *fixture) importerWith(cfg core.ImporterConfig) *core.Importer {
	env := &core.Env{
		Config:   f.tree,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Managers: f.store,
	}
	return core.NewImporter(env, cfg)
}

func (f *fixture) runCSV(dom string, rows ...[]string) *core.ImportResult {
	f.t.Helper()
	res, err := f.importer().ImportCSV(context.Background(), dom, csvRows(rows...), nil)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) runXML(dom string, nodes ...*core.Node) *core.ImportResult {
	f.t.Helper()
	res, err := f.importer().ImportXML(context.Background(), dom, xmlNodes(nodes...), nil)
	require.NoError(f.t, err)
	return res
}

// seed stores an item of resource with code and extra short values.
func (f *fixture) seed(resource, code string, values map[string]string) *domain.Item {
	f.t.Helper()
	m, err := f.store.Manager(resource)
	require.NoError(f.t, err)
	item := m.Create()
	item.SetCode(code)
	for k, v := range values {
		item.Set(k, v)
	}
	require.NoError(f.t, m.Save(context.Background(), item))
	return item
}

// find returns the stored item of resource with code.
func (f *fixture) find(resource, code string) *domain.Item {
	f.t.Helper()
	items := f.search(resource, domain.NewFilter().Eq(domain.KeyPrefix(resource)+"code", code))
	require.Len(f.t, items, 1, "%s %q", resource, code)
	return items[0]
}

func (f *fixture) search(resource string, filter *domain.Filter) []*domain.Item {
	f.t.Helper()
	m, err := f.store.Manager(resource)
	require.NoError(f.t, err)
	items, err := m.Search(context.Background(), filter.Slice(0, 1000))
	require.NoError(f.t, err)
	return items
}

// typeCodes returns the codes of the types stored at path for dom.
func (f *fixture) typeCodes(path, dom string) []string {
	f.t.Helper()
	var codes []string
	for _, item := range f.search(path, domain.NewFilter().Eq(domain.KeyPrefix(path)+"domain", dom)) {
		codes = append(codes, item.Code())
	}
	return codes
}
