package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shopimport/internal/config"
	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/store/memory"
)

// sliceReader is an in-memory RecordReader.
type sliceReader struct {
	mu   sync.Mutex
	recs []Record
	next int
	err  error // returned instead of io.EOF when set
}

func (r *sliceReader) Next() (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.recs) {
		if r.err != nil {
			return Record{}, r.err
		}
		return Record{}, io.EOF
	}
	rec := r.recs[r.next]
	r.next++
	return rec, nil
}

func rowsOf(rows ...[]string) *sliceReader {
	r := &sliceReader{}
	for i, row := range rows {
		r.recs = append(r.recs, Record{Line: i + 1, Row: row})
	}
	return r
}

func testTree(t *testing.T, yaml string) *config.Tree {
	t.Helper()
	tree, err := config.ParseTree([]byte(yaml))
	require.NoError(t, err)
	return tree
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func testEnv(t *testing.T, yaml string, managers domain.ManagerSource) *Env {
	t.Helper()
	return &Env{Config: testTree(t, yaml), Logger: discardLogger(), Managers: managers}
}

// register adds a definition for the duration of the test.
func register(t *testing.T, def Definition) {
	t.Helper()
	Register(def)
	t.Cleanup(func() { Unregister(def.Kind, def.Class) })
}

// funcProcessor runs fn for every row and counts Finish calls.
type funcProcessor struct {
	next     Processor
	fn       func(ctx context.Context, item *domain.Item, row []string) error
	mu       sync.Mutex
	finished int
}

func (p *funcProcessor) Process(ctx context.Context, item *domain.Item, row []string) error {
	if p.fn != nil {
		if err := p.fn(ctx, item, row); err != nil {
			return err
		}
	}
	return p.next.Process(ctx, item, row)
}

func (p *funcProcessor) Finish(ctx context.Context) error {
	p.mu.Lock()
	p.finished++
	p.mu.Unlock()
	return p.next.Finish(ctx)
}

// countingSource counts searches and optionally fails saves of one resource.
type countingSource struct {
	*memory.Store
	failSave string

	mu       sync.Mutex
	searches map[string]int
}

func newCountingSource() *countingSource {
	return &countingSource{Store: memory.NewStore(), searches: make(map[string]int)}
}

func (s *countingSource) Manager(resource string) (domain.Manager, error) {
	m, err := s.Store.Manager(resource)
	if err != nil {
		return nil, err
	}
	return &countingManager{Manager: m, src: s}, nil
}

func (s *countingSource) Searches(resource string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches[resource]
}

var errSaveFailed = errors.New("save failed")

type countingManager struct {
	domain.Manager
	src *countingSource
}

func (m *countingManager) Search(ctx context.Context, f *domain.Filter) ([]*domain.Item, error) {
	m.src.mu.Lock()
	m.src.searches[m.Resource()]++
	m.src.mu.Unlock()
	return m.Manager.Search(ctx, f)
}

func (m *countingManager) Save(ctx context.Context, items ...*domain.Item) error {
	if m.Resource() == m.src.failSave {
		return errSaveFailed
	}
	return m.Manager.Save(ctx, items...)
}
