package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/metrics"
)

// TypeQueryLimit bounds the existing types fetched per (path, domain).
const TypeQueryLimit = 10000

// TypeRegistrar collects the type codes seen during an import run and
// creates the missing ones in one pass when the run finishes.
//
// Type records are items of the resource named by the path, e.g.
// "product/lists/type", with the values domain, code and label.
type TypeRegistrar struct {
	managers domain.ManagerSource
	logger   *slog.Logger
	metrics  *metrics.ImportMetrics

	mu      sync.Mutex
	pending map[string]map[string]map[string]struct{} // path -> domain -> code
}

// NewTypeRegistrar creates an empty registrar.
func NewTypeRegistrar(managers domain.ManagerSource, logger *slog.Logger, m *metrics.ImportMetrics) *TypeRegistrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &TypeRegistrar{
		managers: managers,
		logger:   logger.With("topic", "import"),
		metrics:  m,
		pending:  make(map[string]map[string]map[string]struct{}),
	}
}

// Add records that the type code must exist for path and domain.
// Adding the same triple again has no effect. Empty codes are ignored.
func (r *TypeRegistrar) Add(path, dom, code string) {
	if path == "" || code == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byDomain, ok := r.pending[path]
	if !ok {
		byDomain = make(map[string]map[string]struct{})
		r.pending[path] = byDomain
	}
	codes, ok := byDomain[dom]
	if !ok {
		codes = make(map[string]struct{})
		byDomain[dom] = codes
	}
	codes[code] = struct{}{}
}

// Pending returns the number of recorded triples not yet saved.
func (r *TypeRegistrar) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, byDomain := range r.pending {
		for _, codes := range byDomain {
			n += len(codes)
		}
	}
	return n
}

// SaveTypes creates all recorded types that do not exist yet, using one
// transaction per (path, domain). A failing transaction is rolled back and
// logged; it never aborts the import. The recorded triples are cleared.
func (r *TypeRegistrar) SaveTypes(ctx context.Context) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[string]map[string]map[string]struct{})
	r.mu.Unlock()

	for _, path := range sortedKeys(pending) {
		manager, err := r.managers.Manager(path)
		if err != nil {
			r.logFailure(path, "", err)
			continue
		}

		byDomain := pending[path]
		for _, dom := range sortedKeys(byDomain) {
			codes := sortedKeys(byDomain[dom])
			created, err := r.saveDomain(ctx, manager, dom, codes)
			if err != nil {
				r.logFailure(path, dom, err)
				continue
			}
			r.metrics.RecordTypeFlush(path, "ok", created)
		}
	}
}

func (r *TypeRegistrar) saveDomain(ctx context.Context, manager domain.Manager, dom string, codes []string) (created int, err error) {
	if err := manager.Begin(ctx); err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		if err != nil {
			if rbErr := manager.Rollback(ctx); rbErr != nil {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	prefix := domain.KeyPrefix(manager.Resource())
	filter := domain.NewFilter().
		Eq(prefix+"domain", dom).
		In(prefix+"code", codes).
		Slice(0, TypeQueryLimit)

	existing, err := manager.Search(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("search types: %w", err)
	}

	known := make(map[string]bool, len(existing))
	for _, item := range existing {
		known[item.Code()] = true
	}

	var items []*domain.Item
	for _, code := range codes {
		if known[code] {
			continue
		}
		item := manager.Create()
		item.Set("domain", dom)
		item.SetCode(code)
		item.SetLabel(code)
		item.Set("status", "1")
		items = append(items, item)
	}

	if len(items) > 0 {
		if err := manager.Save(ctx, items...); err != nil {
			return 0, fmt.Errorf("save types: %w", err)
		}
	}
	if err := manager.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(items), nil
}

func (r *TypeRegistrar) logFailure(path, dom string, err error) {
	r.metrics.RecordTypeFlush(path, "failed", 0)
	r.logger.Error("saving types failed",
		"path", path,
		"domain", dom,
		"error", err,
		"stack", string(debug.Stack()),
	)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
