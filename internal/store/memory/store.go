// Package memory provides an in-memory implementation of domain.Manager.
//
// It backs the tests and the dry-run mode of the CLI. Items are deep-copied
// on the way in and out, so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/JonMunkholm/shopimport/internal/domain"
)

// Ensure Manager implements the interface.
var _ domain.Manager = (*Manager)(nil)

// Store holds the items of all resources.
type Store struct {
	mu    sync.RWMutex
	seq   int64
	items map[string]map[string]*domain.Item
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]map[string]*domain.Item)}
}

// Manager returns a manager for the resource. Each call returns a new
// manager with its own transaction state.
func (s *Store) Manager(resource string) (domain.Manager, error) {
	if resource == "" {
		return nil, fmt.Errorf("%w: empty resource", domain.ErrUnknownResource)
	}
	return &Manager{store: s, resource: resource}, nil
}

// Count returns the number of stored items of a resource.
func (s *Store) Count(resource string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items[resource])
}

// Get returns a copy of a stored item.
func (s *Store) Get(resource, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[resource][id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.hydrateLocked(item), nil
}

func (s *Store) nextIDLocked() string {
	s.seq++
	return strconv.FormatInt(s.seq, 10)
}

// saveLocked stores item and its referenced items. Owned items of removed
// list associations are deleted with them. undo may be nil.
func (s *Store) saveLocked(item *domain.Item, undo undoLog) {
	for _, li := range item.DeletedListItems() {
		if domain.IsOwnedRef(li.Domain()) && li.RefID() != "" {
			s.deleteLocked(li.Domain(), li.RefID(), undo)
		}
	}
	for _, li := range item.ListItems("") {
		if ref := li.RefItem(); ref != nil {
			s.saveLocked(ref, undo)
			li.SetRefID(ref.ID())
		}
		if li.ID() == "" {
			li.SetID(s.nextIDLocked())
		}
	}
	for _, addr := range item.AddressItems() {
		if addr.ID() == "" {
			addr.SetID(s.nextIDLocked())
		}
	}
	for _, prop := range item.PropertyItems() {
		if prop.ID() == "" {
			prop.SetID(s.nextIDLocked())
		}
	}
	item.ClearDeleted()

	if item.ID() == "" {
		item.SetID(s.nextIDLocked())
	}

	stored := item.Clone()
	for _, li := range stored.ListItems("") {
		li.SetRefItem(nil)
	}

	undo.record(s, item.Resource(), item.ID())
	s.putLocked(item.Resource(), item.ID(), stored)
}

func (s *Store) putLocked(resource, id string, stored *domain.Item) {
	byID, ok := s.items[resource]
	if !ok {
		byID = make(map[string]*domain.Item)
		s.items[resource] = byID
	}
	byID[id] = stored
}

func (s *Store) deleteLocked(resource, id string, undo undoLog) {
	if _, ok := s.items[resource][id]; !ok {
		return
	}
	undo.record(s, resource, id)
	delete(s.items[resource], id)
}

// hydrateLocked copies a stored item and attaches referenced items.
func (s *Store) hydrateLocked(stored *domain.Item) *domain.Item {
	item := stored.Clone()
	for _, li := range item.ListItems("") {
		if !domain.IsOwnedRef(li.Domain()) {
			continue
		}
		if ref, ok := s.items[li.Domain()][li.RefID()]; ok {
			li.SetRefItem(s.hydrateLocked(ref))
		}
	}
	return item
}

// undoLog keeps the state of every item a transaction touched before its
// first change, keyed by resource and id. A nil entry means the item did
// not exist.
type undoLog map[string]map[string]*domain.Item

func (u undoLog) record(s *Store, resource, id string) {
	if u == nil {
		return
	}
	byID, ok := u[resource]
	if !ok {
		byID = make(map[string]*domain.Item)
		u[resource] = byID
	}
	if _, seen := byID[id]; seen {
		return
	}
	var prior *domain.Item
	if stored, ok := s.items[resource][id]; ok {
		prior = stored.Clone()
	}
	byID[id] = prior
}

// restoreLocked reverts the touched items only; changes made by other
// managers in the meantime are kept.
func (u undoLog) restoreLocked(s *Store) {
	for resource, byID := range u {
		for id, prior := range byID {
			if prior == nil {
				delete(s.items[resource], id)
				continue
			}
			s.putLocked(resource, id, prior)
		}
	}
}

// Manager is the per-resource view on a Store.
type Manager struct {
	store    *Store
	resource string
	undo     undoLog
	inTx     bool
}

// Resource returns the resource path.
func (m *Manager) Resource() string { return m.resource }

// Create returns a new unsaved item.
func (m *Manager) Create() *domain.Item { return domain.NewItem(m.resource) }

// Search returns copies of the matching items ordered by id.
func (m *Manager) Search(ctx context.Context, f *domain.Filter) ([]*domain.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f == nil {
		f = domain.NewFilter()
	}

	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	var matched []*domain.Item
	for _, item := range m.store.items[m.resource] {
		if f.Match(item.ToMap()) {
			matched = append(matched, item)
		}
	}
	sort.Slice(matched, func(a, b int) bool {
		return numericLess(matched[a].ID(), matched[b].ID())
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]*domain.Item, len(matched))
	for i, item := range matched {
		out[i] = m.store.hydrateLocked(item)
	}
	return out, nil
}

// Save stores the items and assigns ids.
func (m *Manager) Save(ctx context.Context, items ...*domain.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	for _, item := range items {
		if item.Resource() != m.resource {
			return fmt.Errorf("%w: %s item saved through %s manager", domain.ErrInvalidInput, item.Resource(), m.resource)
		}
		m.store.saveLocked(item, m.undo)
	}
	return nil
}

// Delete removes items by id.
func (m *Manager) Delete(ctx context.Context, ids ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	for _, id := range ids {
		m.store.deleteLocked(m.resource, id, m.undo)
	}
	return nil
}

// Begin starts recording the items this manager saves or deletes so
// Rollback can restore them.
func (m *Manager) Begin(_ context.Context) error {
	if m.inTx {
		return domain.ErrTransactionActive
	}
	m.undo = make(undoLog)
	m.inTx = true
	return nil
}

// Commit discards the undo log.
func (m *Manager) Commit(_ context.Context) error {
	if !m.inTx {
		return domain.ErrNoTransaction
	}
	m.undo = nil
	m.inTx = false
	return nil
}

// Rollback restores the items changed through this manager since Begin.
func (m *Manager) Rollback(_ context.Context) error {
	if !m.inTx {
		return domain.ErrNoTransaction
	}
	m.store.mu.Lock()
	m.undo.restoreLocked(m.store)
	m.store.mu.Unlock()
	m.undo = nil
	m.inTx = false
	return nil
}

func numericLess(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}
