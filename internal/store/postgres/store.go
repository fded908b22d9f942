// Package postgres stores items in PostgreSQL through pgx.
//
// All resources share one table. An item is one row holding its JSONB
// document; addresses, list associations and properties live inside the
// document of their parent. Referenced texts, media and prices are items
// of their own resource and are linked by id.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/shopimport/internal/domain"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "shop_item"

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Pool is a DBTX that can start transactions, e.g. *pgxpool.Pool.
type Pool interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// Store hands out managers over one table.
type Store struct {
	pool  Pool
	table string
}

// NewStore creates a store on table, DefaultTable if empty.
func NewStore(pool Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{pool: pool, table: table}
}

// EnsureSchema creates the table and its index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.table) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Manager returns a new manager for resource.
func (s *Store) Manager(resource string) (domain.Manager, error) {
	if resource == "" {
		return nil, fmt.Errorf("%w: empty resource", domain.ErrUnknownResource)
	}
	return &Manager{store: s, resource: resource}, nil
}

// Ensure Manager implements the interface.
var _ domain.Manager = (*Manager)(nil)

// Manager reads and writes the items of one resource.
type Manager struct {
	store    *Store
	resource string
	tx       pgx.Tx
}

// Resource returns the resource path.
func (m *Manager) Resource() string { return m.resource }

// Create returns a new unsaved item.
func (m *Manager) Create() *domain.Item { return domain.NewItem(m.resource) }

func (m *Manager) db() DBTX {
	if m.tx != nil {
		return m.tx
	}
	return m.store.pool
}

// Search returns the matching items ordered by id with owned referenced
// items attached.
func (m *Manager) Search(ctx context.Context, f *domain.Filter) ([]*domain.Item, error) {
	q := searchQuery(m.store.table, m.resource, f)
	items, err := m.load(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", m.resource, err)
	}
	if err := m.hydrate(ctx, items); err != nil {
		return nil, fmt.Errorf("search %s: %w", m.resource, err)
	}
	return items, nil
}

func (m *Manager) load(ctx context.Context, q query) ([]*domain.Item, error) {
	rows, err := m.db().Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.Item
	for rows.Next() {
		var (
			id  int64
			doc []byte
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		item := &domain.Item{}
		if err := json.Unmarshal(doc, item); err != nil {
			return nil, fmt.Errorf("decode item %d: %w", id, err)
		}
		item.SetID(strconv.FormatInt(id, 10))
		items = append(items, item)
	}
	return items, rows.Err()
}

// hydrate attaches the referenced items of owned list associations,
// one query per referenced resource and nesting level.
func (m *Manager) hydrate(ctx context.Context, items []*domain.Item) error {
	byDomain := make(map[string][]*domain.ListItem)
	for _, item := range items {
		for _, li := range item.ListItems("") {
			if domain.IsOwnedRef(li.Domain()) && li.RefID() != "" {
				byDomain[li.Domain()] = append(byDomain[li.Domain()], li)
			}
		}
	}

	for dom, lists := range byDomain {
		ids := make([]string, 0, len(lists))
		for _, li := range lists {
			ids = append(ids, li.RefID())
		}
		filter := domain.NewFilter().In(domain.KeyPrefix(dom)+"id", ids).Slice(0, len(ids))
		refs, err := m.load(ctx, searchQuery(m.store.table, dom, filter))
		if err != nil {
			return fmt.Errorf("load %s: %w", dom, err)
		}
		if err := m.hydrate(ctx, refs); err != nil {
			return err
		}

		byID := make(map[string]*domain.Item, len(refs))
		for _, ref := range refs {
			byID[ref.ID()] = ref
		}
		for _, li := range lists {
			if ref, ok := byID[li.RefID()]; ok {
				li.SetRefItem(ref)
			}
		}
	}
	return nil
}

// Save inserts or updates the items. Referenced items of list
// associations are saved first so the association can store their id.
func (m *Manager) Save(ctx context.Context, items ...*domain.Item) error {
	for _, item := range items {
		if item.Resource() != m.resource {
			return fmt.Errorf("%w: %s item saved through %s manager", domain.ErrInvalidInput, item.Resource(), m.resource)
		}
		if err := m.save(ctx, item); err != nil {
			return fmt.Errorf("save %s %q: %w", m.resource, item.Code(), err)
		}
	}
	return nil
}

func (m *Manager) save(ctx context.Context, item *domain.Item) error {
	for _, li := range item.ListItems("") {
		if ref := li.RefItem(); ref != nil {
			if err := m.save(ctx, ref); err != nil {
				return err
			}
			li.SetRefID(ref.ID())
		}
		if li.ID() == "" {
			li.SetID(uuid.NewString())
		}
	}
	if err := m.deleteOwnedRefs(ctx, item.DeletedListItems()); err != nil {
		return err
	}
	for _, addr := range item.AddressItems() {
		if addr.ID() == "" {
			addr.SetID(uuid.NewString())
		}
	}
	for _, prop := range item.PropertyItems() {
		if prop.ID() == "" {
			prop.SetID(uuid.NewString())
		}
	}
	item.ClearDeleted()

	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	table := quoteIdentifier(m.store.table)

	if item.ID() == "" {
		var id int64
		err := m.db().QueryRow(ctx,
			fmt.Sprintf("INSERT INTO %s (resource, code, doc) VALUES ($1, $2, $3) RETURNING id", table),
			item.Resource(), item.Code(), doc,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		item.SetID(strconv.FormatInt(id, 10))
		return nil
	}

	id, err := strconv.ParseInt(item.ID(), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: id %q", domain.ErrInvalidInput, item.ID())
	}
	tag, err := m.db().Exec(ctx,
		fmt.Sprintf("UPDATE %s SET code = $1, doc = $2, mtime = now() WHERE id = $3 AND resource = $4", table),
		item.Code(), doc, id, item.Resource(),
	)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", item.ID(), domain.ErrNotFound)
	}
	return nil
}

// deleteOwnedRefs removes the texts, media and prices of removed list
// associations. They are not referenced by any other item.
func (m *Manager) deleteOwnedRefs(ctx context.Context, removed []*domain.ListItem) error {
	for _, li := range removed {
		if !domain.IsOwnedRef(li.Domain()) || li.RefID() == "" {
			continue
		}
		id, err := strconv.ParseInt(li.RefID(), 10, 64)
		if err != nil {
			continue
		}
		_, err = m.db().Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE resource = $1 AND id = $2", quoteIdentifier(m.store.table)),
			li.Domain(), id,
		)
		if err != nil {
			return fmt.Errorf("delete %s %s: %w", li.Domain(), li.RefID(), err)
		}
	}
	return nil
}

// Delete removes items by id. Unknown ids are ignored.
func (m *Manager) Delete(ctx context.Context, ids ...string) error {
	nums := make([]int64, 0, len(ids))
	for _, id := range ids {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return nil
	}

	_, err := m.db().Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE resource = $1 AND id = ANY($2)", quoteIdentifier(m.store.table)),
		m.resource, nums,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", m.resource, err)
	}
	return nil
}

// Begin starts a transaction used by all following calls.
func (m *Manager) Begin(ctx context.Context) error {
	if m.tx != nil {
		return domain.ErrTransactionActive
	}
	tx, err := m.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	m.tx = tx
	return nil
}

// Commit commits the transaction.
func (m *Manager) Commit(ctx context.Context) error {
	if m.tx == nil {
		return domain.ErrNoTransaction
	}
	tx := m.tx
	m.tx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction.
func (m *Manager) Rollback(ctx context.Context) error {
	if m.tx == nil {
		return domain.ErrNoTransaction
	}
	tx := m.tx
	m.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
