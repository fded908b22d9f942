package domain

import "context"

// Manager creates, finds and persists the items of one resource path.
//
// Transactions are scoped to the manager instance: Begin starts one and the
// following Save/Delete/Search calls run inside it until Commit or Rollback.
// A manager with an open transaction must be owned by a single goroutine.
type Manager interface {
	// Resource returns the resource path, e.g. "product" or "product/lists/type".
	Resource() string

	// Create returns a new unsaved item of the manager's resource.
	Create() *Item

	// Search returns the items matching the filter. List associations come
	// back with their referenced items attached where those are stored.
	Search(ctx context.Context, f *Filter) ([]*Item, error)

	// Save inserts or updates the items including their sub-items, assigns
	// ids to new items and sub-items and deletes detached sub-items.
	Save(ctx context.Context, items ...*Item) error

	// Delete removes items by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ManagerSource hands out managers by resource path.
type ManagerSource interface {
	Manager(resource string) (Manager, error)
}
