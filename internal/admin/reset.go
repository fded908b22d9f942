// Package admin provides administrative operations on stored items.
package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/shopimport/internal/domain"
)

// ResetTimeout is the maximum duration for one reset run.
const ResetTimeout = 5 * time.Minute

const resetPageSize = 500

// Resetter deletes all items of resources. This is a destructive
// operation; use with caution.
type Resetter struct {
	Managers domain.ManagerSource
}

// ResetAll deletes every item of the given resources in order and returns
// the number of deleted items per resource. It stops at the first error.
func (r *Resetter) ResetAll(ctx context.Context, resources ...string) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	deleted := make(map[string]int, len(resources))
	for _, resource := range resources {
		n, err := r.reset(ctx, resource)
		deleted[resource] = n
		if err != nil {
			return deleted, fmt.Errorf("reset %s: %w", resource, err)
		}
	}
	return deleted, nil
}

func (r *Resetter) reset(ctx context.Context, resource string) (int, error) {
	m, err := r.Managers.Manager(resource)
	if err != nil {
		return 0, err
	}

	total := 0
	for {
		items, err := m.Search(ctx, domain.NewFilter().Slice(0, resetPageSize))
		if err != nil {
			return total, err
		}
		if len(items) == 0 {
			return total, nil
		}

		ids := make([]string, len(items))
		for i, item := range items {
			ids[i] = item.ID()
		}
		if err := m.Delete(ctx, ids...); err != nil {
			return total, err
		}
		total += len(ids)
	}
}
