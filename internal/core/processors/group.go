package processors

import (
	"context"
	"sync"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

const groupResource = "customer/group"

func init() {
	core.Register(core.Definition{
		Kind:        core.KindCSV,
		Class:       "Group/Standard",
		Description: "Customer group memberships by group code",
		New:         newGroup,
	})
}

// group replaces the group memberships of a customer. The mapped
// "group.code" cell holds one group code per line.
//
// Options:
//   - allow: codes the processor may assign, all if empty
//   - deny: codes the processor never assigns
//   - preload: load all groups on first use ("1")
type group struct {
	core.Base
	cache   *core.LookupCache
	allow   []string
	deny    []string
	preload sync.Once
}

func newGroup(d core.Deps) (any, error) {
	b := core.NewBase(d)
	cache, err := d.Caches.For(groupResource)
	if err != nil {
		return nil, err
	}
	return &group{
		Base:  b,
		cache: cache,
		allow: b.OptionStrings("allow", nil),
		deny:  b.OptionStrings("deny", nil),
	}, nil
}

func (p *group) Process(ctx context.Context, item *domain.Item, row []string) error {
	entry := core.MapEntry(row, p.Mapping)
	if !entry.Has("group.code") {
		return p.Next.Process(ctx, item, row)
	}

	if p.Option("preload", "0") == "1" {
		p.preload.Do(func() {
			if n, err := p.cache.Preload(ctx); err != nil {
				p.Logger().Warn("group preload failed", "error", err)
			} else {
				p.Logger().Debug("groups preloaded", "count", n)
			}
		})
	}

	var ids []string
	for _, code := range splitCodes(entry.Val("group.code", "")) {
		if !p.permitted(code) {
			p.Logger().Warn("group not allowed", "code", code, "item", item.Code())
			continue
		}
		id, err := p.cache.ID(ctx, code)
		if err != nil {
			return err
		}
		if id == "" {
			p.Logger().Warn("unknown reference skipped", "domain", groupResource, "code", code, "item", item.Code())
			continue
		}
		if !contains(ids, id) {
			ids = append(ids, id)
		}
	}

	before := len(item.Groups())
	item.SetGroups(ids)
	p.RecordOutcome(min(before, len(ids)), max(len(ids)-before, 0), max(before-len(ids), 0))

	return p.Next.Process(ctx, item, row)
}

func (p *group) permitted(code string) bool {
	if contains(p.deny, code) {
		return false
	}
	return len(p.allow) == 0 || contains(p.allow, code)
}
