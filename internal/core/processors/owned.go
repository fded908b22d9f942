package processors

import (
	"context"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

func init() {
	for _, ref := range []struct{ domain, class, desc string }{
		{"text", "Text/Standard", "Texts owned by the item, reused by position"},
		{"media", "Media/Standard", "Media owned by the item, reused by position"},
		{"price", "Price/Standard", "Prices owned by the item, reused by position"},
	} {
		refDomain := ref.domain
		core.Register(core.Definition{
			Kind:        core.KindCSV,
			Class:       ref.class,
			Description: ref.desc,
			New: func(d core.Deps) (any, error) {
				o, err := newOwnedLists(d, refDomain)
				if err != nil {
					return nil, err
				}
				return &owned{ownedLists: o}, nil
			},
		})
	}
}

// owned creates and updates the texts, media or prices of an item. The
// n-th chunk of a row updates the n-th list item of the referenced domain.
type owned struct {
	ownedLists
}

func (p *owned) Process(ctx context.Context, item *domain.Item, row []string) error {
	var entries []core.Entry
	for _, e := range p.Chunks(row) {
		if p.accepts(item, e) {
			entries = append(entries, e)
		}
	}
	if err := p.sync(ctx, item, entries, nil); err != nil {
		return err
	}
	return p.Next.Process(ctx, item, row)
}
