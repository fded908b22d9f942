package processors

import (
	"context"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

func init() {
	core.Register(core.Definition{
		Kind:        core.KindCSV,
		Class:       "Address/Standard",
		Description: "Postal addresses, reused by position",
		New:         newAddress,
	})
}

// address synchronizes the addresses of customers and suppliers. The n-th
// address group of a row updates the n-th stored address.
type address struct {
	core.Base
}

func newAddress(d core.Deps) (any, error) {
	return &address{Base: core.NewBase(d)}, nil
}

func (p *address) Process(ctx context.Context, item *domain.Item, row []string) error {
	entries := core.FilterEntries(p.Chunks(row), p.Required(nil))
	prefix := item.Prefix() + "address."

	out, err := core.Positional(item.AddressItems(), entries, item.NewAddress,
		func(addr *domain.Address, e core.Entry, pos int) error {
			if v, ok := e[prefix+"countryid"]; ok {
				e[prefix+"countryid"] = normalizeCountry(v)
			}
			if v, ok := e[prefix+"state"]; ok && e.Val(prefix+"countryid", "") == "US" {
				e[prefix+"state"] = normalizeUSState(v)
			}
			addr.FromMap(e)
			item.AddAddressItem(addr, pos)
			return nil
		})
	if err != nil {
		return err
	}

	item.DeleteAddressItems(out.Removed...)
	p.RecordOutcome(out.Reused, out.Created, len(out.Removed))

	return p.Next.Process(ctx, item, row)
}
