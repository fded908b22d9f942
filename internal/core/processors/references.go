package processors

import (
	"context"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

func init() {
	for _, ref := range []struct{ domain, class, desc string }{
		{"catalog", "Catalog/Standard", "Catalog assignments by catalog code"},
		{"supplier", "Supplier/Standard", "Supplier assignments by supplier code"},
		{"product", "Product/Standard", "Product relations, e.g. bundles or suggestions"},
		{"attribute", "Attribute/Standard", "Attribute assignments by code and type"},
	} {
		refDomain := ref.domain
		core.Register(core.Definition{
			Kind:        core.KindCSV,
			Class:       ref.class,
			Description: ref.desc,
			New: func(d core.Deps) (any, error) {
				return newReference(d, refDomain)
			},
		})
	}
}

// reference assigns shared items to the imported item. Each chunk holds
// "<ref>.code" with one or more codes separated by new lines plus the list
// values, e.g. "product.lists.type". Attribute chunks carry
// "attribute.type" as well.
type reference struct {
	refLists
}

func newReference(d core.Deps, refDomain string) (*reference, error) {
	var opts []core.CacheOption
	if refDomain == "attribute" {
		opts = append(opts,
			core.WithDiscriminator("attribute.type"),
			core.WithCondition("attribute.domain", d.Domain),
		)
	}
	r, err := newRefLists(d, refDomain, opts...)
	if err != nil {
		return nil, err
	}
	return &reference{refLists: r}, nil
}

func (p *reference) Process(ctx context.Context, item *domain.Item, row []string) error {
	codeKey := domain.KeyPrefix(p.refDomain) + "code"
	typeKey := domain.KeyPrefix(p.refDomain) + "type"

	var refs []refEntry
	for _, e := range core.FilterEntries(p.Chunks(row), p.Required([]string{codeKey})) {
		var refType string
		if p.refDomain == "attribute" {
			refType = e.Val(typeKey, "default")
		}
		for _, code := range splitCodes(e[codeKey]) {
			refs = append(refs, refEntry{code: code, refType: refType, values: e})
		}
	}

	if err := p.sync(ctx, item, refs); err != nil {
		return err
	}
	return p.Next.Process(ctx, item, row)
}
