package processors

import (
	"context"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

func init() {
	core.Register(core.Definition{
		Kind:        core.KindCSV,
		Class:       "Property/Standard",
		Description: "Typed properties, matched by type, language and value",
		New:         newProperty,
	})
	core.Register(core.Definition{
		Kind:        core.KindXML,
		Class:       "Property/Standard",
		Description: "Typed properties from <property> elements",
		New:         newPropertyNode,
	})
}

// properties holds the reconciliation shared by the CSV and XML property
// processors.
type properties struct {
	core.Base
}

// sync replaces the properties of item with entries. Entries without a
// value are skipped.
func (p *properties) sync(item *domain.Item, entries []core.Entry) error {
	prefix := item.Prefix() + "property."
	entries = core.FilterEntries(entries, p.Required([]string{prefix + "value"}))

	for _, e := range entries {
		e[prefix+"type"] = p.AddType(item.Resource()+"/property/type", item.Resource(), e.Val(prefix+"type", ""))
		e[prefix+"languageid"] = e.Val(prefix+"languageid", "")
		e[prefix+"value"] = e.Val(prefix+"value", "")
	}

	out, err := core.Keyed(item.PropertyItems(), entries,
		(*domain.Property).Key,
		func(e core.Entry) string {
			return domain.PropertyKey(e[prefix+"type"], e[prefix+"languageid"], e[prefix+"value"])
		},
		item.NewProperty,
		func(prop *domain.Property, e core.Entry, _ int) error {
			item.AddPropertyItem(prop.FromMap(e))
			return nil
		})
	if err != nil {
		return err
	}

	item.DeletePropertyItems(out.Removed...)
	p.RecordOutcome(out.Reused, out.Created, len(out.Removed))
	return nil
}

// property is the CSV property processor.
type property struct {
	properties
}

func newProperty(d core.Deps) (any, error) {
	return &property{properties{Base: core.NewBase(d)}}, nil
}

func (p *property) Process(ctx context.Context, item *domain.Item, row []string) error {
	if err := p.sync(item, p.Chunks(row)); err != nil {
		return err
	}
	return p.Next.Process(ctx, item, row)
}

// propertyNode is the XML property processor. Each child element of
// <property> is one property; its attributes and leaf elements hold the
// values, e.g. <propertyitem property.type="size" property.value="L"/>.
type propertyNode struct {
	properties
}

func newPropertyNode(d core.Deps) (any, error) {
	return &propertyNode{properties{Base: core.NewBase(d)}}, nil
}

func (p *propertyNode) ProcessNode(_ context.Context, item *domain.Item, node *core.Node) error {
	entries := make([]core.Entry, 0, len(node.Children))
	for _, child := range node.Children {
		entries = append(entries, core.Entry(qualify(child.Values(), item.Prefix())))
	}
	return p.sync(item, entries)
}
