package processors

import (
	"context"
	"strings"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

func init() {
	core.Register(core.Definition{
		Kind:        core.KindXML,
		Class:       "Lists/Standard",
		Description: "Dispatches <lists> children to lists/<domain>",
		New: func(d core.Deps) (any, error) {
			return &listsNode{Base: core.NewBase(d)}, nil
		},
	})

	for _, ref := range []struct{ domain, class string }{
		{"text", "Lists/Text/Standard"},
		{"media", "Lists/Media/Standard"},
		{"price", "Lists/Price/Standard"},
	} {
		refDomain := ref.domain
		core.Register(core.Definition{
			Kind:        core.KindXML,
			Class:       ref.class,
			Description: "Owned " + refDomain + " items from XML",
			New: func(d core.Deps) (any, error) {
				o, err := newOwnedLists(d, refDomain)
				if err != nil {
					return nil, err
				}
				return &ownedNode{ownedLists: o}, nil
			},
		})
	}

	for _, ref := range []struct{ domain, class string }{
		{"attribute", "Lists/Attribute/Standard"},
		{"catalog", "Lists/Catalog/Standard"},
		{"supplier", "Lists/Supplier/Standard"},
		{"product", "Lists/Product/Standard"},
	} {
		refDomain := ref.domain
		core.Register(core.Definition{
			Kind:        core.KindXML,
			Class:       ref.class,
			Description: refDomain + " references from XML",
			New: func(d core.Deps) (any, error) {
				r, err := newReference(d, refDomain)
				if err != nil {
					return nil, err
				}
				return &referenceNode{reference: r}, nil
			},
		})
	}
}

// listsNode hands every child of <lists>, e.g. <text> or <attribute>, to
// the processor "lists/<child>".
type listsNode struct {
	core.Base
}

func (p *listsNode) ProcessNode(ctx context.Context, item *domain.Item, node *core.Node) error {
	for _, child := range node.Children {
		proc, err := p.Factory.Node("lists/" + child.Name)
		if err != nil {
			return err
		}
		if err := proc.ProcessNode(ctx, item, child); err != nil {
			return err
		}
	}
	return nil
}

// ownedNode imports texts, media or prices. Every child element is one
// list item with its referenced item:
//
//	<text>
//	  <textitem lists.type="default" text.type="name" text.languageid="en">
//	    <text.content>Demo</text.content>
//	  </textitem>
//	</text>
//
// A <lists> element below a child is imported onto the referenced item.
type ownedNode struct {
	ownedLists
}

func (p *ownedNode) ProcessNode(ctx context.Context, item *domain.Item, node *core.Node) error {
	var (
		entries []core.Entry
		sources []*core.Node
	)
	for _, child := range node.Children {
		e := core.Entry(qualify(child.Values(), item.Prefix()))
		if p.accepts(item, e) {
			entries = append(entries, e)
			sources = append(sources, child)
		}
	}

	nested := func(ctx context.Context, ref *domain.Item, pos int) error {
		lists := sources[pos].Child("lists")
		if lists == nil {
			return nil
		}
		proc, err := p.Factory.Node("lists")
		if err != nil {
			return err
		}
		return proc.ProcessNode(ctx, ref, lists)
	}
	return p.sync(ctx, item, entries, nested)
}

// referenceNode imports references to shared items. The "ref" attribute
// holds the code, "type" the attribute type:
//
//	<attribute>
//	  <attributeitem ref="red" type="color" lists.type="default"/>
//	</attribute>
type referenceNode struct {
	*reference
}

func (p *referenceNode) ProcessNode(ctx context.Context, item *domain.Item, node *core.Node) error {
	refs := make([]refEntry, 0, len(node.Children))
	for _, child := range node.Children {
		code := strings.TrimSpace(child.Attr("ref"))
		if code == "" {
			continue
		}
		values := core.Entry(qualify(child.Values(), item.Prefix()))
		var refType string
		if p.refDomain == "attribute" {
			refType = values.Val("type", values.Val("attribute.type", "default"))
		}
		refs = append(refs, refEntry{code: code, refType: refType, values: values})
	}
	return p.sync(ctx, item, refs)
}
