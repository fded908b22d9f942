package processors

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/domain"
)

// requiredByDomain lists the default required keys of owned references.
var requiredByDomain = map[string][]string{
	"text":  {"text.content"},
	"media": {"media.url"},
	"price": {"price.value"},
}

// nestedFunc processes the nested data of one entry on its reference item.
type nestedFunc func(ctx context.Context, ref *domain.Item, pos int) error

// ownedLists synchronizes list items whose referenced items (texts, media,
// prices) belong to the parent. List items are reused by position within
// the referenced domain.
type ownedLists struct {
	core.Base
	refDomain string
	refs      domain.Manager
}

func newOwnedLists(d core.Deps, refDomain string) (ownedLists, error) {
	refs, err := d.Env.Managers.Manager(refDomain)
	if err != nil {
		return ownedLists{}, fmt.Errorf("%s lists: %w", refDomain, err)
	}
	return ownedLists{Base: core.NewBase(d), refDomain: refDomain, refs: refs}, nil
}

// listTypes returns the list types the processor is restricted to.
func (o *ownedLists) listTypes() []string { return o.OptionStrings("list-types", nil) }

// accepts reports whether e has the required values and one of the
// configured list types.
func (o *ownedLists) accepts(item *domain.Item, e core.Entry) bool {
	if !e.Satisfies(o.Required(requiredByDomain[o.refDomain])) {
		return false
	}
	types := o.listTypes()
	return len(types) == 0 || contains(types, e.Val(item.Prefix()+"lists.type", "default"))
}

// sync reconciles the list items of the referenced domain with the
// accepted entries. nested may be nil.
func (o *ownedLists) sync(ctx context.Context, item *domain.Item, entries []core.Entry, nested nestedFunc) error {
	existing := item.ListItems(o.refDomain, o.listTypes()...)

	listKey := item.Prefix() + "lists.type"
	refKey := domain.KeyPrefix(o.refDomain) + "type"

	out, err := core.Positional(existing, entries, item.NewListItem,
		func(li *domain.ListItem, e core.Entry, pos int) error {
			ref := li.RefItem()
			if ref == nil {
				ref = o.refs.Create()
			}
			ref.FromMap(e)
			ref.SetType(o.AddType(o.refDomain+"/type", item.Resource(), e.Val(refKey, "")))

			li.FromMap(e)
			li.SetDomain(o.refDomain)
			li.SetType(o.AddType(item.Resource()+"/lists/type", o.refDomain, e.Val(listKey, "")))
			li.SetPosition(pos)
			item.AddListItem(li, ref)

			if nested != nil {
				return nested(ctx, ref, pos)
			}
			return nil
		})
	if err != nil {
		return err
	}

	item.DeleteListItems(out.Removed...)
	o.RecordOutcome(out.Reused, out.Created, len(out.Removed))
	return nil
}

// refLists synchronizes list items pointing to shared reference data such
// as catalogs, suppliers, attributes or other products. List items are
// matched by list type and referenced id.
type refLists struct {
	core.Base
	refDomain  string
	cache      *core.LookupCache
	autoCreate bool
	refs       domain.Manager
}

func newRefLists(d core.Deps, refDomain string, opts ...core.CacheOption) (refLists, error) {
	cache, err := d.Caches.For(refDomain, opts...)
	if err != nil {
		return refLists{}, err
	}
	r := refLists{Base: core.NewBase(d), refDomain: refDomain, cache: cache}
	if refDomain == "attribute" {
		r.autoCreate = r.Option("auto-create", "1") == "1"
		if r.autoCreate {
			if r.refs, err = d.Env.Managers.Manager(refDomain); err != nil {
				return refLists{}, err
			}
		}
	}
	return r, nil
}

// refEntry is one reference to sync: a code, the optional reference type
// (attributes only) and the list values.
type refEntry struct {
	code    string
	refType string
	values  core.Entry
}

// resolve looks up the referenced ids. Unknown codes are skipped, or
// created for attributes.
func (r *refLists) resolve(ctx context.Context, item *domain.Item, refs []refEntry) ([]core.Entry, error) {
	listKey := item.Prefix() + "lists.type"
	refIDKey := item.Prefix() + "lists.refid"
	types := r.OptionStrings("list-types", nil)

	entries := make([]core.Entry, 0, len(refs))
	for _, ref := range refs {
		if len(types) > 0 && !contains(types, ref.values.Val(listKey, "default")) {
			continue
		}

		var disc []string
		if ref.refType != "" {
			disc = []string{ref.refType}
		}
		id, err := r.cache.ID(ctx, ref.code, disc...)
		if err != nil {
			return nil, err
		}
		if id == "" && r.autoCreate {
			if id, err = r.create(ctx, item, ref); err != nil {
				return nil, err
			}
		}
		if id == "" {
			r.Logger().Warn("unknown reference skipped",
				"domain", r.refDomain,
				"code", ref.code,
				"item", item.Code(),
			)
			continue
		}

		e := make(core.Entry, len(ref.values)+1)
		for k, v := range ref.values {
			e[k] = v
		}
		e[refIDKey] = id
		entries = append(entries, e)
	}
	return entries, nil
}

// create stores a missing attribute and caches it for the rest of the run.
func (r *refLists) create(ctx context.Context, item *domain.Item, ref refEntry) (string, error) {
	unlock := r.Env.LockCreate()
	defer unlock()

	refType := ref.refType
	if refType == "" {
		refType = "default"
	}
	prefix := domain.KeyPrefix(r.refDomain)
	found, err := r.refs.Search(ctx, domain.NewFilter().
		Eq(prefix+"code", ref.code).
		Eq(prefix+"type", refType).
		Eq(prefix+"domain", item.Resource()).
		Slice(0, 1))
	if err != nil {
		return "", fmt.Errorf("search %s %q: %w", r.refDomain, ref.code, err)
	}
	if len(found) > 0 {
		r.cache.Set(found[0])
		return found[0].ID(), nil
	}

	attr := r.refs.Create()
	attr.FromMap(ref.values)
	attr.SetCode(ref.code)
	if attr.Label() == "" {
		attr.SetLabel(ref.code)
	}
	attr.Set("domain", item.Resource())
	attr.SetType(r.AddType(r.refDomain+"/type", item.Resource(), ref.refType))

	if err := r.refs.Save(ctx, attr); err != nil {
		return "", fmt.Errorf("create %s %q: %w", r.refDomain, ref.code, err)
	}
	r.cache.Set(attr)
	return attr.ID(), nil
}

// sync reconciles the list items of the referenced domain with refs.
func (r *refLists) sync(ctx context.Context, item *domain.Item, refs []refEntry) error {
	entries, err := r.resolve(ctx, item, refs)
	if err != nil {
		return err
	}

	listKey := item.Prefix() + "lists.type"
	refIDKey := item.Prefix() + "lists.refid"
	existing := item.ListItems(r.refDomain, r.OptionStrings("list-types", nil)...)

	out, err := core.Keyed(existing, entries,
		func(li *domain.ListItem) string { return li.Type() + "\x00" + li.RefID() },
		func(e core.Entry) string { return e.Val(listKey, "default") + "\x00" + e[refIDKey] },
		item.NewListItem,
		func(li *domain.ListItem, e core.Entry, pos int) error {
			li.FromMap(e)
			li.SetDomain(r.refDomain)
			li.SetRefID(e[refIDKey])
			li.SetType(r.AddType(item.Resource()+"/lists/type", r.refDomain, e.Val(listKey, "")))
			li.SetPosition(pos)
			item.AddListItem(li, nil)
			return nil
		})
	if err != nil {
		return err
	}

	item.DeleteListItems(out.Removed...)
	r.RecordOutcome(out.Reused, out.Created, len(out.Removed))
	return nil
}
