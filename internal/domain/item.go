package domain

import (
	"sort"
	"strings"
)

// Item is a persisted entity of one resource path, e.g. "product",
// "customer/group" or "product/lists/type".
//
// Item is not safe for concurrent use.
type Item struct {
	id       string
	resource string
	values   map[string]string

	addresses        []*Address
	deletedAddresses []*Address

	lists        []*ListItem
	deletedLists []*ListItem

	properties        []*Property
	deletedProperties []*Property

	groups []string
}

// NewItem returns an unsaved item of the given resource path.
func NewItem(resource string) *Item {
	return &Item{
		resource: resource,
		values:   make(map[string]string),
	}
}

// ID returns the identifier, or "" if the item was never saved.
func (i *Item) ID() string { return i.id }

// SetID sets the identifier. Only managers should call this.
func (i *Item) SetID(id string) { i.id = id }

// Resource returns the resource path of the item.
func (i *Item) Resource() string { return i.resource }

// Prefix returns the key prefix used in map views, e.g. "product.lists.type.".
func (i *Item) Prefix() string { return KeyPrefix(i.resource) }

// KeyPrefix converts a resource path into its map key prefix.
func KeyPrefix(resource string) string {
	return strings.ReplaceAll(resource, "/", ".") + "."
}

// Get returns the value of a short key such as "code".
func (i *Item) Get(key string) string { return i.values[key] }

// Set stores the value of a short key.
func (i *Item) Set(key, value string) { i.values[key] = value }

// Code returns the unique business code.
func (i *Item) Code() string { return i.values["code"] }

// SetCode sets the unique business code.
func (i *Item) SetCode(code string) { i.values["code"] = code }

// Label returns the display label.
func (i *Item) Label() string { return i.values["label"] }

// SetLabel sets the display label.
func (i *Item) SetLabel(label string) { i.values["label"] = label }

// Type returns the type code.
func (i *Item) Type() string { return i.values["type"] }

// SetType sets the type code.
func (i *Item) SetType(typ string) { i.values["type"] = typ }

// FromMap applies all keys carrying the item's prefix. The id key is ignored
// so imported data can never re-target an item.
func (i *Item) FromMap(m map[string]string) *Item {
	prefix := i.Prefix()
	for key, value := range m {
		short, ok := strings.CutPrefix(key, prefix)
		if !ok || short == "" || short == "id" || strings.Contains(short, ".") {
			continue
		}
		i.values[short] = value
	}
	return i
}

// ToMap returns the prefixed key/value view of the item including its id.
func (i *Item) ToMap() map[string]string {
	prefix := i.Prefix()
	m := make(map[string]string, len(i.values)+1)
	for key, value := range i.values {
		m[prefix+key] = value
	}
	m[prefix+"id"] = i.id
	return m
}

// NewAddress returns an unsaved address bound to this item's key prefix.
func (i *Item) NewAddress() *Address {
	return &Address{prefix: i.Prefix() + "address.", values: make(map[string]string)}
}

// AddressItems returns the addresses ordered by position.
func (i *Item) AddressItems() []*Address {
	out := append([]*Address(nil), i.addresses...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].position < out[b].position })
	return out
}

// AddAddressItem attaches an address at the given position. Attaching an
// address that is already attached only moves it.
func (i *Item) AddAddressItem(addr *Address, pos int) {
	addr.position = pos
	for _, existing := range i.addresses {
		if existing == addr {
			return
		}
	}
	i.addresses = append(i.addresses, addr)
}

// DeleteAddressItems detaches addresses; persisted ones are deleted on save.
func (i *Item) DeleteAddressItems(addrs ...*Address) {
	for _, addr := range addrs {
		for idx, existing := range i.addresses {
			if existing == addr {
				i.addresses = append(i.addresses[:idx], i.addresses[idx+1:]...)
				if addr.id != "" {
					i.deletedAddresses = append(i.deletedAddresses, addr)
				}
				break
			}
		}
	}
}

// DeletedAddressItems returns the persisted addresses pending deletion.
func (i *Item) DeletedAddressItems() []*Address { return i.deletedAddresses }

// NewListItem returns an unsaved list association bound to this item's key prefix.
func (i *Item) NewListItem() *ListItem {
	return &ListItem{prefix: i.Prefix() + "lists.", values: make(map[string]string)}
}

// ListItems returns the list associations of a referenced domain, optionally
// restricted to list types, ordered by position.
func (i *Item) ListItems(refDomain string, types ...string) []*ListItem {
	var out []*ListItem
	for _, li := range i.lists {
		if refDomain != "" && li.domain != refDomain {
			continue
		}
		if len(types) > 0 && !contains(types, li.typ) {
			continue
		}
		out = append(out, li)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].position < out[b].position })
	return out
}

// AddListItem attaches a list association and, if ref is not nil, the
// referenced item to store along with it.
func (i *Item) AddListItem(li *ListItem, ref *Item) {
	if ref != nil {
		li.ref = ref
		if li.domain == "" {
			li.domain = ref.resource
		}
	}
	for _, existing := range i.lists {
		if existing == li {
			return
		}
	}
	i.lists = append(i.lists, li)
}

// DeleteListItems detaches list associations; persisted ones are deleted on save.
func (i *Item) DeleteListItems(lis ...*ListItem) {
	for _, li := range lis {
		for idx, existing := range i.lists {
			if existing == li {
				i.lists = append(i.lists[:idx], i.lists[idx+1:]...)
				if li.id != "" {
					i.deletedLists = append(i.deletedLists, li)
				}
				break
			}
		}
	}
}

// DeletedListItems returns the persisted list associations pending deletion.
func (i *Item) DeletedListItems() []*ListItem { return i.deletedLists }

// NewProperty returns an unsaved property bound to this item's key prefix.
func (i *Item) NewProperty() *Property {
	return &Property{prefix: i.Prefix() + "property."}
}

// PropertyItems returns the properties, optionally restricted to types.
func (i *Item) PropertyItems(types ...string) []*Property {
	var out []*Property
	for _, p := range i.properties {
		if len(types) > 0 && !contains(types, p.typ) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// AddPropertyItem attaches a property.
func (i *Item) AddPropertyItem(p *Property) {
	for _, existing := range i.properties {
		if existing == p {
			return
		}
	}
	i.properties = append(i.properties, p)
}

// DeletePropertyItems detaches properties; persisted ones are deleted on save.
func (i *Item) DeletePropertyItems(props ...*Property) {
	for _, p := range props {
		for idx, existing := range i.properties {
			if existing == p {
				i.properties = append(i.properties[:idx], i.properties[idx+1:]...)
				if p.id != "" {
					i.deletedProperties = append(i.deletedProperties, p)
				}
				break
			}
		}
	}
}

// DeletedPropertyItems returns the persisted properties pending deletion.
func (i *Item) DeletedPropertyItems() []*Property { return i.deletedProperties }

// Groups returns the ids of the groups the item belongs to.
func (i *Item) Groups() []string { return append([]string(nil), i.groups...) }

// SetGroups replaces the group ids.
func (i *Item) SetGroups(ids []string) { i.groups = append([]string(nil), ids...) }

// ClearDeleted forgets the sub-items pending deletion. Managers call it
// after the deletions were persisted.
func (i *Item) ClearDeleted() {
	i.deletedAddresses = nil
	i.deletedLists = nil
	i.deletedProperties = nil
}

// Clone returns a deep copy, including referenced items of list associations.
func (i *Item) Clone() *Item {
	c := &Item{
		id:       i.id,
		resource: i.resource,
		values:   cloneValues(i.values),
		groups:   append([]string(nil), i.groups...),
	}
	for _, a := range i.addresses {
		c.addresses = append(c.addresses, a.clone())
	}
	for _, a := range i.deletedAddresses {
		c.deletedAddresses = append(c.deletedAddresses, a.clone())
	}
	for _, li := range i.lists {
		c.lists = append(c.lists, li.clone())
	}
	for _, li := range i.deletedLists {
		c.deletedLists = append(c.deletedLists, li.clone())
	}
	for _, p := range i.properties {
		c.properties = append(c.properties, p.clone())
	}
	for _, p := range i.deletedProperties {
		c.deletedProperties = append(c.deletedProperties, p.clone())
	}
	return c
}

func cloneValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
