package domain

import (
	"strconv"
	"strings"
)

// Address is a postal address attached to an item. Addresses are ordered by
// position.
type Address struct {
	id       string
	prefix   string
	position int
	values   map[string]string
}

// ID returns the identifier, or "" if never saved.
func (a *Address) ID() string { return a.id }

// SetID sets the identifier. Only managers should call this.
func (a *Address) SetID(id string) { a.id = id }

// Position returns the sort position within the owning item.
func (a *Address) Position() int { return a.position }

// Get returns the value of a short key such as "city".
func (a *Address) Get(key string) string { return a.values[key] }

// Set stores the value of a short key.
func (a *Address) Set(key, value string) { a.values[key] = value }

// FromMap applies all keys carrying the address prefix, e.g. "customer.address.city".
func (a *Address) FromMap(m map[string]string) *Address {
	for key, value := range m {
		short, ok := strings.CutPrefix(key, a.prefix)
		if !ok || short == "" || short == "id" {
			continue
		}
		if short == "position" {
			if pos, err := strconv.Atoi(value); err == nil {
				a.position = pos
			}
			continue
		}
		a.values[short] = value
	}
	return a
}

// ToMap returns the prefixed key/value view of the address.
func (a *Address) ToMap() map[string]string {
	m := make(map[string]string, len(a.values)+2)
	for key, value := range a.values {
		m[a.prefix+key] = value
	}
	m[a.prefix+"id"] = a.id
	m[a.prefix+"position"] = strconv.Itoa(a.position)
	return m
}

func (a *Address) clone() *Address {
	c := *a
	c.values = cloneValues(a.values)
	return &c
}

// ListItem associates an item with another item of a referenced domain,
// e.g. a product with a text, price, media, catalog or attribute.
type ListItem struct {
	id       string
	prefix   string
	domain   string
	refID    string
	typ      string
	position int
	values   map[string]string
	ref      *Item
}

// ID returns the identifier, or "" if never saved.
func (l *ListItem) ID() string { return l.id }

// SetID sets the identifier. Only managers should call this.
func (l *ListItem) SetID(id string) { l.id = id }

// Domain returns the resource path of the referenced item.
func (l *ListItem) Domain() string { return l.domain }

// SetDomain sets the resource path of the referenced item.
func (l *ListItem) SetDomain(domain string) { l.domain = domain }

// RefID returns the id of the referenced item.
func (l *ListItem) RefID() string { return l.refID }

// SetRefID sets the id of the referenced item.
func (l *ListItem) SetRefID(id string) { l.refID = id }

// Type returns the list type code, e.g. "default".
func (l *ListItem) Type() string { return l.typ }

// SetType sets the list type code.
func (l *ListItem) SetType(typ string) { l.typ = typ }

// Position returns the sort position among associations of the same domain.
func (l *ListItem) Position() int { return l.position }

// SetPosition sets the sort position.
func (l *ListItem) SetPosition(pos int) { l.position = pos }

// Get returns the value of an additional short key such as "status".
func (l *ListItem) Get(key string) string { return l.values[key] }

// RefItem returns the referenced item if it was loaded or attached.
func (l *ListItem) RefItem() *Item { return l.ref }

// SetRefItem attaches the referenced item; its id becomes the ref id on save.
func (l *ListItem) SetRefItem(ref *Item) { l.ref = ref }

// FromMap applies all keys carrying the list prefix, e.g. "product.lists.type".
func (l *ListItem) FromMap(m map[string]string) *ListItem {
	for key, value := range m {
		short, ok := strings.CutPrefix(key, l.prefix)
		if !ok || short == "" || short == "id" {
			continue
		}
		switch short {
		case "domain":
			l.domain = value
		case "refid":
			l.refID = value
		case "type":
			l.typ = value
		case "position":
			if pos, err := strconv.Atoi(value); err == nil {
				l.position = pos
			}
		default:
			l.values[short] = value
		}
	}
	return l
}

// ToMap returns the prefixed key/value view of the association.
func (l *ListItem) ToMap() map[string]string {
	m := make(map[string]string, len(l.values)+5)
	for key, value := range l.values {
		m[l.prefix+key] = value
	}
	m[l.prefix+"id"] = l.id
	m[l.prefix+"domain"] = l.domain
	m[l.prefix+"refid"] = l.refID
	m[l.prefix+"type"] = l.typ
	m[l.prefix+"position"] = strconv.Itoa(l.position)
	return m
}

func (l *ListItem) clone() *ListItem {
	c := *l
	c.values = cloneValues(l.values)
	if l.ref != nil {
		c.ref = l.ref.Clone()
	}
	return &c
}

// Property is a typed, optionally language specific value of an item.
type Property struct {
	id     string
	prefix string
	typ    string
	langID string
	value  string
}

// ID returns the identifier, or "" if never saved.
func (p *Property) ID() string { return p.id }

// SetID sets the identifier. Only managers should call this.
func (p *Property) SetID(id string) { p.id = id }

// Type returns the property type code.
func (p *Property) Type() string { return p.typ }

// LanguageID returns the language code or "" for all languages.
func (p *Property) LanguageID() string { return p.langID }

// Value returns the property value.
func (p *Property) Value() string { return p.value }

// Key returns the identity used to match properties across imports.
func (p *Property) Key() string {
	return PropertyKey(p.typ, p.langID, p.value)
}

// PropertyKey builds the (type, language, value) identity of a property.
func PropertyKey(typ, langID, value string) string {
	return typ + "\x00" + langID + "\x00" + value
}

// FromMap applies all keys carrying the property prefix, e.g. "product.property.value".
func (p *Property) FromMap(m map[string]string) *Property {
	for key, value := range m {
		switch strings.TrimPrefix(key, p.prefix) {
		case key:
			// not our prefix
		case "type":
			p.typ = value
		case "languageid":
			p.langID = value
		case "value":
			p.value = value
		}
	}
	return p
}

// ToMap returns the prefixed key/value view of the property.
func (p *Property) ToMap() map[string]string {
	return map[string]string{
		p.prefix + "id":         p.id,
		p.prefix + "type":       p.typ,
		p.prefix + "languageid": p.langID,
		p.prefix + "value":      p.value,
	}
}

func (p *Property) clone() *Property {
	c := *p
	return &c
}

// ownedRefDomains lists the domains whose items only exist through a list
// association. Their referenced items are loaded and saved with the owner.
var ownedRefDomains = map[string]bool{
	"text":  true,
	"media": true,
	"price": true,
}

// IsOwnedRef reports whether items of a referenced domain are owned by the
// list association rather than shared reference data.
func IsOwnedRef(domain string) bool { return ownedRefDomains[domain] }
