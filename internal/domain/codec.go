package domain

import "encoding/json"

// itemDoc is the stored representation of an item. Referenced items of list
// associations are stored on their own and only linked by ref id.
type itemDoc struct {
	ID         string            `json:"id"`
	Resource   string            `json:"resource"`
	Values     map[string]string `json:"values"`
	Addresses  []addressDoc      `json:"addresses,omitempty"`
	Lists      []listDoc         `json:"lists,omitempty"`
	Properties []propertyDoc     `json:"properties,omitempty"`
	Groups     []string          `json:"groups,omitempty"`
}

type addressDoc struct {
	ID       string            `json:"id"`
	Position int               `json:"position"`
	Values   map[string]string `json:"values"`
}

type listDoc struct {
	ID       string            `json:"id"`
	Domain   string            `json:"domain"`
	RefID    string            `json:"refid"`
	Type     string            `json:"type"`
	Position int               `json:"position"`
	Values   map[string]string `json:"values,omitempty"`
}

type propertyDoc struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	LangID string `json:"languageid,omitempty"`
	Value  string `json:"value"`
}

// MarshalJSON encodes the item without pending deletions.
func (i *Item) MarshalJSON() ([]byte, error) {
	doc := itemDoc{
		ID:       i.id,
		Resource: i.resource,
		Values:   i.values,
		Groups:   i.groups,
	}
	for _, a := range i.addresses {
		doc.Addresses = append(doc.Addresses, addressDoc{ID: a.id, Position: a.position, Values: a.values})
	}
	for _, l := range i.lists {
		doc.Lists = append(doc.Lists, listDoc{
			ID: l.id, Domain: l.domain, RefID: l.refID, Type: l.typ, Position: l.position, Values: l.values,
		})
	}
	for _, p := range i.properties {
		doc.Properties = append(doc.Properties, propertyDoc{ID: p.id, Type: p.typ, LangID: p.langID, Value: p.value})
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes an item produced by MarshalJSON.
func (i *Item) UnmarshalJSON(data []byte) error {
	var doc itemDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	*i = Item{id: doc.ID, resource: doc.Resource, values: doc.Values, groups: doc.Groups}
	if i.values == nil {
		i.values = make(map[string]string)
	}
	for _, a := range doc.Addresses {
		addr := i.NewAddress()
		addr.id, addr.position = a.ID, a.Position
		for k, v := range a.Values {
			addr.values[k] = v
		}
		i.addresses = append(i.addresses, addr)
	}
	for _, l := range doc.Lists {
		li := i.NewListItem()
		li.id, li.domain, li.refID, li.typ, li.position = l.ID, l.Domain, l.RefID, l.Type, l.Position
		for k, v := range l.Values {
			li.values[k] = v
		}
		i.lists = append(i.lists, li)
	}
	for _, p := range doc.Properties {
		prop := i.NewProperty()
		prop.id, prop.typ, prop.langID, prop.value = p.ID, p.Type, p.LangID, p.Value
		i.properties = append(i.properties, prop)
	}
	return nil
}
