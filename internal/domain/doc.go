// Package domain defines the entities an import run mutates and the
// persistence contracts it relies on.
//
// An [Item] is the top-level entity (product, customer, supplier, attribute,
// catalog, type records, stock records). Every item belongs to a resource
// path such as "product" or "product/lists/type"; the path also determines
// the key prefix used by [Item.FromMap] and [Item.ToMap]:
//
//	item := domain.NewItem("product")
//	item.FromMap(map[string]string{"product.code": "demo", "product.label": "Demo"})
//	item.ToMap()["product.code"] // "demo"
//
// Items own three kinds of related sub-items, each identified by its own id
// once persisted: [Address], [ListItem] and [Property]. Sub-items removed
// from an item are remembered until the owning [Manager] saves the item, so
// that the store can delete the rows.
//
// Storage is abstracted by [Manager]; implementations live in
// internal/store/memory and internal/store/postgres.
package domain
