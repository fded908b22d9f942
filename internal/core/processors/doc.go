// Package processors registers the CSV and XML import processors with the
// core registry. Import it for its side effects:
//
//	import _ "github.com/JonMunkholm/shopimport/internal/core/processors"
//
// CSV processors are registered under the short names address, property,
// stock, group, catalog, supplier, product, attribute, text, media and
// price. XML processors are registered under lists, lists/text,
// lists/media, lists/price, lists/attribute, lists/catalog,
// lists/supplier, lists/product and property.
package processors
