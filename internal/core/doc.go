// Package core provides the business logic for CSV and XML imports.
//
// This package has no transport dependencies. It can be used by the web
// server, the importctl CLI or tests without modification.
//
// # Architecture
//
// An import turns every input record into a domain item and runs it through
// a chain of processors. Each processor owns one concern of the item
// (addresses, properties, stock, list associations) and passes the item on
// to the next link. The chain always ends in [Done].
//
//   - Registry: processors register a constructor under a class key such as
//     "Property/Standard" at init time using [Register].
//   - Factory: [Factory] resolves short names from configuration to class
//     keys, validates them and builds CSV chains or XML node processors.
//   - Field mapping: [MapEntry] and [MapChunks] turn a positional CSV row
//     into flat key/value entries.
//   - Reconciliation: [Positional] and [Keyed] match incoming entries with
//     the sub-items an item already has, so repeated imports update in place.
//   - Types: [TypeRegistrar] collects the type codes seen during a run and
//     creates the missing ones when the chain finishes.
//   - Lookups: [LookupCache] resolves codes of reference data to items.
//
// # Running Imports
//
// [Importer] runs one import synchronously with a pool of workers, each
// owning its own chain, caches and type registrar. [Service] starts imports
// in the background, tracks their progress and limits how many run at once.
//
// # Error Handling
//
// Configuration errors surface before any record is processed and wrap
// [ErrInvalidConfiguration], [ErrClassNotFound] or [ErrInterfaceMismatch].
// Errors of a single record are logged and counted; the import continues
// with the next record.
package core
