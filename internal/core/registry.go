package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind selects the processor family.
type Kind string

const (
	KindCSV Kind = "csv"
	KindXML Kind = "xml"
)

// ParseKind returns the kind named by s, case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCSV, KindXML:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Deps are the collaborators handed to a processor constructor.
type Deps struct {
	Env     *Env
	Kind    Kind
	Domain  string  // domain of the import, e.g. "product"
	Name    string  // short name, e.g. "lists/text"
	Mapping Mapping // CSV only
	Next    Processor
	Types   *TypeRegistrar
	Caches  *CacheSet
	Factory *Factory // XML processors create child processors on demand
}

// Constructor builds a processor. CSV constructors must return a
// Processor, XML constructors a NodeProcessor.
type Constructor func(Deps) (any, error)

// Definition describes one processor implementation.
type Definition struct {
	Kind        Kind
	Class       string // e.g. "Lists/Text/Standard"
	Description string
	New         Constructor
}

type registryKey struct {
	kind  Kind
	class string
}

var (
	registry   = make(map[registryKey]Definition)
	registryMu sync.RWMutex
)

// Register adds a processor definition to the registry.
// Panics if the class is already registered for the kind.
func Register(def Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := registryKey{def.Kind, def.Class}
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("processor already registered: %s %s", def.Kind, def.Class))
	}
	if def.New == nil {
		panic(fmt.Sprintf("processor without constructor: %s %s", def.Kind, def.Class))
	}

	registry[key] = def
}

// Get returns the definition registered for a class key.
// Returns false if not found.
func Get(kind Kind, class string) (Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[registryKey{kind, class}]
	return def, ok
}

// All returns all registered definitions.
// Sorted by kind then by class for consistent ordering.
func All() []Definition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Definition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Kind != result[j].Kind {
			return result[i].Kind < result[j].Kind
		}
		return result[i].Class < result[j].Class
	})

	return result
}

// ByKind returns all definitions of one kind, sorted by class.
func ByKind(kind Kind) []Definition {
	var result []Definition
	for _, def := range All() {
		if def.Kind == kind {
			result = append(result, def)
		}
	}
	return result
}

// Unregister removes a definition. Primarily useful for testing.
func Unregister(kind Kind, class string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, registryKey{kind, class})
}
