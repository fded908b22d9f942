package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultImplementation is used when no implementation name is configured.
const DefaultImplementation = "Standard"

// segmentPattern restricts every segment of a processor or implementation
// name, so configuration can only select registered processors.
var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Factory resolves processor short names to registered implementations and
// builds processors for one domain and kind.
//
// The implementation of a short name can be replaced through the
// configuration key "<domain>/<kind>/processor/<name>/name".
type Factory struct {
	env    *Env
	kind   Kind
	domain string
	types  *TypeRegistrar
	caches *CacheSet

	mu    sync.Mutex
	nodes map[string]NodeProcessor
	order []string
}

// NewFactory creates a factory for processors of one domain and kind.
func NewFactory(env *Env, kind Kind, domain string, types *TypeRegistrar, caches *CacheSet) *Factory {
	return &Factory{
		env:    env,
		kind:   kind,
		domain: domain,
		types:  types,
		caches: caches,
		nodes:  make(map[string]NodeProcessor),
	}
}

// Domain returns the domain the factory builds processors for.
func (f *Factory) Domain() string { return f.domain }

// ConfigPath returns the configuration path of a processor option.
func (f *Factory) ConfigPath(name, option string) string {
	return f.domain + "/" + string(f.kind) + "/processor/" + name + "/" + option
}

// Resolve validates name and returns the class key it maps to, e.g.
// "lists/text" becomes "Lists/Text/Standard".
func (f *Factory) Resolve(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", &ConfigError{Name: name, Err: err}
	}

	impl := DefaultImplementation
	if f.env != nil && f.env.Config != nil {
		impl = f.env.Config.String(f.ConfigPath(name, "name"), DefaultImplementation)
	}
	if !segmentPattern.MatchString(impl) {
		return "", &ConfigError{
			Name: name,
			Err:  fmt.Errorf("%w: implementation name %q", ErrInvalidConfiguration, impl),
		}
	}

	segments := strings.Split(name, "/")
	segments = append(segments, impl)
	caser := cases.Title(language.Und, cases.NoLower)
	for i, s := range segments {
		segments[i] = caser.String(s)
	}
	return strings.Join(segments, "/"), nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty processor name", ErrInvalidConfiguration)
	}
	for _, s := range strings.Split(name, "/") {
		if !segmentPattern.MatchString(s) {
			return fmt.Errorf("%w: invalid characters in processor name", ErrInvalidConfiguration)
		}
	}
	return nil
}

func (f *Factory) definition(name string) (Definition, error) {
	class, err := f.Resolve(name)
	if err != nil {
		return Definition{}, err
	}
	def, ok := Get(f.kind, class)
	if !ok {
		return Definition{}, &ConfigError{Name: name, Class: class, Err: ErrClassNotFound}
	}
	return def, nil
}

func (f *Factory) deps(name string, mapping Mapping, next Processor) Deps {
	return Deps{
		Env:     f.env,
		Kind:    f.kind,
		Domain:  f.domain,
		Name:    name,
		Mapping: mapping,
		Next:    next,
		Types:   f.types,
		Caches:  f.caches,
		Factory: f,
	}
}

// Create builds the CSV processor registered for name, wrapping next.
func (f *Factory) Create(name string, mapping Mapping, next Processor) (Processor, error) {
	def, err := f.definition(name)
	if err != nil {
		return nil, err
	}
	if next == nil {
		next = Done{}
	}

	v, err := def.New(f.deps(name, mapping, next))
	if err != nil {
		return nil, fmt.Errorf("create processor %q: %w", name, err)
	}
	p, ok := v.(Processor)
	if !ok {
		return nil, &ConfigError{Name: name, Class: def.Class, Err: ErrInterfaceMismatch}
	}
	return p, nil
}

// CreateNode builds a new XML processor registered for name.
func (f *Factory) CreateNode(name string) (NodeProcessor, error) {
	def, err := f.definition(name)
	if err != nil {
		return nil, err
	}

	v, err := def.New(f.deps(name, nil, nil))
	if err != nil {
		return nil, fmt.Errorf("create processor %q: %w", name, err)
	}
	p, ok := v.(NodeProcessor)
	if !ok {
		return nil, &ConfigError{Name: name, Class: def.Class, Err: ErrInterfaceMismatch}
	}
	return p, nil
}

// Node returns the XML processor for name, creating it on first use.
// Processors are shared by all records handled through this factory.
func (f *Factory) Node(name string) (NodeProcessor, error) {
	f.mu.Lock()
	p, ok := f.nodes[name]
	f.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := f.CreateNode(name)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.nodes[name]; ok {
		return existing, nil
	}
	f.nodes[name] = p
	f.order = append(f.order, name)
	return p, nil
}

// FinishNodes finishes all XML processors created through Node, in
// creation order. All processors are finished even if one fails.
func (f *Factory) FinishNodes(ctx context.Context) error {
	f.mu.Lock()
	order := append([]string(nil), f.order...)
	nodes := make([]NodeProcessor, len(order))
	for i, name := range order {
		nodes[i] = f.nodes[name]
	}
	f.mu.Unlock()

	var errs []error
	for i, p := range nodes {
		if err := p.Finish(ctx); err != nil {
			errs = append(errs, fmt.Errorf("finish %s: %w", order[i], err))
		}
	}
	return errors.Join(errs...)
}

// Chain builds a CSV processor chain. The chain is built back to front
// around Done, so names run in the configured order.
func (f *Factory) Chain(names []string, mappings map[string]Mapping) (Processor, error) {
	var p Processor = Done{}
	for i := len(names) - 1; i >= 0; i-- {
		next, err := f.Create(names[i], mappings[names[i]], p)
		if err != nil {
			return nil, err
		}
		p = next
	}
	return p, nil
}

// Validate checks that every name resolves to a registered processor.
// It reports all problems, not just the first.
func (f *Factory) Validate(names []string) error {
	var errs []error
	for _, name := range names {
		if _, err := f.definition(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Names returns the short names of all processors registered for kind
// with the default implementation, e.g. "lists/text".
func Names(kind Kind) []string {
	var names []string
	suffix := "/" + DefaultImplementation
	for _, def := range ByKind(kind) {
		if base, ok := strings.CutSuffix(def.Class, suffix); ok {
			names = append(names, strings.ToLower(base))
		}
	}
	sort.Strings(names)
	return names
}
