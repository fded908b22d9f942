package core

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/metrics"
)

// Base implements the parts shared by all processors: option lookup, type
// registration and finishing the rest of the chain. Processors embed it.
type Base struct {
	Deps
}

// NewBase wraps the constructor dependencies.
func NewBase(d Deps) Base {
	if d.Next == nil && d.Kind == KindCSV {
		d.Next = Done{}
	}
	return Base{Deps: d}
}

// Option returns the processor option at
// "<domain>/<kind>/processor/<name>/<key>".
func (b *Base) Option(key, def string) string {
	if b.Env == nil || b.Env.Config == nil {
		return def
	}
	return b.Env.Config.String(b.optionPath(key), def)
}

// OptionInt returns an integer processor option.
func (b *Base) OptionInt(key string, def int) int {
	if b.Env == nil || b.Env.Config == nil {
		return def
	}
	return b.Env.Config.Int(b.optionPath(key), def)
}

// OptionStrings returns a list processor option.
func (b *Base) OptionStrings(key string, def []string) []string {
	if b.Env == nil || b.Env.Config == nil {
		return def
	}
	return b.Env.Config.Strings(b.optionPath(key), def)
}

func (b *Base) optionPath(key string) string {
	return b.Domain + "/" + string(b.Kind) + "/processor/" + b.Name + "/" + key
}

// Required returns the keys an entry must have a value for. The "required"
// option overrides def.
func (b *Base) Required(def []string) []string {
	return b.OptionStrings("required", def)
}

// Chunks maps the row into entries, limited by the "max-count" option.
func (b *Base) Chunks(row []string) []Entry {
	return MapChunks(row, b.Mapping, b.OptionInt("max-count", 0))
}

// Logger returns the run logger tagged with the processor.
func (b *Base) Logger() *slog.Logger {
	return b.Env.logger().With("topic", "import", "processor", b.Name)
}

// Metrics returns the run metrics; nil is valid.
func (b *Base) Metrics() *metrics.ImportMetrics { return b.Env.metrics() }

// Manager returns the manager of resource.
func (b *Base) Manager(resource string) (domain.Manager, error) {
	return b.Env.Managers.Manager(resource)
}

// AddType records a type code, defaulting to "default" when empty.
func (b *Base) AddType(path, dom, code string) string {
	if code == "" {
		code = "default"
	}
	if b.Types != nil {
		b.Types.Add(path, dom, code)
	}
	return code
}

// RecordOutcome counts reconciled sub-items.
func (b *Base) RecordOutcome(reused, created, removed int) {
	m := b.Metrics()
	m.RecordSubItems(b.Name, "reused", reused)
	m.RecordSubItems(b.Name, "created", created)
	m.RecordSubItems(b.Name, "removed", removed)
}

// Finish saves the collected types and finishes the rest of the chain.
func (b *Base) Finish(ctx context.Context) error {
	if b.Types != nil {
		b.Types.SaveTypes(ctx)
	}
	if b.Next != nil {
		return b.Next.Finish(ctx)
	}
	return nil
}
