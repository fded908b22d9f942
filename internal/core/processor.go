package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/JonMunkholm/shopimport/internal/domain"
	"github.com/JonMunkholm/shopimport/internal/metrics"
)

// Processor handles one concern of an item built from a CSV row and hands
// the item on to the next processor in the chain.
type Processor interface {
	// Process updates item from the positional row.
	Process(ctx context.Context, item *domain.Item, row []string) error

	// Finish flushes deferred work and finishes the rest of the chain.
	Finish(ctx context.Context) error
}

// NodeProcessor handles one element of an XML record for an item.
type NodeProcessor interface {
	// ProcessNode updates item from node.
	ProcessNode(ctx context.Context, item *domain.Item, node *Node) error

	// Finish flushes deferred work.
	Finish(ctx context.Context) error
}

// Done terminates every processor chain. It leaves the item untouched.
type Done struct{}

// Process returns nil.
func (Done) Process(context.Context, *domain.Item, []string) error { return nil }

// ProcessNode returns nil.
func (Done) ProcessNode(context.Context, *domain.Item, *Node) error { return nil }

// Finish returns nil.
func (Done) Finish(context.Context) error { return nil }

var (
	_ Processor     = Done{}
	_ NodeProcessor = Done{}
)

// Config is the read-only, slash separated configuration tree of the
// import, e.g. "product/csv/processor/property/name".
type Config interface {
	String(path, def string) string
	Int(path string, def int) int
	Bool(path string, def bool) bool
	Strings(path string, def []string) []string
	PositionMap(path string) map[int]string
	Keys(path string) []string
}

// Env carries the shared collaborators of an import run.
type Env struct {
	Config   Config
	Logger   *slog.Logger
	Managers domain.ManagerSource
	Metrics  *metrics.ImportMetrics

	creating sync.Mutex
}

// LockCreate serializes the creation of reference items shared by all
// workers. Call the returned func to unlock.
func (e *Env) LockCreate() (unlock func()) {
	if e == nil {
		return func() {}
	}
	e.creating.Lock()
	return e.creating.Unlock
}

// logger returns the configured logger or the default one.
func (e *Env) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// metrics returns the configured metrics; nil is valid.
func (e *Env) metrics() *metrics.ImportMetrics {
	if e == nil {
		return nil
	}
	return e.Metrics
}
