package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/shopimport/internal/domain"
)

// Importer defaults.
const (
	DefaultBatchSize  = 100
	DefaultWorkers    = 1
	MaxFailedRecords  = 1000
	itemMappingName   = "item"
	processorsOption  = "processors"
	mappingOptionRoot = "mapping"
)

// Record is one input record: a CSV row or an XML element.
type Record struct {
	Line int // 1-based line or element index in the source
	Row  []string
	Node *Node
}

// RecordReader yields records until it returns io.EOF.
type RecordReader interface {
	Next() (Record, error)
}

// FailedRecord describes a record that could not be imported.
type FailedRecord struct {
	Line   int    `json:"line"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult contains the final result of an import.
type ImportResult struct {
	ImportID      string         `json:"import_id,omitempty"`
	Domain        string         `json:"domain"`
	Format        Kind           `json:"format"`
	FileName      string         `json:"file_name,omitempty"`
	Processed     int            `json:"processed"`
	Imported      int            `json:"imported"`
	Failed        int            `json:"failed"`
	FailedRecords []FailedRecord `json:"failed_records,omitempty"`
	Duration      time.Duration  `json:"duration"`
	Error         string         `json:"error,omitempty"`
}

// ProgressFunc receives the number of processed and failed records.
type ProgressFunc func(processed, failed int)

// ImporterConfig tunes an Importer.
type ImporterConfig struct {
	BatchSize int // records per item lookup
	Workers   int // parallel workers, each with its own chain
}

// Importer runs imports of one source into items.
//
// Records are read in batches. Each batch is handled by one worker, which
// looks up the existing items of the batch with a single search and runs
// every record through its own processor chain. Records are routed to
// workers by the hash of their code, so all records of one item are
// handled by the same worker in input order. A failing record is logged
// and counted; the import goes on with the next record.
type Importer struct {
	env       *Env
	batchSize int
	workers   int
}

// NewImporter creates an importer.
func NewImporter(env *Env, cfg ImporterConfig) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Importer{env: env, batchSize: cfg.BatchSize, workers: cfg.Workers}
}

// Config returns the processor configuration of the importer.
func (im *Importer) Config() Config { return im.env.Config }

// ImportCSV imports CSV rows into items of dom.
func (im *Importer) ImportCSV(ctx context.Context, dom string, rows RecordReader, progress ProgressFunc) (*ImportResult, error) {
	return im.ImportRecords(ctx, dom, KindCSV, rows, progress)
}

// ImportXML imports XML elements into items of dom.
func (im *Importer) ImportXML(ctx context.Context, dom string, nodes RecordReader, progress ProgressFunc) (*ImportResult, error) {
	return im.ImportRecords(ctx, dom, KindXML, nodes, progress)
}

// ImportRecords imports records of the given kind into items of dom.
//
// Configuration errors are returned before any record is read.
// Cancellation is checked between records.
func (im *Importer) ImportRecords(ctx context.Context, dom string, kind Kind, src RecordReader, progress ProgressFunc) (*ImportResult, error) {
	start := time.Now()
	logger := im.env.logger().With("topic", "import", "domain", dom, "format", kind)

	pipelines := make([]*pipeline, im.workers)
	for i := range pipelines {
		p, err := im.newPipeline(dom, kind, logger)
		if err != nil {
			return nil, err
		}
		pipelines[i] = p
	}

	res := &collector{
		result:   &ImportResult{Domain: dom, Format: kind},
		progress: progress,
		dom:      dom,
		env:      im.env,
	}

	g, gctx := errgroup.WithContext(ctx)
	queues := make([]chan []Record, len(pipelines))
	for i := range queues {
		queues[i] = make(chan []Record)
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()
		return im.readBatches(gctx, src, pipelines[0].code, queues)
	})

	for i, p := range pipelines {
		queue := queues[i]
		g.Go(func() error {
			for batch := range queue {
				if err := p.processBatch(gctx, batch, res); err != nil {
					return err
				}
			}
			return nil
		})
	}

	runErr := g.Wait()

	// Types seen so far are saved even if the run was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	var finishErrs []error
	for _, p := range pipelines {
		if err := p.finish(finishCtx); err != nil {
			finishErrs = append(finishErrs, err)
		}
	}

	result := res.snapshot()
	result.Duration = time.Since(start)

	err := errors.Join(runErr, errors.Join(finishErrs...))
	if err != nil {
		result.Error = err.Error()
	}

	logger.Info("import finished",
		"processed", result.Processed,
		"imported", result.Imported,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, err
}

// readBatches fills one batch per worker queue and sends it when full.
// code selects the queue of a record, see workerFor.
func (im *Importer) readBatches(ctx context.Context, src RecordReader, code func(Record) string, out []chan []Record) error {
	batches := make([][]Record, len(out))
	send := func(i int) error {
		if len(batches[i]) == 0 {
			return nil
		}
		select {
		case out[i] <- batches[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		batches[i] = nil
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			for i := range out {
				if err := send(i); err != nil {
					return err
				}
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("read record: %w", err)
		}

		i := workerFor(code(rec), len(out))
		if batches[i] == nil {
			batches[i] = make([]Record, 0, im.batchSize)
		}
		batches[i] = append(batches[i], rec)
		if len(batches[i]) >= im.batchSize {
			if err := send(i); err != nil {
				return err
			}
		}
	}
}

// workerFor maps a code to one of n workers. Records without a code fail
// anyway and go to the first worker.
func workerFor(code string, n int) int {
	if n <= 1 || code == "" {
		return 0
	}
	return int(xxhash.Sum64String(code) % uint64(n))
}

// Validate builds the processors configured for dom and kind without
// running them.
func (im *Importer) Validate(dom string, kind Kind) error {
	_, err := im.newPipeline(dom, kind, im.env.logger())
	return err
}

// ChainNames returns the configured CSV processor names of dom in order.
// Without an explicit list, all mapped processors run in name order.
func ChainNames(cfg Config, dom string) []string {
	if cfg == nil {
		return nil
	}
	if names := cfg.Strings(dom+"/csv/"+processorsOption, nil); len(names) > 0 {
		return names
	}
	var names []string
	for _, key := range cfg.Keys(dom + "/csv/" + mappingOptionRoot) {
		if key != itemMappingName {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// pipeline is the per-worker state of an import run.
type pipeline struct {
	dom     string
	kind    Kind
	prefix  string
	manager domain.Manager
	types   *TypeRegistrar
	factory *Factory
	logger  *slog.Logger

	chain       Processor // CSV
	itemMapping Mapping   // CSV
}

func (im *Importer) newPipeline(dom string, kind Kind, logger *slog.Logger) (*pipeline, error) {
	if kind != KindCSV && kind != KindXML {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, kind)
	}
	if im.env == nil || im.env.Managers == nil {
		return nil, errors.New("import: no managers configured")
	}

	manager, err := im.env.Managers.Manager(dom)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", dom, err)
	}

	types := NewTypeRegistrar(im.env.Managers, im.env.logger(), im.env.metrics())
	caches := NewCacheSet(im.env.Managers, im.env.metrics())
	factory := NewFactory(im.env, kind, dom, types, caches)

	p := &pipeline{
		dom:     dom,
		kind:    kind,
		prefix:  domain.KeyPrefix(dom),
		manager: manager,
		types:   types,
		factory: factory,
		logger:  logger,
	}

	if kind == KindCSV {
		cfg := im.env.Config
		names := ChainNames(cfg, dom)
		if err := factory.Validate(names); err != nil {
			return nil, err
		}

		mappings := make(map[string]Mapping, len(names))
		for _, name := range names {
			mappings[name] = positionMap(cfg, dom+"/csv/"+mappingOptionRoot+"/"+name)
		}
		p.itemMapping = positionMap(cfg, dom+"/csv/"+mappingOptionRoot+"/"+itemMappingName)
		if len(p.itemMapping) == 0 {
			p.itemMapping = Mapping{0: p.prefix + "code"}
		}

		chain, err := factory.Chain(names, mappings)
		if err != nil {
			return nil, err
		}
		p.chain = chain
	}
	return p, nil
}

func positionMap(cfg Config, path string) Mapping {
	if cfg == nil {
		return nil
	}
	return Mapping(cfg.PositionMap(path))
}

func (p *pipeline) processBatch(ctx context.Context, batch []Record, res *collector) error {
	codes := make([]string, len(batch))
	for i, rec := range batch {
		codes[i] = p.code(rec)
	}

	existing, err := p.lookup(ctx, codes)
	if err != nil {
		return err
	}

	for i, rec := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := p.processRecord(ctx, rec, codes[i], existing[codes[i]])
		if err != nil {
			p.logger.Error("import record failed",
				"line", rec.Line,
				"code", codes[i],
				"error", err,
			)
			res.fail(rec.Line, codes[i], err)

			// The failed item may be partially updated; reload the stored state.
			if codes[i] != "" {
				fresh, err := p.lookup(ctx, codes[i:i+1])
				if err != nil {
					return err
				}
				existing[codes[i]] = fresh[codes[i]]
			}
			continue
		}
		existing[codes[i]] = item
		res.ok()
	}
	return nil
}

func (p *pipeline) lookup(ctx context.Context, codes []string) (map[string]*domain.Item, error) {
	var unique []string
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c != "" && !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}

	existing := make(map[string]*domain.Item, len(unique))
	if len(unique) == 0 {
		return existing, nil
	}

	filter := domain.NewFilter().In(p.prefix+"code", unique).Slice(0, len(unique))
	items, err := p.manager.Search(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("lookup %s items: %w", p.dom, err)
	}
	for _, item := range items {
		existing[item.Code()] = item
	}
	return existing, nil
}

func (p *pipeline) code(rec Record) string {
	if p.kind == KindXML {
		if rec.Node == nil {
			return ""
		}
		if ref := strings.TrimSpace(rec.Node.Attr("ref")); ref != "" {
			return ref
		}
		return rec.Node.Values()[p.prefix+"code"]
	}
	return MapEntry(rec.Row, p.itemMapping).Val(p.prefix+"code", "")
}

// processRecord imports one record. Panics of processors fail the record.
func (p *pipeline) processRecord(ctx context.Context, rec Record, code string, item *domain.Item) (_ *domain.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in processor",
				"line", rec.Line,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%w: internal error: %v", ErrRecordFailed, r)
		}
	}()

	if code == "" {
		return nil, fmt.Errorf("%w: missing %scode", ErrRecordFailed, p.prefix)
	}
	if item == nil {
		item = p.manager.Create()
	}

	switch p.kind {
	case KindCSV:
		item.FromMap(MapEntry(rec.Row, p.itemMapping))
	case KindXML:
		if rec.Node == nil {
			return nil, fmt.Errorf("%w: empty element", ErrRecordFailed)
		}
		item.FromMap(rec.Node.Values())
	}
	item.SetCode(code)

	// Sub-items such as stock records refer to the item id.
	if item.ID() == "" {
		if err := p.manager.Save(ctx, item); err != nil {
			return nil, fmt.Errorf("%w: save %s: %v", ErrRecordFailed, code, err)
		}
	}

	switch p.kind {
	case KindCSV:
		err = p.chain.Process(ctx, item, rec.Row)
	case KindXML:
		err = p.processNodes(ctx, item, rec.Node)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}

	if err := p.manager.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("%w: save %s: %v", ErrRecordFailed, code, err)
	}
	return item, nil
}

// processNodes hands every child element that is not a plain value, i.e.
// whose name has no dot, to the processor of the same name.
func (p *pipeline) processNodes(ctx context.Context, item *domain.Item, node *Node) error {
	for _, child := range node.Children {
		if strings.Contains(child.Name, ".") {
			continue
		}
		proc, err := p.factory.Node(child.Name)
		if err != nil {
			return err
		}
		if err := proc.ProcessNode(ctx, item, child); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipeline) finish(ctx context.Context) error {
	if p.kind == KindCSV {
		return p.chain.Finish(ctx)
	}
	err := p.factory.FinishNodes(ctx)
	p.types.SaveTypes(ctx)
	return err
}

// collector gathers the results of all workers.
type collector struct {
	mu       sync.Mutex
	result   *ImportResult
	progress ProgressFunc
	dom      string
	env      *Env
}

func (c *collector) ok() {
	c.mu.Lock()
	c.result.Processed++
	c.result.Imported++
	processed, failed := c.result.Processed, c.result.Failed
	c.mu.Unlock()

	c.env.metrics().RecordRecord(c.dom, "ok")
	if c.progress != nil {
		c.progress(processed, failed)
	}
}

func (c *collector) fail(line int, code string, err error) {
	c.mu.Lock()
	c.result.Processed++
	c.result.Failed++
	if len(c.result.FailedRecords) < MaxFailedRecords {
		c.result.FailedRecords = append(c.result.FailedRecords, FailedRecord{
			Line:   line,
			Code:   code,
			Reason: err.Error(),
		})
	}
	processed, failed := c.result.Processed, c.result.Failed
	c.mu.Unlock()

	c.env.metrics().RecordRecord(c.dom, "failed")
	if c.progress != nil {
		c.progress(processed, failed)
	}
}

func (c *collector) snapshot() *ImportResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := *c.result
	r.FailedRecords = append([]FailedRecord(nil), c.result.FailedRecords...)
	sort.Slice(r.FailedRecords, func(i, j int) bool { return r.FailedRecords[i].Line < r.FailedRecords[j].Line })
	return &r
}
