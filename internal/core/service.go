package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service defaults.
const (
	DefaultImportTimeout = 30 * time.Minute
	DefaultResultTTL     = 15 * time.Minute
)

// ImportPhase indicates the current stage of an import.
type ImportPhase string

const (
	PhaseQueued    ImportPhase = "queued"
	PhaseImporting ImportPhase = "importing"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// ImportProgress represents the current state of an import.
type ImportProgress struct {
	ImportID   string      `json:"import_id"`
	Domain     string      `json:"domain"`
	Format     Kind        `json:"format"`
	FileName   string      `json:"file_name,omitempty"`
	Phase      ImportPhase `json:"phase"`
	Processed  int         `json:"processed"`
	Failed     int         `json:"failed"`
	BytesRead  int64       `json:"bytes_read,omitempty"`
	BytesTotal int64       `json:"bytes_total,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Percent returns the byte based progress (0-100), or 0 if the size of
// the input is unknown.
func (p ImportProgress) Percent() int {
	if p.BytesTotal <= 0 {
		return 0
	}
	pct := int(p.BytesRead * 100 / p.BytesTotal)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Done reports whether the import has ended.
func (p ImportProgress) Done() bool {
	switch p.Phase {
	case PhaseComplete, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// ImportRequest describes an import to start.
type ImportRequest struct {
	Domain   string
	Format   Kind
	FileName string
	Records  RecordReader

	// Size is the input size in bytes; BytesRead reports how much was
	// consumed so far. Both are optional.
	Size      int64
	BytesRead func() int64

	// Close releases the input after the import ended. Optional.
	Close func() error
}

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	Timeout       time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
	ResultTTL     time.Duration
}

// Service runs imports in the background and tracks their progress.
type Service struct {
	importer *Importer
	limiter  *ImportLimiter
	timeout  time.Duration
	ttl      time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	imports map[string]*activeImport
	wg      sync.WaitGroup
}

type activeImport struct {
	id        string
	cancel    context.CancelFunc
	done      chan struct{}
	bytesRead func() int64

	mu        sync.Mutex
	progress  ImportProgress
	result    *ImportResult
	listeners []chan ImportProgress
}

// NewService creates a service running imports through importer.
func NewService(importer *Importer, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultImportTimeout
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}
	return &Service{
		importer: importer,
		limiter:  NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		timeout:  cfg.Timeout,
		ttl:      cfg.ResultTTL,
		logger:   importer.env.logger().With("topic", "import"),
		imports:  make(map[string]*activeImport),
	}
}

// Importer returns the importer used by the service.
func (s *Service) Importer() *Importer { return s.importer }

// Limiter returns the concurrency limiter of the service.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// StartImport validates the processor configuration, waits for a free
// slot and starts the import in the background. It returns the import id
// immediately; use SubscribeProgress or GetImportResult to follow it.
//
// Configuration errors are returned synchronously. ErrTooManyImports is
// returned if no slot becomes free in time.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if err := s.importer.Validate(req.Domain, req.Format); err != nil {
		s.closeInput(req)
		return "", err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		s.closeInput(req)
		return "", err
	}

	id := uuid.New().String()
	runCtx, cancel := context.WithTimeout(ContextWithImportID(context.Background(), id), s.timeout)

	imp := &activeImport{
		id:        id,
		cancel:    cancel,
		done:      make(chan struct{}),
		bytesRead: req.BytesRead,
		progress: ImportProgress{
			ImportID:   id,
			Domain:     req.Domain,
			Format:     req.Format,
			FileName:   req.FileName,
			Phase:      PhaseQueued,
			BytesTotal: req.Size,
		},
	}

	s.mu.Lock()
	s.imports[id] = imp
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.limiter.Release()
		defer cancel()
		s.run(runCtx, imp, req)
	}()

	return id, nil
}

func (s *Service) run(ctx context.Context, imp *activeImport, req ImportRequest) {
	logger := s.logger.With("import_id", imp.id, "domain", req.Domain, "format", req.Format)
	start := time.Now()
	m := s.importer.env.metrics()
	m.RunStarted()
	defer m.RunFinished()

	var (
		result *ImportResult
		err    error
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic in import", "panic", r)
			err = fmt.Errorf("internal error: %v", r)
		}
		s.closeInput(req)
		s.complete(imp, result, err)
		m.RecordRun(req.Domain, string(req.Format), string(imp.snapshot().Phase), time.Since(start).Seconds())
		s.cleanup(imp.id, s.ttl)
	}()

	imp.update(func(p *ImportProgress) { p.Phase = PhaseImporting })
	logger.Info("import started", "file", req.FileName)

	result, err = s.importer.ImportRecords(ctx, req.Domain, req.Format, req.Records, func(processed, failed int) {
		imp.update(func(p *ImportProgress) {
			p.Processed = processed
			p.Failed = failed
		})
	})
	if result != nil {
		result.ImportID = imp.id
		result.FileName = req.FileName
	}
}

func (s *Service) closeInput(req ImportRequest) {
	if req.Close == nil {
		return
	}
	if err := req.Close(); err != nil {
		s.logger.Warn("closing import input failed", "file", req.FileName, "error", err)
	}
}

// complete stores the result, publishes the final progress and closes all
// listeners.
func (s *Service) complete(imp *activeImport, result *ImportResult, err error) {
	if result == nil {
		snap := imp.snapshot()
		result = &ImportResult{
			ImportID: imp.id,
			Domain:   snap.Domain,
			Format:   snap.Format,
			FileName: snap.FileName,
		}
		if err != nil {
			result.Error = err.Error()
		}
	}

	imp.update(func(p *ImportProgress) {
		p.Processed = result.Processed
		p.Failed = result.Failed
		switch {
		case errors.Is(err, context.Canceled):
			p.Phase = PhaseCancelled
			p.Error = "import cancelled"
		case err != nil:
			p.Phase = PhaseFailed
			p.Error = err.Error()
		default:
			p.Phase = PhaseComplete
		}
	})

	imp.mu.Lock()
	imp.result = result
	for _, ch := range imp.listeners {
		close(ch)
	}
	imp.listeners = nil
	imp.mu.Unlock()
	close(imp.done)
}

func (s *Service) get(id string) (*activeImport, error) {
	s.mu.RLock()
	imp, ok := s.imports[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrImportNotFound, id)
	}
	return imp, nil
}

// SubscribeProgress returns a channel that receives progress updates. The
// current progress is sent immediately. The channel is closed when the
// import ends.
func (s *Service) SubscribeProgress(id string) (<-chan ImportProgress, error) {
	imp, err := s.get(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, 10)

	imp.mu.Lock()
	defer imp.mu.Unlock()

	ch <- imp.current()
	if imp.result != nil {
		close(ch)
		return ch, nil
	}
	imp.listeners = append(imp.listeners, ch)
	return ch, nil
}

// GetImportProgress returns the current progress without blocking.
func (s *Service) GetImportProgress(id string) (ImportProgress, error) {
	imp, err := s.get(id)
	if err != nil {
		return ImportProgress{}, err
	}
	return imp.snapshot(), nil
}

// CancelImport cancels a running import. Records already imported stay.
func (s *Service) CancelImport(id string) error {
	imp, err := s.get(id)
	if err != nil {
		return err
	}
	imp.cancel()
	return nil
}

// GetImportResult returns the result of an import, waiting for it to end
// or for ctx to be done.
func (s *Service) GetImportResult(ctx context.Context, id string) (*ImportResult, error) {
	imp, err := s.get(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-imp.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.result, nil
}

// ListImports returns the progress of all tracked imports, newest last.
func (s *Service) ListImports() []ImportProgress {
	s.mu.RLock()
	list := make([]ImportProgress, 0, len(s.imports))
	for _, imp := range s.imports {
		list = append(list, imp.snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ImportID < list[j].ImportID })
	return list
}

// WaitForImports blocks until all running imports ended or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelAll cancels every running import.
func (s *Service) CancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, imp := range s.imports {
		imp.cancel()
	}
}

// cleanup removes the import from tracking after a delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.imports, id)
		s.mu.Unlock()
	})
}

// current returns the progress including bytes read. imp.mu must be held.
func (imp *activeImport) current() ImportProgress {
	p := imp.progress
	if imp.bytesRead != nil {
		p.BytesRead = imp.bytesRead()
	}
	return p
}

func (imp *activeImport) snapshot() ImportProgress {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	return imp.current()
}

// update changes the progress and notifies listeners. Slow listeners miss
// updates rather than block the import.
func (imp *activeImport) update(fn func(*ImportProgress)) {
	imp.mu.Lock()
	defer imp.mu.Unlock()

	fn(&imp.progress)
	p := imp.current()
	for _, ch := range imp.listeners {
		select {
		case ch <- p:
		default:
		}
	}
}
