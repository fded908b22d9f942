package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/shopimport/internal/core"
	"github.com/JonMunkholm/shopimport/internal/metrics"
)

// DefaultQueueWait is how long the queue reader waits for a message
// before it treats the list as drained.
const DefaultQueueWait = 5 * time.Second

// Popper is the part of *redis.Client the queue reader needs.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// QueueOptions configures a QueueReader.
type QueueOptions struct {
	Kind      core.Kind // format of the messages
	Separator rune      // CSV separator, ',' if zero
	Wait      time.Duration
	Metrics   *metrics.ImportMetrics
}

// QueueReader reads records from a Redis list. Every list element is one
// message: a CSV line or a single XML record element. The reader returns
// io.EOF once no message arrived within the wait time.
type QueueReader struct {
	ctx    context.Context
	client Popper
	key    string
	opts   QueueOptions
	count  int
}

var _ core.RecordReader = (*QueueReader)(nil)

// NewQueueReader reads from the list key. ctx bounds the blocking pops.
func NewQueueReader(ctx context.Context, client Popper, key string, opts QueueOptions) *QueueReader {
	if opts.Kind == "" {
		opts.Kind = core.KindCSV
	}
	if opts.Wait <= 0 {
		opts.Wait = DefaultQueueWait
	}
	return &QueueReader{ctx: ctx, client: client, key: key, opts: opts}
}

// Next pops the next message.
func (q *QueueReader) Next() (core.Record, error) {
	res, err := q.client.BLPop(q.ctx, q.opts.Wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return core.Record{}, io.EOF
	}
	if err != nil {
		if ctxErr := q.ctx.Err(); ctxErr != nil {
			return core.Record{}, ctxErr
		}
		return core.Record{}, fmt.Errorf("pop %s: %w", q.key, err)
	}
	if len(res) != 2 {
		return core.Record{}, fmt.Errorf("pop %s: unexpected reply %v", q.key, res)
	}

	q.count++
	q.opts.Metrics.RecordQueueMessage(q.key)
	return q.parse(res[1])
}

func (q *QueueReader) parse(msg string) (core.Record, error) {
	rec := core.Record{Line: q.count}
	switch q.opts.Kind {
	case core.KindXML:
		node, err := ParseElement(msg)
		if err != nil {
			return rec, fmt.Errorf("message %d: %w", q.count, err)
		}
		rec.Node = node
	default:
		r := csv.NewReader(strings.NewReader(msg))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		if q.opts.Separator != 0 {
			r.Comma = q.opts.Separator
		}
		row, err := r.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			return rec, fmt.Errorf("message %d: parse csv: %w", q.count, err)
		}
		rec.Row = row
	}
	return rec, nil
}
