package vectors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
	"github.com/saulfrancisco-ruizacevedo/mealgraph/logger"
)

const (
	DefaultBatchSize  = 200
	DefaultMaxRetries = 3
)

// Writer stores a batch of vectors for one kind in a single transaction and
// returns how many nodes were updated.
type Writer interface {
	SetEmbeddings(ctx context.Context, kind mealgraph.Kind, rows []mealgraph.VectorRow) (int, error)
}

// PushOptions tunes a Pusher.
type PushOptions struct {
	BatchSize  int
	MaxRetries int
	// Dimensions, when positive, is required of every vector.
	Dimensions int
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
}

// KindResult counts the outcome of a push for one kind.
type KindResult struct {
	Rows    int `json:"rows"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Batches int `json:"batches"`
}

// PushReport is the outcome of a Push.
type PushReport struct {
	Kinds map[mealgraph.Kind]*KindResult `json:"kinds"`
}

// Updated returns the total number of updated nodes.
func (r *PushReport) Updated() int {
	n := 0
	for _, k := range r.Kinds {
		n += k.Updated
	}
	return n
}

func (r *PushReport) kind(k mealgraph.Kind) *KindResult {
	if r.Kinds == nil {
		r.Kinds = map[mealgraph.Kind]*KindResult{}
	}
	if r.Kinds[k] == nil {
		r.Kinds[k] = &KindResult{}
	}
	return r.Kinds[k]
}

// Pusher writes vectors to the graph in fixed-size batches. A failed batch is
// retried as a whole; an exhausted batch aborts the push.
type Pusher struct {
	w    Writer
	opts PushOptions
	log  *logger.Logger
}

// NewPusher creates a Pusher with defaults filled in.
func NewPusher(w Writer, opts PushOptions, log *logger.Logger) *Pusher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pusher{w: w, opts: opts, log: log.With("component", "VectorPusher")}
}

// Push writes every row of b, kind by kind in canonical order.
func (p *Pusher) Push(ctx context.Context, b *Batch) (*PushReport, error) {
	report := &PushReport{Kinds: map[mealgraph.Kind]*KindResult{}}
	for _, kind := range mealgraph.Kinds {
		rows := b.Rows[kind]
		if len(rows) == 0 {
			continue
		}
		if err := p.pushKind(ctx, kind, rows, report.kind(kind)); err != nil {
			return report, err
		}
	}
	p.log.Info("vector push finished", "updated", report.Updated(), "skipped_in_file", b.Skipped)
	return report, nil
}

func (p *Pusher) pushKind(ctx context.Context, kind mealgraph.Kind, rows []mealgraph.VectorRow, res *KindResult) error {
	valid := make([]mealgraph.VectorRow, 0, len(rows))
	for _, r := range rows {
		if p.opts.Dimensions > 0 && len(r.Vector) != p.opts.Dimensions {
			p.log.Warn("skipping vector with wrong dimension",
				"kind", kind, "id", r.ID, "got", len(r.Vector), "want", p.opts.Dimensions)
			res.Skipped++
			continue
		}
		valid = append(valid, r)
	}
	res.Rows = len(valid)

	for start := 0; start < len(valid); start += p.opts.BatchSize {
		end := min(start+p.opts.BatchSize, len(valid))
		updated, err := p.writeBatch(ctx, kind, valid[start:end])
		if err != nil {
			return fmt.Errorf("push %s vectors %d-%d: %w", kind, start, end, err)
		}
		res.Updated += updated
		res.Batches++
		p.log.Debug("vector batch written", "kind", kind, "size", end-start, "updated", updated)
	}
	p.log.Info("vectors pushed", "kind", kind, "rows", res.Rows, "updated", res.Updated, "skipped", res.Skipped)
	return nil
}

func (p *Pusher) writeBatch(ctx context.Context, kind mealgraph.Kind, rows []mealgraph.VectorRow) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.opts.InitialInterval

	attempt := 0
	return backoff.Retry(ctx, func() (int, error) {
		attempt++
		n, err := p.w.SetEmbeddings(ctx, kind, rows)
		if err != nil && !errors.Is(err, mealgraph.ErrStoreUnavailable) {
			return 0, backoff.Permanent(err)
		}
		return n, err
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.opts.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			p.log.Warn("vector batch failed, retrying",
				"kind", kind, "size", len(rows), "attempt", attempt, "wait", wait, "error", err)
		}),
	)
}
