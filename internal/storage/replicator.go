package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	storagemetrics "attestor/internal/storage/metrics"
)

// Op is one durable-store write queued behind an already-applied cache
// mutation. Apply closes over the durable store call; the replicator never
// inspects entity state itself.
type Op struct {
	Entity string
	ID     string
	Name   string
	Apply  func(ctx context.Context) error
}

// Replicator drains per-shard op queues into the durable store. Ops for the
// same entity hash to the same shard, so durable writes preserve per-entity
// order. Failures are retried with capped exponential backoff; terminal
// failures are logged and counted but never surfaced to the caller whose
// cache mutation already succeeded.
type Replicator struct {
	queues     []chan Op
	logger     *slog.Logger
	metrics    *storagemetrics.Metrics
	maxRetries int
	baseDelay  time.Duration

	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// ReplicatorOption customizes a Replicator.
type ReplicatorOption func(*Replicator)

// WithMetrics attaches replication metrics.
func WithMetrics(m *storagemetrics.Metrics) ReplicatorOption {
	return func(r *Replicator) { r.metrics = m }
}

// WithBaseDelay overrides the first retry delay. Tests shrink it.
func WithBaseDelay(d time.Duration) ReplicatorOption {
	return func(r *Replicator) { r.baseDelay = d }
}

// NewReplicator creates a replicator with the given shard count, queue depth,
// and retry budget.
func NewReplicator(shards, queueDepth, maxRetries int, logger *slog.Logger, opts ...ReplicatorOption) *Replicator {
	if shards < 1 {
		shards = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	queues := make([]chan Op, shards)
	for i := range queues {
		queues[i] = make(chan Op, queueDepth)
	}
	r := &Replicator{
		queues:     queues,
		logger:     logger,
		maxRetries: maxRetries,
		baseDelay:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts one worker per shard and blocks until ctx is cancelled and all
// queues drain.
func (r *Replicator) Run(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	for i := range r.queues {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.wg.Wait()
}

// Enqueue queues a durable write behind the shard owning the entity. Blocks
// when the shard queue is full, which is the backpressure point: callers
// enqueue after releasing their entity guard, so a full queue slows intake
// without holding locks.
func (r *Replicator) Enqueue(op Op) {
	if r.metrics != nil {
		r.metrics.IncrementEnqueued(op.Entity)
	}
	r.queues[ShardIndex(op.Entity+"/"+op.ID, len(r.queues))] <- op
}

func (r *Replicator) worker(ctx context.Context, shard int) {
	defer r.wg.Done()
	queue := r.queues[shard]
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued so accepted mutations still land.
			for {
				select {
				case op := <-queue:
					r.apply(context.Background(), op)
				default:
					return
				}
			}
		case op := <-queue:
			r.apply(ctx, op)
		}
	}
}

func (r *Replicator) apply(ctx context.Context, op Op) {
	delay := r.baseDelay
	for attempt := 0; ; attempt++ {
		err := op.Apply(ctx)
		if err == nil {
			if r.metrics != nil {
				r.metrics.IncrementReplicated(op.Entity)
			}
			return
		}
		if attempt >= r.maxRetries {
			r.logger.Error("durable replication failed",
				"entity", op.Entity,
				"entity_id", op.ID,
				"op", op.Name,
				"attempts", attempt+1,
				"error", err,
			)
			if r.metrics != nil {
				r.metrics.IncrementFailed(op.Entity)
			}
			return
		}
		r.logger.Warn("durable replication retry",
			"entity", op.Entity,
			"entity_id", op.ID,
			"op", op.Name,
			"attempt", attempt+1,
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.IncrementRetried(op.Entity)
		}
		select {
		case <-ctx.Done():
			// Shutdown: one last immediate attempt happens on the next loop
			// iteration via the drain path; give up here instead of sleeping.
			return
		case <-time.After(delay):
		}
		if delay < 5*time.Second {
			delay *= 2
		}
	}
}
