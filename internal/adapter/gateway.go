package adapter

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	adapterMetrics "attestor/internal/adapter/metrics"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/circuit"
)

// Status is the outcome of an external commit.
type Status string

const (
	// StatusConfirmed means every step of the adapter succeeded.
	StatusConfirmed Status = "confirmed"
	// StatusPending means content is stored but the ledger step has not
	// been confirmed. The address is preserved for retry.
	StatusPending Status = "pending"
)

// CommitResult is what the gateway hands back to the push service.
type CommitResult struct {
	Status          Status
	ContentAddress  string
	LedgerReference string
}

// Gateway runs external commits: content step first, then the ledger step
// for ledger adapters. A content failure aborts the commit; a ledger failure
// after confirmed content degrades the result to pending rather than
// failing, since the content address is durable and the registration can be
// retried.
type Gateway struct {
	content ContentStore
	ledger  LedgerClient
	timeout time.Duration
	breaker *circuit.Breaker
	metrics *adapterMetrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// GatewayOption configures optional gateway collaborators.
type GatewayOption func(*Gateway)

// WithMetrics attaches gateway metrics.
func WithMetrics(m *adapterMetrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// WithLedgerBreaker short-circuits the ledger step while the ledger is
// known-bad: commits degrade straight to pending instead of waiting out the
// timeout on every push. RetryLedger probes the ledger and closes the breaker
// again.
func WithLedgerBreaker(b *circuit.Breaker) GatewayOption {
	return func(g *Gateway) { g.breaker = b }
}

// NewGateway wires the content store and ledger client. timeout bounds each
// full commit attempt.
func NewGateway(content ContentStore, ledger LedgerClient, timeout time.Duration, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		content: content,
		ledger:  ledger,
		timeout: timeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer("attestor/adapter"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Commit stores the payload and, for ledger adapters, registers the address
// on the ledger. The push that triggered it awaits this call.
func (g *Gateway) Commit(ctx context.Context, dfid id.DFID, payload []byte, desc Descriptor) (CommitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "adapter.commit", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("adapter.kind", string(desc.Kind)),
		attribute.String("item.dfid", string(dfid)),
	)

	start := time.Now()
	defer g.metrics.ObserveCommit(string(desc.Kind), start)

	addr, err := g.content.Put(ctx, payload)
	if err != nil {
		span.RecordError(err)
		g.metrics.IncrementContentFailure(string(desc.Kind))
		return CommitResult{}, dErrors.Wrap(err, dErrors.CodeAdapterContent, "content store rejected payload")
	}
	span.SetAttributes(attribute.String("adapter.content_address", addr))

	if desc.Kind != id.AdapterLedger {
		g.metrics.IncrementConfirmed(string(desc.Kind))
		return CommitResult{Status: StatusConfirmed, ContentAddress: addr}, nil
	}

	if g.breaker != nil && g.breaker.IsOpen() {
		g.metrics.IncrementPending(string(desc.Kind))
		return CommitResult{Status: StatusPending, ContentAddress: addr}, nil
	}

	ref, err := g.ledger.Register(ctx, dfid, addr, desc.Network)
	if err != nil {
		// Content is durably stored; the ledger registration can be
		// retried or confirmed by the watcher. Not a failure.
		span.RecordError(err)
		g.metrics.IncrementLedgerFailure(string(desc.Kind))
		g.metrics.IncrementPending(string(desc.Kind))
		g.recordLedgerFailure()
		g.logger.Warn("ledger registration failed, commit pending",
			"dfid", string(dfid),
			"network", desc.Network,
			"error", err,
		)
		return CommitResult{Status: StatusPending, ContentAddress: addr}, nil
	}

	g.recordLedgerSuccess()
	g.metrics.IncrementConfirmed(string(desc.Kind))
	return CommitResult{Status: StatusConfirmed, ContentAddress: addr, LedgerReference: ref}, nil
}

// RetryLedger re-attempts only the ledger step for a commit left pending.
func (g *Gateway) RetryLedger(ctx context.Context, dfid id.DFID, address string, desc Descriptor) (string, error) {
	if desc.Kind != id.AdapterLedger {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "adapter kind %q has no ledger step", desc.Kind)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "adapter.retry_ledger", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("item.dfid", string(dfid)))

	ref, err := g.ledger.Register(ctx, dfid, address, desc.Network)
	if err != nil {
		span.RecordError(err)
		g.metrics.IncrementLedgerFailure(string(desc.Kind))
		g.recordLedgerFailure()
		return "", dErrors.Wrap(err, dErrors.CodeAdapterLedger, "ledger registration failed")
	}
	g.recordLedgerSuccess()
	g.metrics.IncrementConfirmed(string(desc.Kind))
	return ref, nil
}

func (g *Gateway) recordLedgerFailure() {
	if g.breaker == nil {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.logger.Warn("ledger breaker opened, commits degrade to pending",
			"breaker", g.breaker.Name(),
		)
	}
}

func (g *Gateway) recordLedgerSuccess() {
	if g.breaker == nil {
		return
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.Info("ledger breaker closed", "breaker", g.breaker.Name())
	}
}
