// Package push implements the push→publish state machine: moving a staged
// submission through identity resolution, adapter commit, and circuit
// membership into the circuit's published list.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attestor/internal/adapter"
	circuitmodels "attestor/internal/circuit/models"
	circuitservice "attestor/internal/circuit/service"
	circuitstore "attestor/internal/circuit/store"
	itemmodels "attestor/internal/item/models"
	itemservice "attestor/internal/item/service"
	provmodels "attestor/internal/provenance/models"
	provstore "attestor/internal/provenance/store"
	pushmetrics "attestor/internal/push/metrics"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/requestcontext"
)

// Outcome classifies a completed push for the caller.
type Outcome string

const (
	// OutcomeNewItemCreated: the submission resolved to a fresh dfid.
	OutcomeNewItemCreated Outcome = "new_item_created"
	// OutcomeEnriched: the submission merged into an existing item.
	OutcomeEnriched Outcome = "enriched"
	// OutcomePending: committed content awaits ledger confirmation.
	OutcomePending Outcome = "pending"
	// OutcomePendingApproval: the circuit gates pushes; no commit ran yet.
	OutcomePendingApproval Outcome = "pending_approval"
)

// Result is the outcome of a push handed back to the caller.
type Result struct {
	DFID            id.DFID                  `json:"dfid"`
	Outcome         Outcome                  `json:"outcome"`
	State           circuitmodels.ItemState  `json:"state"`
	ContentAddress  string                   `json:"content_address,omitempty"`
	LedgerReference string                   `json:"ledger_reference,omitempty"`
	Published       bool                     `json:"published"`
}

// HistoryPublisher emits storage-history events to downstream consumers.
// Publishing is fire-and-forget from the push path.
type HistoryPublisher interface {
	PublishHistoryRecord(ctx context.Context, record *provmodels.StorageHistoryRecord) error
}

// ConfirmLedgerEvent is a ledger-watcher observation of a registration
// landing on chain.
type ConfirmLedgerEvent struct {
	DFID            id.DFID        `json:"dfid"`
	AdapterKind     id.AdapterKind `json:"adapter_kind"`
	ContentAddress  string         `json:"content_address"`
	LedgerReference string         `json:"ledger_reference"`
	Network         string         `json:"network,omitempty"`
	ObservedAt      time.Time      `json:"observed_at"`
}

// Service orchestrates pushes. The external commit is awaited before any
// circuit state changes; the circuit item and its publish decision then land
// in one guarded circuit mutation, so readers never observe a pushed item
// whose auto-publish is still in flight.
type Service struct {
	resolver *itemservice.Service
	registry *circuitservice.Service
	circuits circuitstore.Store
	history  provstore.Store
	gateway  *adapter.Gateway
	adapters *adapter.Registry

	publisher HistoryPublisher
	metrics   *pushmetrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option customizes the service.
type Option func(*Service)

// WithMetrics attaches push metrics.
func WithMetrics(m *pushmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithHistoryPublisher attaches the downstream event publisher.
func WithHistoryPublisher(p HistoryPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates the push service.
func NewService(
	resolver *itemservice.Service,
	registry *circuitservice.Service,
	circuits circuitstore.Store,
	history provstore.Store,
	gateway *adapter.Gateway,
	adapters *adapter.Registry,
	opts ...Option,
) *Service {
	s := &Service{
		resolver: resolver,
		registry: registry,
		circuits: circuits,
		history:  history,
		gateway:  gateway,
		adapters: adapters,
		logger:   slog.Default(),
		tracer:   otel.Tracer("attestor/push"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push moves a staged submission into a circuit. Resolution and the adapter
// commit happen before the circuit mutation; when the circuit requires
// approval the commit is deferred until an owner or admin approves.
func (s *Service) Push(ctx context.Context, localID id.LocalItemID, circuitID id.CircuitID) (Result, error) {
	caller := requestcontext.CallerID(ctx)
	tier := requestcontext.CallerTier(ctx)
	now := requestcontext.Now(ctx)

	ctx, span := s.tracer.Start(ctx, "push.push", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()
	span.SetAttributes(attribute.String("circuit.id", circuitID.String()))

	local, err := s.resolver.GetLocalItem(ctx, localID)
	if err != nil {
		return Result{}, err
	}
	if local.Owner != caller {
		return Result{}, dErrors.New(dErrors.CodePermissionDenied, "local item belongs to another member")
	}

	// Authorization runs before resolution and before any external call:
	// a denied push leaves no trace anywhere.
	cfg, err := s.registry.AuthorizePush(ctx, circuitID, caller, tier)
	if err != nil {
		return Result{}, err
	}
	desc, err := s.adapters.Resolve(cfg.Kind, cfg.Network)
	if err != nil {
		return Result{}, err
	}

	res, err := s.resolver.Resolve(ctx, local.Identifiers, local.EnrichedData)
	if err != nil {
		return Result{}, err
	}
	dfid := res.Item.DFID
	span.SetAttributes(attribute.String("item.dfid", string(dfid)))

	circuit, err := s.registry.GetCircuit(ctx, circuitID)
	if err != nil {
		return Result{}, err
	}
	if circuit.RequirePushApproval && !circuit.CanDecideMembers(caller) {
		return s.stagePendingApproval(ctx, circuitID, dfid, caller, now)
	}

	commit, err := s.gateway.Commit(ctx, dfid, commitPayload(res.Item), desc)
	if err != nil {
		return Result{}, err
	}
	return s.recordCommit(ctx, circuitID, dfid, caller, desc, commit, resolveOutcome(res.Outcome), now)
}

// Approve runs the deferred commit for a gated push, exactly like a direct
// push would have.
func (s *Service) Approve(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) (Result, error) {
	caller := requestcontext.CallerID(ctx)
	now := requestcontext.Now(ctx)

	circuit, err := s.registry.GetCircuit(ctx, circuitID)
	if err != nil {
		return Result{}, err
	}
	if !circuit.CanDecideMembers(caller) {
		return Result{}, dErrors.New(dErrors.CodePermissionDenied, "only owners and admins can approve pushes")
	}
	ci, ok := circuit.ItemInState(dfid, circuitmodels.ItemPendingApproval)
	if !ok {
		return Result{}, dErrors.Newf(dErrors.CodeConflict, "no push awaiting approval for %s", dfid)
	}

	item, err := s.resolver.GetItem(ctx, dfid)
	if err != nil {
		return Result{}, err
	}
	desc, err := s.adapters.Resolve(circuit.AdapterConfig.Kind, circuit.AdapterConfig.Network)
	if err != nil {
		return Result{}, err
	}

	commit, err := s.gateway.Commit(ctx, dfid, commitPayload(item), desc)
	if err != nil {
		return Result{}, err
	}
	s.metrics.IncrementDecision("approve")

	// Credit the push to the member who staged it, not the approver.
	return s.recordCommit(ctx, circuitID, dfid, ci.PushedBy, desc, commit, OutcomeEnriched, now)
}

// Reject terminates a gated push. Terminal; a fresh push may try again.
func (s *Service) Reject(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) error {
	caller := requestcontext.CallerID(ctx)
	now := requestcontext.Now(ctx)

	_, err := s.circuits.Execute(ctx, circuitID,
		func(c *circuitmodels.Circuit) error {
			if !c.CanDecideMembers(caller) {
				return dErrors.New(dErrors.CodePermissionDenied, "only owners and admins can reject pushes")
			}
			return nil
		},
		func(c *circuitmodels.Circuit) error {
			return c.Reject(dfid, now)
		},
	)
	if err != nil {
		return err
	}
	s.metrics.IncrementDecision("reject")
	return nil
}

// Publish adds a pushed item to the circuit's published list. Idempotent.
func (s *Service) Publish(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) error {
	caller := requestcontext.CallerID(ctx)
	now := requestcontext.Now(ctx)

	var changed bool
	_, err := s.circuits.Execute(ctx, circuitID,
		func(c *circuitmodels.Circuit) error {
			if !c.CanDecideMembers(caller) {
				return dErrors.New(dErrors.CodePermissionDenied, "only owners and admins can publish")
			}
			return nil
		},
		func(c *circuitmodels.Circuit) error {
			var err error
			changed, err = c.Publish(dfid, now)
			return err
		},
	)
	if err != nil {
		return err
	}
	if changed {
		s.metrics.IncrementPublishToggle("publish")
	}
	return nil
}

// Unpublish removes list membership only; the circuit item and its history
// persist. Idempotent.
func (s *Service) Unpublish(ctx context.Context, circuitID id.CircuitID, dfid id.DFID) error {
	caller := requestcontext.CallerID(ctx)
	now := requestcontext.Now(ctx)

	var changed bool
	_, err := s.circuits.Execute(ctx, circuitID,
		func(c *circuitmodels.Circuit) error {
			if !c.CanDecideMembers(caller) {
				return dErrors.New(dErrors.CodePermissionDenied, "only owners and admins can unpublish")
			}
			return nil
		},
		func(c *circuitmodels.Circuit) error {
			changed = c.Unpublish(dfid, now)
			return nil
		},
	)
	if err != nil {
		return err
	}
	if changed {
		s.metrics.IncrementPublishToggle("unpublish")
	}
	return nil
}

// History returns an item's provenance timeline.
func (s *Service) History(ctx context.Context, dfid id.DFID) ([]*provmodels.StorageHistoryRecord, error) {
	if _, err := id.ParseDFID(string(dfid)); err != nil {
		return nil, err
	}
	records, err := s.history.ListByDFID(ctx, dfid)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load history")
	}
	return records, nil
}

// ConfirmLedger applies a ledger-watcher observation: record the provenance
// entry once and move every pending circuit item for the dfid to pushed.
// Duplicate observations of the same reference are no-ops.
func (s *Service) ConfirmLedger(ctx context.Context, event ConfirmLedgerEvent) error {
	record := &provmodels.StorageHistoryRecord{
		DFID:            event.DFID,
		AdapterKind:     event.AdapterKind,
		ContentAddress:  event.ContentAddress,
		LedgerReference: event.LedgerReference,
		Network:         event.Network,
		StoredAt:        event.ObservedAt,
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if record.LedgerReference == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "confirmation requires a ledger reference")
	}
	added, err := s.history.Upsert(ctx, record)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record confirmation")
	}
	if added {
		s.metrics.IncrementLedgerConfirmations()
	}

	for _, circuitID := range s.circuits.CircuitsWithItem(ctx, event.DFID) {
		_, err := s.circuits.Execute(ctx, circuitID, nil, func(c *circuitmodels.Circuit) error {
			if !c.ConfirmLedger(event.DFID, event.ObservedAt) {
				return nil
			}
			if c.PublicSettings.AutoPublishPushedItems {
				if _, err := c.Publish(event.DFID, event.ObservedAt); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.logger.Error("ledger confirmation fan-out failed",
				"dfid", string(event.DFID),
				"circuit_id", circuitID.String(),
				"error", err,
			)
		}
	}
	return nil
}

func (s *Service) stagePendingApproval(ctx context.Context, circuitID id.CircuitID, dfid id.DFID, caller id.MemberID, now time.Time) (Result, error) {
	_, err := s.circuits.Execute(ctx, circuitID, nil, func(c *circuitmodels.Circuit) error {
		return c.AddItem(&circuitmodels.CircuitItem{
			CircuitID: circuitID,
			DFID:      dfid,
			PushedBy:  caller,
			PushedAt:  now,
			State:     circuitmodels.ItemPendingApproval,
		})
	})
	if err != nil {
		return Result{}, err
	}
	s.metrics.IncrementPushes(string(OutcomePendingApproval))
	return Result{DFID: dfid, Outcome: OutcomePendingApproval, State: circuitmodels.ItemPendingApproval}, nil
}

// recordCommit lands the circuit item, the publish decision, and the history
// record after an awaited commit. The circuit item state and the published
// list flip inside one store mutation reading settings fresh under the
// guard.
func (s *Service) recordCommit(ctx context.Context, circuitID id.CircuitID, dfid id.DFID, pushedBy id.MemberID, desc adapter.Descriptor, commit adapter.CommitResult, outcome Outcome, now time.Time) (Result, error) {
	state := circuitmodels.ItemPushed
	if commit.Status == adapter.StatusPending {
		state = circuitmodels.ItemPendingLedger
		outcome = OutcomePending
	}

	var published bool
	_, err := s.circuits.Execute(ctx, circuitID, nil, func(c *circuitmodels.Circuit) error {
		if ci, ok := c.ItemInState(dfid, circuitmodels.ItemPendingApproval); ok {
			ci.State = state
			ci.PushedAt = now
		} else if err := c.AddItem(&circuitmodels.CircuitItem{
			CircuitID: circuitID,
			DFID:      dfid,
			PushedBy:  pushedBy,
			PushedAt:  now,
			State:     state,
		}); err != nil {
			return err
		}
		// Auto-publish only fully confirmed commits; pending items join the
		// list when the watcher confirms them.
		if state == circuitmodels.ItemPushed && c.PublicSettings.AutoPublishPushedItems {
			changed, err := c.Publish(dfid, now)
			if err != nil {
				return err
			}
			published = changed || published
		}
		if _, ok := c.PublicSettings.PublishedItems[dfid]; ok {
			published = true
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	record := &provmodels.StorageHistoryRecord{
		DFID:            dfid,
		AdapterKind:     desc.Kind,
		ContentAddress:  commit.ContentAddress,
		LedgerReference: commit.LedgerReference,
		Network:         desc.Network,
		TriggeredBy:     pushedBy,
		StoredAt:        now,
	}
	if err := s.history.Append(ctx, record); err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record push history")
	}
	s.metrics.IncrementPushes(string(outcome))

	if commit.Status == adapter.StatusConfirmed {
		s.publishHistoryEvent(ctx, record)
	}

	return Result{
		DFID:            dfid,
		Outcome:         outcome,
		State:           state,
		ContentAddress:  commit.ContentAddress,
		LedgerReference: commit.LedgerReference,
		Published:       published,
	}, nil
}

func (s *Service) publishHistoryEvent(ctx context.Context, record *provmodels.StorageHistoryRecord) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishHistoryRecord(ctx, record.Clone()); err != nil {
		s.logger.Warn("storage-history event publish failed",
			"dfid", string(record.DFID),
			"error", err,
		)
	}
}

// commitPayload is the canonical serialization committed to the content
// store. json.Marshal sorts map keys, so equal items always hash to the
// same address.
func commitPayload(item *itemmodels.Item) []byte {
	payload, err := json.Marshal(item)
	if err != nil {
		// Items are built from decoded JSON; marshal cannot fail on them.
		panic(err)
	}
	return payload
}

func resolveOutcome(outcome itemmodels.ResolveOutcome) Outcome {
	if outcome == itemmodels.OutcomeNewItemCreated {
		return OutcomeNewItemCreated
	}
	return OutcomeEnriched
}
