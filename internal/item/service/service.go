// Package service implements the identity resolver: it decides whether a
// submission is a new real-world record or an enrichment of one already
// registered, keyed on canonical identifiers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	itemmetrics "attestor/internal/item/metrics"
	"attestor/internal/item/models"
	"attestor/internal/item/store"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/sentinel"
	"attestor/pkg/requestcontext"
)

// Service orchestrates item staging and identity resolution.
type Service struct {
	items   store.Store
	locals  store.LocalStore
	metrics *itemmetrics.Metrics
	logger  *slog.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithMetrics attaches resolver metrics.
func WithMetrics(m *itemmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates the identity resolver service.
func NewService(items store.Store, locals store.LocalStore, opts ...Option) *Service {
	s := &Service{items: items, locals: locals, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLocalItem stages a submission for a later push. Validation failures
// are rejected synchronously and never retried.
func (s *Service) CreateLocalItem(ctx context.Context, owner id.MemberID, identifiers []models.Identifier, enriched map[string]any) (*models.LocalItem, error) {
	local, err := models.NewLocalItem(owner, identifiers, enriched, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.locals.Create(ctx, local); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to stage local item")
	}
	return local, nil
}

// GetLocalItem returns a staged submission.
func (s *Service) GetLocalItem(ctx context.Context, localID id.LocalItemID) (*models.LocalItem, error) {
	local, err := s.locals.FindByID(ctx, localID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "local item not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load local item")
	}
	return local, nil
}

// Resolve maps a submission onto a dfid: enrich the existing item when its
// canonical identifiers are already bound, allocate a fresh dfid otherwise.
// An identifier set matching more than one dfid fails with an identity
// conflict naming the clashing identifiers; the resolver never guesses.
func (s *Service) Resolve(ctx context.Context, identifiers []models.Identifier, enriched map[string]any) (models.ResolveResult, error) {
	start := time.Now()
	if err := models.ValidateIdentifiers(identifiers); err != nil {
		return models.ResolveResult{}, err
	}

	res, err := s.items.Resolve(ctx, identifiers, enriched, requestcontext.Now(ctx))
	if err != nil {
		var conflict *models.IdentityConflictError
		if errors.As(err, &conflict) {
			s.incrementConflicts()
			return models.ResolveResult{}, dErrors.Wrap(err, dErrors.CodeIdentityConflict, conflict.Error())
		}
		if errors.Is(err, sentinel.ErrConflict) {
			s.incrementConflicts()
			return models.ResolveResult{}, dErrors.Wrap(err, dErrors.CodeIdentityConflict, "concurrent resolution bound a conflicting identifier")
		}
		return models.ResolveResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve identifiers")
	}

	switch res.Outcome {
	case models.OutcomeNewItemCreated:
		s.incrementCreated()
	case models.OutcomeEnriched:
		s.incrementEnriched()
	}
	s.observeResolve(start)
	return res, nil
}

// GetItem returns a deduplicated item by dfid.
func (s *Service) GetItem(ctx context.Context, dfid id.DFID) (*models.Item, error) {
	item, err := s.items.FindByDFID(ctx, dfid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "item not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load item")
	}
	return item, nil
}

// DeprecateItem flags an item as deprecated. Terminal; the item, its history,
// and its circuit relations all persist for audit.
func (s *Service) DeprecateItem(ctx context.Context, dfid id.DFID) (*models.Item, error) {
	now := requestcontext.Now(ctx)
	item, err := s.items.Execute(ctx, dfid,
		func(it *models.Item) error {
			if err := it.CanDeprecate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "item is already deprecated")
			}
			return nil
		},
		func(it *models.Item) {
			it.ApplyDeprecation(now)
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "item not found")
		}
		return nil, err
	}
	return item, nil
}

func (s *Service) incrementCreated() {
	if s.metrics != nil {
		s.metrics.IncrementItemsCreated()
	}
}

func (s *Service) incrementEnriched() {
	if s.metrics != nil {
		s.metrics.IncrementItemsEnriched()
	}
}

func (s *Service) incrementConflicts() {
	if s.metrics != nil {
		s.metrics.IncrementIdentityConflicts()
	}
}

func (s *Service) observeResolve(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveResolve(start)
	}
}
