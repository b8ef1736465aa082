// Package service implements the circuit registry: membership, push
// authorization with tier/sponsorship gating, and public-settings management.
package service

import (
	"context"
	"errors"
	"log/slog"

	"attestor/internal/circuit/models"
	"attestor/internal/circuit/store"
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
	"attestor/pkg/platform/sentinel"
	"attestor/pkg/requestcontext"

	"github.com/google/uuid"
)

// Service orchestrates circuit lifecycle and authorization.
type Service struct {
	circuits store.Store
	logger   *slog.Logger
}

// NewService creates the circuit registry service.
func NewService(circuits store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{circuits: circuits, logger: logger}
}

// CreateCircuitParams captures circuit creation input.
type CreateCircuitParams struct {
	Name                string
	AdapterConfig       models.AdapterConfig
	AutoApproveMembers  bool
	RequirePushApproval bool
}

// CreateCircuit creates a circuit owned by the caller.
func (s *Service) CreateCircuit(ctx context.Context, owner id.MemberID, params CreateCircuitParams) (*models.Circuit, error) {
	circuit, err := models.NewCircuit(id.CircuitID(uuid.New()), params.Name, owner, params.AdapterConfig, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	circuit.AutoApproveMembers = params.AutoApproveMembers
	circuit.RequirePushApproval = params.RequirePushApproval
	if err := s.circuits.Create(ctx, circuit); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "circuit already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create circuit")
	}
	return circuit, nil
}

// GetCircuit returns a circuit aggregate.
func (s *Service) GetCircuit(ctx context.Context, circuitID id.CircuitID) (*models.Circuit, error) {
	circuit, err := s.circuits.FindByID(ctx, circuitID)
	if err != nil {
		return nil, wrapCircuitErr(err)
	}
	return circuit, nil
}

// RequestJoin records a join request, auto-approving when the circuit allows
// it. Idempotent for existing pending or approved memberships.
func (s *Service) RequestJoin(ctx context.Context, circuitID id.CircuitID, member id.MemberID) (models.MemberStatus, error) {
	now := requestcontext.Now(ctx)
	var status models.MemberStatus
	_, err := s.circuits.Execute(ctx, circuitID, nil, func(c *models.Circuit) error {
		status = c.RequestJoin(member, now)
		return nil
	})
	if err != nil {
		return "", wrapCircuitErr(err)
	}
	return status, nil
}

// ApproveMember approves a pending membership. Idempotent: re-approving an
// approved member is a no-op.
func (s *Service) ApproveMember(ctx context.Context, circuitID id.CircuitID, actor, member id.MemberID) error {
	now := requestcontext.Now(ctx)
	_, err := s.circuits.Execute(ctx, circuitID,
		func(c *models.Circuit) error {
			if !c.CanDecideMembers(actor) {
				return dErrors.New(dErrors.CodePermissionDenied, "only owners and admins can approve members")
			}
			return nil
		},
		func(c *models.Circuit) error {
			_, err := c.ApproveMember(member, now)
			return err
		},
	)
	return wrapCircuitErr(err)
}

// DenyMember denies a pending membership. Idempotent.
func (s *Service) DenyMember(ctx context.Context, circuitID id.CircuitID, actor, member id.MemberID) error {
	now := requestcontext.Now(ctx)
	_, err := s.circuits.Execute(ctx, circuitID,
		func(c *models.Circuit) error {
			if !c.CanDecideMembers(actor) {
				return dErrors.New(dErrors.CodePermissionDenied, "only owners and admins can deny members")
			}
			return nil
		},
		func(c *models.Circuit) error {
			_, err := c.DenyMember(member, now)
			return err
		},
	)
	return wrapCircuitErr(err)
}

// AuthorizePush decides whether the caller may push through the circuit's
// adapter: the caller must be an approved member with push permission, and
// must meet the adapter's tier requirement unless the circuit sponsors
// adapter access. Runs before any external call so denied callers never
// trigger side effects. Returns the adapter config for descriptor
// resolution.
func (s *Service) AuthorizePush(ctx context.Context, circuitID id.CircuitID, caller id.MemberID, tier id.Tier) (models.AdapterConfig, error) {
	circuit, err := s.circuits.FindByID(ctx, circuitID)
	if err != nil {
		return models.AdapterConfig{}, wrapCircuitErr(err)
	}
	member, ok := circuit.ApprovedMember(caller)
	if !ok {
		return models.AdapterConfig{}, dErrors.New(dErrors.CodePermissionDenied, "caller is not an approved circuit member")
	}
	if !member.CanPush {
		return models.AdapterConfig{}, dErrors.New(dErrors.CodePermissionDenied, "caller does not have push permission in this circuit")
	}
	cfg := circuit.AdapterConfig
	if cfg.SponsorAdapterAccess {
		// Sponsorship fully overrides the tier check.
		return cfg, nil
	}
	if !tier.Meets(cfg.TierRequirement) {
		return models.AdapterConfig{}, dErrors.Newf(dErrors.CodePermissionDenied,
			"adapter requires tier %s and circuit does not sponsor access", cfg.TierRequirement)
	}
	return cfg, nil
}

// SetPublicSettings replaces the public-settings sub-document atomically.
// The replacement is validated against the publish invariant inside the
// circuit's entity guard, and any push racing this call will observe the
// replaced value, never a stale copy.
func (s *Service) SetPublicSettings(ctx context.Context, circuitID id.CircuitID, actor id.MemberID, settings models.PublicSettings) (*models.Circuit, error) {
	now := requestcontext.Now(ctx)
	circuit, err := s.circuits.Execute(ctx, circuitID,
		func(c *models.Circuit) error {
			if !c.CanDecideMembers(actor) {
				return dErrors.New(dErrors.CodePermissionDenied, "only owners and admins can update public settings")
			}
			return c.ValidatePublicSettings(settings)
		},
		func(c *models.Circuit) error {
			c.ApplyPublicSettings(settings, now)
			return nil
		},
	)
	if err != nil {
		return nil, wrapCircuitErr(err)
	}
	return circuit, nil
}

// PublicCircuitInfo is the outward view of a circuit.
type PublicCircuitInfo struct {
	AccessMode             models.AccessMode `json:"access_mode"`
	AutoPublishPushedItems bool              `json:"auto_publish_pushed_items"`
	PublishedItems         []id.DFID         `json:"published_items"`
}

// PublicInfo returns the outward view. Private circuits expose it only to
// approved members.
func (s *Service) PublicInfo(ctx context.Context, circuitID id.CircuitID, caller id.MemberID) (PublicCircuitInfo, error) {
	circuit, err := s.circuits.FindByID(ctx, circuitID)
	if err != nil {
		return PublicCircuitInfo{}, wrapCircuitErr(err)
	}
	if circuit.PublicSettings.AccessMode == models.AccessPrivate {
		if _, ok := circuit.ApprovedMember(caller); !ok {
			return PublicCircuitInfo{}, dErrors.New(dErrors.CodePermissionDenied, "circuit is private")
		}
	}
	return PublicCircuitInfo{
		AccessMode:             circuit.PublicSettings.AccessMode,
		AutoPublishPushedItems: circuit.PublicSettings.AutoPublishPushedItems,
		PublishedItems:         circuit.PublicSettings.PublishedList(),
	}, nil
}

func wrapCircuitErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "circuit not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "circuit store failure")
}
