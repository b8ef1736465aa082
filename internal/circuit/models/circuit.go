package models

import (
	"strings"
	"time"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Role is a member's role inside a circuit.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// MemberStatus tracks the join workflow.
type MemberStatus string

const (
	MemberPending  MemberStatus = "pending"
	MemberApproved MemberStatus = "approved"
	MemberDenied   MemberStatus = "denied"
)

// Member is one circuit membership entry.
type Member struct {
	ID       id.MemberID  `json:"id"`
	Role     Role         `json:"role"`
	Status   MemberStatus `json:"status"`
	CanPush  bool         `json:"can_push"`
	JoinedAt time.Time    `json:"joined_at"`
}

// AccessMode controls outside visibility of a circuit's published list.
type AccessMode string

const (
	AccessPrivate   AccessMode = "private"
	AccessProtected AccessMode = "protected"
	AccessScheduled AccessMode = "scheduled"
	AccessPublic    AccessMode = "public"
)

// Valid reports whether m is a known access mode.
func (m AccessMode) Valid() bool {
	switch m {
	case AccessPrivate, AccessProtected, AccessScheduled, AccessPublic:
		return true
	}
	return false
}

// AdapterConfig selects and gates the circuit's external-commit backend.
type AdapterConfig struct {
	Kind id.AdapterKind `json:"kind"`
	// TierRequirement is the minimum caller tier for pushes through this
	// circuit's adapter.
	TierRequirement id.Tier `json:"tier_requirement"`
	// SponsorAdapterAccess lets any approved member push regardless of tier:
	// the circuit sponsors the commit. Fully overrides the tier check.
	SponsorAdapterAccess bool   `json:"sponsor_adapter_access"`
	Network              string `json:"network"`
}

// PublicSettings is the externally visible sub-document of a circuit. It is
// always replaced wholesale, never field-patched, so a push deciding whether
// to auto-publish can only ever observe a complete, current value.
type PublicSettings struct {
	AccessMode             AccessMode               `json:"access_mode"`
	AutoPublishPushedItems bool                     `json:"auto_publish_pushed_items"`
	PublishedItems         map[id.DFID]struct{}     `json:"published_items"`
}

// PublishedList returns the published dfids as a slice.
func (p PublicSettings) PublishedList() []id.DFID {
	out := make([]id.DFID, 0, len(p.PublishedItems))
	for dfid := range p.PublishedItems {
		out = append(out, dfid)
	}
	return out
}

// Circuit is the aggregate root for a membership-scoped workspace.
//
// Invariants:
//   - the owner is always an approved member
//   - PublishedItems ⊆ {dfid : Items[dfid] exists}; publish never outruns push
//   - CircuitItems and history records persist even after unpublish;
//     unpublish only removes list membership
//
// The items relation lives inside the aggregate so one store mutation can
// create a circuit item and update the published set with no observable
// window between them.
type Circuit struct {
	ID                 id.CircuitID              `json:"id"`
	Name               string                    `json:"name"`
	Owner              id.MemberID               `json:"owner"`
	Members            map[id.MemberID]*Member   `json:"members"`
	Items              map[id.DFID]*CircuitItem  `json:"items"`
	AdapterConfig      AdapterConfig             `json:"adapter_config"`
	PublicSettings     PublicSettings            `json:"public_settings"`
	AutoApproveMembers bool                      `json:"auto_approve_members"`
	RequirePushApproval bool                     `json:"require_push_approval"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// NewCircuit creates a circuit with its owner as the first approved member.
func NewCircuit(circuitID id.CircuitID, name string, owner id.MemberID, cfg AdapterConfig, now time.Time) (*Circuit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "circuit name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "circuit name must be 128 characters or less")
	}
	if owner.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "circuit owner is required")
	}
	if !cfg.Kind.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown adapter kind %q", cfg.Kind)
	}
	if !cfg.TierRequirement.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown tier requirement %q", cfg.TierRequirement)
	}
	return &Circuit{
		ID:    circuitID,
		Name:  name,
		Owner: owner,
		Members: map[id.MemberID]*Member{
			owner: {ID: owner, Role: RoleOwner, Status: MemberApproved, CanPush: true, JoinedAt: now},
		},
		Items:         make(map[id.DFID]*CircuitItem),
		AdapterConfig: cfg,
		PublicSettings: PublicSettings{
			AccessMode:     AccessPrivate,
			PublishedItems: make(map[id.DFID]struct{}),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApprovedMember returns the member entry when it exists and is approved.
func (c *Circuit) ApprovedMember(memberID id.MemberID) (*Member, bool) {
	m, ok := c.Members[memberID]
	if !ok || m.Status != MemberApproved {
		return nil, false
	}
	return m, true
}

// RequestJoin records a join request. Idempotent: an existing pending or
// approved membership is left untouched. Returns the resulting status.
func (c *Circuit) RequestJoin(memberID id.MemberID, now time.Time) MemberStatus {
	if m, ok := c.Members[memberID]; ok && m.Status != MemberDenied {
		return m.Status
	}
	status := MemberPending
	if c.AutoApproveMembers {
		status = MemberApproved
	}
	c.Members[memberID] = &Member{
		ID:       memberID,
		Role:     RoleMember,
		Status:   status,
		CanPush:  true,
		JoinedAt: now,
	}
	c.UpdatedAt = now
	return status
}

// CanDecideMembers reports whether the actor may approve or deny joins.
func (c *Circuit) CanDecideMembers(actor id.MemberID) bool {
	m, ok := c.ApprovedMember(actor)
	return ok && (m.Role == RoleOwner || m.Role == RoleAdmin)
}

// ApproveMember transitions a membership to approved. Idempotent:
// re-approving an approved member is a no-op and reports false.
func (c *Circuit) ApproveMember(memberID id.MemberID, now time.Time) (bool, error) {
	m, ok := c.Members[memberID]
	if !ok {
		return false, dErrors.New(dErrors.CodeNotFound, "no membership request for member")
	}
	if m.Status == MemberApproved {
		return false, nil
	}
	m.Status = MemberApproved
	c.UpdatedAt = now
	return true, nil
}

// DenyMember transitions a membership to denied. Idempotent like approval.
func (c *Circuit) DenyMember(memberID id.MemberID, now time.Time) (bool, error) {
	m, ok := c.Members[memberID]
	if !ok {
		return false, dErrors.New(dErrors.CodeNotFound, "no membership request for member")
	}
	if memberID == c.Owner {
		return false, dErrors.New(dErrors.CodeInvariantViolation, "circuit owner cannot be denied")
	}
	if m.Status == MemberDenied {
		return false, nil
	}
	m.Status = MemberDenied
	c.UpdatedAt = now
	return true, nil
}

// ValidatePublicSettings checks a replacement settings document against the
// publish invariant before it is applied.
func (c *Circuit) ValidatePublicSettings(settings PublicSettings) error {
	if !settings.AccessMode.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown access mode %q", settings.AccessMode)
	}
	for dfid := range settings.PublishedItems {
		ci, ok := c.Items[dfid]
		if !ok {
			return dErrors.Newf(dErrors.CodeInvalidInput, "cannot publish %s: not pushed to this circuit", dfid)
		}
		if !ci.Publishable() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "cannot publish %s: push is %s", dfid, ci.State)
		}
	}
	return nil
}

// ApplyPublicSettings replaces the public-settings sub-document atomically.
func (c *Circuit) ApplyPublicSettings(settings PublicSettings, now time.Time) {
	if settings.PublishedItems == nil {
		settings.PublishedItems = make(map[id.DFID]struct{})
	}
	c.PublicSettings = settings
	c.UpdatedAt = now
}

// Publish adds a pushed item to the published list. Idempotent. Fails when
// the dfid has no publishable circuit item, preserving published ⊆ pushed.
func (c *Circuit) Publish(dfid id.DFID, now time.Time) (bool, error) {
	ci, ok := c.Items[dfid]
	if !ok {
		return false, dErrors.Newf(dErrors.CodeInvalidInput, "cannot publish %s: not pushed to this circuit", dfid)
	}
	if !ci.Publishable() {
		return false, dErrors.Newf(dErrors.CodeInvalidInput, "cannot publish %s: push is %s", dfid, ci.State)
	}
	if _, published := c.PublicSettings.PublishedItems[dfid]; published {
		return false, nil
	}
	c.PublicSettings.PublishedItems[dfid] = struct{}{}
	c.UpdatedAt = now
	return true, nil
}

// Unpublish removes list membership only; the circuit item and its history
// persist. Idempotent.
func (c *Circuit) Unpublish(dfid id.DFID, now time.Time) bool {
	if _, published := c.PublicSettings.PublishedItems[dfid]; !published {
		return false
	}
	delete(c.PublicSettings.PublishedItems, dfid)
	c.UpdatedAt = now
	return true
}

// Clone returns a deep copy safe to hand out of the store.
func (c *Circuit) Clone() *Circuit {
	cp := *c
	cp.Members = make(map[id.MemberID]*Member, len(c.Members))
	for k, v := range c.Members {
		m := *v
		cp.Members[k] = &m
	}
	cp.Items = make(map[id.DFID]*CircuitItem, len(c.Items))
	for k, v := range c.Items {
		ci := *v
		cp.Items[k] = &ci
	}
	cp.PublicSettings.PublishedItems = make(map[id.DFID]struct{}, len(c.PublicSettings.PublishedItems))
	for k := range c.PublicSettings.PublishedItems {
		cp.PublicSettings.PublishedItems[k] = struct{}{}
	}
	return &cp
}
