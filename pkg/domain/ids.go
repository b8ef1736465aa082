// Package domain defines typed identifiers and shared value types.
//
// IDs are distinct types over uuid.UUID so the compiler rejects cross-type
// assignment (a CircuitID can never be passed where a MemberID is expected).
// Parse helpers enforce the trust-boundary invariant: IDs must be valid,
// non-nil UUIDs.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "attestor/pkg/domain-errors"
)

type (
	// CircuitID identifies a circuit (membership-scoped workspace).
	CircuitID uuid.UUID
	// MemberID identifies an authenticated caller / circuit member.
	MemberID uuid.UUID
	// LocalItemID identifies a pre-commitment staging record.
	LocalItemID uuid.UUID
)

// DFID is the stable external identifier of a deduplicated item. It is
// allocated once per real-world entity and never rebound. The df_ prefix plus
// UUIDv7 hex makes DFIDs lexicographically sortable by creation time.
type DFID string

const dfidPrefix = "df_"

// NewDFID allocates a fresh, creation-time-sortable DFID.
func NewDFID() (DFID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "allocate dfid")
	}
	return DFID(dfidPrefix + strings.ReplaceAll(u.String(), "-", "")), nil
}

// ParseDFID validates the df_<32 hex> shape.
func ParseDFID(s string) (DFID, error) {
	if !strings.HasPrefix(s, dfidPrefix) || len(s) != len(dfidPrefix)+32 {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid dfid %q", s)
	}
	for _, c := range s[len(dfidPrefix):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid dfid %q", s)
		}
	}
	return DFID(s), nil
}

func (d DFID) String() string { return string(d) }

// IsNil reports whether the id is the zero UUID.
func (c CircuitID) IsNil() bool   { return uuid.UUID(c) == uuid.Nil }
func (m MemberID) IsNil() bool    { return uuid.UUID(m) == uuid.Nil }
func (l LocalItemID) IsNil() bool { return uuid.UUID(l) == uuid.Nil }

func (c CircuitID) String() string   { return uuid.UUID(c).String() }
func (m MemberID) String() string    { return uuid.UUID(m).String() }
func (l LocalItemID) String() string { return uuid.UUID(l).String() }

// ParseCircuitID parses and validates a circuit id.
func ParseCircuitID(s string) (CircuitID, error) {
	u, err := parseUUID(s, "circuit id")
	return CircuitID(u), err
}

// ParseMemberID parses and validates a member id.
func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID(s, "member id")
	return MemberID(u), err
}

// ParseLocalItemID parses and validates a local item id.
func ParseLocalItemID(s string) (LocalItemID, error) {
	u, err := parseUUID(s, "local item id")
	return LocalItemID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is required", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s %q", what, s)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s must not be nil", what)
	}
	return u, nil
}
