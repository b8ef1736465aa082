package domain

import dErrors "attestor/pkg/domain-errors"

// Tier is the caller's subscription level used for adapter gating. Ordering
// matters: higher tiers satisfy lower requirements.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierBasic:        1,
	TierProfessional: 2,
	TierEnterprise:   3,
}

// Meets reports whether t satisfies the required tier. Unknown tiers never
// satisfy anything.
func (t Tier) Meets(required Tier) bool {
	tr, ok := tierRank[t]
	if !ok {
		return false
	}
	rr, ok := tierRank[required]
	if !ok {
		return false
	}
	return tr >= rr
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// ParseTier validates a tier string from a trust boundary.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown tier %q", s)
	}
	return t, nil
}
