// Package adapter implements the external-commit gateway: a pluggable
// content-addressed store plus an optional smart-contract ledger, selected
// per circuit by adapter kind.
package adapter

//go:generate mockgen -destination=mocks/mocks.go -package=mocks attestor/internal/adapter ContentStore,LedgerClient

import (
	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// Descriptor describes one configured adapter backend.
type Descriptor struct {
	Kind id.AdapterKind
	// MinTier is the adapter's own floor. Circuits may require more but
	// never less; sponsorship bypasses the caller check, not this floor's
	// presence in circuit validation.
	MinTier id.Tier
	// Network names the ledger network for ledger adapters; empty for
	// content-only adapters.
	Network string
}

// Registry resolves adapter descriptors by kind.
type Registry struct {
	byKind map[id.AdapterKind]Descriptor
}

// NewRegistry creates a registry over the given descriptors. Later
// descriptors for the same kind replace earlier ones.
func NewRegistry(descriptors ...Descriptor) *Registry {
	r := &Registry{byKind: make(map[id.AdapterKind]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		r.byKind[d.Kind] = d
	}
	return r
}

// Resolve returns the descriptor for a kind and network. An unknown kind is
// a caller error: circuits are validated against this registry at creation.
func (r *Registry) Resolve(kind id.AdapterKind, network string) (Descriptor, error) {
	d, ok := r.byKind[kind]
	if !ok {
		return Descriptor{}, dErrors.Newf(dErrors.CodeInvalidInput, "no adapter registered for kind %q", kind)
	}
	if network != "" {
		d.Network = network
	}
	return d, nil
}

// DefaultRegistry returns descriptors for the two built-in adapter kinds.
func DefaultRegistry(ledgerNetwork string) *Registry {
	return NewRegistry(
		Descriptor{Kind: id.AdapterContent, MinTier: id.TierBasic},
		Descriptor{Kind: id.AdapterLedger, MinTier: id.TierProfessional, Network: ledgerNetwork},
	)
}
