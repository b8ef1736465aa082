package domain

import dErrors "attestor/pkg/domain-errors"

// AdapterKind names an external-commit backend shape. The set is closed:
// adapters are tagged variants dispatched through a capability descriptor,
// not an open-ended plugin hierarchy.
type AdapterKind string

const (
	// AdapterContent uploads the payload to a content-addressed store and
	// returns its address. Identical payloads share an address, which makes
	// the commit idempotent for free.
	AdapterContent AdapterKind = "content"
	// AdapterLedger performs the content step, then registers the
	// (dfid → content address) binding on a smart-contract ledger network.
	AdapterLedger AdapterKind = "ledger"
)

// Valid reports whether k names a known adapter kind.
func (k AdapterKind) Valid() bool {
	return k == AdapterContent || k == AdapterLedger
}

// ParseAdapterKind validates an adapter kind from a trust boundary.
func ParseAdapterKind(s string) (AdapterKind, error) {
	k := AdapterKind(s)
	if !k.Valid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown adapter kind %q", s)
	}
	return k, nil
}
