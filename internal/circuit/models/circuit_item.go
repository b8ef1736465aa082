package models

import (
	"time"

	id "attestor/pkg/domain"
	dErrors "attestor/pkg/domain-errors"
)

// ItemState is the push lifecycle of one (circuit, dfid) relation.
//
// Transitions:
//
//	pending_approval → pushed | pending_ledger (on approval + commit)
//	pending_approval → rejected (terminal)
//	pending_ledger   → pushed (on ledger confirmation)
//
// Pushed and pending_ledger are both reachable directly when no approval is
// required. Published is not a state here: it is membership in the circuit's
// published list, flipped in the same mutation that sets the state.
type ItemState string

const (
	ItemPendingApproval ItemState = "pending_approval"
	ItemPendingLedger   ItemState = "pending_ledger"
	ItemPushed          ItemState = "pushed"
	ItemRejected        ItemState = "rejected"
)

// CircuitItem records that an item was pushed into a circuit.
type CircuitItem struct {
	CircuitID id.CircuitID `json:"circuit_id"`
	DFID      id.DFID      `json:"dfid"`
	PushedBy  id.MemberID  `json:"pushed_by"`
	PushedAt  time.Time    `json:"pushed_at"`
	State     ItemState    `json:"state"`
}

// AddItem records a new circuit item. A live relation for the dfid already
// exists → conflict; a rejected one may be retried and is replaced.
func (c *Circuit) AddItem(ci *CircuitItem) error {
	if existing, ok := c.Items[ci.DFID]; ok && existing.State != ItemRejected {
		return dErrors.Newf(dErrors.CodeConflict, "item %s already pushed to circuit", ci.DFID)
	}
	cp := *ci
	c.Items[ci.DFID] = &cp
	c.UpdatedAt = ci.PushedAt
	return nil
}

// Publishable reports whether the item may appear in the published list.
// Only pushed and pending_ledger qualify: both had their adapter commit run
// and carry history. A pending_approval entry never committed, so publishing
// it would expose a record with no provenance.
func (ci *CircuitItem) Publishable() bool {
	return ci.State == ItemPushed || ci.State == ItemPendingLedger
}

// ItemInState returns the circuit item when it exists in the given state.
func (c *Circuit) ItemInState(dfid id.DFID, state ItemState) (*CircuitItem, bool) {
	ci, ok := c.Items[dfid]
	if !ok || ci.State != state {
		return nil, false
	}
	return ci, true
}

// ConfirmLedger transitions a pending_ledger item to pushed. Idempotent:
// confirming an already-pushed item reports false.
func (c *Circuit) ConfirmLedger(dfid id.DFID, now time.Time) bool {
	ci, ok := c.Items[dfid]
	if !ok || ci.State != ItemPendingLedger {
		return false
	}
	ci.State = ItemPushed
	c.UpdatedAt = now
	return true
}

// Reject terminates a pending approval. Terminal: rejected pushes are never
// retried by the service, only by a fresh push.
func (c *Circuit) Reject(dfid id.DFID, now time.Time) error {
	ci, ok := c.Items[dfid]
	if !ok {
		return dErrors.Newf(dErrors.CodeNotFound, "no pending push for %s", dfid)
	}
	if ci.State != ItemPendingApproval {
		return dErrors.Newf(dErrors.CodeConflict, "push for %s is not awaiting approval", dfid)
	}
	ci.State = ItemRejected
	c.UpdatedAt = now
	return nil
}
