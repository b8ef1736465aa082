package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	id "attestor/pkg/domain"
)

// LedgerClient registers (dfid → content address) bindings on a
// smart-contract ledger. Register is last-writer-wins keyed by dfid on the
// contract side, so replays are idempotent.
type LedgerClient interface {
	Register(ctx context.Context, dfid id.DFID, address, network string) (reference string, err error)
}

// HTTPLedgerClient talks to a ledger relay service that submits contract
// transactions on the caller's behalf.
type HTTPLedgerClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLedgerClient creates a client for a ledger relay.
func NewHTTPLedgerClient(baseURL string, timeout time.Duration) *HTTPLedgerClient {
	return &HTTPLedgerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPLedgerClient) Register(ctx context.Context, dfid id.DFID, address, network string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"dfid":    string(dfid),
		"address": address,
		"network": network,
	})
	if err != nil {
		return "", fmt.Errorf("marshal ledger registration: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/registrations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ledger register: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("ledger register: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ledger response: %w", err)
	}
	if out.Reference == "" {
		return "", fmt.Errorf("ledger register: empty reference")
	}
	return out.Reference, nil
}

var _ LedgerClient = (*HTTPLedgerClient)(nil)

// MemoryLedger is an in-process ledger fake for tests and local runs.
// References are deterministic per (dfid, address) so replays converge.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[id.DFID]string

	// Err, when set, makes Register fail. Used to exercise the degraded
	// ledger path in tests.
	Err error
}

// NewMemoryLedger creates an empty in-process ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[id.DFID]string)}
}

func (l *MemoryLedger) Register(_ context.Context, dfid id.DFID, address, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return "", l.Err
	}
	l.entries[dfid] = address
	return "ref-" + ContentAddress([]byte(string(dfid)+address))[7:19], nil
}

// Address returns the currently registered address for a dfid.
func (l *MemoryLedger) Address(dfid id.DFID) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	addr, ok := l.entries[dfid]
	return addr, ok
}

var _ LedgerClient = (*MemoryLedger)(nil)
