package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "attestor/pkg/domain-errors"
)

// HTTPContentStore talks to a hosted content-addressed storage service.
// The service owns address derivation; the client verifies the returned
// address matches the local digest to catch payload corruption in transit.
type HTTPContentStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPContentStore creates a client for a hosted content store.
func NewHTTPContentStore(baseURL string, timeout time.Duration) *HTTPContentStore {
	return &HTTPContentStore{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPContentStore) Put(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/objects", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build content put request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("content put: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("content put: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode content put response: %w", err)
	}
	if want := ContentAddress(payload); body.Address != want {
		return "", fmt.Errorf("content store returned address %s, expected %s", body.Address, want)
	}
	return body.Address, nil
}

func (s *HTTPContentStore) Get(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/objects/"+address, nil)
	if err != nil {
		return nil, fmt.Errorf("build content get request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no content at %s", address)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content get: unexpected status %d", resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read content body: %w", err)
	}
	return payload, nil
}

var _ ContentStore = (*HTTPContentStore)(nil)
