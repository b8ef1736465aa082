package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	dErrors "attestor/pkg/domain-errors"
)

// ContentStore is a content-addressed payload store. Put is idempotent:
// writing the same payload twice yields the same address and one copy.
type ContentStore interface {
	Put(ctx context.Context, payload []byte) (address string, err error)
	Get(ctx context.Context, address string) ([]byte, error)
}

// ContentAddress derives the deterministic address of a payload. Addresses
// are "sha256:" plus the lowercase hex digest, so equal payloads always
// collide onto one stored object.
func ContentAddress(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// MemoryContentStore is the in-process backend, used in tests and
// single-node deployments without external storage.
type MemoryContentStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryContentStore creates an empty in-process content store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{objects: make(map[string][]byte)}
}

func (s *MemoryContentStore) Put(_ context.Context, payload []byte) (string, error) {
	addr := ContentAddress(payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[addr]; !ok {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		s.objects[addr] = cp
	}
	return addr, nil
}

func (s *MemoryContentStore) Get(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.objects[address]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no content at %s", address)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, nil
}

// Len reports the number of stored objects.
func (s *MemoryContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ ContentStore = (*MemoryContentStore)(nil)

// FailingContentStore always fails. Used to exercise the gateway's
// content-abort path in tests.
type FailingContentStore struct{}

func (FailingContentStore) Put(context.Context, []byte) (string, error) {
	return "", fmt.Errorf("content store unavailable")
}

func (FailingContentStore) Get(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("content store unavailable")
}
