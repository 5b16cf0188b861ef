package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/utafrali/EcommerceGo/pkg/cartsync/domain"
	"github.com/utafrali/EcommerceGo/pkg/logger"
)

// MemoryStore keeps the encoded snapshot in process memory. It goes through
// the same encoding as the durable backends, so it also catches values that
// would not survive a restart.
type MemoryStore struct {
	mu     sync.Mutex
	data   []byte
	saves  int
	logger *slog.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(l *slog.Logger) *MemoryStore {
	return &MemoryStore{logger: logger.OrDefault(l)}
}

// Load decodes the last saved snapshot.
func (s *MemoryStore) Load(ctx context.Context) (domain.Snapshot, error) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()

	if data == nil {
		return domain.Snapshot{}, nil
	}
	return decodeOrEmpty(ctx, s.logger, "memory", data), nil
}

// Save encodes and keeps snap.
func (s *MemoryStore) Save(_ context.Context, snap domain.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// SetRaw replaces the stored payload verbatim.
func (s *MemoryStore) SetRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
}
