package persistence

import (
	"context"
	"sync"

	"github.com/chainproof-io/chainproof/internal/domain"
	apperrors "github.com/chainproof-io/chainproof/internal/errors"
)

// MemoryChainStore is a mutex-guarded in-memory ChainStore for tests
// and development mode. Sequence IDs are allocated contiguously from 1.
type MemoryChainStore struct {
	mu      sync.Mutex
	entries []*domain.LogEntry
}

func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{}
}

func (s *MemoryChainStore) tip() string {
	if len(s.entries) == 0 {
		return domain.GenesisHash
	}
	return s.entries[len(s.entries)-1].CurrHash
}

func (s *MemoryChainStore) AppendIfTip(_ context.Context, expectedPrevHash string, entry *domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tip() != expectedPrevHash {
		return apperrors.ErrTipConflict
	}
	entry.SequenceID = int64(len(s.entries)) + 1
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryChainStore) LatestHash(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip(), nil
}

func (s *MemoryChainStore) ScanAll(ctx context.Context, fn func(*domain.LogEntry) error) error {
	s.mu.Lock()
	snapshot := make([]*domain.LogEntry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.Unlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryChainStore) Ping(context.Context) error { return nil }

// Len returns the number of appended entries.
func (s *MemoryChainStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
