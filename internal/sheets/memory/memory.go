package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/XabSaRon/cashflowr/internal/core"
)

// Store is an in-memory mirror used in tests and local development in place
// of the Google Sheets client.
type Store struct {
	mu    sync.Mutex
	items []core.IncomeRecord
}

func New() *Store {
	return &Store{}
}

// Append stores the record and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, rec core.IncomeRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, rec)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Remove drops the record with the given ID. Missing records are a no-op,
// mirroring the Google client's behaviour.
func (s *Store) Remove(_ context.Context, incomeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.items {
		if rec.ID == incomeID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return nil
}

// Items returns a copy of the mirrored records.
func (s *Store) Items() []core.IncomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.IncomeRecord(nil), s.items...)
}
