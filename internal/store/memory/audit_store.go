package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// AuditStore is an append-only in-process audit log.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	now     func() time.Time
}

func NewAuditStore() *AuditStore {
	return &AuditStore{now: func() time.Time { return time.Now().UTC() }}
}

var _ domain.AuditStore = (*AuditStore)(nil)

func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, domain.AuditEntry{
		ID:        int64(len(s.entries) + 1),
		Event:     event,
		Detail:    maps.Clone(detail),
		CreatedAt: s.now(),
	})
	return nil
}

// List returns entries newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	out := make([]domain.AuditEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if inWindow(e.CreatedAt, opts) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	slices.Reverse(out)
	return paginate(out, opts.Offset, opts.Limit), nil
}
