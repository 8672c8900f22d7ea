package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// AttestationStore keeps the attestation used for each round.
type AttestationStore struct {
	mu    sync.RWMutex
	items map[domain.RoundKey]domain.StoredAttestation
}

func NewAttestationStore() *AttestationStore {
	return &AttestationStore{items: make(map[domain.RoundKey]domain.StoredAttestation)}
}

var _ domain.AttestationStore = (*AttestationStore)(nil)

func (s *AttestationStore) Save(_ context.Context, key domain.RoundKey, att domain.Attestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = domain.StoredAttestation{Round: key, Attestation: att, CreatedAt: time.Now().UTC()}
	return nil
}

func (s *AttestationStore) Get(_ context.Context, key domain.RoundKey) (domain.StoredAttestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[key]
	if !ok {
		return domain.StoredAttestation{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *AttestationStore) List(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.StoredAttestation, error) {
	s.mu.RLock()
	var out []domain.StoredAttestation
	for k, a := range s.items {
		if marketID == "" || k.MarketID == marketID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Round.MarketID != out[j].Round.MarketID {
			return out[i].Round.MarketID < out[j].Round.MarketID
		}
		return out[i].Round.Number > out[j].Round.Number
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}
