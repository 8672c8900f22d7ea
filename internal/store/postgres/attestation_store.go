package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// AttestationStore implements domain.AttestationStore using PostgreSQL.
type AttestationStore struct {
	pool *pgxpool.Pool
}

func NewAttestationStore(pool *pgxpool.Pool) *AttestationStore {
	return &AttestationStore{pool: pool}
}

// Save records the attestation used for a round, replacing any earlier one.
func (s *AttestationStore) Save(ctx context.Context, key domain.RoundKey, att domain.Attestation) error {
	doc, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("postgres: encode attestation: %w", err)
	}
	const query = `
		INSERT INTO attestations (market_id, number, round_id, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_id, number) DO UPDATE SET
			round_id   = EXCLUDED.round_id,
			doc        = EXCLUDED.doc,
			created_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, key.MarketID, int64(key.Number), att.RoundID, doc); err != nil {
		return fmt.Errorf("postgres: save attestation %s: %w", key, err)
	}
	return nil
}

func (s *AttestationStore) Get(ctx context.Context, key domain.RoundKey) (domain.StoredAttestation, error) {
	const query = `SELECT doc, created_at FROM attestations WHERE market_id = $1 AND number = $2`
	out := domain.StoredAttestation{Round: key}
	var doc []byte
	err := s.pool.QueryRow(ctx, query, key.MarketID, int64(key.Number)).Scan(&doc, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoredAttestation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StoredAttestation{}, fmt.Errorf("postgres: get attestation %s: %w", key, err)
	}
	if err := json.Unmarshal(doc, &out.Attestation); err != nil {
		return domain.StoredAttestation{}, fmt.Errorf("postgres: decode attestation %s: %w", key, err)
	}
	return out, nil
}

// List returns a market's attestations, newest round first.
func (s *AttestationStore) List(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.StoredAttestation, error) {
	q := newQuery(`SELECT market_id, number, doc, created_at FROM attestations WHERE market_id = $1`)
	q.args = []any{marketID}
	q.window("created_at", opts)
	q.raw(" ORDER BY number DESC")
	q.page(opts.Limit, opts.Offset)

	rows, err := s.pool.Query(ctx, q.sb.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attestations: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredAttestation
	for rows.Next() {
		var (
			sa     domain.StoredAttestation
			number int64
			doc    []byte
		)
		if err := rows.Scan(&sa.Round.MarketID, &number, &doc, &sa.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan attestation: %w", err)
		}
		sa.Round.Number = uint64(number)
		if err := json.Unmarshal(doc, &sa.Attestation); err != nil {
			return nil, fmt.Errorf("postgres: decode attestation: %w", err)
		}
		out = append(out, sa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list attestations rows: %w", err)
	}
	return out, nil
}
