package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chigozzdevv/tossr/internal/domain"
)

// RoundArchiver implements domain.Archiver. Settled rounds and the
// attestations behind them are written once as JSON documents:
//
//	rounds/{market}/{number}.json
//	attestations/{round_id}.json
//	transfers/{yyyy-mm-dd}.jsonl
type RoundArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
}

// NewArchiver creates a RoundArchiver. reader and audit may be nil; without
// a reader every call uploads, without audit nothing is logged.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *RoundArchiver {
	return &RoundArchiver{writer: writer, reader: reader, audit: audit}
}

func RoundPath(key domain.RoundKey) string {
	return fmt.Sprintf("rounds/%s/%d.json", key.MarketID, key.Number)
}

func AttestationPath(roundID string) string {
	return "attestations/" + roundID + ".json"
}

func transfersPath(day time.Time) string {
	return "transfers/" + day.UTC().Format("2006-01-02") + ".jsonl"
}

// ArchiveRound uploads a settled round with its bets. Rounds already in the
// bucket are skipped.
func (a *RoundArchiver) ArchiveRound(ctx context.Context, rec domain.RoundRecord) error {
	if rec.Round.Status != domain.RoundSettled {
		return fmt.Errorf("s3blob: archive round %s: %w", rec.Round.Key(), domain.ErrInvalidState)
	}
	path := RoundPath(rec.Round.Key())
	uploaded, err := a.putOnce(ctx, path, rec)
	if err != nil {
		return err
	}
	if uploaded {
		a.log(ctx, "archive.round", map[string]any{
			"path":   path,
			"bets":   len(rec.Bets),
			"status": rec.Round.Status.String(),
		})
	}
	return nil
}

func (a *RoundArchiver) ArchiveAttestation(ctx context.Context, att domain.Attestation) error {
	if att.RoundID == "" {
		return fmt.Errorf("s3blob: archive attestation: empty round id")
	}
	path := AttestationPath(att.RoundID)
	uploaded, err := a.putOnce(ctx, path, att)
	if err != nil {
		return err
	}
	if uploaded {
		a.log(ctx, "archive.attestation", map[string]any{
			"path":       path,
			"commitment": att.CommitmentHash.Hex(),
		})
	}
	return nil
}

// ArchiveTransfers writes one day's transfer journal as JSONL through a
// multipart upload and returns the number of records written.
func (a *RoundArchiver) ArchiveTransfers(ctx context.Context, day time.Time, transfers []domain.Transfer) (int64, error) {
	if len(transfers) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(transfers)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transfers marshal: %w", err)
	}
	path := transfersPath(day)
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0); err != nil {
		return 0, fmt.Errorf("s3blob: archive transfers upload: %w", err)
	}
	count := int64(len(transfers))
	a.log(ctx, "archive.transfers", map[string]any{"path": path, "count": count})
	return count, nil
}

func (a *RoundArchiver) putOnce(ctx context.Context, path string, v any) (bool, error) {
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return false, fmt.Errorf("s3blob: marshal %s: %w", path, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return false, err
	}
	return true, nil
}

func (a *RoundArchiver) log(ctx context.Context, event string, detail map[string]any) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Log(ctx, event, detail)
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*RoundArchiver)(nil)
