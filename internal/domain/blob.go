package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// RoundRecord is the archived form of a settled round.
type RoundRecord struct {
	Market      Market           `json:"market"`
	Round       Round            `json:"round"`
	Bets        []Bet            `json:"bets"`
	Entries     []CommunityEntry `json:"community_entries,omitempty"`
	Attestation *Attestation     `json:"attestation,omitempty"`
}

// Archiver copies settled rounds and attestations to cold storage.
type Archiver interface {
	ArchiveRound(ctx context.Context, rec RoundRecord) error
	ArchiveAttestation(ctx context.Context, att Attestation) error
}
