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
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// SettlementReport is the archived record of a settled market.
type SettlementReport struct {
	Market      Market            `json:"market"`
	Summary     SettlementSummary `json:"summary"`
	Settlements []Settlement      `json:"settlements"`
	ArchivedAt  time.Time         `json:"archived_at"`
}

// SettlementArchiver moves settlement reports to cold storage.
type SettlementArchiver interface {
	Archive(ctx context.Context, report SettlementReport) error
	Load(ctx context.Context, marketID string) (SettlementReport, error)
}
