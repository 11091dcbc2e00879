package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// Archiver implements domain.SettlementArchiver as one JSON document per
// market under settlements/{marketID}.json. Reports are written once; a
// report already present is left alone.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, reader: reader, audit: audit, now: time.Now}
}

// ReportPath returns the object key of a market's settlement report.
func ReportPath(marketID string) string {
	return fmt.Sprintf("settlements/%s.json", marketID)
}

// Archive uploads the report unless one already exists for the market.
func (a *Archiver) Archive(ctx context.Context, report domain.SettlementReport) error {
	path := ReportPath(report.Market.ID)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", report.Market.ID, err)
	}
	if exists {
		return nil
	}

	if report.ArchivedAt.IsZero() {
		report.ArchivedAt = a.now().UTC()
	}
	buf, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("s3blob: marshal report %s: %w", report.Market.ID, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", report.Market.ID, err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
			"market_id":   report.Market.ID,
			"path":        path,
			"settlements": len(report.Settlements),
		}); err != nil {
			return fmt.Errorf("s3blob: archive %s audit log: %w", report.Market.ID, err)
		}
	}
	return nil
}

// Load reads a market's report. A missing report yields domain.ErrNotFound.
func (a *Archiver) Load(ctx context.Context, marketID string) (domain.SettlementReport, error) {
	body, err := a.reader.Get(ctx, ReportPath(marketID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SettlementReport{}, domain.ErrNotFound
		}
		return domain.SettlementReport{}, err
	}
	defer body.Close()

	var report domain.SettlementReport
	if err := json.NewDecoder(body).Decode(&report); err != nil {
		return domain.SettlementReport{}, fmt.Errorf("s3blob: decode report %s: %w", marketID, err)
	}
	return report, nil
}

var _ domain.SettlementArchiver = (*Archiver)(nil)
