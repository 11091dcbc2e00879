package s3blob

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

type memBlobs struct {
	mu    sync.Mutex
	objs  map[string][]byte
	puts  int
	types map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objs: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objs[path] = b
	m.types[path] = contentType
	m.puts++
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objs[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objs[path]
	return ok, nil
}

func TestArchiver_ArchiveAndLoad(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	a := NewArchiver(blobs, blobs, nil)
	a.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

	report := domain.SettlementReport{
		Market: domain.Market{ID: "m1", Title: "Will it ship?"},
		Summary: domain.SettlementSummary{
			MarketID: "m1", Outcome: domain.PositionYes,
			TotalPool: 400, WinningPool: 300, PaidOut: 399, Unclaimed: 1,
		},
		Settlements: []domain.Settlement{
			{BetID: "b1", MarketID: "m1", UserID: "u1", Position: domain.PositionYes, StakeAmount: 100, Won: true, Payout: 133},
		},
	}
	require.NoError(t, a.Archive(ctx, report))
	assert.Equal(t, "application/json", blobs.types["settlements/m1.json"])

	got, err := a.Load(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Summary.Unclaimed)
	assert.Equal(t, a.now(), got.ArchivedAt)
	require.Len(t, got.Settlements, 1)
	assert.Equal(t, int64(133), got.Settlements[0].Payout)

	require.NoError(t, a.Archive(ctx, report))
	assert.Equal(t, 1, blobs.puts)
}

func TestArchiver_LoadMissing(t *testing.T) {
	blobs := newMemBlobs()
	_, err := NewArchiver(blobs, blobs, nil).Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
}
