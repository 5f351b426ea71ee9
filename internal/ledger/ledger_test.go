package ledger

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testOrder(id string, paidAt time.Time, paths ...string) models.Order {
	return models.Order{
		TransactionID: id,
		SessionID:     "kiosk-1",
		Collection:    "family-day",
		Paths:         paths,
		PaidAt:        paidAt,
	}
}

func TestLedgerPersistsOrders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders", "ledger.parquet")
	ctx := context.Background()
	paidAt := time.Date(2026, 7, 4, 15, 30, 0, 0, time.UTC)

	l, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, l.List())

	require.NoError(t, l.RecordOrder(ctx, testOrder("tx-1", paidAt, "a.jpg", "b.jpg")))
	require.NoError(t, l.RecordOrder(ctx, testOrder("tx-2", paidAt.Add(time.Hour), "c.jpg")))

	reopened, err := Open(path)
	require.NoError(t, err)
	orders := reopened.List()
	require.Len(t, orders, 2)
	assert.Equal(t, "tx-1", orders[0].TransactionID)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, orders[0].Paths)
	assert.True(t, paidAt.Equal(orders[0].PaidAt))
	assert.Equal(t, "tx-2", orders[1].TransactionID)
	assert.Equal(t, "family-day", orders[1].Collection)
}

func TestLedgerIgnoresDuplicateTransactions(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.RecordOrder(ctx, testOrder("tx-1", time.Now(), "a.jpg")))
	require.NoError(t, l.RecordOrder(ctx, testOrder("tx-1", time.Now(), "a.jpg")))
	assert.Len(t, l.List(), 1)

	assert.Error(t, l.RecordOrder(ctx, testOrder("", time.Now())))
}

func TestExportYAML(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	ctx := context.Background()
	day := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.RecordOrder(ctx, testOrder("tx-old", day.Add(-24*time.Hour), "a.jpg")))
	require.NoError(t, l.RecordOrder(ctx, testOrder("tx-new", day.Add(time.Hour), "b.jpg", "c.jpg")))

	var buf bytes.Buffer
	require.NoError(t, l.ExportYAML(&buf, day))

	var report Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, 1, report.Orders)
	assert.Equal(t, 2, report.Photos)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "tx-new", report.Entries[0].TransactionID)
	assert.Equal(t, StatusPendingPrint, report.Entries[0].Status)
}
