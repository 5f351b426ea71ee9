// Package ledger keeps the confirmed kiosk orders in a Parquet file so they
// can be picked up for printing and reporting.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/facekiosk/internal/models"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"gopkg.in/yaml.v3"
)

// orderRow is the on-disk layout of an order
type orderRow struct {
	TransactionID string   `parquet:"transaction_id"`
	SessionID     string   `parquet:"session_id"`
	Collection    string   `parquet:"collection"`
	Paths         []string `parquet:"paths,list"`
	PaidAtMillis  int64    `parquet:"paid_at_ms"`
	Status        string   `parquet:"status"`
}

// StatusPendingPrint is the status of an order nobody has handled yet
const StatusPendingPrint = "Pending Print"

// Ledger is an append-only list of orders backed by a Parquet file.
// A Ledger without a path only keeps orders in memory.
type Ledger struct {
	path string

	mu   sync.Mutex
	rows []orderRow
}

// Open loads the ledger at path, creating it on the first recorded order
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path}
	if path == "" {
		return l, nil
	}

	rows, err := readRows(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Starting new order ledger", "path", path)
			return l, nil
		}
		return nil, err
	}
	l.rows = rows
	slog.Debug("Order ledger loaded", "path", path, "orders", len(rows))
	return l, nil
}

// RecordOrder appends order and persists the ledger
func (l *Ledger) RecordOrder(ctx context.Context, order models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order.TransactionID == "" {
		return errors.New("order without transaction id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.rows {
		if r.TransactionID == order.TransactionID {
			slog.Warn("Order already recorded", "transaction_id", order.TransactionID)
			return nil
		}
	}

	paidAt := order.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	l.rows = append(l.rows, orderRow{
		TransactionID: order.TransactionID,
		SessionID:     order.SessionID,
		Collection:    order.Collection,
		Paths:         slices.Clone(order.Paths),
		PaidAtMillis:  paidAt.UnixMilli(),
		Status:        StatusPendingPrint,
	})

	if l.path == "" {
		return nil
	}
	if err := writeRows(l.path, l.rows); err != nil {
		l.rows = l.rows[:len(l.rows)-1]
		return err
	}
	slog.Info("Order recorded", "transaction_id", order.TransactionID, "photos", len(order.Paths), "path", l.path)
	return nil
}

// List returns the recorded orders, oldest first
func (l *Ledger) List() []models.Order {
	l.mu.Lock()
	defer l.mu.Unlock()

	orders := make([]models.Order, 0, len(l.rows))
	for _, r := range l.rows {
		orders = append(orders, r.order())
	}
	return orders
}

// Entry is an order as exported for reporting
type Entry struct {
	models.Order `yaml:",inline"`
	Photos       int    `yaml:"photos"`
	Status       string `yaml:"status"`
}

// Report is the YAML export of the ledger
type Report struct {
	GeneratedAt string  `yaml:"generated_at"`
	Orders      int     `yaml:"orders"`
	Photos      int     `yaml:"photos"`
	Entries     []Entry `yaml:"entries"`
}

// ExportYAML writes all orders, optionally only those paid at or after since
func (l *Ledger) ExportYAML(w io.Writer, since time.Time) error {
	l.mu.Lock()
	report := Report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Entries:     make([]Entry, 0, len(l.rows)),
	}
	for _, r := range l.rows {
		o := r.order()
		if !since.IsZero() && o.PaidAt.Before(since) {
			continue
		}
		report.Entries = append(report.Entries, Entry{Order: o, Photos: len(o.Paths), Status: r.Status})
		report.Photos += len(o.Paths)
	}
	l.mu.Unlock()
	report.Orders = len(report.Entries)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&report); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return enc.Close()
}

func (r orderRow) order() models.Order {
	return models.Order{
		TransactionID: r.TransactionID,
		SessionID:     r.SessionID,
		Collection:    r.Collection,
		Paths:         slices.Clone(r.Paths),
		PaidAt:        time.UnixMilli(r.PaidAtMillis).UTC(),
	}
}

func readRows(path string) ([]orderRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat ledger: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet ledger: %w", err)
	}

	reader := parquet.NewGenericReader[orderRow](pf)
	defer reader.Close()

	rows := make([]orderRow, 0, pf.NumRows())
	batch := make([]orderRow, 128)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet ledger: %w", err)
		}
	}
	return rows, nil
}

func writeRows(path string, rows []orderRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	writer := parquet.NewGenericWriter[orderRow](file, parquet.Compression(&zstd.Codec{}))
	if _, err := writer.Write(rows); err != nil {
		file.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	return os.Rename(tmp, path)
}
