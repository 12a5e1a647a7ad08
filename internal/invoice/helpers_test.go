package invoice

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/money"
)

// memStore is an in-memory Store with the same uniqueness guarantees the real
// drivers provide.
type memStore struct {
	mu       sync.Mutex
	byID     map[string]Invoice
	failNext error
	inserts  int
}

func newMemStore() *memStore {
	return &memStore{byID: map[string]Invoice{}}
}

func (m *memStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]Invoice, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, 0, err
	}
	out := make([]Invoice, 0, len(m.byID))
	for _, inv := range m.byID {
		if f.Status != "" && inv.PaymentStatus != f.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	total := int64(len(out))
	if f.Offset >= len(out) {
		return []Invoice{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memStore) Get(_ context.Context, id string) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.byID[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (m *memStore) numberTaken(number, excludeID string) bool {
	for id, inv := range m.byID {
		if id != excludeID && inv.InvoiceNumber == number {
			return true
		}
	}
	return false
}

func (m *memStore) Insert(_ context.Context, inv Invoice) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return Invoice{}, err
	}
	if m.numberTaken(inv.InvoiceNumber, "") {
		return Invoice{}, ErrDuplicateInvoiceNumber
	}
	m.inserts++
	m.byID[inv.ID] = inv
	return inv, nil
}

func (m *memStore) Replace(_ context.Context, id string, inv Invoice) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return Invoice{}, ErrNotFound
	}
	if m.numberTaken(inv.InvoiceNumber, id) {
		return Invoice{}, ErrDuplicateInvoiceNumber
	}
	m.byID[id] = inv
	return inv, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memStore) CountByNumberPrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, inv := range m.byID {
		if strings.HasPrefix(inv.InvoiceNumber, prefix) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MaxNumberSeq(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var highest int64
	for _, inv := range m.byID {
		if seq, ok := NumberSeq(prefix, inv.InvoiceNumber); ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

func (m *memStore) ExistsNumber(_ context.Context, number, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.numberTaken(number, excludeID), nil
}

func (m *memStore) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, inv := range m.byID {
		if inv.PaymentStatus == StatusPending && inv.DueDate.Before(now) {
			inv.PaymentStatus = StatusOverdue
			m.byID[id] = inv
			n++
		}
	}
	return n, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

var fixedNow = time.Date(2024, 10, 7, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(Config{Store: store, Logger: zerolog.Nop()})
	require.NoError(t, err)
	svc.WithNow(func() time.Time { return fixedNow })
	return svc
}

func sampleInput() Input {
	return Input{
		CustomerName:  "  Acme Traders ",
		CustomerEmail: "Billing@Acme.Example",
		Items: []ItemInput{
			{ProductName: "Teak plank", Measurement: "cft", Quantity: money.FromInt(2), Price: money.FromInt(100)},
			{ProductName: "Varnish", Quantity: money.FromInt(1), Price: money.FromInt(50)},
		},
		ServiceCharge: ChargeInput{Type: "fixed", Value: money.Zero},
		VAT:           ChargeInput{Type: "percentage", Value: money.FromInt(15)},
	}
}

var errBoom = errors.New("connection refused")
