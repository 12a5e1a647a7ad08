package boltstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/auth"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/money"
	"github.com/noah-isme/backend-invoice/internal/store/boltstore"
)

func openStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "invoices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newInvoice(id, number string, date time.Time) invoice.Invoice {
	return invoice.Invoice{
		ID:            id,
		InvoiceNumber: number,
		Date:          date,
		DueDate:       date.AddDate(0, 0, 15),
		CustomerName:  "Acme",
		PaymentStatus: invoice.StatusPending,
		Subtotal:      money.MustParse("250"),
		NetTotal:      money.MustParse("287.5"),
		CreatedAt:     date,
		UpdatedAt:     date,
	}
}

func TestInsertEnforcesNumberUniqueness(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx, newInvoice("a", "INV-202410-001", now))
	require.NoError(t, err)
	_, err = s.Insert(ctx, newInvoice("b", "INV-202410-001", now))
	require.ErrorIs(t, err, invoice.ErrDuplicateInvoiceNumber)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, got.NetTotal.Equal(money.MustParse("287.5")))

	exists, err := s.ExistsNumber(ctx, "INV-202410-001", "")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = s.ExistsNumber(ctx, "INV-202410-001", "a")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestReplaceMovesNumberIndex(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx, newInvoice("a", "INV-1", now))
	require.NoError(t, err)
	_, err = s.Insert(ctx, newInvoice("b", "INV-2", now))
	require.NoError(t, err)

	_, err = s.Replace(ctx, "b", newInvoice("b", "INV-1", now))
	require.ErrorIs(t, err, invoice.ErrDuplicateInvoiceNumber)

	_, err = s.Replace(ctx, "b", newInvoice("b", "INV-3", now))
	require.NoError(t, err)
	exists, err := s.ExistsNumber(ctx, "INV-2", "")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = s.Replace(ctx, "missing", newInvoice("missing", "INV-9", now))
	require.ErrorIs(t, err, invoice.ErrNotFound)
}

func TestListCountDeleteAndOverdue(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, n := range []string{"INV-202410-001", "INV-202410-002", "INV-202409-001"} {
		inv := newInvoice(n, n, base.AddDate(0, 0, i))
		_, err := s.Insert(ctx, inv)
		require.NoError(t, err)
	}

	count, err := s.CountByNumberPrefix(ctx, "INV-202410-")
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	page, total, err := s.List(ctx, invoice.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	require.Equal(t, "INV-202409-001", page[0].InvoiceNumber)

	marked, err := s.MarkOverdue(ctx, base.AddDate(0, 0, 17))
	require.NoError(t, err)
	require.EqualValues(t, 2, marked)
	overdue, _, err := s.List(ctx, invoice.ListFilter{Status: invoice.StatusOverdue})
	require.NoError(t, err)
	require.Len(t, overdue, 2)

	require.NoError(t, s.Delete(ctx, "INV-202410-001"))
	require.ErrorIs(t, s.Delete(ctx, "INV-202410-001"), invoice.ErrNotFound)
	count, err = s.CountByNumberPrefix(ctx, "INV-202410-")
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.NoError(t, s.Ping(ctx))
}

func TestAccounts(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.CreateAccount(ctx, auth.Account{ID: "u1", Username: "Admin", Role: auth.RoleAdmin, CreatedAt: now})
	require.NoError(t, err)
	_, err = s.CreateAccount(ctx, auth.Account{ID: "u2", Username: "admin"})
	require.ErrorIs(t, err, auth.ErrUsernameTaken)

	a, err := s.AccountByUsername(ctx, "ADMIN")
	require.NoError(t, err)
	require.Equal(t, "u1", a.ID)

	n, err := s.CountAccountsByRole(ctx, auth.RoleAdmin)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, s.UpdatePasswordHash(ctx, "u1", "hash", now))
	a, err = s.AccountByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "hash", a.PasswordHash)

	_, err = s.AccountByID(ctx, "nope")
	require.ErrorIs(t, err, auth.ErrAccountNotFound)
}

func TestServiceOverBoltStore(t *testing.T) {
	s := openStore(t)
	svc, err := invoice.NewService(invoice.Config{Store: s, Logger: zerolog.Nop()})
	require.NoError(t, err)
	now := time.Date(2024, 10, 7, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return now })

	in := invoice.Input{
		CustomerName: "Acme",
		Items: []invoice.ItemInput{
			{ProductName: "Plank", Quantity: money.FromInt(2), Price: money.FromInt(100)},
			{ProductName: "Varnish", Quantity: money.FromInt(1), Price: money.FromInt(50)},
		},
		ServiceCharge:   invoice.ChargeInput{Type: "percentage", Value: money.FromInt(10)},
		VAT:             invoice.ChargeInput{Type: "fixed", Value: money.FromInt(20)},
		SpecialDiscount: money.FromInt(10),
	}

	const n = 6
	var wg sync.WaitGroup
	results := make(chan invoice.Invoice, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := svc.Create(context.Background(), in)
			if err != nil {
				errs <- err
				return
			}
			results <- inv
		}()
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		require.ErrorIs(t, err, invoice.ErrNumberExhausted)
	}

	seen := map[string]bool{}
	for inv := range results {
		require.False(t, seen[inv.InvoiceNumber])
		seen[inv.InvoiceNumber] = true
		require.True(t, inv.NetTotal.Equal(money.FromInt(285)))
	}
	require.True(t, seen["INV-202410-001"])

	stored, total, err := s.List(context.Background(), invoice.ListFilter{})
	require.NoError(t, err)
	require.EqualValues(t, len(seen), total)
	require.True(t, stored[0].GrandTotal.Equal(money.FromInt(295)))
}

func TestMaxNumberSeqIsNumeric(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)

	highest, err := s.MaxNumberSeq(ctx, "INV-202410-")
	require.NoError(t, err)
	require.Zero(t, highest)

	for i, n := range []string{"INV-202410-999", "INV-202410-1000", "INV-202410-ZZZ", "INV-202411-5000"} {
		_, err := s.Insert(ctx, newInvoice(n, n, now.AddDate(0, 0, i)))
		require.NoError(t, err)
	}
	highest, err = s.MaxNumberSeq(ctx, "INV-202410-")
	require.NoError(t, err)
	require.EqualValues(t, 1000, highest)
}

func TestServiceNumberingAfterDeletesOverBoltStore(t *testing.T) {
	s := openStore(t)
	svc, err := invoice.NewService(invoice.Config{Store: s, Logger: zerolog.Nop()})
	require.NoError(t, err)
	now := time.Date(2024, 10, 7, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return now })
	ctx := context.Background()

	in := invoice.Input{
		CustomerName: "Acme",
		Items:        []invoice.ItemInput{{ProductName: "Plank", Quantity: money.FromInt(1), Price: money.FromInt(100)}},
	}
	var ids []string
	for i := 0; i < 10; i++ {
		inv, err := svc.Create(ctx, in)
		require.NoError(t, err)
		ids = append(ids, inv.ID)
	}
	for _, id := range ids[:5] {
		require.NoError(t, svc.Delete(ctx, id))
	}

	next, err := svc.NextNumber(ctx, now)
	require.NoError(t, err)
	require.Equal(t, "INV-202410-011", next)

	inv, err := svc.Create(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "INV-202410-011", inv.InvoiceNumber)
}
