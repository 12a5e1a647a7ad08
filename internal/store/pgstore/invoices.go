package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-invoice/internal/invoice"
)

const invoiceColumns = "id, invoice_number, payment_status, date, due_date, doc, created_at, updated_at"

func encodeInvoice(inv invoice.Invoice) ([]byte, error) {
	doc, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("encode invoice: %w", err)
	}
	return doc, nil
}

func scanInvoice(row pgx.Row) (invoice.Invoice, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invoice.Invoice{}, invoice.ErrNotFound
		}
		return invoice.Invoice{}, err
	}
	var inv invoice.Invoice
	if err := json.Unmarshal(doc, &inv); err != nil {
		return invoice.Invoice{}, fmt.Errorf("decode invoice: %w", err)
	}
	return inv, nil
}

// listQuery renders the page query. A zero limit returns every row.
func listQuery(filter invoice.ListFilter) (string, []any) {
	sql := "SELECT doc FROM invoices WHERE ($1 = '' OR payment_status = $1) ORDER BY date DESC, created_at DESC"
	args := []any{string(filter.Status)}
	if filter.Limit > 0 {
		sql += " LIMIT $2 OFFSET $3"
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		sql += " OFFSET $2"
		args = append(args, filter.Offset)
	}
	return sql, args
}

func (s *Store) List(ctx context.Context, filter invoice.ListFilter) ([]invoice.Invoice, int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM invoices WHERE ($1 = '' OR payment_status = $1)",
		string(filter.Status),
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	sql, args := listQuery(filter)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	items := make([]invoice.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	return items, total, nil
}

func (s *Store) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	return scanInvoice(s.pool.QueryRow(ctx, "SELECT doc FROM invoices WHERE id = $1", id))
}

func (s *Store) Insert(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	doc, err := encodeInvoice(inv)
	if err != nil {
		return invoice.Invoice{}, err
	}
	_, err = s.pool.Exec(ctx,
		"INSERT INTO invoices ("+invoiceColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		inv.ID, inv.InvoiceNumber, string(inv.PaymentStatus), inv.Date, inv.DueDate, doc, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, constraintInvoiceNumber) {
			return invoice.Invoice{}, invoice.ErrDuplicateInvoiceNumber
		}
		return invoice.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	return inv, nil
}

func (s *Store) Replace(ctx context.Context, id string, inv invoice.Invoice) (invoice.Invoice, error) {
	inv.ID = id
	doc, err := encodeInvoice(inv)
	if err != nil {
		return invoice.Invoice{}, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET invoice_number = $2, payment_status = $3, date = $4, due_date = $5,
			doc = $6, updated_at = $7 WHERE id = $1`,
		id, inv.InvoiceNumber, string(inv.PaymentStatus), inv.Date, inv.DueDate, doc, inv.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, constraintInvoiceNumber) {
			return invoice.Invoice{}, invoice.ErrDuplicateInvoiceNumber
		}
		return invoice.Invoice{}, fmt.Errorf("replace invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	return inv, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM invoices WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

func (s *Store) CountByNumberPrefix(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM invoices WHERE starts_with(invoice_number, $1)", prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count invoice numbers: %w", err)
	}
	return n, nil
}

// MaxNumberSeq compares suffixes numerically; ordering by invoice_number would
// put INV-202410-999 above INV-202410-1000.
func (s *Store) MaxNumberSeq(ctx context.Context, prefix string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(substr(invoice_number, length($1) + 1)::bigint), 0)
		   FROM invoices
		  WHERE starts_with(invoice_number, $1)
		    AND substr(invoice_number, length($1) + 1) ~ '^[0-9]{1,18}$'`,
		prefix,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max invoice number: %w", err)
	}
	return n, nil
}

func (s *Store) ExistsNumber(ctx context.Context, number, excludeID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM invoices WHERE invoice_number = $1 AND id <> $2)",
		number, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check invoice number: %w", err)
	}
	return exists, nil
}

// MarkOverdue updates the indexed column and the document in one statement.
func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices
		 SET payment_status = 'overdue',
		     updated_at = $1,
		     doc = jsonb_set(jsonb_set(doc, '{paymentStatus}', '"overdue"'), '{updatedAt}', to_jsonb($1::timestamptz))
		 WHERE payment_status = 'pending' AND due_date < $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ invoice.Store = (*Store)(nil)
