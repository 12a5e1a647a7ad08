// Package boltstore is the embedded document store. Invoices and accounts are
// JSON values keyed by id; secondary buckets map invoice numbers and usernames
// back to ids so uniqueness is decided inside the write transaction.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/noah-isme/backend-invoice/internal/auth"
	"github.com/noah-isme/backend-invoice/internal/invoice"
)

var (
	bucketInvoices  = []byte("invoices")
	bucketNumbers   = []byte("invoice_numbers")
	bucketAccounts  = []byte("accounts")
	bucketUsernames = []byte("account_usernames")
)

// Store wraps a bolt database. It satisfies invoice.Store and auth.AccountStore.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path and ensures every bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketInvoices, bucketNumbers, bucketAccounts, bucketUsernames} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the database is still open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketInvoices) == nil {
			return errors.New("boltstore: invoices bucket missing")
		}
		return nil
	})
}

func decodeInvoice(v []byte) (invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := json.Unmarshal(v, &inv); err != nil {
		return invoice.Invoice{}, fmt.Errorf("decode invoice: %w", err)
	}
	return inv, nil
}

func putInvoice(tx *bolt.Tx, inv invoice.Invoice) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invoice: %w", err)
	}
	if err := tx.Bucket(bucketNumbers).Put([]byte(inv.InvoiceNumber), []byte(inv.ID)); err != nil {
		return err
	}
	return tx.Bucket(bucketInvoices).Put([]byte(inv.ID), data)
}

// List scans every invoice, filters by status and pages the result ordered by
// date descending.
func (s *Store) List(ctx context.Context, filter invoice.ListFilter) ([]invoice.Invoice, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var items []invoice.Invoice
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInvoices).ForEach(func(_, v []byte) error {
			inv, err := decodeInvoice(v)
			if err != nil {
				return err
			}
			if filter.Status != "" && inv.PaymentStatus != filter.Status {
				return nil
			}
			items = append(items, inv)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Date.Equal(items[j].Date) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].Date.After(items[j].Date)
	})
	total := int64(len(items))
	if filter.Offset >= len(items) {
		return []invoice.Invoice{}, total, nil
	}
	items = items[filter.Offset:]
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, total, nil
}

// Get returns invoice.ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return invoice.Invoice{}, err
	}
	var inv invoice.Invoice
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketInvoices).Get([]byte(id))
		if v == nil {
			return invoice.ErrNotFound
		}
		var err error
		inv, err = decodeInvoice(v)
		return err
	})
	return inv, err
}

// Insert stores a new invoice. The number index is checked in the same
// transaction, so concurrent inserts of one number cannot both succeed.
func (s *Store) Insert(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return invoice.Invoice{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketInvoices).Get([]byte(inv.ID)) != nil {
			return fmt.Errorf("boltstore: invoice id %s already exists", inv.ID)
		}
		if tx.Bucket(bucketNumbers).Get([]byte(inv.InvoiceNumber)) != nil {
			return invoice.ErrDuplicateInvoiceNumber
		}
		return putInvoice(tx, inv)
	})
	if err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

// Replace overwrites the invoice with id, moving its number index entry when
// the number changed.
func (s *Store) Replace(ctx context.Context, id string, inv invoice.Invoice) (invoice.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return invoice.Invoice{}, err
	}
	inv.ID = id
	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketInvoices).Get([]byte(id))
		if raw == nil {
			return invoice.ErrNotFound
		}
		existing, err := decodeInvoice(raw)
		if err != nil {
			return err
		}
		numbers := tx.Bucket(bucketNumbers)
		if owner := numbers.Get([]byte(inv.InvoiceNumber)); owner != nil && !bytes.Equal(owner, []byte(id)) {
			return invoice.ErrDuplicateInvoiceNumber
		}
		if existing.InvoiceNumber != inv.InvoiceNumber {
			if err := numbers.Delete([]byte(existing.InvoiceNumber)); err != nil {
				return err
			}
		}
		return putInvoice(tx, inv)
	})
	if err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

// Delete removes the invoice and its number index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInvoices)
		raw := b.Get([]byte(id))
		if raw == nil {
			return invoice.ErrNotFound
		}
		existing, err := decodeInvoice(raw)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketNumbers).Delete([]byte(existing.InvoiceNumber)); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
}

// CountByNumberPrefix seeks the sorted number index.
func (s *Store) CountByNumberPrefix(ctx context.Context, prefix string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNumbers).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// MaxNumberSeq walks the same index range as CountByNumberPrefix. Keys sort
// lexically, so the last key is not necessarily the highest sequence.
func (s *Store) MaxNumberSeq(ctx context.Context, prefix string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var highest int64
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNumbers).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			if seq, ok := invoice.NumberSeq(prefix, string(k)); ok && seq > highest {
				highest = seq
			}
		}
		return nil
	})
	return highest, err
}

// ExistsNumber checks the number index.
func (s *Store) ExistsNumber(ctx context.Context, number, excludeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		owner := tx.Bucket(bucketNumbers).Get([]byte(number))
		exists = owner != nil && string(owner) != excludeID
		return nil
	})
	return exists, err
}

// MarkOverdue rewrites pending invoices whose due date is before now.
func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.Update(func(tx *bolt.Tx) error {
		var due []invoice.Invoice
		err := tx.Bucket(bucketInvoices).ForEach(func(_, v []byte) error {
			inv, err := decodeInvoice(v)
			if err != nil {
				return err
			}
			if inv.PaymentStatus == invoice.StatusPending && inv.DueDate.Before(now) {
				due = append(due, inv)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, inv := range due {
			inv.PaymentStatus = invoice.StatusOverdue
			inv.UpdatedAt = now
			if err := putInvoice(tx, inv); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func usernameKey(username string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(username)))
}

func decodeAccount(v []byte) (auth.Account, error) {
	var a auth.Account
	if err := json.Unmarshal(v, &a); err != nil {
		return auth.Account{}, fmt.Errorf("decode account: %w", err)
	}
	return a, nil
}

func putAccount(tx *bolt.Tx, a auth.Account) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	return tx.Bucket(bucketAccounts).Put([]byte(a.ID), data)
}

// CreateAccount stores a new account; usernames are unique case-insensitively.
func (s *Store) CreateAccount(ctx context.Context, a auth.Account) (auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return auth.Account{}, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketUsernames)
		if names.Get(usernameKey(a.Username)) != nil {
			return auth.ErrUsernameTaken
		}
		if err := names.Put(usernameKey(a.Username), []byte(a.ID)); err != nil {
			return err
		}
		return putAccount(tx, a)
	})
	if err != nil {
		return auth.Account{}, err
	}
	return a, nil
}

// AccountByUsername resolves the username index.
func (s *Store) AccountByUsername(ctx context.Context, username string) (auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return auth.Account{}, err
	}
	var a auth.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUsernames).Get(usernameKey(username))
		if id == nil {
			return auth.ErrAccountNotFound
		}
		v := tx.Bucket(bucketAccounts).Get(id)
		if v == nil {
			return auth.ErrAccountNotFound
		}
		var err error
		a, err = decodeAccount(v)
		return err
	})
	return a, err
}

func (s *Store) AccountByID(ctx context.Context, id string) (auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return auth.Account{}, err
	}
	var a auth.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get([]byte(id))
		if v == nil {
			return auth.ErrAccountNotFound
		}
		var err error
		a, err = decodeAccount(v)
		return err
	})
	return a, err
}

func (s *Store) CountAccountsByRole(ctx context.Context, role string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, v []byte) error {
			a, err := decodeAccount(v)
			if err != nil {
				return err
			}
			if a.Role == role {
				n++
			}
			return nil
		})
	})
	return n, err
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketAccounts).Get([]byte(id))
		if v == nil {
			return auth.ErrAccountNotFound
		}
		a, err := decodeAccount(v)
		if err != nil {
			return err
		}
		a.PasswordHash = hash
		a.UpdatedAt = at
		return putAccount(tx, a)
	})
}

var (
	_ invoice.Store     = (*Store)(nil)
	_ auth.AccountStore = (*Store)(nil)
)
