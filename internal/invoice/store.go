package invoice

import (
	"context"
	"time"
)

// Store is the persistence contract used by Service. Implementations must
// enforce invoice number uniqueness themselves and report collisions as
// ErrDuplicateInvoiceNumber; a missing id is ErrNotFound.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Invoice, int64, error)
	Get(ctx context.Context, id string) (Invoice, error)
	Insert(ctx context.Context, inv Invoice) (Invoice, error)
	Replace(ctx context.Context, id string, inv Invoice) (Invoice, error)
	Delete(ctx context.Context, id string) error
	// CountByNumberPrefix counts invoices whose number starts with prefix.
	CountByNumberPrefix(ctx context.Context, prefix string) (int64, error)
	// MaxNumberSeq returns the highest NumberSeq among numbers carrying
	// prefix, or 0 when there are none.
	MaxNumberSeq(ctx context.Context, prefix string) (int64, error)
	// ExistsNumber reports whether number belongs to an invoice other than excludeID.
	ExistsNumber(ctx context.Context, number, excludeID string) (bool, error)
	// MarkOverdue flips pending invoices due before now to overdue.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// Locker serialises work across processes; lock.Locker satisfies it.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}
