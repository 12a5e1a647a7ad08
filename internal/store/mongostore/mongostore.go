// Package mongostore persists invoices and accounts in MongoDB, one document
// per record. Unique indexes back the invoice number and username constraints.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/backend-invoice/internal/auth"
	"github.com/noah-isme/backend-invoice/internal/invoice"
)

const (
	collectionInvoices = "invoices"
	collectionAccounts = "accounts"
)

// usernames compare case-insensitively.
var usernameCollation = &options.Collation{Locale: "en", Strength: 2}

// Store satisfies invoice.Store and auth.AccountStore.
type Store struct {
	client   *mongo.Client
	invoices *mongo.Collection
	accounts *mongo.Collection
}

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetRegistry(Registry()).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		invoices: db.Collection(collectionInvoices),
		accounts: db.Collection(collectionAccounts),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.invoices.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "invoiceNumber", Value: 1}},
			Options: options.Index().SetName("invoice_number_unique_idx").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("date_idx"),
		},
		{
			Keys:    bson.D{{Key: "paymentStatus", Value: 1}, {Key: "dueDate", Value: 1}},
			Options: options.Index().SetName("status_due_idx"),
		},
	})
	if err != nil {
		return fmt.Errorf("create invoice indexes: %w", err)
	}
	_, err = s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetName("username_unique_idx").SetUnique(true).SetCollation(usernameCollation),
	})
	if err != nil {
		return fmt.Errorf("create account indexes: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func statusFilter(status invoice.PaymentStatus) bson.M {
	if status == "" {
		return bson.M{}
	}
	return bson.M{"paymentStatus": status}
}

func (s *Store) List(ctx context.Context, filter invoice.ListFilter) ([]invoice.Invoice, int64, error) {
	query := statusFilter(filter.Status)
	total, err := s.invoices.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.invoices.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	items := make([]invoice.Invoice, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decode invoices: %w", err)
	}
	return items, total, nil
}

func (s *Store) Get(ctx context.Context, id string) (invoice.Invoice, error) {
	var inv invoice.Invoice
	err := s.invoices.FindOne(ctx, bson.M{"_id": id}).Decode(&inv)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return invoice.Invoice{}, invoice.ErrNotFound
		}
		return invoice.Invoice{}, fmt.Errorf("get invoice: %w", err)
	}
	return inv, nil
}

func (s *Store) Insert(ctx context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	if _, err := s.invoices.InsertOne(ctx, inv); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return invoice.Invoice{}, invoice.ErrDuplicateInvoiceNumber
		}
		return invoice.Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}
	return inv, nil
}

func (s *Store) Replace(ctx context.Context, id string, inv invoice.Invoice) (invoice.Invoice, error) {
	inv.ID = id
	res, err := s.invoices.ReplaceOne(ctx, bson.M{"_id": id}, inv)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return invoice.Invoice{}, invoice.ErrDuplicateInvoiceNumber
		}
		return invoice.Invoice{}, fmt.Errorf("replace invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return invoice.Invoice{}, invoice.ErrNotFound
	}
	return inv, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.invoices.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete invoice: %w", err)
	}
	if res.DeletedCount == 0 {
		return invoice.ErrNotFound
	}
	return nil
}

func prefixFilter(prefix string) bson.M {
	return bson.M{"invoiceNumber": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
}

func (s *Store) CountByNumberPrefix(ctx context.Context, prefix string) (int64, error) {
	n, err := s.invoices.CountDocuments(ctx, prefixFilter(prefix))
	if err != nil {
		return 0, fmt.Errorf("count invoice numbers: %w", err)
	}
	return n, nil
}

// seqFilter matches numbers made of prefix and a digit-only sequence.
func seqFilter(prefix string) bson.M {
	return bson.M{"invoiceNumber": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix) + "[0-9]{1,18}$"}}
}

// MaxNumberSeq scans the matching numbers; string sort order is not numeric
// once a month passes 999 invoices.
func (s *Store) MaxNumberSeq(ctx context.Context, prefix string) (int64, error) {
	cur, err := s.invoices.Find(ctx, seqFilter(prefix), options.Find().SetProjection(bson.M{"invoiceNumber": 1, "_id": 0}))
	if err != nil {
		return 0, fmt.Errorf("max invoice number: %w", err)
	}
	defer cur.Close(ctx)

	var highest int64
	for cur.Next(ctx) {
		var row struct {
			InvoiceNumber string `bson:"invoiceNumber"`
		}
		if err := cur.Decode(&row); err != nil {
			return 0, fmt.Errorf("decode invoice number: %w", err)
		}
		if seq, ok := invoice.NumberSeq(prefix, row.InvoiceNumber); ok && seq > highest {
			highest = seq
		}
	}
	if err := cur.Err(); err != nil {
		return 0, fmt.Errorf("max invoice number: %w", err)
	}
	return highest, nil
}

func (s *Store) ExistsNumber(ctx context.Context, number, excludeID string) (bool, error) {
	query := bson.M{"invoiceNumber": number}
	if excludeID != "" {
		query["_id"] = bson.M{"$ne": excludeID}
	}
	n, err := s.invoices.CountDocuments(ctx, query, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check invoice number: %w", err)
	}
	return n > 0, nil
}

func (s *Store) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.invoices.UpdateMany(ctx,
		bson.M{"paymentStatus": invoice.StatusPending, "dueDate": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"paymentStatus": invoice.StatusOverdue, "updatedAt": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) CreateAccount(ctx context.Context, a auth.Account) (auth.Account, error) {
	if _, err := s.accounts.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.Account{}, auth.ErrUsernameTaken
		}
		return auth.Account{}, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

func (s *Store) findAccount(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (auth.Account, error) {
	var a auth.Account
	if err := s.accounts.FindOne(ctx, filter, opts...).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return auth.Account{}, auth.ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (s *Store) AccountByUsername(ctx context.Context, username string) (auth.Account, error) {
	return s.findAccount(ctx, bson.M{"username": username}, options.FindOne().SetCollation(usernameCollation))
}

func (s *Store) AccountByID(ctx context.Context, id string) (auth.Account, error) {
	return s.findAccount(ctx, bson.M{"_id": id})
}

func (s *Store) CountAccountsByRole(ctx context.Context, role string) (int64, error) {
	n, err := s.accounts.CountDocuments(ctx, bson.M{"role": role})
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	res, err := s.accounts.UpdateByID(ctx, id, bson.M{"$set": bson.M{"passwordHash": hash, "updatedAt": at}})
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

var (
	_ invoice.Store     = (*Store)(nil)
	_ auth.AccountStore = (*Store)(nil)
)
