package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-invoice/internal/obs"
	"github.com/noah-isme/backend-invoice/internal/pricing"
)

const (
	defaultMaxNumberAttempts = 5
	defaultStoreTimeout      = 5 * time.Second
	defaultLockTTL           = 5 * time.Second
	lockTTLMargin            = time.Second
)

// Service runs validate, compute and persist for every invoice write.
type Service struct {
	store        Store
	validator    *Validator
	locker       Locker
	logger       zerolog.Logger
	now          func() time.Time
	newID        func() string
	maxAttempts  int
	storeTimeout time.Duration
	lockTTL      time.Duration
	tracer       trace.Tracer
}

// Config configures the invoice service.
type Config struct {
	Store             Store
	Locker            Locker
	Logger            zerolog.Logger
	DueDays           int
	RequireItems      bool
	MaxNumberAttempts int
	StoreTimeout      time.Duration
	LockTTL           time.Duration
}

// NewService constructs a Service with defaults applied.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("invoice: store is required")
	}
	attempts := cfg.MaxNumberAttempts
	if attempts <= 0 {
		attempts = defaultMaxNumberAttempts
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Service{
		store:        cfg.Store,
		validator:    NewValidator(ValidatorConfig{Numbers: cfg.Store, DueDays: cfg.DueDays, RequireItems: cfg.RequireItems}),
		locker:       cfg.Locker,
		logger:       cfg.Logger.With().Str("component", "invoice").Logger(),
		now:          time.Now,
		newID:        uuid.NewString,
		maxAttempts:  attempts,
		storeTimeout: timeout,
		lockTTL:      numberLockTTL(cfg.LockTTL, attempts, timeout),
		tracer:       otel.Tracer("invoice.Service"),
	}, nil
}

// numberLockTTL keeps the numbering lock alive for a full generation run:
// every attempt makes up to two store calls, each bounded by timeout.
// A configured TTL above that floor wins.
func numberLockTTL(configured time.Duration, attempts int, timeout time.Duration) time.Duration {
	if configured <= 0 {
		configured = defaultLockTTL
	}
	floor := time.Duration(attempts)*2*timeout + lockTTLMargin
	return max(configured, floor)
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// build validates in and runs the totals pipeline. Nothing is written.
func (s *Service) build(ctx context.Context, in Input, op Op) (Invoice, error) {
	start := time.Now()
	checked, err := s.validator.Check(ctx, in, op, s.now())
	if err != nil {
		return Invoice{}, err
	}
	for _, w := range checked.Warnings {
		s.logger.Warn().Str("invoice_number", checked.InvoiceNumber).Msg(w)
	}
	sum, err := pricing.Compute(checked.Pricing)
	if err != nil {
		return Invoice{}, err
	}
	if obs.InvoiceComputeLatency != nil {
		obs.InvoiceComputeLatency.Observe(obs.DurationMillis(time.Since(start)))
	}
	inv := Invoice{
		InvoiceNumber:   checked.InvoiceNumber,
		Date:            checked.Date,
		DueDate:         checked.DueDate,
		CustomerName:    checked.CustomerName,
		CustomerEmail:   checked.CustomerEmail,
		CustomerAddress: checked.CustomerAddress,
		CustomerPhone:   checked.CustomerPhone,
		PaymentStatus:   checked.PaymentStatus,
		Notes:           checked.Notes,
	}
	inv.ApplySummary(sum)
	return inv, nil
}

// Preview returns the fully computed invoice without persisting it.
func (s *Service) Preview(ctx context.Context, in Input) (Invoice, error) {
	return s.build(ctx, in, OpPreview)
}

// Create validates, computes and stores a new invoice. When no number is
// supplied one is generated for the month of the invoice date.
func (s *Service) Create(ctx context.Context, in Input) (inv Invoice, err error) {
	ctx, span := s.tracer.Start(ctx, "InvoiceService.Create")
	defer func() { finishSpan(span, "create", err) }()

	inv, err = s.build(ctx, in, OpCreate)
	if err != nil {
		return Invoice{}, err
	}
	now := s.now().UTC()
	inv.ID = s.newID()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	if inv.InvoiceNumber != "" {
		sctx, cancel := s.storeCtx(ctx)
		defer cancel()
		saved, err := s.store.Insert(sctx, inv)
		if err != nil {
			return Invoice{}, storeErr(err)
		}
		span.SetAttributes(attribute.String("invoice.number", saved.InvoiceNumber))
		return saved, nil
	}

	saved, err := s.insertGenerated(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	span.SetAttributes(attribute.String("invoice.number", saved.InvoiceNumber), attribute.Bool("invoice.number_generated", true))
	return saved, nil
}

// insertGenerated assigns INV-YYYYMM-NNN numbers. A collision re-reads the
// month's high water mark and tries the next candidate, up to maxAttempts
// times.
func (s *Service) insertGenerated(ctx context.Context, inv Invoice) (Invoice, error) {
	prefix := NumberPrefix(inv.Date)
	var saved Invoice
	run := func(ctx context.Context) error {
		var last int64
		for attempt := 0; attempt < s.maxAttempts; attempt++ {
			sctx, cancel := s.storeCtx(ctx)
			high, err := s.highWater(sctx, prefix)
			cancel()
			if err != nil {
				return storeErr(err)
			}
			seq := nextSeq(high, last)
			last = seq
			inv.InvoiceNumber = FormatNumber(inv.Date, seq)

			sctx, cancel = s.storeCtx(ctx)
			saved, err = s.store.Insert(sctx, inv)
			cancel()
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrDuplicateInvoiceNumber) {
				return storeErr(err)
			}
			if obs.InvoiceNumberRetries != nil {
				obs.InvoiceNumberRetries.Inc()
			}
			s.logger.Debug().Str("invoice_number", inv.InvoiceNumber).Int("attempt", attempt+1).Msg("generated invoice number collided")
		}
		return fmt.Errorf("%w: %d attempts for %s", ErrNumberExhausted, s.maxAttempts, prefix)
	}

	if s.locker == nil {
		return saved, run(ctx)
	}
	err := s.locker.WithLock(ctx, "invoice:number:"+prefix, s.lockTTL, run)
	if err != nil && saved.ID == "" && !isDomainErr(err) {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("number lock unavailable, generating without lock")
		return saved, run(ctx)
	}
	return saved, err
}

// NextNumber returns the number the next generated invoice dated t would
// receive, skipping candidates that are already taken. Nothing is reserved.
func (s *Service) NextNumber(ctx context.Context, t time.Time) (string, error) {
	prefix := NumberPrefix(t)
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	high, err := s.highWater(sctx, prefix)
	if err != nil {
		return "", storeErr(err)
	}
	var last int64
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		last = nextSeq(high, last)
		candidate := FormatNumber(t, last)
		taken, err := s.store.ExistsNumber(sctx, candidate, "")
		if err != nil {
			return "", storeErr(err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %d attempts for %s", ErrNumberExhausted, s.maxAttempts, prefix)
}

// highWater is the larger of the month's invoice count and its highest
// generated sequence. Deleting early invoices lowers the count but never the
// highest sequence, and manual numbers raise the count without a sequence.
func (s *Service) highWater(ctx context.Context, prefix string) (int64, error) {
	count, err := s.store.CountByNumberPrefix(ctx, prefix)
	if err != nil {
		return 0, err
	}
	highest, err := s.store.MaxNumberSeq(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return max(count, highest), nil
}

func nextSeq(high, last int64) int64 {
	if high+1 > last {
		return high + 1
	}
	return last + 1
}

// Update fully replaces the invoice with id, recomputing every derived field.
// An empty invoice number keeps the current one.
func (s *Service) Update(ctx context.Context, id string, in Input) (inv Invoice, err error) {
	ctx, span := s.tracer.Start(ctx, "InvoiceService.Update")
	defer func() { finishSpan(span, "update", err) }()
	span.SetAttributes(attribute.String("invoice.id", id))

	sctx, cancel := s.storeCtx(ctx)
	existing, err := s.store.Get(sctx, id)
	cancel()
	if err != nil {
		return Invoice{}, storeErr(err)
	}

	inv, err = s.build(ctx, in, OpUpdate)
	if err != nil {
		return Invoice{}, err
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = existing.InvoiceNumber
	}
	inv.ID = existing.ID
	inv.CreatedAt = existing.CreatedAt
	inv.UpdatedAt = s.now().UTC()

	sctx, cancel = s.storeCtx(ctx)
	defer cancel()
	saved, err := s.store.Replace(sctx, id, inv)
	if err != nil {
		return Invoice{}, storeErr(err)
	}
	return saved, nil
}

// Get returns a single invoice.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	inv, err := s.store.Get(ctx, id)
	return inv, storeErr(err)
}

// List returns invoices newest first together with the unpaged total.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Invoice, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, &ValidationError{Violations: []Violation{{Field: "status", Reason: "must be one of: pending, paid, overdue"}}}
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return items, total, nil
}

// Delete removes an invoice.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "InvoiceService.Delete")
	defer func() { finishSpan(span, "delete", err) }()
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return storeErr(s.store.Delete(sctx, id))
}

// MarkOverdue moves pending invoices past their due date to overdue.
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	n, err := s.store.MarkOverdue(sctx, s.now().UTC())
	if err != nil {
		return 0, storeErr(err)
	}
	if obs.InvoicesMarkedOverdue != nil {
		obs.InvoicesMarkedOverdue.Add(float64(n))
	}
	if n > 0 {
		s.logger.Info().Int64("count", n).Msg("invoices marked overdue")
	}
	return n, nil
}

// RecomputeResult summarises a Recompute run.
type RecomputeResult struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Recompute re-runs the pipeline over stored invoices and rewrites the ones
// whose stored totals disagree. Records that no longer pass are counted as
// failed and left untouched.
func (s *Service) Recompute(ctx context.Context, dryRun bool) (RecomputeResult, error) {
	var res RecomputeResult
	const page = 200
	for offset := 0; ; offset += page {
		sctx, cancel := s.storeCtx(ctx)
		batch, _, err := s.store.List(sctx, ListFilter{Limit: page, Offset: offset})
		cancel()
		if err != nil {
			return res, storeErr(err)
		}
		for _, stored := range batch {
			res.Scanned++
			sum, err := pricing.Compute(stored.PricingInput())
			if err != nil {
				res.Failed++
				s.logger.Warn().Err(err).Str("invoice_id", stored.ID).Msg("stored invoice fails recomputation")
				continue
			}
			fixed := stored
			fixed.ApplySummary(sum)
			if fixed.SameTotals(stored) {
				continue
			}
			res.Updated++
			if dryRun {
				continue
			}
			fixed.UpdatedAt = s.now().UTC()
			sctx, cancel := s.storeCtx(ctx)
			_, err = s.store.Replace(sctx, stored.ID, fixed)
			cancel()
			if err != nil {
				return res, storeErr(err)
			}
		}
		if len(batch) < page {
			return res, nil
		}
	}
}

func isDomainErr(err error) bool {
	return errors.Is(err, ErrDuplicateInvoiceNumber) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrNumberExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func finishSpan(span trace.Span, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	obs.CountInvoiceWrite(op, result)
	span.End()
}
