package invoice

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-invoice/internal/money"
	"github.com/noah-isme/backend-invoice/internal/pricing"
)

// Input is the typed create/update payload. Derived fields sent by callers
// (item totals, charge amounts, grand and net totals) have no home here and
// are dropped during decoding.
type Input struct {
	InvoiceNumber   string        `json:"invoiceNumber" validate:"max=64"`
	Date            *time.Time    `json:"date"`
	DueDate         *time.Time    `json:"dueDate"`
	CustomerName    string        `json:"customerName" validate:"required,max=200"`
	CustomerEmail   string        `json:"customerEmail" validate:"omitempty,email"`
	CustomerAddress string        `json:"customerAddress" validate:"max=500"`
	CustomerPhone   string        `json:"customerPhone" validate:"max=32"`
	PaymentStatus   string        `json:"paymentStatus" validate:"omitempty,oneof=pending paid overdue"`
	Items           []ItemInput   `json:"items" validate:"dive"`
	ServiceCharge   ChargeInput   `json:"serviceCharge"`
	VAT             ChargeInput   `json:"vat"`
	SpecialDiscount money.Decimal `json:"specialDiscount"`
	Notes           string        `json:"notes" validate:"max=2000"`
}

// ItemInput is one raw line item.
type ItemInput struct {
	SrNo        int           `json:"srNo" validate:"gte=0"`
	ProductName string        `json:"productName"`
	Measurement string        `json:"measurement" validate:"omitempty,measurement"`
	Quantity    money.Decimal `json:"quantity"`
	Price       money.Decimal `json:"price"`
}

// ChargeInput is a raw service charge or VAT specification.
type ChargeInput struct {
	Type  string        `json:"type" validate:"omitempty,oneof=percentage fixed"`
	Value money.Decimal `json:"value"`
}

// Op tells the validator which checks apply.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpPreview
)

// Checked is validated, normalised input ready for the totals pipeline.
type Checked struct {
	InvoiceNumber   string
	Date            time.Time
	DueDate         time.Time
	CustomerName    string
	CustomerEmail   string
	CustomerAddress string
	CustomerPhone   string
	PaymentStatus   PaymentStatus
	Notes           string
	Pricing         pricing.Input
	Warnings        []string
}

// NumberChecker answers the advisory uniqueness check on create.
type NumberChecker interface {
	ExistsNumber(ctx context.Context, number, excludeID string) (bool, error)
}

// Validator is the single gate between caller payloads and the trusted model.
type Validator struct {
	structs      *validator.Validate
	numbers      NumberChecker
	dueDays      int
	requireItems bool
}

// ValidatorConfig configures NewValidator.
type ValidatorConfig struct {
	Numbers      NumberChecker
	DueDays      int
	RequireItems bool
}

// NewValidator builds a Validator. A nil Numbers skips the advisory check.
func NewValidator(cfg ValidatorConfig) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("measurement", func(fl validator.FieldLevel) bool {
		_, ok := pricing.ParseUnit(fl.Field().String())
		return ok
	})
	dueDays := cfg.DueDays
	if dueDays <= 0 {
		dueDays = 15
	}
	return &Validator{structs: v, numbers: cfg.Numbers, dueDays: dueDays, requireItems: cfg.RequireItems}
}

var itemNamespace = regexp.MustCompile(`^items\[(\d+)\]`)

// Check validates in and returns the normalised form. Every violation found is
// reported in one *ValidationError. A caller-supplied number that already
// exists, when it is the only problem, is reported as ErrDuplicateInvoiceNumber.
func (v *Validator) Check(ctx context.Context, in Input, op Op, now time.Time) (Checked, error) {
	norm := normalizeInput(in)
	verr := &ValidationError{}

	if err := v.structs.Struct(norm); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return Checked{}, err
		}
		for _, fe := range fieldErrs {
			verr.add(fieldViolation(fe), nil)
		}
	}

	if len(norm.Items) == 0 {
		if v.requireItems {
			verr.add(Violation{Field: "items", Reason: "at least one item is required"}, nil)
		}
	}

	// Omitted serials take their position, or the next number no item claims,
	// so only caller supplied serials can duplicate.
	used := make(map[int]bool, len(norm.Items))
	for _, raw := range norm.Items {
		if raw.SrNo > 0 {
			used[raw.SrNo] = true
		}
	}
	seen := make(map[int]int, len(norm.Items))
	items := make([]pricing.Item, 0, len(norm.Items))
	for i, raw := range norm.Items {
		unit, _ := pricing.ParseUnit(raw.Measurement)
		item := pricing.Item{
			SrNo:        raw.SrNo,
			ProductName: raw.ProductName,
			Unit:        unit,
			Quantity:    raw.Quantity,
			UnitPrice:   raw.Price,
		}
		switch {
		case item.SrNo == 0:
			item.SrNo = i + 1
			for used[item.SrNo] {
				item.SrNo++
			}
			used[item.SrNo] = true
		case item.SrNo > 0:
			if prev, dup := seen[item.SrNo]; dup {
				idx := i
				verr.add(Violation{
					Field:  fmt.Sprintf("items[%d].srNo", i),
					Index:  &idx,
					Reason: fmt.Sprintf("duplicates serial number of items[%d]", prev),
				}, nil)
			}
			seen[item.SrNo] = i
		}
		for _, cause := range pricing.CheckItem(i, item) {
			var itemErr *pricing.InvalidLineItemError
			if errors.As(cause, &itemErr) {
				idx := itemErr.Index
				verr.add(Violation{Field: fmt.Sprintf("items[%d].%s", idx, itemErr.Field), Index: &idx, Reason: itemErr.Reason}, cause)
			}
		}
		items = append(items, item)
	}

	serviceKind, _ := pricing.ParseChargeKind(norm.ServiceCharge.Type)
	vatKind, _ := pricing.ParseChargeKind(norm.VAT.Type)
	if norm.ServiceCharge.Value.IsNegative() {
		verr.add(Violation{Field: "serviceCharge.value", Reason: "service charge value cannot be negative"},
			&pricing.InvalidChargeError{Charge: "serviceCharge", Reason: "value cannot be negative"})
	}
	if norm.VAT.Value.IsNegative() {
		verr.add(Violation{Field: "vat.value", Reason: "VAT value cannot be negative"},
			&pricing.InvalidChargeError{Charge: "vat", Reason: "value cannot be negative"})
	}
	if err := norm.SpecialDiscount.RequireNonNegative("specialDiscount"); err != nil {
		verr.add(Violation{Field: "specialDiscount", Reason: "discount cannot be negative"}, err)
	}

	duplicate := false
	if op == OpCreate && norm.InvoiceNumber != "" && v.numbers != nil {
		exists, err := v.numbers.ExistsNumber(ctx, norm.InvoiceNumber, "")
		if err != nil {
			return Checked{}, storeErr(err)
		}
		if exists {
			duplicate = true
			verr.add(Violation{Field: "invoiceNumber", Reason: "invoice number already exists"}, ErrDuplicateInvoiceNumber)
		}
	}

	if !verr.empty() {
		if duplicate && len(verr.Violations) == 1 {
			return Checked{}, fmt.Errorf("%w: %s", ErrDuplicateInvoiceNumber, norm.InvoiceNumber)
		}
		return Checked{}, verr
	}

	out := Checked{
		InvoiceNumber:   norm.InvoiceNumber,
		CustomerName:    norm.CustomerName,
		CustomerEmail:   norm.CustomerEmail,
		CustomerAddress: norm.CustomerAddress,
		CustomerPhone:   norm.CustomerPhone,
		PaymentStatus:   PaymentStatus(norm.PaymentStatus),
		Notes:           norm.Notes,
		Pricing: pricing.Input{
			Items:           items,
			ServiceCharge:   pricing.ChargeSpec{Kind: serviceKind, Value: norm.ServiceCharge.Value},
			VAT:             pricing.ChargeSpec{Kind: vatKind, Value: norm.VAT.Value},
			SpecialDiscount: norm.SpecialDiscount,
		},
	}
	if out.PaymentStatus == "" {
		out.PaymentStatus = StatusPending
	}
	out.Date = now.UTC()
	if norm.Date != nil && !norm.Date.IsZero() {
		out.Date = norm.Date.UTC()
	}
	out.DueDate = out.Date.AddDate(0, 0, v.dueDays)
	if norm.DueDate != nil && !norm.DueDate.IsZero() {
		out.DueDate = norm.DueDate.UTC()
	}
	if out.DueDate.Before(out.Date) {
		out.Warnings = append(out.Warnings, "dueDate is before the invoice date")
	}
	if len(items) == 0 {
		out.Warnings = append(out.Warnings, "invoice has no items")
	}
	return out, nil
}

func normalizeInput(in Input) Input {
	out := in
	out.InvoiceNumber = NormalizeNumber(in.InvoiceNumber)
	out.CustomerName = strings.TrimSpace(in.CustomerName)
	out.CustomerEmail = strings.ToLower(strings.TrimSpace(in.CustomerEmail))
	out.CustomerAddress = strings.TrimSpace(in.CustomerAddress)
	out.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	out.PaymentStatus = strings.ToLower(strings.TrimSpace(in.PaymentStatus))
	out.ServiceCharge.Type = strings.ToLower(strings.TrimSpace(in.ServiceCharge.Type))
	out.VAT.Type = strings.ToLower(strings.TrimSpace(in.VAT.Type))
	out.Items = make([]ItemInput, len(in.Items))
	for i, it := range in.Items {
		it.ProductName = strings.TrimSpace(it.ProductName)
		it.Measurement = strings.ToUpper(strings.TrimSpace(it.Measurement))
		out.Items[i] = it
	}
	return out
}

func fieldViolation(fe validator.FieldError) Violation {
	field := fe.Namespace()
	if dot := strings.IndexByte(field, '.'); dot >= 0 {
		field = field[dot+1:]
	}
	v := Violation{Field: field, Reason: fieldReason(fe)}
	if m := itemNamespace.FindStringSubmatch(field); m != nil {
		if idx, err := strconv.Atoi(m[1]); err == nil {
			v.Index = &idx
		}
	}
	return v
}

func fieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "measurement":
		return "must be one of: CFT, PCS, SFT, KG, LTR, M, CM, MM"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
