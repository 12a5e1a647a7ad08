package invoice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/money"
	"github.com/noah-isme/backend-invoice/internal/pricing"
)

const defaultPerPage = 50

// Renderer turns an invoice into a printable document.
type Renderer interface {
	Render(w io.Writer, inv Invoice) error
}

// Handler exposes the invoice HTTP endpoints.
type Handler struct {
	Service  *Service
	Renderer Renderer
}

// List handles GET /api/v1/invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, defaultPerPage)
	if perPage > 500 {
		perPage = 500
	}
	filter := ListFilter{
		Status: PaymentStatus(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	items, total, err := h.Service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []Invoice{}
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/invoices/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, inv)
}

// Create handles POST /api/v1/invoices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, inv)
}

// Preview handles POST /api/v1/invoices/preview and never persists.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Preview(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, inv)
}

// Update handles PUT /api/v1/invoices/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeInput(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, inv)
}

// Delete handles DELETE /api/v1/invoices/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	common.Message(w, http.StatusOK, "invoice deleted")
}

// PDF handles GET /api/v1/invoices/{id}/pdf.
func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	if h.Renderer == nil {
		common.JSONError(w, http.StatusNotImplemented, "PDF_UNAVAILABLE", "pdf rendering not configured", nil)
		return
	}
	inv, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := h.Renderer.Render(&buf, inv); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "render pdf", nil)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", inv.InvoiceNumber+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func decodeInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var amountErr *money.InvalidAmountError
		if errors.As(err, &amountErr) {
			common.JSONError(w, http.StatusBadRequest, "INVALID_AMOUNT", amountErr.Error(), nil)
			return Input{}, false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request payload", nil)
		return Input{}, false
	}
	return in, true
}

// ToAppError maps domain errors onto HTTP-facing AppErrors.
func ToAppError(err error) *common.AppError {
	var (
		verr     *ValidationError
		negative *pricing.NegativeNetTotalError
		itemErr  *pricing.InvalidLineItemError
		appErr   *common.AppError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &verr):
		return common.NewAppError("VALIDATION_FAILED", "invoice validation failed", http.StatusBadRequest, err).WithDetails(verr.Violations)
	case errors.As(err, &negative):
		return common.NewAppError("NEGATIVE_NET_TOTAL", negative.Error(), http.StatusUnprocessableEntity, err)
	case errors.As(err, &itemErr):
		return common.NewAppError("INVALID_LINE_ITEM", itemErr.Error(), http.StatusBadRequest, err).
			WithDetails(map[string]any{"index": itemErr.Index, "reason": itemErr.Reason})
	case errors.Is(err, pricing.ErrInvalidCharge):
		return common.NewAppError("INVALID_CHARGE", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, money.ErrInvalidAmount):
		return common.NewAppError("INVALID_AMOUNT", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrDuplicateInvoiceNumber):
		return common.NewAppError("DUPLICATE_INVOICE_NUMBER", "invoice number already exists", http.StatusConflict, err)
	case errors.Is(err, ErrNotFound):
		return common.NewAppError("NOT_FOUND", "invoice not found", http.StatusNotFound, err)
	case errors.Is(err, ErrNumberExhausted):
		return common.NewAppError("NUMBER_UNAVAILABLE", "could not allocate an invoice number, retry the request", http.StatusServiceUnavailable, err)
	case errors.Is(err, ErrStoreUnavailable):
		return common.NewAppError("STORE_UNAVAILABLE", "invoice store unavailable", http.StatusServiceUnavailable, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, ToAppError(err))
}
