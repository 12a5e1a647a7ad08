package invoice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/money"
	"github.com/noah-isme/backend-invoice/internal/pricing"
)

const scenarioA = `{
	"customerName": "Acme",
	"items": [
		{"productName": "Plank", "quantity": 2, "price": "100", "total": 999},
		{"productName": "Varnish", "quantity": 1, "price": 50}
	],
	"serviceCharge": {"type": "fixed", "value": 0, "amount": 5},
	"vat": {"type": "percentage", "value": 15},
	"specialDiscount": 0,
	"grandTotal": 1
}`

func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestCreateHandlerIgnoresCallerTotals(t *testing.T) {
	h := &Handler{Service: newTestService(t, newMemStore())}

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(scenarioA)))
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Equal(t, "INV-202410-001", data["invoiceNumber"])
	require.EqualValues(t, 250, data["subtotal"])
	require.EqualValues(t, 287.5, data["grandTotal"])
	require.EqualValues(t, 287.5, data["netTotal"])
	items := data["items"].([]any)
	require.EqualValues(t, 200, items[0].(map[string]any)["total"])
	require.EqualValues(t, 0, data["serviceCharge"].(map[string]any)["amount"])
}

func TestCreateHandlerValidationDetails(t *testing.T) {
	h := &Handler{Service: newTestService(t, newMemStore())}

	body := `{"customerName":"","items":[{"productName":"x","quantity":0,"price":1}]}`
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	e := decodeBody(t, rec)["error"].(map[string]any)
	require.Equal(t, "VALIDATION_FAILED", e["code"])
	require.Len(t, e["details"].([]any), 2)
}

func TestCreateHandlerRejectsBadAmounts(t *testing.T) {
	h := &Handler{Service: newTestService(t, newMemStore())}

	rec := httptest.NewRecorder()
	body := `{"customerName":"a","items":[{"productName":"x","quantity":"abc","price":1}]}`
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "INVALID_AMOUNT", decodeBody(t, rec)["error"].(map[string]any)["code"])
}

func TestHandlerCRUDFlow(t *testing.T) {
	store := newMemStore()
	h := &Handler{Service: newTestService(t, store)}

	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invoices", strings.NewReader(scenarioA)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody(t, rec)["data"].(map[string]any)["id"].(string)

	rec = httptest.NewRecorder()
	h.Get(rec, withID(httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+id, nil), id))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/invoices?status=pending&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	require.Len(t, payload["data"].([]any), 1)
	require.EqualValues(t, 1, payload["pagination"].(map[string]any)["total_items"])

	update := strings.Replace(scenarioA, `"customerName": "Acme"`, `"customerName": "Acme Ltd", "paymentStatus": "paid"`, 1)
	rec = httptest.NewRecorder()
	h.Update(rec, withID(httptest.NewRequest(http.MethodPut, "/api/v1/invoices/"+id, strings.NewReader(update)), id))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "paid", decodeBody(t, rec)["data"].(map[string]any)["paymentStatus"])

	rec = httptest.NewRecorder()
	h.Delete(rec, withID(httptest.NewRequest(http.MethodDelete, "/api/v1/invoices/"+id, nil), id))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "invoice deleted", decodeBody(t, rec)["data"].(map[string]any)["message"])

	rec = httptest.NewRecorder()
	h.Get(rec, withID(httptest.NewRequest(http.MethodGet, "/api/v1/invoices/"+id, nil), id))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPreviewHandler(t *testing.T) {
	store := newMemStore()
	h := &Handler{Service: newTestService(t, store)}

	rec := httptest.NewRecorder()
	h.Preview(rec, httptest.NewRequest(http.MethodPost, "/api/v1/invoices/preview", strings.NewReader(scenarioA)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 287.5, decodeBody(t, rec)["data"].(map[string]any)["netTotal"])
	require.Zero(t, store.inserts)
}

type stubRenderer struct{ err error }

func (s stubRenderer) Render(w io.Writer, inv Invoice) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, "%PDF-"+inv.InvoiceNumber)
	return err
}

func TestPDFHandler(t *testing.T) {
	svc := newTestService(t, newMemStore())
	inv, err := svc.Create(context.Background(), sampleInput())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	(&Handler{Service: svc}).PDF(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), inv.ID))
	require.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = httptest.NewRecorder()
	(&Handler{Service: svc, Renderer: stubRenderer{}}).PDF(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), inv.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "INV-202410-001.pdf")
	require.Equal(t, "%PDF-INV-202410-001", rec.Body.String())

	rec = httptest.NewRecorder()
	(&Handler{Service: svc, Renderer: stubRenderer{err: errors.New("font missing")}}).PDF(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), inv.ID))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestToAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&ValidationError{Violations: []Violation{{Field: "x", Reason: "y"}}}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{&pricing.NegativeNetTotalError{GrandTotal: money.FromInt(1), Discount: money.FromInt(2)}, http.StatusUnprocessableEntity, "NEGATIVE_NET_TOTAL"},
		{&pricing.InvalidLineItemError{Index: 2, Field: "quantity", Reason: "bad"}, http.StatusBadRequest, "INVALID_LINE_ITEM"},
		{&pricing.InvalidChargeError{Charge: "vat", Reason: "bad"}, http.StatusBadRequest, "INVALID_CHARGE"},
		{&money.InvalidAmountError{Field: "specialDiscount", Value: "-1"}, http.StatusBadRequest, "INVALID_AMOUNT"},
		{ErrDuplicateInvoiceNumber, http.StatusConflict, "DUPLICATE_INVOICE_NUMBER"},
		{ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{ErrNumberExhausted, http.StatusServiceUnavailable, "NUMBER_UNAVAILABLE"},
		{storeErr(errBoom), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{common.NewAppError("TEAPOT", "short and stout", http.StatusTeapot, nil), http.StatusTeapot, "TEAPOT"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		ae := ToAppError(tc.err)
		require.Equal(t, tc.status, ae.HTTPStatus, tc.code)
		require.Equal(t, tc.code, ae.Code)
	}
}
