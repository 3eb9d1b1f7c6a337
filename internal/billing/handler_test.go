package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gemvault/gemvault/internal/rbac"
	_ "github.com/gemvault/gemvault/testing"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
}

func newAPI(t *testing.T) (*apiClient, *fixture) {
	t.Helper()
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Service: rbac.NewService(nil), Logger: logger}

	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	r.Route("/api/admin/billing", NewHandler(logger, f.svc, mw).MountRoutes)
	r.Route("/api/portal", NewPortalHandler(logger, f.svc, mw).MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiClient{t: t, server: srv}, f
}

func asStaff() map[string]string {
	return map[string]string{rbac.HeaderActorID: "4", rbac.HeaderActorRole: "staff"}
}

func asCustomer(id int64) map[string]string {
	return map[string]string{rbac.HeaderActorID: "90", rbac.HeaderActorRole: "customer", rbac.HeaderCustomerID: fmt.Sprint(id)}
}

func (c *apiClient) do(method, path string, headers map[string]string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestInvoiceAndPaymentEndpoints(t *testing.T) {
	api, _ := newAPI(t)

	var inv Invoice
	code := api.do(http.MethodPost, "/api/admin/billing/invoices", asStaff(), map[string]any{
		"customer_id":     31,
		"issue_date":      "2024-03-15",
		"payment_term_id": 7,
		"items":           []map[string]any{{"product_name": "Emerald bracelet", "price": "1000.00"}},
	}, &inv)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "1000.00", inv.TotalAmount.StringFixed(2))
	require.Len(t, inv.Schedules, 6)

	code = api.do(http.MethodPost, fmt.Sprintf("/api/admin/billing/invoices/%d/send", inv.ID), asStaff(), nil, &inv)
	require.Equal(t, http.StatusOK, code)

	var listed listResponse[Invoice]
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/portal/invoices", asCustomer(31), nil, &listed))
	require.Len(t, listed.Data, 1)
	require.Equal(t, 1, listed.Pagination.Total)
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/portal/invoices", asCustomer(32), nil, &listed))
	require.Empty(t, listed.Data)
	require.Equal(t, http.StatusNotFound, api.do(http.MethodGet, fmt.Sprintf("/api/portal/invoices/%d", inv.ID), asCustomer(32), nil, nil))

	var p Payment
	headers := asCustomer(31)
	headers[HeaderIdempotencyKey] = "k-1"
	body := map[string]any{
		"amount_paid":        "300.00",
		"reference_number":   "TRX-55",
		"receipt_images":     []string{"receipts/55.jpg"},
		"selected_schedules": []int64{inv.Schedules[0].ID},
	}
	code = api.do(http.MethodPost, fmt.Sprintf("/api/portal/invoices/%d/payments", inv.ID), headers, body, &p)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, PaymentPending, p.Status)
	require.Equal(t, http.StatusConflict, api.do(http.MethodPost, fmt.Sprintf("/api/portal/invoices/%d/payments", inv.ID), headers, body, nil))

	require.Equal(t, http.StatusForbidden, api.do(http.MethodPost, fmt.Sprintf("/api/admin/billing/payments/%d/approve", p.ID), asCustomer(31), nil, nil))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, fmt.Sprintf("/api/admin/billing/payments/%d/approve", p.ID), asStaff(), nil, nil))

	var result PaymentResult
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, fmt.Sprintf("/api/admin/billing/payments/%d/confirm", p.ID), asStaff(), nil, &result))
	require.Equal(t, PaymentPartiallyPaid, result.Invoice.PaymentStatus)
	require.Equal(t, "700.00", result.Invoice.RemainingBalance.StringFixed(2))

	require.Equal(t, http.StatusConflict, api.do(http.MethodPost, fmt.Sprintf("/api/admin/billing/payments/%d/confirm", p.ID), asStaff(), nil, nil))
	require.Equal(t, http.StatusConflict, api.do(http.MethodPost, fmt.Sprintf("/api/admin/billing/invoices/%d/payment-plan", inv.ID), asStaff(), nil, nil))

	var summary ReceivablesSummary
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/admin/billing/receivables/summary", asStaff(), nil, &summary))
	require.Equal(t, "700.00", summary.TotalOutstanding.StringFixed(2))
}

func TestBillingEndpointValidation(t *testing.T) {
	api, _ := newAPI(t)

	require.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/api/admin/billing/invoices", nil, nil, nil))
	require.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/api/admin/billing/invoices", asCustomer(31), nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/api/admin/billing/invoices/abc", asStaff(), nil, nil))
	require.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/api/admin/billing/invoices", asStaff(), map[string]any{"unknown": true}, nil))
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/api/admin/billing/invoices", asStaff(), map[string]any{
		"customer_id": 31,
		"issue_date":  "15/03/2024",
		"items":       []map[string]any{{"product_name": "Ring", "price": "10"}},
	}, nil))
	require.Equal(t, http.StatusNotFound, api.do(http.MethodPost, "/api/admin/billing/payments/77/approve", asStaff(), nil, nil))
	require.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/api/admin/billing/invoices/1/cancel", asStaff(), map[string]any{"reason": ""}, nil))

	var preview PlanPreview
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/admin/billing/plan-preview", asStaff(), map[string]any{
		"total_amount": "1000", "issue_date": "2024-03-15", "payment_term_id": 7,
	}, &preview))
	require.Len(t, preview.Schedules, 6)
}
