package audithttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gemvault/gemvault/internal/audit"
	"github.com/gemvault/gemvault/internal/rbac"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.TimelineRow
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newRouter(svc TimelineService, exportLimit int) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mw := rbac.Middleware{Service: rbac.NewService(nil), Logger: logger}
	h := NewHandler(logger, svc, mw, exportLimit)
	h.now = func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	h.MountRoutes(r)
	return r
}

func get(h http.Handler, path, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(rbac.HeaderActorID, "1")
	req.Header.Set(rbac.HeaderActorRole, role)
	if role == "customer" {
		req.Header.Set(rbac.HeaderCustomerID, "5")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	svc := &stubTimelineService{result: audit.Result{
		Rows:   []audit.TimelineRow{{ID: 1, Action: "payment.confirmed", Entity: "payment", EntityID: "9"}},
		Paging: audit.PagingInfo{Page: 1, PageSize: 20},
	}}
	rec := get(newRouter(svc, 0), "/audit?entity=payment", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), svc.lastFilters.From)
	require.Equal(t, time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC), svc.lastFilters.To)
	require.Equal(t, "payment", svc.lastFilters.Entity)

	var body audit.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Rows, 1)
	require.Equal(t, "payment.confirmed", body.Rows[0].Action)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	h := newRouter(&stubTimelineService{}, 0)
	require.Equal(t, http.StatusBadRequest, get(h, "/audit?from=2024-03-10&to=2024-03-01", "admin").Code)
	require.Equal(t, http.StatusBadRequest, get(h, "/audit?from=2023-01-01&to=2024-03-01", "admin").Code)
	require.Equal(t, http.StatusBadRequest, get(h, "/audit?page=0", "admin").Code)
	require.Equal(t, http.StatusBadRequest, get(h, "/audit?actor_id=x", "admin").Code)
}

func TestTimelineRequiresAuditPermission(t *testing.T) {
	h := newRouter(&stubTimelineService{}, 0)
	require.Equal(t, http.StatusForbidden, get(h, "/audit", "staff").Code)
	require.Equal(t, http.StatusForbidden, get(h, "/audit", "customer").Code)
}

func TestExportCSVIsRateLimitedPerActor(t *testing.T) {
	svc := &stubTimelineService{exportRows: []audit.TimelineRow{{
		At:       time.Date(2024, 3, 19, 8, 0, 0, 0, time.UTC),
		ActorID:  4,
		Action:   "invoice.created",
		Entity:   "invoice",
		EntityID: "12",
		Meta:     map[string]any{"total": "517.50"},
	}}}
	h := newRouter(svc, 2)

	rec := get(h, "/audit/export.csv", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasPrefix(lines[1], "2024-03-19T08:00:00Z,4,,invoice.created,invoice,12,"))

	require.Equal(t, http.StatusOK, get(h, "/audit/export.csv", "admin").Code)
	require.Equal(t, http.StatusTooManyRequests, get(h, "/audit/export.csv", "admin").Code)
}
