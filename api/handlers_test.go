package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestServer wires a router over an in-memory store with one occupied
// property (tenant res-1, moved in 2025-04-01, monthly rate 1000).
func newTestServer(t *testing.T) (*chiServer, *memory.Store) {
	t.Helper()
	store := memory.New()

	prof := billing.ProfileID("prof-1")
	store.AddProfile(billing.RateProfile{
		ID:         prof,
		Name:       "Standard Service Charge",
		TargetType: billing.TargetProperty,
		Active:     true,
		Items: []billing.RateItem{
			{ID: "i1", Name: "Service Charge", Amount: mustMoney("1000"), Frequency: billing.FreqMonthly},
		},
	})
	store.AddProperty(billing.Property{ID: "prop-1", Label: "House 1", Active: true, RateProfileID: &prof})
	store.AddLink(billing.OccupancyLink{
		ID: "l1", ResidentID: "res-1", PropertyID: "prop-1",
		Role: billing.RoleTenant, Active: true,
		MoveInDate: billing.NewDate(2025, time.April, 1),
	})

	engine := &billing.Orchestrator{
		Properties:  store,
		Occupancies: store,
		Profiles:    store,
		Invoices:    store,
		Settings:    &billing.Settings{Store: store},
		Runs:        store,
	}
	handler := api.NewHandler(engine, store, store)
	engine.Cache = handler

	return &chiServer{router: api.NewRouter(handler)}, store
}

type chiServer struct{ router http.Handler }

func (s *chiServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func mustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// =============================================================================
// GENERATE ENDPOINT TESTS
// =============================================================================

func TestTriggerGeneration_ReturnsSummary(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/billing/generate", `{"asOf":"2025-04-30"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary billing.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.True(t, summary.Success)
	assert.Equal(t, 1, summary.Generated)
}

func TestTriggerGeneration_SecondCallGeneratesNothing(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/billing/generate", `{"asOf":"2025-04-30"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/billing/generate", `{"asOf":"2025-04-30"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary billing.BatchSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 0, summary.Generated)
}

func TestTriggerGeneration_BadDateRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/billing/generate", `{"asOf":"30/04/2025"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPost, "/api/billing/generate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// INVOICE ENDPOINT TESTS
// =============================================================================

func TestListInvoices_FilterByResident(t *testing.T) {
	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK,
		srv.do(t, http.MethodPost, "/api/billing/generate", `{"asOf":"2025-04-30"}`).Code)

	rec := srv.do(t, http.MethodGet, "/api/invoices?resident=res-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []api.InvoiceDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "res-1", out[0].ResidentID)
	assert.Equal(t, "1000.00", out[0].AmountDue, "money travels as a string")
	assert.Equal(t, "unpaid", out[0].Status)
	assert.Equal(t, "2025-04-01", out[0].PeriodStart)

	// Unknown resident: empty list, not an error.
	rec = srv.do(t, http.MethodGet, "/api/invoices?resident=nobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out)
}

func TestGetInvoice_DetailWithLines(t *testing.T) {
	srv, store := newTestServer(t)
	require.Equal(t, http.StatusOK,
		srv.do(t, http.MethodPost, "/api/billing/generate", `{"asOf":"2025-04-30"}`).Code)

	res := billing.ResidentID("res-1")
	invs, err := store.Invoices(context.Background(), billing.InvoiceFilter{ResidentID: &res})
	require.NoError(t, err)
	require.Len(t, invs, 1)

	rec := srv.do(t, http.MethodGet, "/api/invoices/"+string(invs[0].ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var detail api.InvoiceDetailDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, string(invs[0].ID), detail.ID)
	require.Len(t, detail.Lines, 1)
	assert.Equal(t, "Service Charge", detail.Lines[0].Description)
	assert.Equal(t, "1000.00", detail.Lines[0].Amount)

	// The frozen snapshot rides along on the detail payload.
	assert.Equal(t, "Standard Service Charge", detail.Snapshot.ProfileName)
}

func TestGetInvoice_UnknownIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/api/invoices/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// RUN LOG ENDPOINT TESTS
// =============================================================================

func TestListRuns_ReflectsCompletedBatches(t *testing.T) {
	srv, _ := newTestServer(t)

	// Prime the cache with the empty state, then run a batch; the cache
	// invalidation must make the new run visible.
	rec := srv.do(t, http.MethodGet, "/api/billing/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []api.RunDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Empty(t, runs)

	require.Equal(t, http.StatusOK,
		srv.do(t, http.MethodPost, "/api/billing/generate", `{"asOf":"2025-04-30"}`).Code)

	rec = srv.do(t, http.MethodGet, "/api/billing/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "manual", runs[0].Trigger)
	assert.Equal(t, "2025-04-30", runs[0].AsOf)
	assert.Equal(t, 1, runs[0].Generated)
	assert.True(t, runs[0].Success)
}

func TestListRuns_BadLimitRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/billing/runs?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/billing/runs?limit=abc", "").Code)
}

// =============================================================================
// MISC
// =============================================================================

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
