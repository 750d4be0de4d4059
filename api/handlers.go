/*
handlers.go - HTTP handlers for the billing engine

PURPOSE:
  Exposes the generation batch and its outputs over REST. Handlers parse and
  validate input, delegate to the orchestrator or repositories, and
  serialize responses.

ENDPOINTS:
  POST /api/billing/generate   Trigger a manual generation run
  GET  /api/billing/runs       Generation-run audit log (newest first)
  GET  /api/invoices           List invoices (?resident=&property=&status=)
  GET  /api/invoices/{id}      Invoice with line items
  GET  /api/health             Liveness probe

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: invalid input
  - 404: unknown invoice
  - 409: a generation run is already in progress
  - 500: internal errors (including a fatal batch failure; the summary is
         still included so the operator sees what happened)

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router and middleware
  - scheduler.go: the cron path into the same orchestrator entry point
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *billing.Orchestrator
	Invoices billing.InvoiceQuerier
	Runs     billing.RunLog

	// Cached run list, dropped whenever a batch completes (the orchestrator
	// calls InvalidateBilling through the CacheInvalidator interface).
	cacheMu    sync.Mutex
	cachedRuns []billing.RunRecord
}

func NewHandler(engine *billing.Orchestrator, invoices billing.InvoiceQuerier, runs billing.RunLog) *Handler {
	return &Handler{Engine: engine, Invoices: invoices, Runs: runs}
}

// InvalidateBilling implements billing.CacheInvalidator.
func (h *Handler) InvalidateBilling() {
	h.cacheMu.Lock()
	h.cachedRuns = nil
	h.cacheMu.Unlock()
}

// =============================================================================
// BILLING ENDPOINTS
// =============================================================================

// TriggerGeneration runs a manual generation batch.
func (h *Handler) TriggerGeneration(w http.ResponseWriter, r *http.Request) {
	asOf := billing.DateOf(time.Now())

	if r.ContentLength > 0 {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.AsOf != "" {
			parsed, err := billing.ParseDate(req.AsOf)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			asOf = parsed
		}
	}

	summary, err := h.Engine.RunMonthlyGeneration(r.Context(), asOf, billing.TriggerManual)
	if errors.Is(err, billing.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "a generation run is already in progress")
		return
	}
	if err != nil {
		// Fatal batch failure; return the summary anyway so the operator
		// sees the recorded explanation.
		writeJSON(w, http.StatusInternalServerError, summary)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListRuns returns the generation-run audit log, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	h.cacheMu.Lock()
	cached := h.cachedRuns
	h.cacheMu.Unlock()

	runs := cached
	if runs == nil {
		var err error
		runs, err = h.Runs.Runs(r.Context(), 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.cacheMu.Lock()
		h.cachedRuns = runs
		h.cacheMu.Unlock()
	}

	if len(runs) > limit {
		runs = runs[:limit]
	}
	out := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// INVOICE ENDPOINTS
// =============================================================================

func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	var filter billing.InvoiceFilter
	q := r.URL.Query()
	if v := q.Get("resident"); v != "" {
		id := billing.ResidentID(v)
		filter.ResidentID = &id
	}
	if v := q.Get("property"); v != "" {
		id := billing.PropertyID(v)
		filter.PropertyID = &id
	}
	if v := q.Get("status"); v != "" {
		status := billing.InvoiceStatus(v)
		filter.Status = &status
	}

	invoices, err := h.Invoices.Invoices(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))
	inv, lines, err := h.Invoices.InvoiceByID(r.Context(), id)
	if errors.Is(err, billing.ErrInvoiceNotFound) {
		writeError(w, http.StatusNotFound, "invoice not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	detail := InvoiceDetailDTO{InvoiceDTO: toInvoiceDTO(*inv)}
	for _, line := range lines {
		detail.Lines = append(detail.Lines, toLineDTO(line))
	}
	writeJSON(w, http.StatusOK, detail)
}

// =============================================================================
// MISC
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
