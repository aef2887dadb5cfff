/**
 * @description
 * This file contains the HTTP handlers for the reconciliation-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/procura/reconciliation-service/internal/app"
	"github.com/procura/reconciliation-service/internal/domain"
	"github.com/procura/reconciliation-service/internal/store"
	"github.com/procura/reconciliation-service/pkg/airwallex"
)

// ReconciliationHandlers holds the application service that handlers will use.
type ReconciliationHandlers struct {
	service *app.Service
}

// NewReconciliationHandlers creates a new instance of ReconciliationHandlers.
func NewReconciliationHandlers(service *app.Service) *ReconciliationHandlers {
	return &ReconciliationHandlers{service: service}
}

// TriggerSyncHandler handles admin requests to run a reconciliation sync for
// one entity category.
func (h *ReconciliationHandlers) TriggerSyncHandler(w http.ResponseWriter, r *http.Request) {
	adminID, _ := GetAdminUserID(r.Context())

	category, ok := domain.ValidCategory(strings.TrimSpace(chi.URLParam(r, "category")))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Unknown entity category")
		return
	}

	log.Printf("level=info component=api endpoint=trigger_sync outcome=accepted category=%s admin_id=%s", category, adminID)

	h.runSync(w, r, category)
}

// InternalTriggerSyncHandler handles scheduler/service-to-service sync
// triggers. Same semantics as the admin trigger, different auth.
func (h *ReconciliationHandlers) InternalTriggerSyncHandler(w http.ResponseWriter, r *http.Request) {
	category, ok := domain.ValidCategory(strings.TrimSpace(chi.URLParam(r, "category")))
	if !ok {
		h.writeError(w, http.StatusBadRequest, "Unknown entity category")
		return
	}

	log.Printf("level=info component=api endpoint=internal_trigger_sync outcome=accepted category=%s", category)

	h.runSync(w, r, category)
}

func (h *ReconciliationHandlers) runSync(w http.ResponseWriter, r *http.Request, category domain.EntityCategory) {
	result, err := h.service.RunSync(r.Context(), category)
	if err != nil {
		log.Printf("level=warn component=api endpoint=trigger_sync outcome=failed category=%s err=%v", category, err)
		if errors.Is(err, app.ErrSyncAlreadyRunning) {
			h.writeError(w, http.StatusConflict, "A sync run for this category is already in progress")
			return
		}
		var authErr *airwallex.AuthError
		var pageErr *airwallex.PageFetchError
		if errors.As(err, &authErr) || errors.As(err, &pageErr) {
			h.writeError(w, http.StatusBadGateway, "Upstream payments platform request failed")
			return
		}
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// ResyncContactHandler handles admin requests to re-pull a single linked
// contact from the payments platform.
func (h *ReconciliationHandlers) ResyncContactHandler(w http.ResponseWriter, r *http.Request) {
	adminID, _ := GetAdminUserID(r.Context())

	contactID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid contact ID format")
		return
	}

	log.Printf("level=info component=api endpoint=resync_contact outcome=accepted contact_id=%s admin_id=%s", contactID, adminID)

	contact, err := h.service.ResyncContact(r.Context(), contactID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=resync_contact outcome=failed contact_id=%s err=%v", contactID, err)
		switch {
		case errors.Is(err, store.ErrContactNotFound):
			h.writeError(w, http.StatusNotFound, "Contact not found")
		case errors.Is(err, app.ErrContactNotLinked):
			h.writeError(w, http.StatusConflict, "Contact is not linked to an external record")
		case errors.Is(err, app.ErrBeneficiaryGone):
			h.writeError(w, http.StatusGone, "Linked external record no longer exists")
		case errors.Is(err, app.ErrResyncRateLimited):
			h.writeError(w, http.StatusTooManyRequests, "Too many resync requests for this contact. Please wait and try again.")
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, contact)
}

// ListSyncRunsHandler handles requests to list recent reconciliation runs.
func (h *ReconciliationHandlers) ListSyncRunsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 20)
	if err != nil || limit < 1 || limit > 200 {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	runs, err := h.service.ListSyncRuns(r.Context(), limit)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_runs outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, runs)
}

func parseOptionalInt(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// writeJSON is a helper for writing JSON responses.
func (h *ReconciliationHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *ReconciliationHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
