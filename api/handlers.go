/*
handlers.go - HTTP handlers for the allocation engine

PURPOSE:
  The command surface. Each handler decodes a request, resolves the
  week-relative window against the engine's clock, calls one engine
  operation, and maps the returned error kind to a status code. No
  allocation logic lives here.

ERROR MAPPING:
  parking.IsClientError -> 409 Conflict (overlap, pool, blackout) or
                           422 Unprocessable (duration, cover, resource)
  parking.IsAuthError   -> 403 Forbidden
  parking.IsNotFound    -> 404 Not Found
  anything else         -> 500

STATUS CACHE:
  GET /api/status is the hot read path (every chat status command lands
  here), so the computed summary is cached for a short TTL.
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/johnfabrycky/felipe/parking"
)

// Handler holds the dependencies for the HTTP surface.
type Handler struct {
	Engine *parking.Engine

	statusCache *gocache.Cache
	cacheTTL    time.Duration
}

// NewHandler wires a handler around the engine. ttl bounds status-cache
// staleness; zero disables caching.
func NewHandler(engine *parking.Engine, ttl time.Duration) *Handler {
	h := &Handler{Engine: engine, cacheTTL: ttl}
	if ttl > 0 {
		h.statusCache = gocache.New(ttl, 2*ttl)
	}
	return h
}

// =============================================================================
// OFFERS
// =============================================================================

// CreateOffer lists a resident spot as available.
// POST /api/offers
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req OfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	win, err := req.Window(h.Engine.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	offers, err := h.Engine.OfferSpot(r.Context(), parking.ResourceID(req.Spot), parking.UserID(req.Owner), win, req.RepeatWeeks)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()

	dtos := make([]OfferDTO, len(offers))
	for i, o := range offers {
		dtos[i] = toOfferDTO(o)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// WithdrawOffer removes the caller's offers on a spot and cascades their
// claims. The response names every affected claimer so the transport can
// notify them.
// POST /api/offers/withdraw
func (h *Handler) WithdrawOffer(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	result, err := h.Engine.WithdrawOffer(r.Context(), parking.ResourceID(req.Spot), parking.UserID(req.Owner))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()

	affected := make([]string, len(result.AffectedClaimer))
	for i, u := range result.AffectedClaimer {
		affected[i] = string(u)
	}
	writeJSON(w, http.StatusOK, WithdrawDTO{
		RemovedOffers:    result.RemovedOffers,
		CascadedClaims:   result.CascadedClaims,
		AffectedClaimers: affected,
	})
}

// =============================================================================
// CLAIMS
// =============================================================================

// CreateClaim reserves a resident or guest spot.
// POST /api/claims
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	win, err := req.Window(h.Engine.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	claim, err := h.Engine.ClaimSpot(r.Context(), parking.ResourceID(req.Spot), parking.UserID(req.Claimer), win)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()
	writeJSON(w, http.StatusCreated, toClaimDTO(claim))
}

// CreateStaffClaim reserves any free staff slot.
// POST /api/staff/claims
func (h *Handler) CreateStaffClaim(w http.ResponseWriter, r *http.Request) {
	var req StaffClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	win, err := req.Window(h.Engine.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	claim, err := h.Engine.ClaimStaff(r.Context(), parking.UserID(req.Claimer), win)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()
	writeJSON(w, http.StatusCreated, toClaimDTO(claim))
}

// CancelClaim removes a claim by id.
// DELETE /api/claims/{id}?claimer=...
func (h *Handler) CancelClaim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claimer := r.URL.Query().Get("claimer")
	if claimer == "" {
		writeError(w, http.StatusBadRequest, "claimer query parameter required", nil)
		return
	}

	if err := h.Engine.CancelClaim(r.Context(), parking.ClaimID(id), parking.UserID(claimer)); err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()
	w.WriteHeader(http.StatusNoContent)
}

// CancelBySelector removes a claim by shape, for transports that cannot
// hold on to claim ids.
// POST /api/claims/cancel
func (h *Handler) CancelBySelector(w http.ResponseWriter, r *http.Request) {
	var req SelectorCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	day, err := parking.ParseWeekday(req.Day)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid day", err)
		return
	}

	sel := parking.CancelSelector{
		Resource:  parking.ResourceID(req.Spot),
		DayOfWeek: day,
		StartHour: req.StartHour,
		EndHour:   parking.AnyEndHour,
	}
	if req.EndHour != nil {
		sel.EndHour = *req.EndHour
	}
	if err := h.Engine.CancelBySelector(r.Context(), sel, parking.UserID(req.Claimer)); err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()
	w.WriteHeader(http.StatusNoContent)
}

// ReleaseStaff drops the caller's staff claim.
// DELETE /api/staff/claims?claimer=...
func (h *Handler) ReleaseStaff(w http.ResponseWriter, r *http.Request) {
	claimer := r.URL.Query().Get("claimer")
	if claimer == "" {
		writeError(w, http.StatusBadRequest, "claimer query parameter required", nil)
		return
	}

	if err := h.Engine.ReleaseStaff(r.Context(), parking.UserID(claimer)); err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()
	w.WriteHeader(http.StatusNoContent)
}

// Reclaim evicts the current occupant of the caller's own spot.
// POST /api/reclaims
func (h *Handler) Reclaim(w http.ResponseWriter, r *http.Request) {
	var req ReclaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	evicted, err := h.Engine.Reclaim(r.Context(), parking.ResourceID(req.Spot), parking.UserID(req.Owner))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.invalidateStatus()
	writeJSON(w, http.StatusOK, map[string]string{"evicted_claimer": string(evicted)})
}

// =============================================================================
// READ SIDE
// =============================================================================

// GetStatus returns the availability summary for every offered spot plus
// the guest spot and staff pool.
// GET /api/status?horizon_days=7
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	horizonDays := 7
	if v := r.URL.Query().Get("horizon_days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 28 {
			writeError(w, http.StatusBadRequest, "horizon_days must be 1..28", err)
			return
		}
		horizonDays = n
	}

	key := fmt.Sprintf("status:%d", horizonDays)
	if h.statusCache != nil {
		if cached, ok := h.statusCache.Get(key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	statuses, err := h.Engine.Status(r.Context(), horizonDays)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status computation failed", err)
		return
	}
	dtos := make([]StatusDTO, len(statuses))
	for i, s := range statuses {
		dtos[i] = toStatusDTO(s)
	}
	if h.statusCache != nil {
		h.statusCache.Set(key, dtos, h.cacheTTL)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUserActivity returns one user's offers, claims and utilization.
// GET /api/users/{id}/activity
func (h *Handler) GetUserActivity(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "id")
	activity, err := h.Engine.UserActivity(r.Context(), parking.UserID(user))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "activity lookup failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(activity))
}

// invalidateStatus flushes the cache after any mutation so status never
// shows a stale claim for a full TTL.
func (h *Handler) invalidateStatus() {
	if h.statusCache != nil {
		h.statusCache.Flush()
	}
}

// =============================================================================
// JSON HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps an engine error kind to a status code and names
// the kind in the body so the transport can render a specific message.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, parking.ErrOverlap), errors.Is(err, parking.ErrPoolExhausted), errors.Is(err, parking.ErrBlackout):
		status = http.StatusConflict
		kind = kindOf(err)
	case errors.Is(err, parking.ErrInvalidResource), errors.Is(err, parking.ErrInvalidDuration), errors.Is(err, parking.ErrOutsideOfferWindow):
		status = http.StatusUnprocessableEntity
		kind = kindOf(err)
	case parking.IsAuthError(err):
		status = http.StatusForbidden
		kind = kindOf(err)
	case parking.IsNotFound(err):
		status = http.StatusNotFound
		kind = "not_found"
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, parking.ErrOverlap):
		return "overlap"
	case errors.Is(err, parking.ErrPoolExhausted):
		return "pool_exhausted"
	case errors.Is(err, parking.ErrBlackout):
		return "blackout"
	case errors.Is(err, parking.ErrInvalidResource):
		return "invalid_resource"
	case errors.Is(err, parking.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, parking.ErrOutsideOfferWindow):
		return "outside_offer_window"
	case errors.Is(err, parking.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, parking.ErrNotClaimer):
		return "not_claimer"
	}
	return "internal"
}
