/**
 * @description
 * HTTP handlers for the listing lifecycle engine. Handlers parse requests,
 * call into the service layer and translate the domain error taxonomy to
 * HTTP status codes. Authentication is out of scope; callers identify
 * themselves with the X-User-ID header.
 */
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/adverto/listing-service/internal/app"
	"github.com/adverto/listing-service/internal/domain"
)

// Handler holds the application services the routes dispatch to.
type Handler struct {
	service    *app.Service
	reconciler *app.Reconciler
}

// NewHandler creates a Handler.
func NewHandler(service *app.Service, reconciler *app.Reconciler) *Handler {
	return &Handler{service: service, reconciler: reconciler}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrStateConflict):
		status = http.StatusConflict
	}
	respondWithJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var in app.CreateListingInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if in.OwnerID == "" {
		in.OwnerID = r.Header.Get("X-User-ID")
	}

	listing, err := h.service.CreateListing(r.Context(), in)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, listing)
}

func (h *Handler) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.service.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, listing)
}

func (h *Handler) handleSearchListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.Filter{
		OwnerID:   q.Get("owner_id"),
		StoreID:   q.Get("store_id"),
		AdType:    domain.AdType(q.Get("ad_type")),
		Query:     q.Get("q"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	f.MinPrice, _ = strconv.ParseInt(q.Get("min_price"), 10, 64)
	f.MaxPrice, _ = strconv.ParseInt(q.Get("max_price"), 10, 64)
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	listings, err := h.service.SearchListings(r.Context(), f)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, listings)
}

func (h *Handler) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var patch struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Price       *int64  `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := h.service.UpdateListing(r.Context(), chi.URLParam(r, "id"), domain.ListingPatch{
		Title:       patch.Title,
		Description: patch.Description,
		Price:       patch.Price,
	})
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteListing(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handlePurchaseViews(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.PurchaseViews(r.Context(), chi.URLParam(r, "id"), req.Count); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "purchased"})
}

func (h *Handler) handleIncrementViews(w http.ResponseWriter, r *http.Request) {
	if err := h.service.IncrementViewCount(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "counted"})
}

func (h *Handler) handlePromoteListing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier         domain.AdType `json:"tier"`
		DurationDays int           `json:"duration_days"`
		StoreID      string        `json:"store_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	var err error
	if req.StoreID != "" {
		err = h.service.PromoteListingInStore(r.Context(), id, req.StoreID, req.Tier, req.DurationDays)
	} else {
		err = h.service.PromoteListing(r.Context(), id, req.Tier, req.DurationDays)
	}
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "promoted"})
}

func (h *Handler) handleApplyEffects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Effects []domain.CreativeEffect `json:"effects"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.ApplyCreativeEffects(r.Context(), chi.URLParam(r, "id"), req.Effects); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *Handler) handleEnableAutoRenewal(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EnableAutoRenewal(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

func (h *Handler) handleDisableAutoRenewal(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DisableAutoRenewal(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (h *Handler) handleRenewListing(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RenewListing(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "renewed"})
}

// handleRunSweep is the scheduler hook for host processes that drive the
// sweep on their own timer instead of the built-in cron.
func (h *Handler) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.RunSweep(r.Context()); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
