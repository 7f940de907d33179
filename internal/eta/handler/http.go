package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/spacall/internal/booking/domain"
	etasvc "github.com/example/spacall/internal/eta/service"
)

// HTTP exposes the /v1/eta endpoint.
type HTTP struct {
	svc *etasvc.Service
}

// New creates the handler.
func New(svc *etasvc.Service) *HTTP {
	return &HTTP{svc: svc}
}

// Router builds the chi router.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/eta", h.estimate)
	return r
}

func (h *HTTP) estimate(w http.ResponseWriter, r *http.Request) {
	dest := domain.GeoPoint{Lat: parseQueryFloat(r, "dest_lat"), Lng: parseQueryFloat(r, "dest_lng")}

	providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "invalid provider_id"})
		return
	}

	eta, err := h.svc.EstimateArrival(r.Context(), providerID, dest)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "no location reported"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "estimate failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider_id": providerID.String(),
		"eta_sec":     eta.Seconds(),
	})
}

func parseQueryFloat(r *http.Request, key string) float64 {
	v, _ := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
