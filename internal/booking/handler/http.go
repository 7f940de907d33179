// Package handler exposes the booking HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/spacall/internal/auth"
	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/service"
)

// HTTP exposes booking endpoints.
type HTTP struct {
	svc       *service.Service
	jwtSecret string
	// extra middlewares applied to the public router, e.g. rate limiting.
	extra []func(http.Handler) http.Handler
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service, jwtSecret string, extra ...func(http.Handler) http.Handler) *HTTP {
	return &HTTP{svc: svc, jwtSecret: jwtSecret, extra: extra}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	for _, mw := range h.extra {
		r.Use(mw)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.jwtSecret, auth.RoleCustomer, auth.RoleProvider, auth.RoleAdmin))
		r.Post("/v1/bookings", h.createBooking)
		r.Get("/v1/bookings/available-therapists", h.availableTherapists)
		r.Get("/v1/bookings/{id}", h.getBooking)
		r.Get("/v1/bookings/{id}/timeline", h.timeline)
		r.Patch("/v1/bookings/{id}/status", h.updateStatus)
		r.Get("/v1/bookings/{id}/track", h.track)
		r.Post("/v1/bookings/{id}/reviews", h.submitReview)
		r.Get("/v1/therapists", h.therapists)
		r.Get("/v1/therapists/{id}", h.therapist)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.jwtSecret, auth.RoleProvider))
		r.Post("/v1/providers/location", h.reportLocation)
	})
	return r
}

type createBookingRequest struct {
	ServiceID     string  `json:"service_id"`
	ProviderID    *string `json:"provider_id,omitempty"`
	BookingType   string  `json:"booking_type"`
	ScheduleType  string  `json:"schedule_type"`
	PaymentMethod string  `json:"payment_method"`
	PromoCode     string  `json:"promo_code,omitempty"`
	Notes         string  `json:"notes,omitempty"`

	Address  string  `json:"address"`
	City     string  `json:"city,omitempty"`
	Province string  `json:"province,omitempty"`
	Lat      float64 `json:"latitude"`
	Lng      float64 `json:"longitude"`
}

func (h *HTTP) createBooking(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var payload createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	serviceID, err := uuid.Parse(payload.ServiceID)
	if err != nil {
		writeError(w, domain.Validationf("service_id", "must be a uuid"))
		return
	}
	var providerID *uuid.UUID
	if payload.ProviderID != nil {
		id, err := uuid.Parse(*payload.ProviderID)
		if err != nil {
			writeError(w, domain.Validationf("provider_id", "must be a uuid"))
			return
		}
		providerID = &id
	}

	booking, err := h.svc.Create(r.Context(), service.CreateBookingRequest{
		CustomerID:    userID,
		ServiceID:     serviceID,
		ProviderID:    providerID,
		Type:          domain.BookingType(payload.BookingType),
		Schedule:      domain.ScheduleType(payload.ScheduleType),
		PaymentMethod: domain.PaymentMethod(payload.PaymentMethod),
		PromoCode:     payload.PromoCode,
		CustomerNotes: payload.Notes,
		Address:       payload.Address,
		City:          payload.City,
		Province:      payload.Province,
		Point:         domain.GeoPoint{Lat: payload.Lat, Lng: payload.Lng},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *HTTP) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *HTTP) timeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.Timeline(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": entries})
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *HTTP) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	userID, role, ok := caller(w, r)
	if !ok {
		return
	}
	var payload updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	actor := domain.ActorCustomer
	if role == auth.RoleProvider {
		actor = domain.ActorProvider
	}
	booking, err := h.svc.UpdateStatus(r.Context(), id, actor, userID, service.UpdateStatusRequest{
		To:     domain.BookingStatus(payload.Status),
		Notes:  payload.Notes,
		Reason: payload.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *HTTP) availableTherapists(w http.ResponseWriter, r *http.Request) {
	var near *domain.GeoPoint
	q := r.URL.Query()
	if q.Get("latitude") != "" || q.Get("longitude") != "" {
		lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
		lng, errLng := strconv.ParseFloat(q.Get("longitude"), 64)
		if errLat != nil || errLng != nil {
			writeError(w, domain.Validationf("latitude", "latitude and longitude must be numbers"))
			return
		}
		near = &domain.GeoPoint{Lat: lat, Lng: lng}
	}
	radius, _ := strconv.ParseFloat(q.Get("radius"), 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	views, err := h.svc.AvailableTherapists(r.Context(), near, radius, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"therapists": views})
}

func (h *HTTP) therapists(w http.ResponseWriter, r *http.Request) {
	providers, err := h.svc.Therapists(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"therapists": providers})
}

func (h *HTTP) therapist(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	provider, err := h.svc.Therapist(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, provider)
}

func (h *HTTP) track(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	resp, err := h.svc.Track(r.Context(), id, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type reviewRequest struct {
	Rating int    `json:"rating"`
	Body   string `json:"body,omitempty"`
}

func (h *HTTP) submitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var payload reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	review, rating, err := h.svc.SubmitReview(r.Context(), id, userID, payload.Rating, payload.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"review": review, "provider_rating": rating})
}

type locationRequest struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

func (h *HTTP) reportLocation(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := caller(w, r)
	if !ok {
		return
	}
	var payload locationRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.svc.ReportLocation(r.Context(), userID, domain.GeoPoint{Lat: payload.Lat, Lng: payload.Lng}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return uuid.Nil, "", false
	}
	userID, err := claims.UserID()
	if err != nil {
		http.Error(w, "invalid subject", http.StatusUnauthorized)
		return uuid.Nil, "", false
	}
	return userID, claims.Role, true
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"field":  verr.Field,
			"detail": verr.Reason,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrNotAllowed):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrBookingNotCompleted),
		domain.IsConflict(err):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
