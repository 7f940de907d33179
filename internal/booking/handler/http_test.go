package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/spacall/internal/auth"
	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/handler"
	"github.com/example/spacall/internal/booking/pricing"
	"github.com/example/spacall/internal/booking/repository"
	"github.com/example/spacall/internal/booking/service"
	"github.com/example/spacall/internal/settings"
)

const testSecret = "test-secret"

type env struct {
	srv        *httptest.Server
	repo       *repository.MemoryRepository
	customerID uuid.UUID
	providerID uuid.UUID
	provUserID uuid.UUID
	serviceID  uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		repo:       repository.NewMemoryRepository(),
		customerID: uuid.New(),
		providerID: uuid.New(),
		provUserID: uuid.New(),
		serviceID:  uuid.New(),
	}
	e.repo.SeedService(domain.Service{ID: e.serviceID, Name: "Shiatsu", BasePrice: 80000, IsActive: true})
	e.repo.SeedProvider(domain.Provider{
		ID:                 e.providerID,
		UserID:             e.provUserID,
		Type:               domain.ProviderTherapist,
		VerificationStatus: domain.VerificationVerified,
		IsActive:           true,
		IsAvailable:        true,
		BasePoint:          &domain.GeoPoint{Lat: 14.6, Lng: 121.0},
	})

	svc := service.New(
		e.repo,
		nil,
		nil,
		pricing.New(nil),
		settings.NewCache(e.repo, time.Minute, nil),
		service.Options{},
	)
	e.srv = httptest.NewServer(handler.NewHTTP(svc, testSecret).Router())
	t.Cleanup(e.srv.Close)
	return e
}

func token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	claims := auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *env) do(t *testing.T, method, path, tok string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *env) createBooking(t *testing.T) domain.Booking {
	t.Helper()
	providerID := e.providerID.String()
	resp := e.do(t, http.MethodPost, "/v1/bookings", token(t, e.customerID, auth.RoleCustomer), map[string]any{
		"service_id":     e.serviceID.String(),
		"provider_id":    providerID,
		"booking_type":   "home_service",
		"schedule_type":  "now",
		"payment_method": "cash",
		"address":        "123 Session Rd",
		"latitude":       14.61,
		"longitude":      121.01,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var booking domain.Booking
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&booking))
	return booking
}

func TestCreateBookingRequiresToken(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/v1/bookings", "", map[string]any{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateAndGetBooking(t *testing.T) {
	e := newEnv(t)
	booking := e.createBooking(t)
	require.Equal(t, domain.StatusPending, booking.Status)
	require.NotEmpty(t, booking.Number)

	resp := e.do(t, http.MethodGet, "/v1/bookings/"+booking.ID.String(), token(t, e.customerID, auth.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateBookingValidationStatus(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/v1/bookings", token(t, e.customerID, auth.RoleCustomer), map[string]any{
		"service_id":     e.serviceID.String(),
		"booking_type":   "teleportation",
		"schedule_type":  "now",
		"payment_method": "cash",
		"address":        "somewhere",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "booking_type", body["field"])
}

func TestGetUnknownBookingIs404(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodGet, "/v1/bookings/"+uuid.NewString(), token(t, e.customerID, auth.RoleCustomer), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidTransitionIs422(t *testing.T) {
	e := newEnv(t)
	booking := e.createBooking(t)

	resp := e.do(t, http.MethodPatch, "/v1/bookings/"+booking.ID.String()+"/status",
		token(t, e.provUserID, auth.RoleProvider),
		map[string]any{"status": "in_progress"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestForeignProviderTransitionIs403(t *testing.T) {
	e := newEnv(t)
	booking := e.createBooking(t)

	intruderUser := uuid.New()
	e.repo.SeedProvider(domain.Provider{
		ID:                 uuid.New(),
		UserID:             intruderUser,
		Type:               domain.ProviderTherapist,
		VerificationStatus: domain.VerificationVerified,
		IsActive:           true,
		IsAvailable:        true,
	})

	resp := e.do(t, http.MethodPatch, "/v1/bookings/"+booking.ID.String()+"/status",
		token(t, intruderUser, auth.RoleProvider),
		map[string]any{"status": "accepted"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestProviderFlowOverHTTP(t *testing.T) {
	e := newEnv(t)
	booking := e.createBooking(t)
	tok := token(t, e.provUserID, auth.RoleProvider)

	for _, status := range []string{"accepted", "en_route", "arrived", "in_progress", "completed"} {
		resp := e.do(t, http.MethodPatch, "/v1/bookings/"+booking.ID.String()+"/status", tok,
			map[string]any{"status": status})
		require.Equal(t, http.StatusOK, resp.StatusCode, "transition to %s", status)
	}

	resp := e.do(t, http.MethodGet, "/v1/bookings/"+booking.ID.String()+"/timeline",
		token(t, e.customerID, auth.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Timeline []domain.TimelineEntry `json:"timeline"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Timeline, 6)
}

func TestReviewBeforeCompletionIs422(t *testing.T) {
	e := newEnv(t)
	booking := e.createBooking(t)

	resp := e.do(t, http.MethodPost, "/v1/bookings/"+booking.ID.String()+"/reviews",
		token(t, e.customerID, auth.RoleCustomer),
		map[string]any{"rating": 5})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestReviewAfterCompletion(t *testing.T) {
	e := newEnv(t)
	booking := e.createBooking(t)
	tok := token(t, e.provUserID, auth.RoleProvider)
	for _, status := range []string{"accepted", "en_route", "arrived", "in_progress", "completed"} {
		resp := e.do(t, http.MethodPatch, "/v1/bookings/"+booking.ID.String()+"/status", tok,
			map[string]any{"status": status})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := e.do(t, http.MethodPost, "/v1/bookings/"+booking.ID.String()+"/reviews",
		token(t, e.customerID, auth.RoleCustomer),
		map[string]any{"rating": 4, "body": "very good"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ProviderRating domain.ProviderRating `json:"provider_rating"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 4.0, body.ProviderRating.AverageRating)
	require.Equal(t, 1, body.ProviderRating.TotalReviews)
}

func TestProviderLocationEndpointRequiresProviderRole(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/providers/location",
		token(t, e.customerID, auth.RoleCustomer),
		map[string]any{"latitude": 14.6, "longitude": 121.0})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/providers/location",
		token(t, e.provUserID, auth.RoleProvider),
		map[string]any{"latitude": 14.6, "longitude": 121.0})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAvailableTherapists(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/v1/bookings/available-therapists?latitude=14.6&longitude=121.0&radius=50",
		token(t, e.customerID, auth.RoleCustomer), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Therapists []service.TherapistView `json:"therapists"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Therapists, 1)
	require.Equal(t, e.providerID, body.Therapists[0].Provider.ID)
}
