// Package repository provides persistence for the booking core: an
// in-memory implementation for tests and local demos, and the PostgreSQL
// implementation used in production.
package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/lifecycle"
)

// MemoryRepository implements domain.Repository behind a single mutex, which
// trivially serializes claims and transitions the way row locks do in
// postgres.
type MemoryRepository struct {
	mu sync.Mutex

	bookings  map[uuid.UUID]domain.Booking
	locations map[uuid.UUID]domain.BookingLocation
	timeline  map[uuid.UUID][]domain.TimelineEntry
	providers map[uuid.UUID]domain.Provider
	services  map[uuid.UUID]domain.Service
	promos    map[string]domain.PromoCode
	usages    map[string][]promoUsage
	reviews   map[uuid.UUID]domain.Review
	pings     map[uuid.UUID]domain.LocationPing
	settings  map[string]string
	mobiles   map[uuid.UUID]string

	timelineSeq int64
	reviewSeq   int64
	numberSeq   int64
}

type promoUsage struct {
	bookingID uuid.UUID
	userID    uuid.UUID
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bookings:  make(map[uuid.UUID]domain.Booking),
		locations: make(map[uuid.UUID]domain.BookingLocation),
		timeline:  make(map[uuid.UUID][]domain.TimelineEntry),
		providers: make(map[uuid.UUID]domain.Provider),
		services:  make(map[uuid.UUID]domain.Service),
		promos:    make(map[string]domain.PromoCode),
		usages:    make(map[string][]promoUsage),
		reviews:   make(map[uuid.UUID]domain.Review),
		pings:     make(map[uuid.UUID]domain.LocationPing),
		settings:  make(map[string]string),
		mobiles:   make(map[uuid.UUID]string),
	}
}

// SeedProvider, SeedService, SeedPromo and SeedSetting install fixture rows.

func (m *MemoryRepository) SeedProvider(p domain.Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.ID] = p
}

func (m *MemoryRepository) SeedService(s domain.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
}

func (m *MemoryRepository) SeedPromo(p domain.PromoCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promos[p.Code] = p
}

func (m *MemoryRepository) SeedSetting(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
}

func (m *MemoryRepository) SeedMobile(userID uuid.UUID, mobile string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mobiles[userID] = mobile
}

// UserMobile resolves a user's mobile number for SMS delivery.
func (m *MemoryRepository) UserMobile(_ context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mobile, ok := m.mobiles[userID]
	if !ok {
		return "", fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
	}
	return mobile, nil
}

// CreateBooking validates everything up front and only then mutates, so a
// failed creation leaves no partial state behind.
func (m *MemoryRepository) CreateBooking(_ context.Context, b *domain.Booking, loc domain.BookingLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var provider domain.Provider
	if b.ProviderID != nil {
		p, ok := m.providers[*b.ProviderID]
		if !ok {
			return fmt.Errorf("%w: provider %s", domain.ErrNotFound, *b.ProviderID)
		}
		if !p.Eligible() {
			return fmt.Errorf("%w: provider %s", domain.ErrProviderUnavailable, p.ID)
		}
		provider = p
	}

	if b.PromoCode != "" {
		promo, ok := m.promos[b.PromoCode]
		if !ok {
			return fmt.Errorf("%w: promo %s", domain.ErrNotFound, b.PromoCode)
		}
		for _, u := range m.usages[b.PromoCode] {
			if u.bookingID == b.ID && u.userID == b.CustomerID {
				return fmt.Errorf("%w: already redeemed", domain.ErrPromoExhausted)
			}
		}
		if !promo.ValidAt(b.CreatedAt, len(m.usages[b.PromoCode])) {
			return fmt.Errorf("%w: %s", domain.ErrPromoExhausted, b.PromoCode)
		}
	}

	m.numberSeq++
	b.Number = fmt.Sprintf("SPC-%d-%06d", b.CreatedAt.Year(), m.numberSeq)

	if b.ProviderID != nil {
		provider.IsAvailable = false
		m.providers[provider.ID] = provider
	}
	if b.PromoCode != "" {
		m.usages[b.PromoCode] = append(m.usages[b.PromoCode], promoUsage{bookingID: b.ID, userID: b.CustomerID})
	}

	b.Version = 1
	m.bookings[b.ID] = *b
	loc.BookingID = b.ID
	m.locations[b.ID] = loc
	m.appendTimeline(lifecycle.InitialEntry(*b))
	return nil
}

func (m *MemoryRepository) GetBooking(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBooking(id)
}

func (m *MemoryRepository) getBooking(id uuid.UUID) (domain.Booking, error) {
	b, ok := m.bookings[id]
	if !ok || b.DeletedAt != nil {
		return domain.Booking{}, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
	}
	return b, nil
}

func (m *MemoryRepository) GetBookingLocation(_ context.Context, bookingID uuid.UUID) (domain.BookingLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.locations[bookingID]
	if !ok {
		return domain.BookingLocation{}, fmt.Errorf("%w: location for %s", domain.ErrNotFound, bookingID)
	}
	return loc, nil
}

func (m *MemoryRepository) Timeline(_ context.Context, bookingID uuid.UUID) ([]domain.TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TimelineEntry(nil), m.timeline[bookingID]...), nil
}

// TransitionBooking holds the lock across validate-and-write, so the loser of
// a concurrent transition sees the post-transition state and fails with
// ErrInvalidTransition.
func (m *MemoryRepository) TransitionBooking(_ context.Context, id uuid.UUID, req domain.TransitionRequest) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.getBooking(id)
	if err != nil {
		return domain.Booking{}, err
	}

	effect, err := lifecycle.Apply(&b, req)
	if err != nil {
		return domain.Booking{}, err
	}

	b.Version++
	m.bookings[id] = b
	m.appendTimeline(effect.Entry)
	if effect.ReleaseProvider {
		m.releaseProvider(*b.ProviderID)
	}
	return b, nil
}

func (m *MemoryRepository) AssignProvider(_ context.Context, bookingID, providerID uuid.UUID, now time.Time) (domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.getBooking(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	p, ok := m.providers[providerID]
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: provider %s", domain.ErrNotFound, providerID)
	}
	if !p.Eligible() {
		return domain.Booking{}, fmt.Errorf("%w: provider %s", domain.ErrProviderUnavailable, providerID)
	}

	entry, err := lifecycle.Assign(&b, providerID, domain.TransitionRequest{Now: now})
	if err != nil {
		return domain.Booking{}, err
	}

	p.IsAvailable = false
	m.providers[providerID] = p
	b.Version++
	m.bookings[bookingID] = b
	m.appendTimeline(entry)
	return b, nil
}

func (m *MemoryRepository) ExpireStale(_ context.Context, cutoff, now time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []domain.Booking
	for id, b := range m.bookings {
		if b.DeletedAt != nil || !b.CreatedAt.Before(cutoff) {
			continue
		}
		if b.Status != domain.StatusPending && b.Status != domain.StatusAwaitingAssignment {
			continue
		}
		effect, err := lifecycle.Apply(&b, domain.TransitionRequest{
			To:    domain.StatusExpired,
			Actor: domain.ActorSystem,
			Notes: "expired by sweep",
			Now:   now,
		})
		if err != nil {
			return nil, err
		}
		b.Version++
		m.bookings[id] = b
		m.appendTimeline(effect.Entry)
		if effect.ReleaseProvider {
			m.releaseProvider(*b.ProviderID)
		}
		expired = append(expired, b)
	}
	return expired, nil
}

func (m *MemoryRepository) GetService(_ context.Context, id uuid.UUID) (domain.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return domain.Service{}, fmt.Errorf("%w: service %s", domain.ErrNotFound, id)
	}
	return s, nil
}

func (m *MemoryRepository) GetProvider(_ context.Context, id uuid.UUID) (domain.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return domain.Provider{}, fmt.Errorf("%w: provider %s", domain.ErrNotFound, id)
	}
	return p, nil
}

func (m *MemoryRepository) ProviderByUser(_ context.Context, userID uuid.UUID) (domain.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		if p.UserID == userID {
			return p, nil
		}
	}
	return domain.Provider{}, fmt.Errorf("%w: provider for user %s", domain.ErrNotFound, userID)
}

func (m *MemoryRepository) ListEligibleTherapists(_ context.Context) ([]domain.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Provider
	for _, p := range m.providers {
		if p.Eligible() {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MemoryRepository) ListVerifiedTherapists(_ context.Context) ([]domain.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Provider
	for _, p := range m.providers {
		if p.Type == domain.ProviderTherapist && p.VerificationStatus == domain.VerificationVerified && p.IsActive {
			res = append(res, p)
		}
	}
	return res, nil
}

func (m *MemoryRepository) GetPromoCode(_ context.Context, code string) (domain.PromoCode, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.promos[code]
	if !ok {
		return domain.PromoCode{}, 0, fmt.Errorf("%w: promo %s", domain.ErrNotFound, code)
	}
	return p, len(m.usages[code]), nil
}

func (m *MemoryRepository) UpsertReview(_ context.Context, review domain.Review) (domain.Review, domain.ProviderRating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.reviews[review.BookingID]
	if ok {
		existing.Rating = review.Rating
		existing.Body = review.Body
		existing.UpdatedAt = review.UpdatedAt
		m.reviews[review.BookingID] = existing
		review = existing
	} else {
		m.reviewSeq++
		review.ID = m.reviewSeq
		m.reviews[review.BookingID] = review
	}

	var sum, count int
	for _, r := range m.reviews {
		if r.ProviderID == review.ProviderID {
			sum += r.Rating
			count++
		}
	}
	rating := domain.ProviderRating{TotalReviews: count}
	if count > 0 {
		rating.AverageRating = float64(sum) / float64(count)
	}
	if p, ok := m.providers[review.ProviderID]; ok {
		p.AverageRating = rating.AverageRating
		p.TotalReviews = rating.TotalReviews
		m.providers[review.ProviderID] = p
	}
	return review, rating, nil
}

func (m *MemoryRepository) RecordProviderLocation(_ context.Context, ping domain.LocationPing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings[ping.ProviderID] = ping
	return nil
}

func (m *MemoryRepository) LatestProviderLocation(_ context.Context, providerID uuid.UUID) (domain.LocationPing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ping, ok := m.pings[providerID]
	if !ok {
		return domain.LocationPing{}, fmt.Errorf("%w: location for provider %s", domain.ErrNotFound, providerID)
	}
	return ping, nil
}

func (m *MemoryRepository) LoadSettings(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryRepository) appendTimeline(entry domain.TimelineEntry) {
	m.timelineSeq++
	entry.ID = m.timelineSeq
	m.timeline[entry.BookingID] = append(m.timeline[entry.BookingID], entry)
}

func (m *MemoryRepository) releaseProvider(id uuid.UUID) {
	if p, ok := m.providers[id]; ok {
		p.IsAvailable = true
		m.providers[id] = p
	}
}
