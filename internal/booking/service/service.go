// Package service coordinates booking operations between handlers,
// repositories and the matching engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/matching"
	"github.com/example/spacall/internal/booking/pricing"
	"github.com/example/spacall/internal/settings"
)

// Notifier delivers customer-facing messages for booking milestones. A nil
// Notifier disables messaging; a strict implementation may fail the calling
// operation by returning an error.
type Notifier interface {
	BookingCreated(ctx context.Context, b domain.Booking) error
	StatusChanged(ctx context.Context, b domain.Booking) error
}

// ETAEstimator estimates a provider's travel time to a destination.
type ETAEstimator interface {
	EstimateArrival(ctx context.Context, providerID uuid.UUID, dest domain.GeoPoint) (time.Duration, error)
}

// GeoUpserter mirrors provider location reports into the matching geo index.
type GeoUpserter interface {
	UpsertLocation(ctx context.Context, providerID uuid.UUID, point domain.GeoPoint) error
}

// Service coordinates the booking core.
type Service struct {
	repo     domain.Repository
	events   domain.EventPublisher
	matcher  domain.MatchingEngine
	pricer   *pricing.Engine
	settings *settings.Cache
	notifier Notifier
	eta      ETAEstimator
	geo      GeoUpserter
	clock    domain.Clock
	log      *zap.Logger

	// pendingTTL bounds how long a booking may sit in pending or
	// awaiting_assignment before the sweep expires it.
	pendingTTL time.Duration
}

// Options carries the optional collaborators of New.
type Options struct {
	Notifier   Notifier
	ETA        ETAEstimator
	Geo        GeoUpserter
	Clock      domain.Clock
	Logger     *zap.Logger
	PendingTTL time.Duration
}

// New constructs a Service with the required collaborators.
func New(repo domain.Repository, events domain.EventPublisher, matcher domain.MatchingEngine, pricer *pricing.Engine, cache *settings.Cache, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 30 * time.Minute
	}
	return &Service{
		repo:       repo,
		events:     events,
		matcher:    matcher,
		pricer:     pricer,
		settings:   cache,
		notifier:   opts.Notifier,
		eta:        opts.ETA,
		geo:        opts.Geo,
		clock:      opts.Clock,
		log:        opts.Logger,
		pendingTTL: opts.PendingTTL,
	}
}

// CreateBookingRequest is the payload for a new booking.
type CreateBookingRequest struct {
	CustomerID    uuid.UUID
	ServiceID     uuid.UUID
	ProviderID    *uuid.UUID
	Type          domain.BookingType
	Schedule      domain.ScheduleType
	PaymentMethod domain.PaymentMethod
	PromoCode     string
	CustomerNotes string

	Address  string
	City     string
	Province string
	Point    domain.GeoPoint
}

func (r CreateBookingRequest) validate() error {
	if r.CustomerID == uuid.Nil {
		return domain.Validationf("customer_id", "is required")
	}
	if r.ServiceID == uuid.Nil {
		return domain.Validationf("service_id", "is required")
	}
	switch r.Type {
	case domain.BookingHomeService, domain.BookingInStore:
	default:
		return domain.Validationf("booking_type", "must be home_service or in_store")
	}
	switch r.Schedule {
	case domain.ScheduleNow, domain.ScheduleScheduled:
	default:
		return domain.Validationf("schedule_type", "must be now or scheduled")
	}
	switch r.PaymentMethod {
	case domain.PaymentWallet, domain.PaymentCash, domain.PaymentCard:
	default:
		return domain.Validationf("payment_method", "must be wallet, cash or card")
	}
	if r.Address == "" {
		return domain.Validationf("address", "is required")
	}
	if r.Point.Lat < -90 || r.Point.Lat > 90 {
		return domain.Validationf("latitude", "out of range")
	}
	if r.Point.Lng < -180 || r.Point.Lng > 180 {
		return domain.Validationf("longitude", "out of range")
	}
	return nil
}

// Create prices and persists a new booking. With a provider in the request
// the provider is claimed inside the creation transaction; without one the
// booking starts in awaiting_assignment and the matcher is consulted.
func (s *Service) Create(ctx context.Context, req CreateBookingRequest) (domain.Booking, error) {
	if err := req.validate(); err != nil {
		return domain.Booking{}, err
	}
	now := s.clock.Now()

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !svc.IsActive {
		return domain.Booking{}, domain.Validationf("service_id", "service is not active")
	}

	var distanceKM float64
	if req.ProviderID != nil {
		provider, err := s.repo.GetProvider(ctx, *req.ProviderID)
		if err != nil {
			return domain.Booking{}, err
		}
		if !provider.Eligible() {
			return domain.Booking{}, fmt.Errorf("%w: provider %s", domain.ErrProviderUnavailable, provider.ID)
		}
		if req.Type == domain.BookingHomeService && provider.BasePoint != nil {
			distanceKM = matching.DistanceKM(*provider.BasePoint, req.Point)
		}
	}

	var promo *domain.PromoCode
	var promoUsages int
	if req.PromoCode != "" {
		p, usages, err := s.repo.GetPromoCode(ctx, req.PromoCode)
		if err != nil {
			return domain.Booking{}, err
		}
		if !p.ValidAt(now, usages) {
			return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrPromoExhausted, req.PromoCode)
		}
		promo = &p
		promoUsages = usages
	}

	feePercent := s.settings.PlatformFeePercent(ctx)
	quote := s.pricer.Price(svc, distanceKM, feePercent, promo, promoUsages, now)

	booking := domain.Booking{
		ID:                uuid.New(),
		CustomerID:        req.CustomerID,
		ProviderID:        req.ProviderID,
		ServiceID:         req.ServiceID,
		Type:              req.Type,
		Schedule:          req.Schedule,
		Status:            domain.StatusPending,
		ServicePrice:      quote.ServicePrice,
		DistanceKM:        distanceKM,
		DistanceSurcharge: quote.DistanceSurcharge,
		Subtotal:          quote.Subtotal,
		PlatformFee:       quote.PlatformFee,
		PromoDiscount:     quote.PromoDiscount,
		Total:             quote.Total,
		PromoCode:         req.PromoCode,
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     domain.PaymentPending,
		CustomerNotes:     req.CustomerNotes,
		CreatedAt:         now,
	}
	if req.ProviderID == nil {
		booking.Status = domain.StatusAwaitingAssignment
	}

	loc := domain.BookingLocation{
		BookingID: booking.ID,
		Address:   req.Address,
		City:      req.City,
		Province:  req.Province,
		Point:     req.Point,
	}
	if err := s.repo.CreateBooking(ctx, &booking, loc); err != nil {
		return domain.Booking{}, err
	}

	s.publish(ctx, domain.BookingEvent{
		BookingID: booking.ID,
		Type:      domain.EventBookingCreated,
		Payload:   map[string]any{"customer_id": booking.CustomerID.String(), "status": string(booking.Status)},
		CreatedAt: now,
	})
	if err := s.notifyCreated(ctx, booking); err != nil {
		return booking, err
	}

	if booking.Status == domain.StatusAwaitingAssignment && s.matcher != nil {
		booking = s.tryAssign(ctx, booking, req.Point)
	}
	return booking, nil
}

// tryAssign consults the matcher for an awaiting_assignment booking. Failure
// leaves the booking awaiting; the sweep expires it if nobody is found before
// the pending TTL elapses.
func (s *Service) tryAssign(ctx context.Context, b domain.Booking, pickup domain.GeoPoint) domain.Booking {
	providerID, err := s.matcher.ReserveProvider(ctx, b, pickup)
	if err != nil || providerID == nil {
		if err != nil && !errors.Is(err, domain.ErrProviderUnavailable) {
			s.log.Warn("provider matching failed", zap.String("booking_id", b.ID.String()), zap.Error(err))
		}
		return b
	}

	assigned, err := s.repo.AssignProvider(ctx, b.ID, *providerID, s.clock.Now())
	if err != nil {
		// The soft claim is ours to give back when the durable claim failed.
		_ = s.matcher.ReleaseProvider(ctx, *providerID)
		s.log.Warn("provider assignment failed",
			zap.String("booking_id", b.ID.String()),
			zap.String("provider_id", providerID.String()),
			zap.Error(err))
		return b
	}

	s.publish(ctx, domain.BookingEvent{
		BookingID: assigned.ID,
		Type:      domain.EventProviderMatched,
		Payload:   map[string]any{"provider_id": providerID.String()},
		CreatedAt: s.clock.Now(),
	})
	return assigned
}

// UpdateStatusRequest is one status-change attempt by an authenticated actor.
type UpdateStatusRequest struct {
	To     domain.BookingStatus
	Notes  string
	Reason string
}

// UpdateStatus applies a client-driven transition. The caller's identity is
// resolved here; validity is enforced by the repository under the booking
// lock.
func (s *Service) UpdateStatus(ctx context.Context, bookingID uuid.UUID, actor domain.ActorRole, userID uuid.UUID, req UpdateStatusRequest) (domain.Booking, error) {
	if !req.To.Known() {
		return domain.Booking{}, domain.Validationf("status", "unknown status %q", req.To)
	}

	tr := domain.TransitionRequest{
		To:          req.To,
		Actor:       actor,
		ActorUserID: userID,
		Notes:       req.Notes,
		Reason:      req.Reason,
		Now:         s.clock.Now(),
	}
	if actor == domain.ActorProvider {
		provider, err := s.repo.ProviderByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Booking{}, fmt.Errorf("%w: caller has no provider profile", domain.ErrNotAllowed)
			}
			return domain.Booking{}, err
		}
		id := provider.ID
		tr.ActorProviderID = &id
	}
	if req.To == domain.StatusCancelled && actor == domain.ActorCustomer {
		tr.Fee = s.settings.CancellationFee(ctx)
	}

	updated, err := s.repo.TransitionBooking(ctx, bookingID, tr)
	if err != nil {
		return domain.Booking{}, err
	}

	if updated.Status.Terminal() && updated.ProviderID != nil && s.matcher != nil {
		_ = s.matcher.ReleaseProvider(ctx, *updated.ProviderID)
	}

	s.publish(ctx, domain.BookingEvent{
		BookingID: updated.ID,
		Type:      domain.EventStatusChanged,
		Payload:   map[string]any{"status": string(updated.Status), "actor": string(actor)},
		CreatedAt: tr.Now,
	})
	if err := s.notifyStatus(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// Get returns a booking visible to the caller.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// Timeline returns the append-only status history of a booking.
func (s *Service) Timeline(ctx context.Context, id uuid.UUID) ([]domain.TimelineEntry, error) {
	if _, err := s.repo.GetBooking(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Timeline(ctx, id)
}

// TherapistView is an eligible therapist with its distance from the query
// point, when one was given.
type TherapistView struct {
	Provider   domain.Provider `json:"provider"`
	DistanceKM *float64        `json:"distance_km,omitempty"`
}

// AvailableTherapists lists eligible therapists. With a query point the list
// is distance-filtered and sorted nearest first; without one it is unordered.
func (s *Service) AvailableTherapists(ctx context.Context, near *domain.GeoPoint, radiusKM float64, limit int) ([]TherapistView, error) {
	providers, err := s.repo.ListEligibleTherapists(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]TherapistView, 0, len(providers))
	for _, p := range providers {
		v := TherapistView{Provider: p}
		if near != nil {
			if p.BasePoint == nil {
				continue
			}
			d := matching.DistanceKM(*p.BasePoint, *near)
			if radiusKM > 0 && d > radiusKM {
				continue
			}
			v.DistanceKM = &d
		}
		views = append(views, v)
	}
	if near != nil {
		sort.Slice(views, func(i, j int) bool { return *views[i].DistanceKM < *views[j].DistanceKM })
	}
	if limit > 0 && len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// Therapists lists verified therapists regardless of availability.
func (s *Service) Therapists(ctx context.Context) ([]domain.Provider, error) {
	return s.repo.ListVerifiedTherapists(ctx)
}

// Therapist returns one provider profile.
func (s *Service) Therapist(ctx context.Context, id uuid.UUID) (domain.Provider, error) {
	return s.repo.GetProvider(ctx, id)
}

// TrackResponse is the live tracking view of an active booking.
type TrackResponse struct {
	BookingID  uuid.UUID            `json:"booking_id"`
	Status     domain.BookingStatus `json:"status"`
	Provider   *domain.GeoPoint     `json:"provider_point,omitempty"`
	ETASeconds *float64             `json:"eta_seconds,omitempty"`
}

// Track returns the provider's last reported position and the estimated
// arrival time for the booking's customer.
func (s *Service) Track(ctx context.Context, bookingID, callerUserID uuid.UUID) (TrackResponse, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return TrackResponse{}, err
	}
	if b.CustomerID != callerUserID {
		return TrackResponse{}, fmt.Errorf("%w: booking %s belongs to another customer", domain.ErrNotAllowed, bookingID)
	}

	resp := TrackResponse{BookingID: b.ID, Status: b.Status}
	if b.ProviderID == nil {
		return resp, nil
	}

	ping, err := s.repo.LatestProviderLocation(ctx, *b.ProviderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return resp, nil
		}
		return TrackResponse{}, err
	}
	point := ping.Point
	resp.Provider = &point

	if s.eta != nil {
		loc, err := s.repo.GetBookingLocation(ctx, b.ID)
		if err == nil {
			if d, err := s.eta.EstimateArrival(ctx, *b.ProviderID, loc.Point); err == nil {
				sec := d.Seconds()
				resp.ETASeconds = &sec
			}
		}
	}
	return resp, nil
}

// SubmitReview records a customer review for a completed booking and returns
// the review with the provider's recomputed aggregate. Resubmitting for the
// same booking updates the existing review.
func (s *Service) SubmitReview(ctx context.Context, bookingID, userID uuid.UUID, rating int, body string) (domain.Review, domain.ProviderRating, error) {
	if rating < 1 || rating > 5 {
		return domain.Review{}, domain.ProviderRating{}, domain.Validationf("rating", "must be between 1 and 5")
	}

	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Review{}, domain.ProviderRating{}, err
	}
	if b.CustomerID != userID {
		return domain.Review{}, domain.ProviderRating{}, fmt.Errorf("%w: booking %s belongs to another customer", domain.ErrNotAllowed, bookingID)
	}
	if b.Status != domain.StatusCompleted {
		return domain.Review{}, domain.ProviderRating{}, fmt.Errorf("%w: booking %s is %s", domain.ErrBookingNotCompleted, bookingID, b.Status)
	}
	if b.ProviderID == nil {
		return domain.Review{}, domain.ProviderRating{}, fmt.Errorf("%w: booking %s has no provider", domain.ErrBookingNotCompleted, bookingID)
	}

	now := s.clock.Now()
	review, aggregate, err := s.repo.UpsertReview(ctx, domain.Review{
		BookingID:  bookingID,
		ProviderID: *b.ProviderID,
		UserID:     userID,
		Rating:     rating,
		Body:       body,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.Review{}, domain.ProviderRating{}, err
	}

	s.publish(ctx, domain.BookingEvent{
		BookingID: bookingID,
		Type:      domain.EventReviewSubmitted,
		Payload:   map[string]any{"provider_id": b.ProviderID.String(), "rating": rating},
		CreatedAt: now,
	})
	return review, aggregate, nil
}

// ReportLocation records a provider's position and mirrors it into the geo
// index used for matching.
func (s *Service) ReportLocation(ctx context.Context, providerUserID uuid.UUID, point domain.GeoPoint) error {
	if point.Lat < -90 || point.Lat > 90 {
		return domain.Validationf("latitude", "out of range")
	}
	if point.Lng < -180 || point.Lng > 180 {
		return domain.Validationf("longitude", "out of range")
	}

	provider, err := s.repo.ProviderByUser(ctx, providerUserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: caller has no provider profile", domain.ErrNotAllowed)
		}
		return err
	}

	if err := s.repo.RecordProviderLocation(ctx, domain.LocationPing{
		ProviderID: provider.ID,
		Point:      point,
		RecordedAt: s.clock.Now(),
	}); err != nil {
		return err
	}
	if s.geo != nil {
		if err := s.geo.UpsertLocation(ctx, provider.ID, point); err != nil {
			s.log.Warn("geo index update failed", zap.String("provider_id", provider.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// ExpireStale moves bookings stuck in pending or awaiting_assignment past the
// pending TTL to expired and returns them.
func (s *Service) ExpireStale(ctx context.Context) ([]domain.Booking, error) {
	now := s.clock.Now()
	expired, err := s.repo.ExpireStale(ctx, now.Add(-s.pendingTTL), now)
	if err != nil {
		return nil, err
	}
	for _, b := range expired {
		if b.ProviderID != nil && s.matcher != nil {
			_ = s.matcher.ReleaseProvider(ctx, *b.ProviderID)
		}
		s.publish(ctx, domain.BookingEvent{
			BookingID: b.ID,
			Type:      domain.EventBookingExpired,
			CreatedAt: now,
		})
	}
	return expired, nil
}

// publish sends the event best-effort; delivery failures never fail the
// operation that produced them.
func (s *Service) publish(ctx context.Context, event domain.BookingEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", zap.String("booking_id", event.BookingID.String()), zap.Error(err))
	}
}

// notifyCreated and notifyStatus run after the booking state has been
// committed; a non-nil error from a strict notifier fails the calling
// operation without rolling the booking back.
func (s *Service) notifyCreated(ctx context.Context, b domain.Booking) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.BookingCreated(ctx, b); err != nil {
		return fmt.Errorf("notify booking %s created: %w", b.ID, err)
	}
	return nil
}

func (s *Service) notifyStatus(ctx context.Context, b domain.Booking) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.StatusChanged(ctx, b); err != nil {
		return fmt.Errorf("notify booking %s status: %w", b.ID, err)
	}
	return nil
}
