package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/example/spacall/internal/booking/domain"
	"github.com/example/spacall/internal/booking/lifecycle"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRepository implements domain.Repository on a pgx pool. Claims and
// transitions rely on row locks, so two concurrent callers serialize at the
// database and the loser re-validates against committed state.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects, pings and migrates the schema.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepository) migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// inTx runs fn in a transaction, retrying serialization failures and
// deadlocks with exponential backoff.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("begin tx: %w", err))
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				switch pgErr.Code {
				case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
					return retry.RetryableError(err)
				}
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

const bookingColumns = `id, number, customer_id, provider_id, service_id, booking_type,
	schedule_type, status, service_price, distance_km, distance_surcharge, subtotal,
	platform_fee, promo_discount, total_amount, promo_code, payment_method, payment_status,
	customer_notes, provider_notes, created_at, accepted_at, started_at, completed_at,
	cancelled_at, cancelled_by, cancellation_reason, cancellation_fee, deleted_at, version`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	var cancelledBy *string
	err := row.Scan(
		&b.ID, &b.Number, &b.CustomerID, &b.ProviderID, &b.ServiceID, &b.Type,
		&b.Schedule, &b.Status, &b.ServicePrice, &b.DistanceKM, &b.DistanceSurcharge, &b.Subtotal,
		&b.PlatformFee, &b.PromoDiscount, &b.Total, &b.PromoCode, &b.PaymentMethod, &b.PaymentStatus,
		&b.CustomerNotes, &b.ProviderNotes, &b.CreatedAt, &b.AcceptedAt, &b.StartedAt, &b.CompletedAt,
		&b.CancelledAt, &cancelledBy, &b.CancellationReason, &b.CancellationFee, &b.DeletedAt, &b.Version,
	)
	if err != nil {
		return domain.Booking{}, err
	}
	if cancelledBy != nil {
		role := domain.ActorRole(*cancelledBy)
		b.CancelledBy = &role
	}
	return b, nil
}

// CreateBooking performs the whole creation unit atomically: the conditional
// provider claim, promo redemption under a row lock, booking number
// assignment from the sequence, and the location and initial timeline rows.
func (r *PostgresRepository) CreateBooking(ctx context.Context, b *domain.Booking, loc domain.BookingLocation) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if b.ProviderID != nil {
			tag, err := tx.Exec(ctx,
				`UPDATE providers SET is_available = false
				 WHERE id = $1 AND is_available AND is_active
				   AND type = 'therapist' AND verification_status = 'verified'
				   AND deleted_at IS NULL`,
				*b.ProviderID,
			)
			if err != nil {
				return fmt.Errorf("claim provider: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: provider %s", domain.ErrProviderUnavailable, *b.ProviderID)
			}
		}

		var promoID *uuid.UUID
		if b.PromoCode != "" {
			id, err := r.lockAndValidatePromo(ctx, tx, b.PromoCode, b.CreatedAt)
			if err != nil {
				return err
			}
			promoID = &id
		}

		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('booking_number_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("next booking number: %w", err)
		}
		b.Number = fmt.Sprintf("SPC-%d-%06d", b.CreatedAt.Year(), seq)
		b.Version = 1

		var cancelledBy *string
		if b.CancelledBy != nil {
			s := string(*b.CancelledBy)
			cancelledBy = &s
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO bookings (`+bookingColumns+`)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
			         $19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)`,
			b.ID, b.Number, b.CustomerID, b.ProviderID, b.ServiceID, b.Type,
			b.Schedule, b.Status, b.ServicePrice, b.DistanceKM, b.DistanceSurcharge, b.Subtotal,
			b.PlatformFee, b.PromoDiscount, b.Total, b.PromoCode, b.PaymentMethod, b.PaymentStatus,
			b.CustomerNotes, b.ProviderNotes, b.CreatedAt, b.AcceptedAt, b.StartedAt, b.CompletedAt,
			b.CancelledAt, cancelledBy, b.CancellationReason, b.CancellationFee, b.DeletedAt, b.Version,
		)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO booking_locations (booking_id, address, city, province, latitude, longitude)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			b.ID, loc.Address, loc.City, loc.Province, loc.Point.Lat, loc.Point.Lng,
		)
		if err != nil {
			return fmt.Errorf("insert booking location: %w", err)
		}

		if err := insertTimeline(ctx, tx, lifecycle.InitialEntry(*b)); err != nil {
			return err
		}

		if promoID != nil {
			_, err = tx.Exec(ctx,
				`INSERT INTO promo_code_usages (promo_code_id, booking_id, user_id) VALUES ($1,$2,$3)`,
				*promoID, b.ID, b.CustomerID,
			)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
					return fmt.Errorf("%w: already redeemed for booking", domain.ErrPromoExhausted)
				}
				return fmt.Errorf("insert promo usage: %w", err)
			}
		}
		return nil
	})
}

// lockAndValidatePromo serializes redemption per code: the FOR UPDATE lock
// makes the usage count stable until commit, so two redemptions racing for
// the last slot cannot both succeed.
func (r *PostgresRepository) lockAndValidatePromo(ctx context.Context, tx pgx.Tx, code string, at time.Time) (uuid.UUID, error) {
	var p domain.PromoCode
	err := tx.QueryRow(ctx,
		`SELECT id, code, discount_type, discount_value, usage_limit, valid_from, valid_to, is_active
		 FROM promo_codes WHERE code = $1 FOR UPDATE`,
		code,
	).Scan(&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &p.UsageLimit, &p.ValidFrom, &p.ValidTo, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, fmt.Errorf("%w: promo %s", domain.ErrNotFound, code)
		}
		return uuid.Nil, fmt.Errorf("lock promo: %w", err)
	}

	var usages int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM promo_code_usages WHERE promo_code_id = $1`, p.ID).Scan(&usages)
	if err != nil {
		return uuid.Nil, fmt.Errorf("count promo usages: %w", err)
	}
	if !p.ValidAt(at, usages) {
		return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrPromoExhausted, code)
	}
	return p.ID, nil
}

func (r *PostgresRepository) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Booking{}, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
		}
		return domain.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) GetBookingLocation(ctx context.Context, bookingID uuid.UUID) (domain.BookingLocation, error) {
	var loc domain.BookingLocation
	err := r.pool.QueryRow(ctx,
		`SELECT booking_id, address, city, province, latitude, longitude
		 FROM booking_locations WHERE booking_id = $1`,
		bookingID,
	).Scan(&loc.BookingID, &loc.Address, &loc.City, &loc.Province, &loc.Point.Lat, &loc.Point.Lng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BookingLocation{}, fmt.Errorf("%w: location for %s", domain.ErrNotFound, bookingID)
		}
		return domain.BookingLocation{}, fmt.Errorf("get booking location: %w", err)
	}
	return loc, nil
}

func (r *PostgresRepository) Timeline(ctx context.Context, bookingID uuid.UUID) ([]domain.TimelineEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, booking_id, status, notes, changed_by, created_at
		 FROM booking_timeline WHERE booking_id = $1 ORDER BY id`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("select timeline: %w", err)
	}
	defer rows.Close()

	var entries []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Status, &e.Notes, &e.ChangedBy, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TransitionBooking locks the booking row, re-validates the transition
// against committed state and applies it together with its side effects.
func (r *PostgresRepository) TransitionBooking(ctx context.Context, id uuid.UUID, req domain.TransitionRequest) (domain.Booking, error) {
	var out domain.Booking
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
			}
			return fmt.Errorf("lock booking: %w", err)
		}

		effect, err := lifecycle.Apply(&b, req)
		if err != nil {
			return err
		}

		if err := updateBooking(ctx, tx, &b); err != nil {
			return err
		}
		if err := insertTimeline(ctx, tx, effect.Entry); err != nil {
			return err
		}
		if effect.ReleaseProvider {
			if err := releaseProvider(ctx, tx, *b.ProviderID); err != nil {
				return err
			}
		}
		out = b
		return nil
	})
	return out, err
}

// AssignProvider claims the provider and moves an awaiting_assignment booking
// to pending in one transaction.
func (r *PostgresRepository) AssignProvider(ctx context.Context, bookingID, providerID uuid.UUID, now time.Time) (domain.Booking, error) {
	var out domain.Booking
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, bookingID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: booking %s", domain.ErrNotFound, bookingID)
			}
			return fmt.Errorf("lock booking: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE providers SET is_available = false
			 WHERE id = $1 AND is_available AND is_active
			   AND type = 'therapist' AND verification_status = 'verified'
			   AND deleted_at IS NULL`,
			providerID,
		)
		if err != nil {
			return fmt.Errorf("claim provider: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: provider %s", domain.ErrProviderUnavailable, providerID)
		}

		entry, err := lifecycle.Assign(&b, providerID, domain.TransitionRequest{Now: now})
		if err != nil {
			return err
		}
		if err := updateBooking(ctx, tx, &b); err != nil {
			return err
		}
		if err := insertTimeline(ctx, tx, entry); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// ExpireStale sweeps stale pending/awaiting_assignment bookings. SKIP LOCKED
// lets the sweep coexist with in-flight transitions; a booking being
// transitioned right now is simply picked up on the next pass if still stale.
func (r *PostgresRepository) ExpireStale(ctx context.Context, cutoff, now time.Time) ([]domain.Booking, error) {
	var expired []domain.Booking
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		expired = expired[:0]
		rows, err := tx.Query(ctx,
			`SELECT `+bookingColumns+` FROM bookings
			 WHERE status IN ('pending', 'awaiting_assignment')
			   AND created_at < $1 AND deleted_at IS NULL
			 FOR UPDATE SKIP LOCKED`,
			cutoff,
		)
		if err != nil {
			return fmt.Errorf("select stale bookings: %w", err)
		}
		var stale []domain.Booking
		for rows.Next() {
			b, err := scanBooking(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan stale booking: %w", err)
			}
			stale = append(stale, b)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate stale bookings: %w", err)
		}

		for i := range stale {
			b := &stale[i]
			effect, err := lifecycle.Apply(b, domain.TransitionRequest{
				To:    domain.StatusExpired,
				Actor: domain.ActorSystem,
				Notes: "expired by sweep",
				Now:   now,
			})
			if err != nil {
				return err
			}
			if err := updateBooking(ctx, tx, b); err != nil {
				return err
			}
			if err := insertTimeline(ctx, tx, effect.Entry); err != nil {
				return err
			}
			if effect.ReleaseProvider {
				if err := releaseProvider(ctx, tx, *b.ProviderID); err != nil {
					return err
				}
			}
			expired = append(expired, *b)
		}
		return nil
	})
	return expired, err
}

func (r *PostgresRepository) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	var s domain.Service
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, base_price, is_active FROM services WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.BasePrice, &s.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Service{}, fmt.Errorf("%w: service %s", domain.ErrNotFound, id)
		}
		return domain.Service{}, fmt.Errorf("get service: %w", err)
	}
	return s, nil
}

const providerColumns = `id, user_id, type, verification_status, is_active, is_available,
	average_rating, total_reviews, base_address, base_latitude, base_longitude, created_at`

func scanProvider(row pgx.Row) (domain.Provider, error) {
	var p domain.Provider
	var lat, lng *float64
	err := row.Scan(&p.ID, &p.UserID, &p.Type, &p.VerificationStatus, &p.IsActive, &p.IsAvailable,
		&p.AverageRating, &p.TotalReviews, &p.BaseAddress, &lat, &lng, &p.CreatedAt)
	if err != nil {
		return domain.Provider{}, err
	}
	if lat != nil && lng != nil {
		p.BasePoint = &domain.GeoPoint{Lat: *lat, Lng: *lng}
	}
	return p, nil
}

func (r *PostgresRepository) GetProvider(ctx context.Context, id uuid.UUID) (domain.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Provider{}, fmt.Errorf("%w: provider %s", domain.ErrNotFound, id)
		}
		return domain.Provider{}, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) ProviderByUser(ctx context.Context, userID uuid.UUID) (domain.Provider, error) {
	p, err := scanProvider(r.pool.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE user_id = $1 AND deleted_at IS NULL`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Provider{}, fmt.Errorf("%w: provider for user %s", domain.ErrNotFound, userID)
		}
		return domain.Provider{}, fmt.Errorf("get provider by user: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) listProviders(ctx context.Context, query string) ([]domain.Provider, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select providers: %w", err)
	}
	defer rows.Close()

	var res []domain.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *PostgresRepository) ListEligibleTherapists(ctx context.Context) ([]domain.Provider, error) {
	return r.listProviders(ctx,
		`SELECT `+providerColumns+` FROM providers
		 WHERE type = 'therapist' AND verification_status = 'verified'
		   AND is_active AND is_available AND deleted_at IS NULL`)
}

func (r *PostgresRepository) ListVerifiedTherapists(ctx context.Context) ([]domain.Provider, error) {
	return r.listProviders(ctx,
		`SELECT `+providerColumns+` FROM providers
		 WHERE type = 'therapist' AND verification_status = 'verified'
		   AND is_active AND deleted_at IS NULL`)
}

func (r *PostgresRepository) GetPromoCode(ctx context.Context, code string) (domain.PromoCode, int, error) {
	var p domain.PromoCode
	var usages int
	err := r.pool.QueryRow(ctx,
		`SELECT p.id, p.code, p.discount_type, p.discount_value, p.usage_limit,
		        p.valid_from, p.valid_to, p.is_active,
		        (SELECT COUNT(*) FROM promo_code_usages u WHERE u.promo_code_id = p.id)
		 FROM promo_codes p WHERE p.code = $1`,
		code,
	).Scan(&p.ID, &p.Code, &p.DiscountType, &p.DiscountValue, &p.UsageLimit,
		&p.ValidFrom, &p.ValidTo, &p.IsActive, &usages)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PromoCode{}, 0, fmt.Errorf("%w: promo %s", domain.ErrNotFound, code)
		}
		return domain.PromoCode{}, 0, fmt.Errorf("get promo: %w", err)
	}
	return p, usages, nil
}

// UpsertReview writes the review and the recomputed provider aggregate in one
// transaction, keyed by booking so resubmission updates instead of
// duplicating.
func (r *PostgresRepository) UpsertReview(ctx context.Context, review domain.Review) (domain.Review, domain.ProviderRating, error) {
	var rating domain.ProviderRating
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO reviews (booking_id, provider_id, user_id, rating, body, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$6)
			 ON CONFLICT (booking_id) DO UPDATE
			   SET rating = EXCLUDED.rating, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
			 RETURNING id, created_at`,
			review.BookingID, review.ProviderID, review.UserID, review.Rating, review.Body, review.UpdatedAt,
		).Scan(&review.ID, &review.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert review: %w", err)
		}

		err = tx.QueryRow(ctx,
			`SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE provider_id = $1`,
			review.ProviderID,
		).Scan(&rating.AverageRating, &rating.TotalReviews)
		if err != nil {
			return fmt.Errorf("aggregate reviews: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE providers SET average_rating = $2, total_reviews = $3 WHERE id = $1`,
			review.ProviderID, rating.AverageRating, rating.TotalReviews,
		)
		if err != nil {
			return fmt.Errorf("update provider rating: %w", err)
		}
		return nil
	})
	return review, rating, err
}

func (r *PostgresRepository) RecordProviderLocation(ctx context.Context, ping domain.LocationPing) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO provider_locations (provider_id, latitude, longitude, recorded_at) VALUES ($1,$2,$3,$4)`,
		ping.ProviderID, ping.Point.Lat, ping.Point.Lng, ping.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert provider location: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LatestProviderLocation(ctx context.Context, providerID uuid.UUID) (domain.LocationPing, error) {
	var ping domain.LocationPing
	err := r.pool.QueryRow(ctx,
		`SELECT provider_id, latitude, longitude, recorded_at
		 FROM provider_locations WHERE provider_id = $1
		 ORDER BY recorded_at DESC LIMIT 1`,
		providerID,
	).Scan(&ping.ProviderID, &ping.Point.Lat, &ping.Point.Lng, &ping.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LocationPing{}, fmt.Errorf("%w: location for provider %s", domain.ErrNotFound, providerID)
		}
		return domain.LocationPing{}, fmt.Errorf("get provider location: %w", err)
	}
	return ping, nil
}

// UserMobile resolves a user's mobile number for SMS delivery.
func (r *PostgresRepository) UserMobile(ctx context.Context, userID uuid.UUID) (string, error) {
	var mobile string
	err := r.pool.QueryRow(ctx, `SELECT mobile_number FROM users WHERE id = $1`, userID).Scan(&mobile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
		}
		return "", fmt.Errorf("get user mobile: %w", err)
	}
	return mobile, nil
}

func (r *PostgresRepository) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		return nil, fmt.Errorf("select settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

func updateBooking(ctx context.Context, tx pgx.Tx, b *domain.Booking) error {
	var cancelledBy *string
	if b.CancelledBy != nil {
		s := string(*b.CancelledBy)
		cancelledBy = &s
	}
	b.Version++
	tag, err := tx.Exec(ctx,
		`UPDATE bookings SET provider_id = $2, status = $3,
		   accepted_at = $4, started_at = $5, completed_at = $6, cancelled_at = $7,
		   cancelled_by = $8, cancellation_reason = $9, cancellation_fee = $10,
		   provider_notes = $11, version = $12
		 WHERE id = $1`,
		b.ID, b.ProviderID, b.Status,
		b.AcceptedAt, b.StartedAt, b.CompletedAt, b.CancelledAt,
		cancelledBy, b.CancellationReason, b.CancellationFee,
		b.ProviderNotes, b.Version,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, b.ID)
	}
	return nil
}

func insertTimeline(ctx context.Context, tx pgx.Tx, e domain.TimelineEntry) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO booking_timeline (booking_id, status, notes, changed_by, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.BookingID, e.Status, e.Notes, e.ChangedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

func releaseProvider(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `UPDATE providers SET is_available = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release provider: %w", err)
	}
	return nil
}
