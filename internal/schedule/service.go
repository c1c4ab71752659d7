package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/backend"
	"github.com/tournetwork/storefront/internal/cache"
	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/obs"
	"github.com/tournetwork/storefront/internal/promo"
	"github.com/tournetwork/storefront/internal/tour"
)

var (
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("schedule: session not found")
	// ErrLineNotFound is returned for rate group indexes outside the table.
	ErrLineNotFound = errors.New("schedule: rate group line not found")
	// ErrWrongMode is returned when a regular operation targets a group-rate
	// package or the other way round.
	ErrWrongMode = errors.New("schedule: operation not supported by package pricing mode")
	// ErrNoDate is returned by operations that need a selected date.
	ErrNoDate = errors.New("schedule: no date selected")
)

// Backend is the subset of the booking API the wizard needs.
type Backend interface {
	Package(ctx context.Context, tenantID string, packageID int) (tour.Package, error)
	CustomForm(ctx context.Context, tenantID string, packageID int) (*addon.CustomForm, error)
	TimeSlots(ctx context.Context, tenantID string, packageID int, date string) ([]tour.TimeSlot, error)
	RateGroups(ctx context.Context, tenantID string, packageID int, q backend.RateGroupQuery) (backend.RateGroups, error)
	SetCoupon(ctx context.Context, tenantID string, packageID int, code, date string) (tour.PromoCode, error)
}

// Locker serialises mutations of one session.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// UpstreamError marks a failed booking API call. The session keeps the state
// it had before the call.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string { return "schedule: " + e.Op + ": " + e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Service runs wizard sessions stored in Redis. Network calls are made
// outside the session lock and their answers are applied only while the
// selection that requested them is still current.
type Service struct {
	Backend  Backend
	Sessions *cache.JSON
	Locker   Locker
	LockTTL  time.Duration
	Carts    *cart.Store
	// DefaultTimezone applies to packages that do not declare one.
	DefaultTimezone string
	Now             func() time.Time
	Logger          zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	var sess Session
	ok, err := s.Sessions.Get(ctx, cache.KeySession(id), &sess)
	if err != nil {
		return nil, fmt.Errorf("schedule: load session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return &sess, nil
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	sess.UpdatedAt = s.now().UTC()
	if err := s.Sessions.Set(ctx, cache.KeySession(sess.ID), sess); err != nil {
		return fmt.Errorf("schedule: save session: %w", err)
	}
	return nil
}

// update loads, mutates and saves a session under its lock. A mutation error
// discards the change.
func (s *Service) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := s.Locker.WithLock(ctx, cache.KeySessionLock(id), s.LockTTL, func(ctx context.Context) error {
		sess, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(sess); err != nil {
			return err
		}
		if err := s.save(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.load(ctx, id)
}

// Start opens a session for a package with today selected. The custom form is
// optional; a failure to load it is logged and the package offers no add-ons.
func (s *Service) Start(ctx context.Context, tenantID string, packageID int) (*Session, error) {
	var (
		pkg  tour.Package
		form *addon.CustomForm
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pkg, err = s.Backend.Package(gctx, tenantID, packageID)
		if err != nil {
			return &UpstreamError{Op: "package", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		f, err := s.Backend.CustomForm(gctx, tenantID, packageID)
		if err != nil {
			if gctx.Err() == nil {
				s.Logger.Warn().Err(err).Str("tenant_id", tenantID).Int("package_id", packageID).Msg("custom_form_unavailable")
			}
			return nil
		}
		form = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if pkg.TenantID == "" {
		pkg.TenantID = tenantID
	}
	if strings.TrimSpace(pkg.Timezone) == "" {
		pkg.Timezone = s.DefaultTimezone
	}

	sess := NewSession(uuid.NewString(), pkg, form, s.now().UTC())
	cal := sess.Calendar(s.Now)
	if err := sess.SelectDate(cal, cal.Today()); err != nil {
		return nil, err
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	s.Logger.Info().Str("session_id", sess.ID).Str("tenant_id", sess.TenantID).Int("package_id", packageID).
		Str("mode", string(sess.Allocation.Mode)).Msg("schedule_started")
	return s.refreshSlots(ctx, sess)
}

// refreshSlots fetches the slots of the session's date and, when the new
// slots call for it, the rate table.
func (s *Service) refreshSlots(ctx context.Context, sess *Session) (*Session, error) {
	date := sess.Date
	slots, err := s.Backend.TimeSlots(ctx, sess.TenantID, sess.PackageID, date)
	if err != nil {
		return sess, &UpstreamError{Op: "time slots", Err: err}
	}
	sess, err = s.update(ctx, sess.ID, func(cur *Session) error {
		if !cur.ApplySlots(cur.Calendar(s.Now), date, slots) {
			obs.Inc(obs.StaleResponses, "slots")
			s.Logger.Debug().Str("session_id", cur.ID).Str("date", date).Msg("stale_slots_dropped")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.refreshRates(ctx, sess)
}

// refreshRates loads the rate table the selection needs, if it is not loaded.
func (s *Service) refreshRates(ctx context.Context, sess *Session) (*Session, error) {
	if !sess.NeedsRates() {
		return sess, nil
	}
	q, _ := sess.RateGroupQuery()
	table, err := s.Backend.RateGroups(ctx, sess.TenantID, sess.PackageID, q)
	if err != nil {
		return sess, &UpstreamError{Op: "rate groups", Err: err}
	}
	return s.update(ctx, sess.ID, func(cur *Session) error {
		if cur.Rates != nil && cur.Rates.Equal(q) {
			return nil
		}
		if !cur.ApplyRateGroups(q, table) {
			obs.Inc(obs.StaleResponses, "rate_groups")
			s.Logger.Debug().Str("session_id", cur.ID).Str("date", q.Date).Msg("stale_rate_groups_dropped")
		}
		return nil
	})
}

// SelectDate switches the session to date and loads its slots.
func (s *Service) SelectDate(ctx context.Context, id, date string) (*Session, error) {
	sess, err := s.update(ctx, id, func(cur *Session) error {
		return cur.SelectDate(cur.Calendar(s.Now), date)
	})
	if err != nil {
		return nil, err
	}
	return s.refreshSlots(ctx, sess)
}

// NavigateMonth moves the calendar view.
func (s *Service) NavigateMonth(ctx context.Context, id, direction string) (*Session, error) {
	return s.update(ctx, id, func(cur *Session) error {
		return cur.NavigateMonth(cur.Calendar(s.Now), direction)
	})
}

// SelectSlot chooses a slot, zeroes the guests and loads the slot's rate
// table when pricing is slot-scoped.
func (s *Service) SelectSlot(ctx context.Context, id string, slotID int) (*Session, error) {
	sess, err := s.update(ctx, id, func(cur *Session) error {
		return cur.SelectSlot(slotID)
	})
	if err != nil {
		return nil, err
	}
	return s.refreshRates(ctx, sess)
}

// Result is a session after a capacity bound change. Applied is false when
// the change was refused for lack of seats.
type Result struct {
	Session *Session
	Applied bool
}

// SetQuantity sets the guests of one regular rate group.
func (s *Service) SetQuantity(ctx context.Context, id string, index, quantity int) (Result, error) {
	var applied bool
	sess, err := s.update(ctx, id, func(cur *Session) error {
		if cur.Allocation.Mode != allocation.ModeRegular {
			return ErrWrongMode
		}
		if index < 0 || index >= len(cur.Allocation.Lines) {
			return fmt.Errorf("%w: %d", ErrLineNotFound, index)
		}
		applied = cur.SetQuantity(index, quantity)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if !applied {
		obs.Inc(obs.CapacityRejections, string(allocation.ModeRegular))
	}
	return Result{Session: sess, Applied: applied}, nil
}

// SetGroupSize picks the party size of a group-rate package.
func (s *Service) SetGroupSize(ctx context.Context, id string, size int) (Result, error) {
	var applied bool
	sess, err := s.update(ctx, id, func(cur *Session) error {
		if cur.Allocation.Mode != allocation.ModeGroupRate {
			return ErrWrongMode
		}
		applied = cur.SetGroupSize(size)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if !applied {
		obs.Inc(obs.CapacityRejections, string(allocation.ModeGroupRate))
	}
	return Result{Session: sess, Applied: applied}, nil
}

// SetAddOn stores an add-on value.
func (s *Service) SetAddOn(ctx context.Context, id, fieldID string, value any) (*Session, error) {
	return s.update(ctx, id, func(cur *Session) error {
		return cur.SetAddOn(fieldID, value)
	})
}

// ApplyPromo validates code for the selected date. A rejected code is
// cleared from the session with its customer facing message and the
// classified error is returned alongside the updated session.
func (s *Service) ApplyPromo(ctx context.Context, id, code string) (*Session, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, promo.ErrEmptyCode
	}
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Date == "" {
		return nil, ErrNoDate
	}
	date := sess.Date
	applied, applyErr := s.Backend.SetCoupon(ctx, sess.TenantID, sess.PackageID, code, date)

	stale := false
	sess, err = s.update(ctx, id, func(cur *Session) error {
		if cur.Date != date {
			stale = true
			return nil
		}
		if applyErr != nil {
			cur.RejectPromo(applyErr)
			return nil
		}
		cur.ApplyPromo(date, applied)
		return nil
	})
	if err != nil {
		return nil, err
	}
	switch {
	case stale:
		obs.Inc(obs.PromoApply, "stale")
		obs.Inc(obs.StaleResponses, "promo")
	case applyErr != nil:
		obs.Inc(obs.PromoApply, promoResult(applyErr))
		s.Logger.Info().Err(applyErr).Str("session_id", id).Str("date", date).Msg("promo_rejected")
		return sess, applyErr
	default:
		obs.Inc(obs.PromoApply, "applied")
	}
	return sess, nil
}

func promoResult(err error) string {
	switch {
	case errors.Is(err, promo.ErrInvalidCode):
		return "invalid"
	case errors.Is(err, promo.ErrExpiredCode):
		return "expired"
	default:
		return "failed"
	}
}

// RemovePromo clears the code and its error.
func (s *Service) RemovePromo(ctx context.Context, id string) (*Session, error) {
	return s.update(ctx, id, func(cur *Session) error {
		cur.ClearPromo()
		return nil
	})
}

// AddToCart freezes the selection into cartID. The session stays open.
func (s *Service) AddToCart(ctx context.Context, id, cartID string) (cart.Item, []cart.Item, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return cart.Item{}, nil, err
	}
	item, err := sess.CartItem(s.now())
	if err != nil {
		return cart.Item{}, nil, err
	}
	items, err := s.Carts.Add(ctx, cartID, item)
	if err != nil {
		return cart.Item{}, nil, err
	}
	obs.Inc(obs.QuotesTotal, "session")
	s.Logger.Info().Str("session_id", id).Str("cart_id", cartID).Str("item_id", item.ID).
		Str("total", item.Pricing.TotalAmount.StringFixed(2)).Int("guests", item.TotalGuests).Msg("cart_item_added")
	return item, items, nil
}
