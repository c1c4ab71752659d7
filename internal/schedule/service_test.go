package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/backend"
	"github.com/tournetwork/storefront/internal/cache"
	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/lock"
	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/promo"
	"github.com/tournetwork/storefront/internal/tour"
)

type fakeBackend struct {
	mu sync.Mutex

	pkg        tour.Package
	pkgErr     error
	form       *addon.CustomForm
	formErr    error
	slots      map[string][]tour.TimeSlot
	groups     []tour.RateGroup
	coupons    map[string]tour.PromoCode
	rateCalls  []backend.RateGroupQuery
	onSlots    func(date string)
	onCoupon   func(date string)
	couponErrs map[string]error
}

func (f *fakeBackend) Package(context.Context, string, int) (tour.Package, error) {
	return f.pkg, f.pkgErr
}

func (f *fakeBackend) CustomForm(context.Context, string, int) (*addon.CustomForm, error) {
	return f.form, f.formErr
}

func (f *fakeBackend) TimeSlots(_ context.Context, _ string, _ int, date string) ([]tour.TimeSlot, error) {
	f.mu.Lock()
	hook := f.onSlots
	f.onSlots = nil
	slots := f.slots[date]
	f.mu.Unlock()
	if hook != nil {
		hook(date)
	}
	return slots, nil
}

func (f *fakeBackend) RateGroups(_ context.Context, _ string, _ int, q backend.RateGroupQuery) (backend.RateGroups, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateCalls = append(f.rateCalls, q)
	return backend.RateGroups{Groups: f.groups}, nil
}

func (f *fakeBackend) SetCoupon(_ context.Context, _ string, _ int, code, date string) (tour.PromoCode, error) {
	f.mu.Lock()
	hook := f.onCoupon
	f.onCoupon = nil
	c, ok := f.coupons[code]
	err := f.couponErrs[code]
	f.mu.Unlock()
	if hook != nil {
		hook(date)
	}
	if err != nil {
		return tour.PromoCode{}, err
	}
	if !ok {
		return tour.PromoCode{}, promo.ErrInvalidCode
	}
	return c, nil
}

func (f *fakeBackend) rateQueries() []backend.RateGroupQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.RateGroupQuery(nil), f.rateCalls...)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pkg: regularPackage(),
		slots: map[string][]tour.TimeSlot{
			today:        dateSlots(),
			"2024-06-11": {{ID: 7, Time: "10:00", Seats: 3, BookableStatus: tour.SlotOpen}},
			"2024-06-12": {{ID: 8, Time: "11:00", Seats: 12, BookableStatus: tour.SlotOpen}},
			"2024-06-20": scopedSlots(),
		},
		groups: regularGroups(),
		coupons: map[string]tour.PromoCode{
			"SUN10": {ID: 9, CouponCode: "SUN10", DiscountValue: money.FlexFromString("10"), DiscountValueType: promo.KindPercent},
		},
		couponErrs: map[string]error{"OLD": promo.ErrExpiredCode},
	}
}

func newService(t *testing.T, fb *fakeBackend) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Service{
		Backend:  fb,
		Sessions: cache.NewJSON(rdb, "", time.Hour),
		Locker:   lock.Locker{R: rdb, RetryBackoff: time.Millisecond, MaxWait: time.Second},
		LockTTL:  5 * time.Second,
		Carts:    &cart.Store{Carts: cart.NewMemoryPersister()},
		Now:      clock,
		Logger:   zerolog.Nop(),
	}
}

func TestStartLoadsTodayWithRates(t *testing.T) {
	fb := newFakeBackend()
	fb.formErr = errors.New("form service down")
	svc := newService(t, fb)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)
	require.Equal(t, today, sess.Date)
	require.True(t, sess.SlotsLoaded)
	require.Len(t, sess.Slots, 2)
	require.Len(t, sess.Allocation.Lines, 2)
	require.Empty(t, sess.Form)
	require.Equal(t, []backend.RateGroupQuery{{Date: today}}, fb.rateQueries())

	stored, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.Rates, stored.Rates)
}

func TestStartPackageFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.pkgErr = backend.ErrNotConfigured
	svc := newService(t, fb)

	_, err := svc.Start(context.Background(), "acme", 42)
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, "package", upstream.Op)
}

func TestUnknownSession(t *testing.T) {
	svc := newService(t, newFakeBackend())
	_, err := svc.SelectDate(context.Background(), "missing", today)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSlotsForAbandonedDateAreDropped(t *testing.T) {
	fb := newFakeBackend()
	svc := newService(t, fb)
	ctx := context.Background()
	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)

	// While the 11th is loading the visitor moves on to the 12th.
	fb.onSlots = func(date string) {
		require.Equal(t, "2024-06-11", date)
		_, err := svc.SelectDate(ctx, sess.ID, "2024-06-12")
		require.NoError(t, err)
	}
	got, err := svc.SelectDate(ctx, sess.ID, "2024-06-11")
	require.NoError(t, err)
	require.Equal(t, "2024-06-12", got.Date)
	require.Len(t, got.Slots, 1)
	require.Equal(t, 8, got.Slots[0].ID)
	require.Equal(t, 12, got.AvailableSeats())

	stored, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, "2024-06-12", stored.Date)
	require.Equal(t, 8, stored.Slots[0].ID)
}

func TestSlotScopedSelectionFetchesSlotRates(t *testing.T) {
	fb := newFakeBackend()
	svc := newService(t, fb)
	ctx := context.Background()
	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)

	sess, err = svc.SelectDate(ctx, sess.ID, "2024-06-20")
	require.NoError(t, err)
	require.True(t, sess.SlotScoped)
	require.Empty(t, sess.Allocation.Lines)

	_, err = svc.SelectSlot(ctx, sess.ID, 99)
	require.ErrorIs(t, err, ErrSlotUnavailable)

	sess, err = svc.SelectSlot(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.Len(t, sess.Allocation.Lines, 2)
	require.Equal(t, 6, sess.AvailableSeats())

	queries := fb.rateQueries()
	last := queries[len(queries)-1]
	require.Equal(t, "2024-06-20", last.Date)
	require.NotNil(t, last.SlotID)
	require.Equal(t, 2, *last.SlotID)
}

func TestCapacityRejectionKeepsSelection(t *testing.T) {
	svc := newService(t, newFakeBackend())
	ctx := context.Background()
	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)

	res, err := svc.SetQuantity(ctx, sess.ID, 0, 5)
	require.NoError(t, err)
	require.True(t, res.Applied)

	res, err = svc.SetQuantity(ctx, sess.ID, 1, 4)
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, 5, res.Session.TotalGuests())
	require.Equal(t, 3, res.Session.RemainingSeats())

	_, err = svc.SetQuantity(ctx, sess.ID, 5, 1)
	require.ErrorIs(t, err, ErrLineNotFound)
	_, err = svc.SetGroupSize(ctx, sess.ID, 2)
	require.ErrorIs(t, err, ErrWrongMode)
}

func TestGroupRateSession(t *testing.T) {
	fb := newFakeBackend()
	fb.pkg = groupPackage()
	fb.groups = tierGroups()
	svc := newService(t, fb)
	ctx := context.Background()
	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)

	res, err := svc.SetGroupSize(ctx, sess.ID, 10)
	require.NoError(t, err)
	require.False(t, res.Applied)

	res, err = svc.SetGroupSize(ctx, sess.ID, 2)
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, "110.00", res.Session.Breakdown().TotalAmount.StringFixed(2))

	_, err = svc.SetQuantity(ctx, sess.ID, 0, 1)
	require.ErrorIs(t, err, ErrWrongMode)
}

func TestPromoLifecycle(t *testing.T) {
	svc := newService(t, newFakeBackend())
	ctx := context.Background()
	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)
	_, err = svc.SetQuantity(ctx, sess.ID, 0, 2)
	require.NoError(t, err)

	_, err = svc.ApplyPromo(ctx, sess.ID, "   ")
	require.ErrorIs(t, err, promo.ErrEmptyCode)

	got, err := svc.ApplyPromo(ctx, sess.ID, " SUN10 ")
	require.NoError(t, err)
	require.NotNil(t, got.Promo)
	require.Equal(t, "11.00", got.Breakdown().PromoDiscount.StringFixed(2))

	got, err = svc.ApplyPromo(ctx, sess.ID, "OLD")
	require.ErrorIs(t, err, promo.ErrExpiredCode)
	require.Nil(t, got.Promo)
	require.Equal(t, promo.MessageExpired, got.PromoError)

	_, err = svc.ApplyPromo(ctx, sess.ID, "NOPE")
	require.ErrorIs(t, err, promo.ErrInvalidCode)

	got, err = svc.RemovePromo(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, got.PromoError)
}

func TestPromoForAbandonedDateIgnored(t *testing.T) {
	fb := newFakeBackend()
	svc := newService(t, fb)
	ctx := context.Background()
	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)

	fb.onCoupon = func(string) {
		_, err := svc.SelectDate(ctx, sess.ID, "2024-06-12")
		require.NoError(t, err)
	}
	got, err := svc.ApplyPromo(ctx, sess.ID, "SUN10")
	require.NoError(t, err)
	require.Nil(t, got.Promo)
	require.Equal(t, "2024-06-12", got.Date)
}

func TestAddToCart(t *testing.T) {
	svc := newService(t, newFakeBackend())
	ctx := context.Background()
	sess, err := svc.Start(ctx, "acme", 42)
	require.NoError(t, err)
	cartID := cart.NewID()

	_, _, err = svc.AddToCart(ctx, sess.ID, cartID)
	require.ErrorIs(t, err, ErrNotBookable)

	_, err = svc.SetQuantity(ctx, sess.ID, 0, 2)
	require.NoError(t, err)
	item, items, err := svc.AddToCart(ctx, sess.ID, cartID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Canyon Sunset", item.PackageName)
	require.Equal(t, "121.00", item.Pricing.TotalAmount.StringFixed(2))

	_, _, err = svc.AddToCart(ctx, sess.ID, "not-a-uuid")
	require.ErrorIs(t, err, cart.ErrInvalidID)
}
