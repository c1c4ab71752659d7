package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/backend"
	"github.com/tournetwork/storefront/internal/cache"
	"github.com/tournetwork/storefront/internal/promo"
	"github.com/tournetwork/storefront/internal/resilience"
)

type fakeAPI struct {
	packageCalls atomic.Int32
	bookingCalls atomic.Int32

	mu            sync.Mutex
	lastRateQuery map[string]any
	lastAPIKey    string
}

func (f *fakeAPI) rateQuery() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRateQuery
}

func (f *fakeAPI) apiKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAPIKey
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
	mux.HandleFunc("GET /package/{tenant}/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.packageCalls.Add(1)
		f.mu.Lock()
		f.lastAPIKey = r.Header.Get("X-API-Key")
		f.mu.Unlock()
		write(w, 200, `{"code":200,"data":{"tenant_id":"acme","package":{"id":42,"name":"Canyon Sunset","is_group_rate_enabled":0,"service_commission_percentage":"10","timezone":"America/Phoenix"}}}`)
	})
	mux.HandleFunc("GET /custom-form/{tenant}/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "404" {
			write(w, 404, `{"code":404,"message":"no form"}`)
			return
		}
		write(w, 200, `{"code":200,"data":{"custom_form":{"id":3,"form_fields":[{"id":"lunch","name":"Lunch","type":"checkbox","visibility":"both","order":"1"}]}}}`)
	})
	mux.HandleFunc("POST /time-slots/{tenant}/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		write(w, 200, `{"code":200,"data":{"slots":[{"id":1,"time":"09:00","seats":8,"bookable_status":"Open","custom_rate":"0"}]}}`)
	})
	mux.HandleFunc("POST /rate-groups/{tenant}/{id}", func(w http.ResponseWriter, r *http.Request) {
		query := map[string]any{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		f.mu.Lock()
		f.lastRateQuery = query
		f.mu.Unlock()
		write(w, 200, `{"code":200,"data":{"rate_groups":[{"id":1,"rate_for":"Adult","rate":"50"}],"service_commission_percentage":"12.5"}}`)
	})
	mux.HandleFunc("POST /set-coupon/{tenant}/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["coupon"] {
		case "TEN":
			write(w, 200, `{"code":200,"data":{"coupon":{"id":5,"coupon_code":"TEN","discount_value":"10","discount_value_type":"Percent"}}}`)
		case "OLD":
			write(w, 410, `{"code":410,"message":"expired"}`)
		case "BROKEN":
			write(w, 400, `{"code":400}`)
		default:
			write(w, 404, `{"code":404,"message":"unknown"}`)
		}
	})
	mux.HandleFunc("POST /create-bookings", func(w http.ResponseWriter, r *http.Request) {
		f.bookingCalls.Add(1)
		write(w, 503, `{"code":503}`)
	})
	mux.HandleFunc("POST /create-payment-intent", func(w http.ResponseWriter, r *http.Request) {
		write(w, 200, `{"code":200,"data":{"id":"pi_1","client_secret":"pi_1_secret"}}`)
	})
	mux.HandleFunc("GET /packages", func(w http.ResponseWriter, r *http.Request) {
		write(w, 200, `{"code":200,"data":[]}`)
	})
	return mux
}

func newClient(t *testing.T) (*backend.Client, *fakeAPI, *miniredis.Miniredis) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := &backend.Client{
		BaseURL: srv.URL,
		APIKey:  "secret",
		HTTP:    resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 3, BaseBackoff: time.Millisecond},
		Cache:   cache.NewJSON(rdb, "backend:", time.Minute),
	}
	return c, api, mr
}

func TestPackageIsCached(t *testing.T) {
	c, api, _ := newClient(t)
	ctx := context.Background()

	pkg, err := c.Package(ctx, "acme", 42)
	require.NoError(t, err)
	require.Equal(t, "Canyon Sunset", pkg.Name)
	require.Equal(t, "acme", pkg.TenantID)
	require.True(t, pkg.ServiceCommissionPercentage.Equal(decimal.NewFromInt(10)))
	require.Equal(t, "secret", api.apiKey())

	_, err = c.Package(ctx, "acme", 42)
	require.NoError(t, err)
	require.Equal(t, int32(1), api.packageCalls.Load())
}

func TestCustomForm(t *testing.T) {
	c, _, _ := newClient(t)
	form, err := c.CustomForm(context.Background(), "acme", 42)
	require.NoError(t, err)
	require.NotNil(t, form)
	require.Len(t, form.FormFields, 1)

	form, err = c.CustomForm(context.Background(), "acme", 404)
	require.NoError(t, err)
	require.Nil(t, form)
}

func TestSlotsAndRateGroups(t *testing.T) {
	c, api, _ := newClient(t)
	ctx := context.Background()

	slots, err := c.TimeSlots(ctx, "acme", 42, "2024-06-15")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.True(t, slots[0].Open())

	slotID := 1
	groups, err := c.RateGroups(ctx, "acme", 42, backend.RateGroupQuery{Date: "2024-06-15", SlotID: &slotID})
	require.NoError(t, err)
	require.Len(t, groups.Groups, 1)
	require.NotNil(t, groups.CommissionPct)
	require.True(t, groups.CommissionPct.Equal(decimal.RequireFromString("12.5")))
	require.Equal(t, float64(1), api.rateQuery()["slot_id"])

	_, err = c.RateGroups(ctx, "acme", 42, backend.RateGroupQuery{Date: "2024-06-15"})
	require.NoError(t, err)
	require.NotContains(t, api.rateQuery(), "slot_id")
}

func TestRateGroupQueryEqual(t *testing.T) {
	one, two := 1, 2
	require.True(t, backend.RateGroupQuery{Date: "d"}.Equal(backend.RateGroupQuery{Date: "d"}))
	require.True(t, backend.RateGroupQuery{Date: "d", SlotID: &one}.Equal(backend.RateGroupQuery{Date: "d", SlotID: &one}))
	require.False(t, backend.RateGroupQuery{Date: "d", SlotID: &one}.Equal(backend.RateGroupQuery{Date: "d", SlotID: &two}))
	require.False(t, backend.RateGroupQuery{Date: "d", SlotID: &one}.Equal(backend.RateGroupQuery{Date: "d"}))
	require.False(t, backend.RateGroupQuery{Date: "d"}.Equal(backend.RateGroupQuery{Date: "e"}))
}

func TestSetCouponClassifiesFailures(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	code, err := c.SetCoupon(ctx, "acme", 42, "TEN", "2024-06-15")
	require.NoError(t, err)
	require.Equal(t, "Percent", code.DiscountValueType)

	_, err = c.SetCoupon(ctx, "acme", 42, "OLD", "2024-06-15")
	require.ErrorIs(t, err, promo.ErrExpiredCode)

	_, err = c.SetCoupon(ctx, "acme", 42, "NOPE", "2024-06-15")
	require.ErrorIs(t, err, promo.ErrInvalidCode)

	_, err = c.SetCoupon(ctx, "acme", 42, "BROKEN", "2024-06-15")
	require.ErrorIs(t, err, promo.ErrApplyFailed)
	require.True(t, backend.IsStatus(err, http.StatusBadRequest))
}

func TestCreateBookingsIsNotRetried(t *testing.T) {
	c, api, _ := newClient(t)
	_, err := c.CreateBookings(context.Background(), backend.BookingRequest{PaymentIntentID: "pi_1"})
	require.ErrorIs(t, err, resilience.ErrUpstream)
	require.Equal(t, int32(1), api.bookingCalls.Load())
}

func TestCreatePaymentIntentFlatResponse(t *testing.T) {
	c, _, _ := newClient(t)
	intent, err := c.CreatePaymentIntent(context.Background(), backend.PaymentIntentRequest{Amount: decimal.RequireFromString("176.55"), Currency: "USD"})
	require.NoError(t, err)
	require.Equal(t, "pi_1", intent.ID)
	require.Equal(t, "pi_1_secret", intent.ClientSecret)
	require.True(t, intent.Amount.Equal(decimal.RequireFromString("176.55")))
}

func TestPingAndUnconfigured(t *testing.T) {
	c, _, _ := newClient(t)
	require.NoError(t, c.Ping(context.Background(), time.Second))

	var empty *backend.Client
	require.ErrorIs(t, empty.Ping(context.Background(), 0), backend.ErrNotConfigured)
}
