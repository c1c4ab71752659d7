package cart

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/cache"
	"github.com/tournetwork/storefront/internal/lock"
	"github.com/tournetwork/storefront/internal/pricing"
)

func item(id, total string) Item {
	return Item{
		ID:          id,
		PackageID:   42,
		TenantID:    "acme",
		PackageName: "Canyon Sunset",
		Pricing: pricing.Breakdown{
			TotalAmount: decimal.RequireFromString(total),
			TotalFees:   decimal.RequireFromString("1.10"),
		},
		TotalGuests: 2,
	}
}

func redisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Store{
		Carts:     RedisPersister{Cache: cache.NewJSON(rdb, "", 24*time.Hour)},
		Completed: RedisPersister{Cache: cache.NewJSON(rdb, "", time.Hour)},
		Locker:    &lock.Locker{R: rdb, RetryBackoff: time.Millisecond, MaxWait: time.Second},
	}, mr
}

func TestStoreLifecycle(t *testing.T) {
	for name, store := range map[string]*Store{
		"memory": {Carts: NewMemoryPersister()},
		"redis":  func() *Store { s, _ := redisStore(t); return s }(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := NewID()

			items, err := store.Items(ctx, id)
			require.NoError(t, err)
			require.Empty(t, items)

			_, err = store.Add(ctx, id, item("a", "176.55"))
			require.NoError(t, err)
			items, err = store.Add(ctx, id, item("b", "10.004"))
			require.NoError(t, err)
			require.Len(t, items, 2)

			total, err := store.Total(ctx, id)
			require.NoError(t, err)
			require.True(t, total.Equal(decimal.RequireFromString("186.56")), total.String())

			_, err = store.Add(ctx, id, item("c", "1.00"))
			require.NoError(t, err)
			items, err = store.RemoveItems(ctx, id, []string{"c", "ghost"})
			require.NoError(t, err)
			require.Len(t, items, 2)
			require.Equal(t, "b", items[1].ID)

			items, err = store.Remove(ctx, id, "a")
			require.NoError(t, err)
			require.Len(t, items, 1)

			_, err = store.Remove(ctx, id, "a")
			require.ErrorIs(t, err, ErrItemNotFound)

			count, err := store.Count(ctx, id)
			require.NoError(t, err)
			require.Equal(t, 1, count)

			require.NoError(t, store.Clear(ctx, id))
			count, err = store.Count(ctx, id)
			require.NoError(t, err)
			require.Zero(t, count)
		})
	}
}

func TestStoreRejectsBadIDs(t *testing.T) {
	store := &Store{Carts: NewMemoryPersister()}
	_, err := store.Items(context.Background(), "../etc")
	require.ErrorIs(t, err, ErrInvalidID)

	var empty *Store
	_, err = empty.Items(context.Background(), NewID())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestCustomerInfoIsKeptAcrossClear(t *testing.T) {
	store, _ := redisStore(t)
	ctx := context.Background()
	id := NewID()

	info, err := store.CustomerInfo(ctx, id)
	require.NoError(t, err)
	require.Nil(t, info)

	saved := CustomerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "555", AgreeToTerms: true}
	require.NoError(t, store.SetCustomerInfo(ctx, id, saved))
	require.NoError(t, store.Clear(ctx, id))

	info, err = store.CustomerInfo(ctx, id)
	require.NoError(t, err)
	require.Equal(t, saved, *info)
}

func TestCompletedIsConsumedOnce(t *testing.T) {
	store, mr := redisStore(t)
	ctx := context.Background()
	id := NewID()

	require.NoError(t, store.SaveCompleted(ctx, id, Completed{BookingID: "TN-1", TotalAmount: decimal.RequireFromString("20")}))
	require.Equal(t, time.Hour, mr.TTL(KeyCompleted+":"+id))

	c, ok, err := store.TakeCompleted(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "TN-1", c.BookingID)

	_, ok, err = store.TakeCompleted(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCustomerInfoValidate(t *testing.T) {
	valid := CustomerInfo{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "555", AgreeToTerms: true}
	require.NoError(t, valid.Validate())

	err := CustomerInfo{FirstName: "  ", Email: "nope", AgreeToTerms: false}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, map[string]string{
		"firstName":    "First name is required",
		"lastName":     "Last name is required",
		"email":        "Please enter a valid email address",
		"phone":        "Phone number is required",
		"agreeToTerms": "You must agree to the terms and conditions",
	}, verr.Fields)

	err = CustomerInfo{FirstName: "A", LastName: "B", Phone: "1", AgreeToTerms: true}.Validate()
	require.ErrorAs(t, err, &verr)
	require.Equal(t, map[string]string{"email": "Email is required"}, verr.Fields)
}
