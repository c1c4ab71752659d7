package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/lock"
)

// Base keys of the documents kept per cart.
const (
	KeyCart         = "tour_network_cart"
	KeyCustomerInfo = "tour_network_customer_info"
	KeyCompleted    = "completed_booking"
)

var (
	// ErrInvalidID is returned for cart ids that are not UUIDs.
	ErrInvalidID = errors.New("cart: invalid cart id")
	// ErrItemNotFound is returned when an item id is not in the cart.
	ErrItemNotFound = errors.New("cart: item not found")
	// ErrNotConfigured is returned when the store has no persister.
	ErrNotConfigured = errors.New("cart: store not configured")
)

// NewID returns a fresh cart id.
func NewID() string {
	return uuid.NewString()
}

// Store reads and writes carts through injected persisters. Completed
// records may live in a separate persister with a shorter lifetime.
type Store struct {
	Carts     Persister
	Completed Persister
	Locker    *lock.Locker
	LockTTL   time.Duration
}

func key(base, cartID string) string {
	return base + ":" + cartID
}

func checkID(cartID string) error {
	if _, err := uuid.Parse(cartID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, cartID)
	}
	return nil
}

func (s *Store) completed() Persister {
	if s.Completed != nil {
		return s.Completed
	}
	return s.Carts
}

// mutate serialises read-modify-write cycles on one cart when a locker is set.
func (s *Store) mutate(ctx context.Context, cartID string, fn func([]Item) ([]Item, error)) ([]Item, error) {
	if s == nil || s.Carts == nil {
		return nil, ErrNotConfigured
	}
	if err := checkID(cartID); err != nil {
		return nil, err
	}
	var out []Item
	run := func(ctx context.Context) error {
		items, err := s.Items(ctx, cartID)
		if err != nil {
			return err
		}
		next, err := fn(items)
		if err != nil {
			return err
		}
		if err := s.Carts.Save(ctx, key(KeyCart, cartID), next); err != nil {
			return fmt.Errorf("cart: save: %w", err)
		}
		out = next
		return nil
	}
	var err error
	if s.Locker == nil {
		err = run(ctx)
	} else {
		err = s.Locker.WithLock(ctx, "lock:"+key(KeyCart, cartID), s.LockTTL, run)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Items returns the cart contents; an unknown cart is empty.
func (s *Store) Items(ctx context.Context, cartID string) ([]Item, error) {
	if s == nil || s.Carts == nil {
		return nil, ErrNotConfigured
	}
	if err := checkID(cartID); err != nil {
		return nil, err
	}
	var items []Item
	if _, err := s.Carts.Load(ctx, key(KeyCart, cartID), &items); err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Add appends item.
func (s *Store) Add(ctx context.Context, cartID string, item Item) ([]Item, error) {
	return s.mutate(ctx, cartID, func(items []Item) ([]Item, error) {
		return append(items, item), nil
	})
}

// Remove drops the item with itemID.
func (s *Store) Remove(ctx context.Context, cartID, itemID string) ([]Item, error) {
	return s.mutate(ctx, cartID, func(items []Item) ([]Item, error) {
		out := make([]Item, 0, len(items))
		for _, it := range items {
			if it.ID != itemID {
				out = append(out, it)
			}
		}
		if len(out) == len(items) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
		}
		return out, nil
	})
}

// RemoveItems drops the items whose ids are listed. Unknown ids are ignored
// so items added after a read survive.
func (s *Store) RemoveItems(ctx context.Context, cartID string, ids []string) ([]Item, error) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return s.mutate(ctx, cartID, func(items []Item) ([]Item, error) {
		out := make([]Item, 0, len(items))
		for _, it := range items {
			if !drop[it.ID] {
				out = append(out, it)
			}
		}
		return out, nil
	})
}

// Clear empties the cart. Customer info is kept.
func (s *Store) Clear(ctx context.Context, cartID string) error {
	if s == nil || s.Carts == nil {
		return ErrNotConfigured
	}
	if err := checkID(cartID); err != nil {
		return err
	}
	return s.Carts.Delete(ctx, key(KeyCart, cartID))
}

// Total is the rounded sum of item totals.
func (s *Store) Total(ctx context.Context, cartID string) (decimal.Decimal, error) {
	items, err := s.Items(ctx, cartID)
	if err != nil {
		return decimal.Zero, err
	}
	return Total(items), nil
}

// Count is the number of items.
func (s *Store) Count(ctx context.Context, cartID string) (int, error) {
	items, err := s.Items(ctx, cartID)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// CustomerInfo returns the saved purchaser, or nil.
func (s *Store) CustomerInfo(ctx context.Context, cartID string) (*CustomerInfo, error) {
	if s == nil || s.Carts == nil {
		return nil, ErrNotConfigured
	}
	if err := checkID(cartID); err != nil {
		return nil, err
	}
	var info CustomerInfo
	ok, err := s.Carts.Load(ctx, key(KeyCustomerInfo, cartID), &info)
	if err != nil {
		return nil, fmt.Errorf("cart: load customer: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// SetCustomerInfo saves the purchaser as given.
func (s *Store) SetCustomerInfo(ctx context.Context, cartID string, info CustomerInfo) error {
	if s == nil || s.Carts == nil {
		return ErrNotConfigured
	}
	if err := checkID(cartID); err != nil {
		return err
	}
	if err := s.Carts.Save(ctx, key(KeyCustomerInfo, cartID), info); err != nil {
		return fmt.Errorf("cart: save customer: %w", err)
	}
	return nil
}

// SaveCompleted stores the confirmation record of cartID.
func (s *Store) SaveCompleted(ctx context.Context, cartID string, c Completed) error {
	if s == nil || s.completed() == nil {
		return ErrNotConfigured
	}
	if err := checkID(cartID); err != nil {
		return err
	}
	if err := s.completed().Save(ctx, key(KeyCompleted, cartID), c); err != nil {
		return fmt.Errorf("cart: save completed: %w", err)
	}
	return nil
}

// TakeCompleted returns the confirmation record and deletes it. A second
// call reports false.
func (s *Store) TakeCompleted(ctx context.Context, cartID string) (Completed, bool, error) {
	if s == nil || s.completed() == nil {
		return Completed{}, false, ErrNotConfigured
	}
	if err := checkID(cartID); err != nil {
		return Completed{}, false, err
	}
	var c Completed
	ok, err := s.completed().Take(ctx, key(KeyCompleted, cartID), &c)
	if err != nil {
		return Completed{}, false, fmt.Errorf("cart: take completed: %w", err)
	}
	return c, ok, nil
}
