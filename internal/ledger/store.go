// Package ledger keeps a Postgres copy of confirmed bookings so totals can be
// reconciled against what the booking API accepted.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/events"
)

// ErrStoreUnavailable indicates the ledger database is not configured.
var ErrStoreUnavailable = errors.New("ledger: store unavailable")

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store writes ledger rows. Writes are idempotent per booking item and per
// event.
type Store struct {
	DB  DB
	Now func() time.Time
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

const ledgerColumns = 12

// Record stores one row per cart item of a completed booking in a single
// statement.
func (s *Store) Record(ctx context.Context, cartID string, c cart.Completed) error {
	if s == nil || s.DB == nil {
		return ErrStoreUnavailable
	}
	if len(c.CartItems) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args = make([]any, 0, len(c.CartItems)*ledgerColumns)
	)
	sb.WriteString(`INSERT INTO booking_ledger (booking_id, item_id, cart_id, tenant_id, package_id, tour_date, slot_id, guests, breakdown, total_amount, payment_intent_id, created_at) VALUES `)
	created := s.now()
	for i, it := range c.CartItems {
		breakdown, err := json.Marshal(it.Pricing)
		if err != nil {
			return fmt.Errorf("ledger: encode breakdown: %w", err)
		}
		var slotID any
		if it.SelectedSlot != nil {
			slotID = it.SelectedSlot.ID
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < ledgerColumns; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*ledgerColumns+j+1)
		}
		sb.WriteString(")")
		args = append(args, c.BookingID, it.ID, cartID, it.TenantID, it.PackageID, it.SelectedDate, slotID,
			it.TotalGuests, breakdown, it.Pricing.TotalAmount.StringFixed(2), c.PaymentIntentID, created)
	}
	sb.WriteString(" ON CONFLICT (booking_id, item_id) DO NOTHING")
	if _, err := s.DB.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("ledger: insert booking %s: %w", c.BookingID, err)
	}
	return nil
}

// RecordEvent stores a booking.confirmed event. Redelivered events are
// ignored.
func (s *Store) RecordEvent(ctx context.Context, ev events.Event) error {
	if s == nil || s.DB == nil {
		return ErrStoreUnavailable
	}
	if ev.Topic != events.TopicBookingConfirmed {
		return fmt.Errorf("ledger: unexpected topic %q", ev.Topic)
	}
	var payload events.BookingConfirmed
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return fmt.Errorf("ledger: decode event %s: %w", ev.ID, err)
	}
	if payload.BookingID == "" {
		return fmt.Errorf("ledger: event %s has no booking id", ev.ID)
	}
	_, err := s.DB.Exec(ctx, `INSERT INTO booking_events (event_id, booking_id, total_amount, guests, payload, received_at)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (event_id) DO NOTHING`,
		ev.ID, payload.BookingID, payload.TotalAmount.StringFixed(2), payload.Guests, []byte(ev.Payload), s.now())
	if err != nil {
		return fmt.Errorf("ledger: insert event %s: %w", ev.ID, err)
	}
	return nil
}

// Reconciliation compares the item rows of a booking with the total carried
// by its confirmation event.
type Reconciliation struct {
	BookingID  string          `json:"bookingId"`
	Items      int             `json:"items"`
	ItemsTotal decimal.Decimal `json:"itemsTotal"`
	EventSeen  bool            `json:"eventSeen"`
	EventTotal decimal.Decimal `json:"eventTotal"`
	Matched    bool            `json:"matched"`
}

// Reconcile loads both sides of a booking.
func (s *Store) Reconcile(ctx context.Context, bookingID string) (Reconciliation, error) {
	if s == nil || s.DB == nil {
		return Reconciliation{}, ErrStoreUnavailable
	}
	out := Reconciliation{BookingID: bookingID}
	var itemsTotal string
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(total_amount), 0)::text FROM booking_ledger WHERE booking_id = $1`, bookingID).
		Scan(&out.Items, &itemsTotal)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("ledger: sum booking %s: %w", bookingID, err)
	}
	if out.ItemsTotal, err = decimal.NewFromString(itemsTotal); err != nil {
		return Reconciliation{}, fmt.Errorf("ledger: parse total %q: %w", itemsTotal, err)
	}

	var eventTotal string
	err = s.DB.QueryRow(ctx, `SELECT total_amount::text FROM booking_events WHERE booking_id = $1 ORDER BY received_at DESC LIMIT 1`, bookingID).
		Scan(&eventTotal)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return Reconciliation{}, fmt.Errorf("ledger: load event for %s: %w", bookingID, err)
	default:
		out.EventSeen = true
		if out.EventTotal, err = decimal.NewFromString(eventTotal); err != nil {
			return Reconciliation{}, fmt.Errorf("ledger: parse event total %q: %w", eventTotal, err)
		}
	}
	out.Matched = out.Items > 0 && out.EventSeen && out.ItemsTotal.Equal(out.EventTotal)
	return out, nil
}
