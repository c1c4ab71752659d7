package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopicBookingConfirmed is emitted once the backend accepted a checkout.
const TopicBookingConfirmed = "booking.confirmed"

// BookingConfirmed is the payload of TopicBookingConfirmed.
type BookingConfirmed struct {
	BookingID       string          `json:"bookingId"`
	CartID          string          `json:"cartId"`
	Tenants         []string        `json:"tenants"`
	Packages        []int           `json:"packages"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ServiceFees     decimal.Decimal `json:"serviceFees"`
	Guests          int             `json:"guests"`
	PaymentIntentID string          `json:"paymentIntentId"`
	ConfirmedAt     time.Time       `json:"confirmedAt"`
}
