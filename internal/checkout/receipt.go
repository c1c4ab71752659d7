package checkout

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/tournetwork/storefront/internal/calendar"
	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/money"
)

// Receipt renders the completed booking as a one page PDF.
func Receipt(c cart.Completed) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Booking "+c.BookingID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "BOOKING CONFIRMATION")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Booking ID : "+c.BookingID)
	pdf.Ln(7)
	pdf.Cell(0, 7, "Booked on  : "+c.BookingDate.Format("January 2, 2006 15:04 MST"))
	pdf.Ln(7)
	name := strings.TrimSpace(c.CustomerInfo.FirstName + " " + c.CustomerInfo.LastName)
	pdf.Cell(0, 7, "Guest      : "+name)
	pdf.Ln(7)
	pdf.Cell(0, 7, "Email      : "+c.CustomerInfo.Email)
	pdf.Ln(10)

	for i, it := range c.CartItems {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 7, fmt.Sprintf("%d) %s", i+1, it.PackageName))
		pdf.Ln(7)

		pdf.SetFont("Helvetica", "", 11)
		when := calendar.New("", nil).FormatDate(it.SelectedDate)
		if it.SelectedSlot != nil {
			when += " at " + it.SelectedSlot.Time
		}
		pdf.Cell(0, 6, when)
		pdf.Ln(6)
		for _, l := range it.RateGroupSelections {
			pdf.Cell(0, 6, fmt.Sprintf("   %d x %s  %s", l.Quantity, l.RateGroup.RateFor, money.Format(l.Total)))
			pdf.Ln(6)
		}
		for _, d := range it.AddOnFieldDetails {
			pdf.Cell(0, 6, fmt.Sprintf("   + %s  %s", d.Name, money.Format(d.Pricing.Total)))
			pdf.Ln(6)
		}
		if it.AppliedPromoCode != nil {
			pdf.Cell(0, 6, fmt.Sprintf("   Promo %s  -%s", it.AppliedPromoCode.CouponCode, money.Format(it.Pricing.PromoDiscount)))
			pdf.Ln(6)
		}
		pdf.Cell(0, 6, fmt.Sprintf("   Guests: %d   Fees: %s   Total: %s",
			it.TotalGuests, money.Format(it.Pricing.TotalFees), money.Format(it.Pricing.TotalAmount)))
		pdf.Ln(9)
	}

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, "Service fees: "+money.Format(c.ServiceFees))
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Total paid: "+money.Format(c.TotalAmount))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Please bring this confirmation to your tour. Times are local to the tour operator.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("checkout: render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
