package checkout

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/common"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// AppError maps checkout errors to API errors.
func AppError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCartEmpty):
		return common.NewAppError("CART_EMPTY", "your cart is empty", http.StatusBadRequest, err)
	case errors.Is(err, ErrMissingPaymentIntent):
		return common.Validation("paymentIntentId is required", err)
	case errors.Is(err, ErrMissingCustomer):
		return common.NewAppError("CUSTOMER_REQUIRED", "customer information is required before confirming", http.StatusBadRequest, err)
	case errors.Is(err, ErrNoConfirmation):
		return common.NotFound("no completed booking for this cart", err)
	case errors.Is(err, ErrBackend):
		return common.Unavailable("booking service unavailable, please retry", err)
	default:
		return cart.AppError(err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped := AppError(err)
	var appErr *common.AppError
	if errors.As(mapped, &appErr) && appErr.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("path", r.URL.Path).Str("code", appErr.Code).Msg("checkout_request_failed")
	}
	common.WriteError(w, mapped)
}

type paymentRequest struct {
	CartID   string            `json:"cartId"`
	Customer cart.CustomerInfo `json:"customer"`
}

// StartPayment opens a payment intent for the cart.
func (h *Handler) StartPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.StartPayment(r.Context(), req.CartID, req.Customer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

type confirmRequest struct {
	CartID          string `json:"cartId" validate:"required"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// Confirm books the paid cart.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(&req); err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.Svc.Confirm(r.Context(), req.CartID, req.PaymentIntentID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, out)
}

// Confirmation returns the completed booking once, as JSON or with
// ?format=pdf as a receipt.
func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")
	c, err := h.Svc.Confirmation(r.Context(), cartID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if r.URL.Query().Get("format") != "pdf" {
		common.Data(w, http.StatusOK, c)
		return
	}
	body, err := Receipt(c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="booking-`+c.BookingID+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
