package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tournetwork/storefront/internal/common"
	"github.com/tournetwork/storefront/internal/lock"
)

// Handler wires the cart store to HTTP.
type Handler struct {
	Store    *Store
	Currency string
	Logger   zerolog.Logger
}

// AppError maps store errors to API errors.
func AppError(err error) error {
	var verr *ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr):
		return common.Validation("customer information is incomplete", err).WithDetails(verr.Fields)
	case errors.Is(err, ErrInvalidID):
		return common.NewAppError("BAD_REQUEST", "invalid cart id", http.StatusBadRequest, err)
	case errors.Is(err, ErrItemNotFound):
		return common.NotFound("cart item not found", err)
	case errors.Is(err, lock.ErrBusy):
		return common.NewAppError("CART_BUSY", "cart is being updated, retry shortly", http.StatusConflict, err)
	case common.IsAppError(err):
		return err
	default:
		return common.NewAppError("INTERNAL", "cart storage unavailable", http.StatusInternalServerError, err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped := AppError(err)
	var appErr *common.AppError
	if errors.As(mapped, &appErr) && appErr.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("cart_request_failed")
	}
	common.WriteError(w, mapped)
}

// Create issues a new cart id. Carts are created lazily on first write.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	common.Data(w, http.StatusCreated, map[string]any{"cartId": NewID()})
}

// Get returns the cart with its total.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "id")
	items, err := h.Store.Items(r.Context(), cartID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	info, err := h.Store.CustomerInfo(r.Context(), cartID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"cartId":       cartID,
		"items":        items,
		"count":        len(items),
		"total":        Total(items),
		"currency":     h.Currency,
		"customerInfo": info,
	})
}

// RemoveItem drops one item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "id")
	items, err := h.Store.Remove(r.Context(), cartID, chi.URLParam(r, "itemId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"cartId": cartID,
		"items":  items,
		"count":  len(items),
		"total":  Total(items),
	})
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCustomer returns the saved purchaser.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	info, err := h.Store.CustomerInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if info == nil {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer information not saved", nil)
		return
	}
	common.Data(w, http.StatusOK, info)
}

// PutCustomer validates and saves the purchaser.
func (h *Handler) PutCustomer(w http.ResponseWriter, r *http.Request) {
	var info CustomerInfo
	if err := common.DecodeJSON(r, &info); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := info.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.SetCustomerInfo(r.Context(), chi.URLParam(r, "id"), info); err != nil {
		h.fail(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, info)
}
