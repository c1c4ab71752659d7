package schedule

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/calendar"
	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/common"
	"github.com/tournetwork/storefront/internal/lock"
	"github.com/tournetwork/storefront/internal/promo"
)

// Handler exposes the wizard over HTTP.
type Handler struct {
	Svc    *Service
	Now    func() time.Time
	Logger zerolog.Logger
}

// AppError maps wizard errors to API errors.
func AppError(err error) error {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSessionNotFound):
		return common.NotFound("schedule session not found", err)
	case errors.Is(err, ErrLineNotFound):
		return common.NotFound("rate group line not found", err)
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidDirection):
		return common.Validation(err.Error(), err)
	case errors.Is(err, ErrPastDate):
		return common.NewAppError("DATE_IN_PAST", "dates before today cannot be booked", http.StatusBadRequest, err)
	case errors.Is(err, ErrSlotUnavailable):
		return common.NewAppError("SLOT_UNAVAILABLE", "time slot is not open for booking", http.StatusConflict, err)
	case errors.Is(err, ErrWrongMode):
		return common.NewAppError("WRONG_PRICING_MODE", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, ErrNoDate):
		return common.Validation("select a date first", err)
	case errors.Is(err, ErrNotBookable):
		return common.NewAppError("NOT_BOOKABLE", err.Error(), http.StatusUnprocessableEntity, err)
	case errors.Is(err, addon.ErrUnknownField):
		return common.NotFound("add-on field not found", err)
	case errors.Is(err, addon.ErrInvalidValue), errors.Is(err, addon.ErrOutOfRange):
		return common.Validation(err.Error(), err)
	case errors.Is(err, promo.ErrEmptyCode):
		return common.Validation(promo.Message(err), err)
	case errors.Is(err, promo.ErrInvalidCode), errors.Is(err, promo.ErrExpiredCode):
		return common.NewAppError(promo.Code(err), promo.Message(err), http.StatusUnprocessableEntity, err)
	case errors.Is(err, promo.ErrApplyFailed):
		return common.Unavailable(promo.Message(err), err)
	case errors.As(err, &upstream):
		return common.Unavailable("booking service unavailable, please retry", err)
	case errors.Is(err, lock.ErrBusy):
		return common.NewAppError("SESSION_BUSY", "session is being updated, retry shortly", http.StatusConflict, err)
	default:
		return cart.AppError(err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped := AppError(err)
	var appErr *common.AppError
	if errors.As(mapped, &appErr) {
		switch {
		case appErr.HTTPStatus >= http.StatusInternalServerError:
			h.Logger.Error().Err(err).Str("path", r.URL.Path).Str("code", appErr.Code).Msg("schedule_request_failed")
		case appErr.HTTPStatus == http.StatusConflict:
			h.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("schedule_request_conflict")
		}
	}
	common.WriteError(w, mapped)
}

func (h *Handler) view(sess *Session, month calendar.Month) View {
	return sess.View(sess.Calendar(h.Now), month)
}

func (h *Handler) render(w http.ResponseWriter, status int, sess *Session) {
	common.Data(w, status, h.view(sess, calendar.Month{}))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := common.DecodeJSON(r, dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	if err := common.ValidateStruct(dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	return true
}

type startRequest struct {
	TenantID  string `json:"tenantId" validate:"required"`
	PackageID int    `json:"packageId" validate:"gt=0"`
}

// Start opens a session.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.Start(r.Context(), req.TenantID, req.PackageID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusCreated, sess)
}

// Get renders a session, optionally for ?month=YYYY-MM.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	var month calendar.Month
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := calendar.ParseMonth(raw)
		if err != nil {
			common.WriteError(w, common.Validation(err.Error(), err))
			return
		}
		month = m
	}
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, h.view(sess, month))
}

type dateRequest struct {
	Date string `json:"date" validate:"required"`
}

// SelectDate picks a date.
func (h *Handler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req dateRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.SelectDate(r.Context(), chi.URLParam(r, "id"), req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, sess)
}

type monthRequest struct {
	Direction string `json:"direction" validate:"oneof=prev next"`
}

// NavigateMonth moves the calendar.
func (h *Handler) NavigateMonth(w http.ResponseWriter, r *http.Request) {
	var req monthRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.NavigateMonth(r.Context(), chi.URLParam(r, "id"), req.Direction)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, sess)
}

type slotRequest struct {
	SlotID int `json:"slotId" validate:"gt=0"`
}

// SelectSlot picks a slot.
func (h *Handler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.SelectSlot(r.Context(), chi.URLParam(r, "id"), req.SlotID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, sess)
}

func (h *Handler) renderResult(w http.ResponseWriter, res Result) {
	common.Data(w, http.StatusOK, map[string]any{
		"applied": res.Applied,
		"session": h.view(res.Session, calendar.Month{}),
	})
}

type quantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// SetQuantity changes one rate group line. A change that does not fit the
// available seats answers 200 with applied=false.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.WriteError(w, common.Validation("line index must be a number", err))
		return
	}
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.SetQuantity(r.Context(), chi.URLParam(r, "id"), index, *req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderResult(w, res)
}

type groupSizeRequest struct {
	Size *int `json:"size" validate:"required,gte=0"`
}

// SetGroupSize picks the party size.
func (h *Handler) SetGroupSize(w http.ResponseWriter, r *http.Request) {
	var req groupSizeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Svc.SetGroupSize(r.Context(), chi.URLParam(r, "id"), *req.Size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderResult(w, res)
}

type addOnRequest struct {
	Value json.RawMessage `json:"value"`
}

// SetAddOn stores an add-on value.
func (h *Handler) SetAddOn(w http.ResponseWriter, r *http.Request) {
	var req addOnRequest
	if !decode(w, r, &req) {
		return
	}
	var value any
	if len(req.Value) > 0 {
		if err := json.Unmarshal(req.Value, &value); err != nil {
			common.WriteError(w, common.Validation("invalid add-on value", err))
			return
		}
	}
	sess, err := h.Svc.SetAddOn(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "fieldId"), value)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, sess)
}

type promoRequest struct {
	Code string `json:"code"`
}

// ApplyPromo validates a coupon for the selected date.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.Svc.ApplyPromo(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, sess)
}

// RemovePromo clears the coupon.
func (h *Handler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.RemovePromo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, http.StatusOK, sess)
}

type cartRequest struct {
	CartID string `json:"cartId" validate:"required,uuid"`
}

// AddToCart adds the priced selection to a cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if !decode(w, r, &req) {
		return
	}
	item, items, err := h.Svc.AddToCart(r.Context(), chi.URLParam(r, "id"), req.CartID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	common.Data(w, http.StatusCreated, map[string]any{
		"item":  item,
		"count": len(items),
		"total": cart.Total(items),
	})
}
