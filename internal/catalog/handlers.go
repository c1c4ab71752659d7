package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/backend"
	"github.com/tournetwork/storefront/internal/common"
	"github.com/tournetwork/storefront/internal/obs"
	"github.com/tournetwork/storefront/internal/pricing"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
	logger  zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Logger  zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, logger: cfg.Logger}
}

// Package handles GET /api/v1/packages/{tenantId}/{packageId}.
func (h *Handler) Package(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	packageID, err := strconv.Atoi(chi.URLParam(r, "packageId"))
	if err != nil {
		common.WriteError(w, common.Validation("packageId must be a number", err))
		return
	}
	detail, err := h.service.PackageDetail(r.Context(), chi.URLParam(r, "tenantId"), packageID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, detail)
}

// Quote handles POST /api/v1/quotes. A selection larger than the seats on
// offer is answered with applied=false rather than an error.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req pricing.QuoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := pricing.BuildQuote(req)
	switch {
	case errors.Is(err, pricing.ErrOverCapacity):
		mode := "regular"
		if req.GroupRate {
			mode = "group_rate"
		}
		obs.Inc(obs.CapacityRejections, mode)
		common.Data(w, http.StatusOK, map[string]any{"applied": false, "reason": err.Error()})
		return
	case err != nil:
		h.writeError(w, r, err)
		return
	}
	obs.Inc(obs.QuotesTotal, "stateless")
	common.Data(w, http.StatusOK, map[string]any{"applied": true, "quote": quote})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var mapped error
	switch {
	case errors.Is(err, ErrInvalidPackage),
		errors.Is(err, pricing.ErrUnknownRateGroup),
		errors.Is(err, pricing.ErrNegativeQuantity),
		errors.Is(err, addon.ErrUnknownField),
		errors.Is(err, addon.ErrInvalidValue),
		errors.Is(err, addon.ErrOutOfRange):
		mapped = common.Validation(err.Error(), err)
	case backend.IsStatus(err, http.StatusNotFound):
		mapped = common.NotFound("package not found", err)
	case common.IsAppError(err):
		mapped = err
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("catalog_request_failed")
		mapped = common.Unavailable("booking service unavailable", err)
	}
	common.WriteError(w, mapped)
}
