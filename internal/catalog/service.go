// Package catalog serves read-only package details and stateless price quotes.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/tour"
)

// ErrInvalidPackage is returned for a missing tenant or non-positive package id.
var ErrInvalidPackage = errors.New("catalog: invalid package reference")

// Backend is the subset of the booking API the catalog reads.
type Backend interface {
	Package(ctx context.Context, tenantID string, packageID int) (tour.Package, error)
	CustomForm(ctx context.Context, tenantID string, packageID int) (*addon.CustomForm, error)
}

// Service assembles package detail payloads.
type Service struct {
	backend Backend
	logger  zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Backend Backend
	Logger  zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("catalog: backend is required")
	}
	return &Service{backend: cfg.Backend, logger: cfg.Logger}, nil
}

// AddOnView is a customer-visible form field.
type AddOnView struct {
	ID            string         `json:"id"`
	Kind          string         `json:"kind"`
	Label         string         `json:"label"`
	Description   string         `json:"description,omitempty"`
	Required      bool           `json:"required"`
	PricingLabel  string         `json:"pricingLabel,omitempty"`
	ShowsQuantity bool           `json:"showsQuantity"`
	Options       []addon.Option `json:"options,omitempty"`
	Min           *int           `json:"min,omitempty"`
	Max           *int           `json:"max,omitempty"`
	Default       any            `json:"default"`
}

// PackageDetail is the package plus the add-ons a customer can pick.
type PackageDetail struct {
	Package     tour.Package       `json:"package"`
	PricingMode allocation.Mode    `json:"pricingMode"`
	Duration    string             `json:"duration"`
	GroupSize   string             `json:"groupSize"`
	AddOns      []AddOnView        `json:"addOns"`
	Fields      []addon.Definition `json:"fields"`
}

// PackageDetail loads a package and its form concurrently. A missing form
// means the package has no add-ons.
func (s *Service) PackageDetail(ctx context.Context, tenantID string, packageID int) (PackageDetail, error) {
	if tenantID == "" || packageID <= 0 {
		return PackageDetail{}, fmt.Errorf("%w: %q/%d", ErrInvalidPackage, tenantID, packageID)
	}
	var (
		pkg  tour.Package
		form *addon.CustomForm
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pkg, err = s.backend.Package(gctx, tenantID, packageID)
		return err
	})
	g.Go(func() error {
		f, err := s.backend.CustomForm(gctx, tenantID, packageID)
		if err != nil {
			if gctx.Err() == nil {
				s.logger.Warn().Err(err).Str("tenant_id", tenantID).Int("package_id", packageID).Msg("custom_form_unavailable")
			}
			return nil
		}
		form = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return PackageDetail{}, err
	}
	if pkg.TenantID == "" {
		pkg.TenantID = tenantID
	}

	mode := allocation.ModeRegular
	if pkg.GroupRate() {
		mode = allocation.ModeGroupRate
	}
	detail := PackageDetail{
		Package:     pkg,
		PricingMode: mode,
		Duration:    pkg.Duration(),
		GroupSize:   pkg.GroupSizeLabel(),
		AddOns:      []AddOnView{},
		Fields:      []addon.Definition{},
	}
	if form == nil {
		return detail, nil
	}
	detail.Fields = addon.Visible(form.FormFields)
	fields, errs := addon.Fields(form.FormFields)
	for _, err := range errs {
		s.logger.Warn().Err(err).Int("package_id", packageID).Msg("custom_field_skipped")
	}
	for _, f := range fields {
		detail.AddOns = append(detail.AddOns, view(f))
	}
	return detail, nil
}

func view(f addon.Field) AddOnView {
	base := f.Base()
	v := AddOnView{
		ID:            base.ID,
		Kind:          f.Kind(),
		Label:         base.Label(),
		Description:   base.Description,
		Required:      base.Required,
		PricingLabel:  addon.PricingLabel(f),
		ShowsQuantity: addon.ShowsQuantity(f),
		Default:       addon.Default(f),
	}
	switch field := f.(type) {
	case addon.Radio:
		v.Options = field.Options
	case addon.Select:
		v.Options = field.Options
	case addon.Number:
		lo, hi := field.Min, field.Max
		v.Min, v.Max = &lo, &hi
	}
	return v
}
