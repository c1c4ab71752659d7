package obs

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Subject is what a request touched, as seen by the router. Read it after
// the handler returns; before routing the pattern is still empty.
type Subject struct {
	Route    string
	Resource string
	// IDKey is the log field for ID, e.g. session_id.
	IDKey  string
	ID     string
	Tenant string
}

// SubjectOf classifies r by its matched chi route.
func SubjectOf(r *http.Request) Subject {
	s := Subject{Route: "unmatched", Resource: "other"}
	rc := chi.RouteContext(r.Context())
	if rc == nil {
		return s
	}
	if p := rc.RoutePattern(); p != "" {
		s.Route = p
	}
	rest, ok := strings.CutPrefix(s.Route, "/api/v1/")
	if !ok {
		if strings.HasPrefix(s.Route, "/health") {
			s.Resource = "health"
		}
		return s
	}
	seg, _, _ := strings.Cut(rest, "/")
	switch seg {
	case "schedules":
		s.Resource, s.IDKey, s.ID = "schedule", "session_id", rc.URLParam("id")
	case "carts":
		s.Resource, s.IDKey, s.ID = "cart", "cart_id", rc.URLParam("id")
	case "checkout":
		s.Resource, s.IDKey, s.ID = "checkout", "cart_id", rc.URLParam("cartId")
	case "packages":
		s.Resource, s.IDKey, s.ID = "package", "package_id", rc.URLParam("packageId")
		s.Tenant = rc.URLParam("tenantId")
	case "quotes":
		s.Resource = "quote"
	}
	return s
}
