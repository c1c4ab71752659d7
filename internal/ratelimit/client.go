package ratelimit

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address used in limiter keys. It reads
// RemoteAddr, so chi's middleware.RealIP must run first when the service sits
// behind a proxy. IPv6 callers are keyed by their /64 prefix.
func ClientIP(r *http.Request) string {
	raw := strings.TrimSpace(r.RemoteAddr)
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return addrKey(ap.Addr())
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return addrKey(addr)
	}
	return raw
}

func addrKey(addr netip.Addr) string {
	addr = addr.Unmap()
	if addr.Is4() {
		return addr.String()
	}
	prefix, err := addr.WithZone("").Prefix(64)
	if err != nil {
		return addr.String()
	}
	return prefix.String()
}
