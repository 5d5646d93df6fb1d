package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP names the caller a till or kiosk request came from, for rate limit
// keys. The left-most X-Forwarded-For hop wins, then X-Real-IP, then the
// socket peer; header values that are not addresses are ignored. IPv4-mapped
// addresses are unmapped and IPv6 callers are grouped by /64 so one device
// cannot rotate through its prefix. Returns "unknown" when nothing parses.
func ClientIP(r *http.Request) string {
	if r == nil {
		return "unknown"
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if addr, ok := parseAddr(first); ok {
			return addrKey(addr)
		}
	}
	if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return addrKey(addr)
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, ok := parseAddr(host); ok {
		return addrKey(addr)
	}
	return "unknown"
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap().WithZone(""), true
}

func addrKey(addr netip.Addr) string {
	if addr.Is4() {
		return addr.String()
	}
	prefix, err := addr.Prefix(64)
	if err != nil {
		return addr.String()
	}
	return prefix.String()
}
