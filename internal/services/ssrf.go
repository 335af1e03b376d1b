package services

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// SSRFGuard validates fetch targets before any outbound request. A hostname
// is rejected when it fails to resolve or when any resolved address is
// private, loopback, or otherwise reserved. Resolution failures of any kind
// count as unsafe (fail closed).
type SSRFGuard struct {
	// lookup resolves a hostname to its addresses. Injectable for tests;
	// defaults to net.LookupIP.
	lookup func(host string) ([]net.IP, error)
}

// NewSSRFGuard creates a guard using the default resolver.
func NewSSRFGuard() *SSRFGuard {
	return &SSRFGuard{lookup: net.LookupIP}
}

// NewSSRFGuardWithLookup creates a guard with a custom resolver.
func NewSSRFGuardWithLookup(lookup func(host string) ([]net.IP, error)) *SSRFGuard {
	return &SSRFGuard{lookup: lookup}
}

// CheckURL validates scheme, hostname presence, and the resolved addresses
// of a raw URL. Returns the parsed URL on success.
func (g *SSRFGuard) CheckURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("only HTTP and HTTPS URLs are supported")
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("invalid URL: missing hostname")
	}
	if err := g.CheckHost(parsed.Hostname()); err != nil {
		return nil, err
	}
	return parsed, nil
}

// CheckHost resolves a hostname and rejects it if any resolved address is
// not publicly routable.
func (g *SSRFGuard) CheckHost(host string) error {
	ips, err := g.lookup(host)
	if err != nil {
		return fmt.Errorf("URLs pointing to private networks are not allowed")
	}
	if len(ips) == 0 {
		return fmt.Errorf("URLs pointing to private networks are not allowed")
	}
	for _, ip := range ips {
		if isDisallowedIP(ip) {
			return fmt.Errorf("URLs pointing to private networks are not allowed")
		}
	}
	return nil
}

// isDisallowedIP classifies an address as private, loopback, or reserved.
func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// CheckRedirect re-validates every redirect hop against the guard, so a
// public page cannot bounce the fetcher into a private target. Capped at 5
// hops like the default policy.
func (g *SSRFGuard) CheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 5 {
		return fmt.Errorf("stopped after 5 redirects")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect to unsupported scheme %q", req.URL.Scheme)
	}
	return g.CheckHost(req.URL.Hostname())
}
