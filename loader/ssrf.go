package loader

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/use-agent/haunt/models"
)

// Resolver abstracts DNS lookup so tests can run without the network.
// *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// localhostAliases are names rejected before any DNS lookup.
var localhostAliases = map[string]struct{}{
	"localhost": {},
	"127.0.0.1": {},
	"0.0.0.0":   {},
	"::1":       {},
	"::":        {},
}

// reservedNets covers address space the stdlib IP predicates don't:
// the cloud-metadata/link-local block, carrier-grade NAT, the benchmarking
// range and the class E reserved block.
var reservedNets = mustCIDRs(
	"169.254.0.0/16",
	"100.64.0.0/10",
	"198.18.0.0/15",
	"240.0.0.0/4",
)

func mustCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, len(blocks))
	for i, b := range blocks {
		_, n, err := net.ParseCIDR(b)
		if err != nil {
			panic(fmt.Sprintf("loader: bad builtin CIDR %q: %v", b, err))
		}
		nets[i] = n
	}
	return nets
}

// IPBlocked reports whether an address must never be reached by a page load:
// private, loopback, link-local, multicast, unspecified or reserved space.
func IPBlocked(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// CheckHost is the single SSRF predicate shared by the pre-navigation check
// and the live request guard. It rejects localhost aliases, blocked IP
// literals, and hostnames for which ANY resolved address is blocked; the
// any-address rule is what closes the DNS-rebinding gap.
func CheckHost(ctx context.Context, resolver Resolver, host string) error {
	h := strings.ToLower(strings.Trim(host, "[]"))
	if h == "" {
		return models.NewMonitorError(models.ErrCodeInvalidURL, "empty host", nil)
	}

	if _, hit := localhostAliases[h]; hit {
		return blockedHostError(host, "localhost alias")
	}

	if ip := net.ParseIP(h); ip != nil {
		if IPBlocked(ip) {
			return blockedHostError(host, "address is in blocked network space")
		}
		return nil
	}

	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, h)
	if err != nil {
		return models.NewMonitorError(
			models.ErrCodeUnresolvableHost,
			"DNS resolution failed for "+host,
			err,
		)
	}
	if len(addrs) == 0 {
		return models.NewMonitorError(
			models.ErrCodeUnresolvableHost,
			"host resolved to no addresses: "+host,
			nil,
		)
	}
	for _, a := range addrs {
		if IPBlocked(a.IP) {
			return blockedHostError(host, "resolves to blocked address "+a.IP.String())
		}
	}
	return nil
}

// ValidateTargetURL performs all pre-navigation validation: URL shape,
// scheme, host presence and the CheckHost predicate.
func ValidateTargetURL(ctx context.Context, resolver Resolver, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, models.NewMonitorError(
			models.ErrCodeInvalidURL, "unparseable URL: "+raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, models.NewMonitorError(
			models.ErrCodeInvalidURL, "scheme must be http or https, got "+u.Scheme, nil)
	}
	if u.Hostname() == "" {
		return nil, models.NewMonitorError(
			models.ErrCodeInvalidURL, "URL has no host: "+raw, nil)
	}
	if err := CheckHost(ctx, resolver, u.Hostname()); err != nil {
		return nil, err
	}
	return u, nil
}

func blockedHostError(host, reason string) *models.MonitorError {
	return models.NewMonitorError(
		models.ErrCodeBlockedHost,
		fmt.Sprintf("host %q refused: %s", host, reason),
		nil,
	)
}
