package webhook

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/marklog/marklog/pkg/models"
)

// Policy validates outbound webhook URLs before they are stored. Every
// URL must be http(s) and must not point at loopback, link-local,
// private or otherwise internal addresses. Hosts on the allow list skip
// the address checks, which test environments use to target local
// receivers.
type Policy struct {
	allowHosts map[string]struct{}
	lookup     func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// NewPolicy builds a policy with the given allow-listed hosts.
func NewPolicy(allowHosts []string) *Policy {
	allowed := make(map[string]struct{}, len(allowHosts))
	for _, h := range allowHosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return &Policy{
		allowHosts: allowed,
		lookup:     net.DefaultResolver.LookupIPAddr,
	}
}

// ValidateURL checks a webhook target. Violations return errors that
// match models.ErrInvalidWebhookURL.
func (p *Policy) ValidateURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidWebhookURL, "unparseable url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", models.ErrInvalidWebhookURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", models.ErrInvalidWebhookURL)
	}

	if _, ok := p.allowHosts[host]; ok {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return fmt.Errorf("%w: host %q", models.ErrInvalidWebhookURL, host)
	}

	// Literal addresses are checked directly; names are resolved and
	// every returned address must pass.
	if ip := net.ParseIP(host); ip != nil {
		if forbiddenIP(ip) {
			return fmt.Errorf("%w: address %s", models.ErrInvalidWebhookURL, ip)
		}
		return nil
	}

	addrs, err := p.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("%w: host %q does not resolve", models.ErrInvalidWebhookURL, host)
	}
	for _, addr := range addrs {
		if forbiddenIP(addr.IP) {
			return fmt.Errorf("%w: host %q resolves to %s", models.ErrInvalidWebhookURL, host, addr.IP)
		}
	}
	return nil
}

// forbiddenIP reports whether the address points inside the deployment
// perimeter. IPv4-mapped IPv6 addresses are unwrapped first so
// ::ffff:127.0.0.1 is treated as 127.0.0.1.
func forbiddenIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}
