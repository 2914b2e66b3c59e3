package download

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kelsos/doc2x-cli/internal/toolerr"
)

// Gate decides which result URLs may be fetched.
type Gate struct {
	rules []string
}

// NewGate builds a gate from allowlist rules: "*" allows any host, ".suffix"
// requires a strict suffix, and a bare domain matches itself or any
// subdomain.
func NewGate(rules []string) *Gate {
	normalized := make([]string, 0, len(rules))
	for _, r := range rules {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			normalized = append(normalized, r)
		}
	}
	return &Gate{rules: normalized}
}

// NormalizeURL undoes the escaped ampersands Doc2x sometimes returns.
func NormalizeURL(raw string) string {
	return strings.ReplaceAll(raw, `\u0026`, "&")
}

// HostAllowed reports whether host matches any rule.
func (g *Gate) HostAllowed(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, rule := range g.rules {
		switch {
		case rule == "*":
			return true
		case strings.HasPrefix(rule, "."):
			if strings.HasSuffix(host, rule) {
				return true
			}
		default:
			if host == rule || strings.HasSuffix(host, "."+rule) {
				return true
			}
		}
	}
	return false
}

// ValidateScheme parses raw and requires an https URL with a host.
func ValidateScheme(raw string) (*url.URL, error) {
	u, err := url.Parse(NormalizeURL(strings.TrimSpace(raw)))
	if err != nil || u.Host == "" {
		return nil, toolerr.New(toolerr.CodeInvalidURL, "download failed: invalid url", false)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return nil, toolerr.Newf(toolerr.CodeUnsafeURL, "download blocked: only https URLs are allowed (%s)", u.Scheme)
	}
	return u, nil
}

// Check validates scheme and host.
func (g *Gate) Check(raw string) (*url.URL, error) {
	u, err := ValidateScheme(raw)
	if err != nil {
		return nil, err
	}
	if !g.HostAllowed(u.Hostname()) {
		return nil, toolerr.New(toolerr.CodeUnsafeURL, fmt.Sprintf(
			"download blocked: host not allowed (%s); set DOC2X_DOWNLOAD_URL_ALLOWLIST=\"*\" to allow any host, or provide a comma-separated allowlist",
			u.Hostname()), false)
	}
	return u, nil
}

// IsAllowed reports whether raw passes Check.
func (g *Gate) IsAllowed(raw string) bool {
	_, err := g.Check(raw)
	return err == nil
}
