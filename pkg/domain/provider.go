package domain

import (
	"fmt"
	"strings"
)

// Provider identifies the active identity provider. This is a domain
// primitive: only the two known values exist after parsing.
type Provider string

const (
	// ProviderLocal uses bearer tokens issued by the backend itself.
	ProviderLocal Provider = "local"
	// ProviderHosted delegates sign-in to an external OIDC provider.
	ProviderHosted Provider = "hosted"
)

// ParseProvider validates a provider name reported by the backend.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderLocal, ProviderHosted:
		return p, nil
	default:
		return "", fmt.Errorf("unknown auth provider: %q", s)
	}
}

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// IsHosted reports whether sign-in is delegated to the hosted provider.
func (p Provider) IsHosted() bool {
	return p == ProviderHosted
}
