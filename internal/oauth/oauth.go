// Package oauth is the seam between the identity core and external identity
// protocols. Providers validate a raw assertion and reduce it to the
// normalized claim set; nothing else about the upstream protocol leaks
// through.
package oauth

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrInvalidAssertion is the uniform failure for assertions that do not
// verify, regardless of cause.
var ErrInvalidAssertion = errors.New("invalid identity assertion")

// Claims is the normalized identity a provider extracts from a valid
// assertion. Email is mandatory; the rest is best-effort profile data.
type Claims struct {
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// Provider validates assertions for one upstream identity provider.
type Provider interface {
	Name() string
	ValidateAndExtractClaims(ctx context.Context, assertion string) (*Claims, error)
}

// Registry is the closed provider-name → adapter mapping. It is assembled
// once from configuration at startup; there is no registration after
// construction.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[strings.ToLower(p.Name())] = p
	}
	return &Registry{providers: m}
}

// Provider looks up an adapter by case-insensitive name.
func (r *Registry) Provider(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StaticProvider maps fixed assertions to claims. It backs tests and local
// development, where a real issuer is not available.
type StaticProvider struct {
	name       string
	assertions map[string]Claims
}

func NewStaticProvider(name string, assertions map[string]Claims) *StaticProvider {
	return &StaticProvider{name: name, assertions: assertions}
}

func (p *StaticProvider) Name() string { return p.name }

func (p *StaticProvider) ValidateAndExtractClaims(_ context.Context, assertion string) (*Claims, error) {
	claims, ok := p.assertions[assertion]
	if !ok || claims.Email == "" {
		return nil, ErrInvalidAssertion
	}
	return &claims, nil
}
