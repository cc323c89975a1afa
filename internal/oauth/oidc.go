package oauth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// OIDCProvider validates ID tokens from one OpenID Connect issuer. Discovery
// runs once at construction; verification afterwards is local against the
// cached JWKS with audience and issuer checks.
type OIDCProvider struct {
	name     string
	verifier *oidc.IDTokenVerifier
}

// NewOIDCProvider discovers the issuer and prepares a verifier bound to
// clientID. The ctx only bounds the discovery request.
func NewOIDCProvider(ctx context.Context, name, issuer, clientID string) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer %q: %w", issuer, err)
	}
	return &OIDCProvider{
		name:     name,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (p *OIDCProvider) Name() string { return p.name }

// ValidateAndExtractClaims verifies the raw ID token and maps its payload to
// the normalized claim set. Every verification failure collapses to
// ErrInvalidAssertion; the cause is not caller-visible.
func (p *OIDCProvider) ValidateAndExtractClaims(ctx context.Context, assertion string) (*Claims, error) {
	idToken, err := p.verifier.Verify(ctx, assertion)
	if err != nil {
		return nil, ErrInvalidAssertion
	}

	var payload struct {
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&payload); err != nil || payload.Email == "" {
		return nil, ErrInvalidAssertion
	}

	return &Claims{
		Email:         payload.Email,
		Name:          payload.Name,
		Picture:       payload.Picture,
		EmailVerified: payload.EmailVerified,
	}, nil
}
