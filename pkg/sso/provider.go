package sso

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/fieldsafe/fieldsafe/pkg/config"
)

// Identity is the verified identity returned by the provider after a
// successful code exchange.
type Identity struct {
	Subject  string
	Email    string
	Name     string
	Verified bool
}

// IdentityProvider abstracts the OIDC round trips so handlers can be
// tested without a live identity provider.
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Identity, error)
}

// OIDCProvider performs the authorization-code flow against a
// discovered OIDC issuer.
type OIDCProvider struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCProvider discovers the issuer and prepares the code flow.
func NewOIDCProvider(ctx context.Context, cfg config.SSOConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC issuer: %w", err)
	}
	return &OIDCProvider{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// AuthCodeURL returns the authorization URL carrying the given state.
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// idClaims are the claims we read from a Microsoft ID token. Email can
// arrive in either email or preferred_username depending on tenant
// configuration.
type idClaims struct {
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

// Exchange swaps the authorization code for a verified identity.
func (p *OIDCProvider) Exchange(ctx context.Context, code string) (*Identity, error) {
	oauth2Token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response is missing id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	return identityFromClaims(idToken.Subject, claims), nil
}

func identityFromClaims(subject string, claims idClaims) *Identity {
	email := claims.Email
	verified := claims.EmailVerified
	if email == "" {
		email = claims.PreferredUsername
		verified = email != ""
	}
	name := claims.Name
	if name == "" {
		name = email
	}
	return &Identity{
		Subject:  subject,
		Email:    email,
		Name:     name,
		Verified: verified,
	}
}
