package keycloak

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Request timeout for the token exchange and userinfo calls. The original
// flow ran these with no deadline at all; a hung provider held the
// callback open indefinitely.
const requestTimeout = 10 * time.Second

// Endpoints holds the realm's OpenID Connect endpoints.
type Endpoints struct {
	Authorization string
	Token         string
	UserInfo      string
	Logout        string
	JWKS          string
}

// PublicConfig is the non-secret provider configuration exposed to the
// frontend.
type PublicConfig struct {
	URL      string `json:"url"`
	Realm    string `json:"realm"`
	ClientID string `json:"clientId"`
}

// UserInfo is the subset of the provider's userinfo response the
// application consumes.
type UserInfo struct {
	Sub               string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
}

// Provider performs the OAuth2/OIDC authorization-code flow against a
// Keycloak realm.
type Provider struct {
	url          string
	realm        string
	clientID     string
	clientSecret string

	httpClient *http.Client
	keys       *keyCache
}

// New creates a Provider for the given realm. The JWKS HTTP client caches
// responses so key material is not re-fetched on every login.
func New(baseURL, realm, clientID, clientSecret string) (*Provider, error) {
	if baseURL == "" || realm == "" || clientID == "" {
		return nil, fmt.Errorf("keycloak URL, realm, and client ID are required")
	}

	p := &Provider{
		url:          baseURL,
		realm:        realm,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
	p.keys = newKeyCache(p.Endpoints().JWKS)

	return p, nil
}

// Endpoints derives the realm's OpenID Connect endpoints.
func (p *Provider) Endpoints() Endpoints {
	base := fmt.Sprintf("%s/realms/%s/protocol/openid-connect", p.url, p.realm)
	return Endpoints{
		Authorization: base + "/auth",
		Token:         base + "/token",
		UserInfo:      base + "/userinfo",
		Logout:        base + "/logout",
		JWKS:          base + "/certs",
	}
}

// ClientID returns the registered OAuth2 client id.
func (p *Provider) ClientID() string {
	return p.clientID
}

// PublicConfig returns the non-secret configuration for the frontend.
func (p *Provider) PublicConfig() PublicConfig {
	return PublicConfig{URL: p.url, Realm: p.realm, ClientID: p.clientID}
}

func (p *Provider) oauthConfig(redirectURI string) *oauth2.Config {
	endpoints := p.Endpoints()
	return &oauth2.Config{
		ClientID:     p.clientID,
		ClientSecret: p.clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"openid", "profile", "email"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  endpoints.Authorization,
			TokenURL: endpoints.Token,
		},
	}
}

// AuthCodeURL builds the provider's authorization endpoint URL. The
// redirect URI is computed per request from the effective origin, so it
// must be passed through unchanged to Exchange.
func (p *Provider) AuthCodeURL(redirectURI, state string) string {
	return p.oauthConfig(redirectURI).AuthCodeURL(state)
}

// Tokens is the result of a successful code exchange.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// Exchange trades an authorization code for tokens. The redirect URI must
// be the exact value used at initiation; providers reject mismatches.
func (p *Provider) Exchange(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	token, err := p.oauthConfig(redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	idToken, _ := token.Extra("id_token").(string)

	return &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      idToken,
	}, nil
}

// UserInfo fetches the provider's userinfo endpoint with the bearer access
// token.
func (p *Provider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoints().UserInfo, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned HTTP %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &info, nil
}

// EndSessionURL computes the provider's logout URL with id_token_hint and
// post_logout_redirect_uri, for client-side navigation after local logout.
func (p *Provider) EndSessionURL(idToken, postLogoutRedirectURI string) string {
	logout, err := url.Parse(p.Endpoints().Logout)
	if err != nil {
		return postLogoutRedirectURI
	}

	q := logout.Query()
	q.Set("id_token_hint", idToken)
	q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	logout.RawQuery = q.Encode()

	return logout.String()
}
