package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/hazyhaar/ppadmin/horosafe"
)

// OAuthConfig describes the single sign-on provider.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"userinfo_url"`
	RedirectURL  string `yaml:"redirect_url"`
}

// OAuthUser is the profile returned by the provider's user endpoint.
type OAuthUser struct {
	UID         string   `json:"uid"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// Provider runs the authorization-code flow against the sign-on service.
type Provider struct {
	oauth       *oauth2.Config
	userInfoURL string
}

// NewProvider builds a Provider from cfg.
func NewProvider(cfg OAuthConfig) *Provider {
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		userInfoURL: cfg.UserInfoURL,
	}
}

// AuthCodeURL returns the provider URL the browser is sent to.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// FetchUser exchanges code for a token and reads the user's profile. The
// endpoint answers {"user": {...}}.
func (p *Provider) FetchUser(ctx context.Context, code string) (*OAuthUser, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth exchange: %w", err)
	}

	resp, err := p.oauth.Client(ctx, token).Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info struct {
		User OAuthUser `json:"user"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.User.UID == "" {
		return nil, fmt.Errorf("userinfo: missing uid")
	}
	return &info.User, nil
}

// Claims turns a provider profile into session claims.
func (u *OAuthUser) Claims() *SessionClaims {
	return &SessionClaims{
		UserID:      u.UID,
		Email:       u.Email,
		Name:        u.Name,
		Permissions: u.Permissions,
	}
}
