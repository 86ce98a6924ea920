// Package oauth talks to the external identity provider: the authorization redirect,
// the code exchange and the profile fetch.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gallery-dev/gallery/shared/config"
	"github.com/gallery-dev/gallery/shared/domain"
	"golang.org/x/oauth2"
)

const maxProfileSize = 1 << 20

type Google struct {
	conf        *oauth2.Config
	userInfoURL string
	client      *http.Client
}

func New(cfg config.OAuth, timeout time.Duration) *Google {
	if timeout <= 0 {
		timeout = config.DefaultOAuthTimeout
	}
	return &Google{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		client:      &http.Client{Timeout: timeout},
	}
}

// AuthCodeURL is a pure function of the client configuration and state.
func (g *Google) AuthCodeURL(state string) string {
	return g.conf.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for a provider access token.
func (g *Google) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	tok, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token exchange: empty access token")
	}
	return tok.AccessToken, nil
}

type userInfo struct {
	Id      string `json:"id"`
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Profile fetches {id, email, name, picture} with the provider access token.
func (g *Google) Profile(ctx context.Context, accessToken string) (domain.OAuthProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("profile fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileSize))
	if err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("read profile: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.OAuthProfile{}, fmt.Errorf("profile fetch: status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	id := info.Id
	if id == "" {
		id = info.Sub
	}
	if id == "" || info.Email == "" {
		return domain.OAuthProfile{}, fmt.Errorf("profile fetch: missing id or email")
	}

	return domain.OAuthProfile{
		ProviderId: id,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
