package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
	gmail "google.golang.org/api/gmail/v1"

	"mail-txn-ingest-go/internal/config"
	"mail-txn-ingest-go/internal/model"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// ProviderClient performs the OAuth flows against one provider
type ProviderClient struct {
	Provider model.Provider
	Config   *oauth2.Config
	// RevokeURL is empty for providers without a token revocation endpoint
	RevokeURL  string
	HTTPClient *http.Client
}

// NewGmailClient registers the Google OAuth client with read-only mail scope
func NewGmailClient(cfg config.OAuthClientConfig, redirectURL string) *ProviderClient {
	return &ProviderClient{
		Provider: model.ProviderGmail,
		Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
		},
		RevokeURL: googleRevokeURL,
	}
}

// NewOutlookClient registers the Microsoft identity platform client for Graph mail access.
// Microsoft has no token revocation endpoint; disconnecting only forgets the token.
func NewOutlookClient(cfg config.OutlookOAuthConfig, redirectURL string) *ProviderClient {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	return &ProviderClient{
		Provider: model.ProviderOutlook,
		Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes: []string{
				"offline_access",
				"https://graph.microsoft.com/Mail.Read",
				"https://graph.microsoft.com/User.Read",
			},
			Endpoint:    microsoft.AzureADEndpoint(tenant),
			RedirectURL: redirectURL,
		},
	}
}

// AuthCodeURL asks for offline access and forces the consent screen so a refresh token is issued
func (c *ProviderClient) AuthCodeURL(state string) string {
	return c.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *ProviderClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.Config.Exchange(c.context(ctx), code)
}

// Refresh redeems a refresh token for a new access token
func (c *ProviderClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := c.Config.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

// Revoke invalidates the token at the provider when it supports revocation
func (c *ProviderClient) Revoke(ctx context.Context, token string) error {
	if c.RevokeURL == "" {
		return nil
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *ProviderClient) context(ctx context.Context) context.Context {
	if c.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}
	return ctx
}

func (c *ProviderClient) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
