// Package oauth owns the mailbox OAuth token lifecycle: consent, storage, refresh and
// revocation. Tokens are persisted only in encrypted form.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/repository"
	"mail-txn-ingest-go/internal/vault"
)

var (
	ErrNoTokenFound        = errors.New("no oauth token found, connect the mailbox first")
	ErrRefreshFailed       = errors.New("oauth token refresh failed, reauthorization required")
	ErrUnsupportedProvider = errors.New("unsupported mail provider")
	ErrInvalidState        = errors.New("invalid oauth state")
)

// IsCredentialError reports whether err means the user has to connect the mailbox again
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrNoTokenFound) || errors.Is(err, ErrRefreshFailed)
}

const refreshBuffer = 5 * time.Minute

// Manager hands out valid access tokens and keeps stored tokens current
type Manager struct {
	store   TokenStore
	purger  DataPurger
	vault   *vault.Vault
	clients map[model.Provider]*ProviderClient
	now     func() time.Time
}

func NewManager(store TokenStore, purger DataPurger, v *vault.Vault, clients ...*ProviderClient) *Manager {
	m := &Manager{
		store:   store,
		purger:  purger,
		vault:   v,
		clients: make(map[model.Provider]*ProviderClient),
		now:     time.Now,
	}
	for _, c := range clients {
		m.clients[c.Provider] = c
	}
	return m
}

// Providers lists the providers with a registered client
func (m *Manager) Providers() []model.Provider {
	var out []model.Provider
	for _, p := range []model.Provider{model.ProviderGmail, model.ProviderOutlook} {
		if _, ok := m.clients[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) client(provider model.Provider) (*ProviderClient, error) {
	c, ok := m.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return c, nil
}

// AuthorizationURL returns the consent URL. The state carries the user id sealed by the vault.
func (m *Manager) AuthorizationURL(userID string, provider model.Provider) (string, error) {
	c, err := m.client(provider)
	if err != nil {
		return "", err
	}
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	state, err := m.vault.Encrypt(string(provider) + "|" + userID)
	if err != nil {
		return "", fmt.Errorf("failed to seal oauth state: %w", err)
	}
	return c.AuthCodeURL(state), nil
}

// ExchangeCode redeems the authorization code and stores the token for the user named in state
func (m *Manager) ExchangeCode(ctx context.Context, provider model.Provider, code, state string) (*model.OAuthToken, string, error) {
	c, err := m.client(provider)
	if err != nil {
		return nil, "", err
	}

	userID, err := m.openState(provider, state)
	if err != nil {
		return nil, "", err
	}

	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, userID, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	existing, err := m.store.GetToken(ctx, userID, provider)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, userID, fmt.Errorf("failed to load existing token: %w", err)
	}

	stored := &model.OAuthToken{
		UserID:      userID,
		Provider:    provider,
		ConnectedAt: m.now(),
	}
	if err := m.applyToken(stored, tok, existing); err != nil {
		return nil, userID, err
	}

	if err := m.store.SaveToken(ctx, stored); err != nil {
		return nil, userID, fmt.Errorf("failed to save token: %w", err)
	}

	logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Info("Mailbox connected")
	return stored, userID, nil
}

// ValidAccessToken returns a plaintext access token, refreshing it when it expires within
// five minutes
func (m *Manager) ValidAccessToken(ctx context.Context, userID string, provider model.Provider) (string, error) {
	c, err := m.client(provider)
	if err != nil {
		return "", err
	}

	stored, err := m.store.GetToken(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNoTokenFound
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}

	if m.now().Add(refreshBuffer).Before(stored.ExpiresAt) {
		access, err := m.vault.Decrypt(stored.EncryptedAccessToken)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt access token: %w", err)
		}
		m.touch(ctx, userID, provider)
		return access, nil
	}

	if stored.EncryptedRefreshToken == nil {
		return "", ErrRefreshFailed
	}
	refresh, err := m.vault.Decrypt(*stored.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("%w: stored refresh token unreadable: %v", ErrRefreshFailed, err)
	}

	tok, err := c.Refresh(ctx, refresh)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Warnf("Token refresh rejected: %v", err)
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if err := m.applyToken(stored, tok, stored); err != nil {
		return "", err
	}
	if err := m.store.SaveToken(ctx, stored); err != nil {
		return "", fmt.Errorf("failed to save refreshed token: %w", err)
	}
	m.touch(ctx, userID, provider)

	logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Debug("Access token refreshed")
	return tok.AccessToken, nil
}

// Revoke disconnects the mailbox. Provider revocation is best effort; the local token and
// all derived data are always removed.
func (m *Manager) Revoke(ctx context.Context, userID string, provider model.Provider) (model.PurgeResult, error) {
	c, err := m.client(provider)
	if err != nil {
		return model.PurgeResult{}, err
	}
	fields := logrus.Fields{"user_id": userID, "provider": provider}

	stored, err := m.store.GetToken(ctx, userID, provider)
	switch {
	case err == nil:
		if token, ok := m.revocableToken(stored); ok {
			if err := c.Revoke(ctx, token); err != nil {
				logrus.WithFields(fields).Warnf("Provider token revocation failed: %v", err)
			}
		}
	case errors.Is(err, repository.ErrNotFound):
		logrus.WithFields(fields).Debug("No stored token to revoke")
	default:
		logrus.WithFields(fields).Warnf("Failed to load token for revocation: %v", err)
	}

	if err := m.store.DeleteToken(ctx, userID, provider); err != nil {
		return model.PurgeResult{}, fmt.Errorf("failed to delete token: %w", err)
	}

	var res model.PurgeResult
	if m.purger != nil {
		res, err = m.purger.PurgeUserEmailData(ctx, userID, provider)
		if err != nil {
			return model.PurgeResult{}, fmt.Errorf("failed to purge email data: %w", err)
		}
	}

	logrus.WithFields(fields).WithField("purged", res).Info("Mailbox disconnected")
	return res, nil
}

// ConnectedAccounts lists every stored token
func (m *Manager) ConnectedAccounts(ctx context.Context) ([]model.OAuthToken, error) {
	return m.store.ListTokens(ctx)
}

func (m *Manager) openState(provider model.Provider, state string) (string, error) {
	plain, err := m.vault.Decrypt(state)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	p, userID, ok := strings.Cut(plain, "|")
	if !ok || userID == "" || model.Provider(p) != provider {
		return "", ErrInvalidState
	}
	return userID, nil
}

// applyToken encrypts tok into stored, keeping previous's refresh token when the provider
// did not send a new one
func (m *Manager) applyToken(stored *model.OAuthToken, tok *oauth2.Token, previous *model.OAuthToken) error {
	access, err := m.vault.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	stored.EncryptedAccessToken = access

	switch {
	case tok.RefreshToken != "":
		refresh, err := m.vault.Encrypt(tok.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		stored.EncryptedRefreshToken = &refresh
	case previous != nil:
		stored.EncryptedRefreshToken = previous.EncryptedRefreshToken
	}

	stored.ExpiresAt = tok.Expiry
	if stored.ExpiresAt.IsZero() {
		stored.ExpiresAt = m.now().Add(time.Hour)
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		stored.Scope = scope
	}
	return nil
}

// revocableToken prefers the refresh token, whose revocation also invalidates access tokens
func (m *Manager) revocableToken(stored *model.OAuthToken) (string, bool) {
	if stored.EncryptedRefreshToken != nil {
		if refresh, err := m.vault.Decrypt(*stored.EncryptedRefreshToken); err == nil {
			return refresh, true
		}
	}
	access, err := m.vault.Decrypt(stored.EncryptedAccessToken)
	if err != nil {
		return "", false
	}
	return access, true
}

func (m *Manager) touch(ctx context.Context, userID string, provider model.Provider) {
	if err := m.store.TouchToken(ctx, userID, provider, m.now()); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Debugf("Failed to stamp token last used: %v", err)
	}
}
