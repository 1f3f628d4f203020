package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/vault"
)

const testKey = "0123456789abcdef0123456789abcdef"

type mockPurger struct {
	mock.Mock
}

func (m *mockPurger) PurgeUserEmailData(ctx context.Context, userID string, provider model.Provider) (model.PurgeResult, error) {
	args := m.Called(ctx, userID, provider)
	return args.Get(0).(model.PurgeResult), args.Error(1)
}

// fakeProvider serves the token and revoke endpoints
type fakeProvider struct {
	server       *httptest.Server
	refreshToken string
	rejectGrant  bool
	revokes      int32
	lastGrant    url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	fp := &fakeProvider{refreshToken: "refresh-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		fp.lastGrant = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if fp.rejectGrant {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		body := map[string]interface{}{
			"access_token": "access-" + r.PostForm.Get("grant_type"),
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "https://www.googleapis.com/auth/gmail.readonly",
		}
		if fp.refreshToken != "" {
			body["refresh_token"] = fp.refreshToken
		}
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fp.revokes, 1)
		w.WriteHeader(http.StatusOK)
	})
	fp.server = httptest.NewServer(mux)
	t.Cleanup(fp.server.Close)
	return fp
}

func (fp *fakeProvider) client(provider model.Provider, revoke bool) *ProviderClient {
	c := &ProviderClient{
		Provider: provider,
		Config: &oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			Endpoint: oauth2.Endpoint{
				AuthURL:   fp.server.URL + "/auth",
				TokenURL:  fp.server.URL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: "http://localhost/callback",
		},
		HTTPClient: fp.server.Client(),
	}
	if revoke {
		c.RevokeURL = fp.server.URL + "/revoke"
	}
	return c
}

func newTestManager(t *testing.T, fp *fakeProvider, purger DataPurger) (*Manager, *MemoryStore, *vault.Vault) {
	v, err := vault.New(testKey)
	require.NoError(t, err)
	store := NewMemoryStore()
	m := NewManager(store, purger, v, fp.client(model.ProviderGmail, true), fp.client(model.ProviderOutlook, false))
	return m, store, v
}

func stateFrom(t *testing.T, authURL string) string {
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestAuthorizationURLAndExchange(t *testing.T) {
	ctx := context.Background()
	fp := newFakeProvider(t)
	m, store, v := newTestManager(t, fp, nil)

	authURL, err := m.AuthorizationURL("user-42", model.ProviderGmail)
	require.NoError(t, err)
	assert.Contains(t, authURL, "access_type=offline")
	assert.Contains(t, authURL, "prompt=consent")

	tok, userID, err := m.ExchangeCode(ctx, model.ProviderGmail, "code-1", stateFrom(t, authURL))
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
	assert.NotContains(t, tok.EncryptedAccessToken, "access-")

	stored, err := store.GetToken(ctx, "user-42", model.ProviderGmail)
	require.NoError(t, err)
	access, err := v.Decrypt(stored.EncryptedAccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-authorization_code", access)
	require.NotNil(t, stored.EncryptedRefreshToken)
	assert.Equal(t, "https://www.googleapis.com/auth/gmail.readonly", stored.Scope)

	// re-consent without a new refresh token keeps the old one
	fp.refreshToken = ""
	authURL, _ = m.AuthorizationURL("user-42", model.ProviderGmail)
	_, _, err = m.ExchangeCode(ctx, model.ProviderGmail, "code-2", stateFrom(t, authURL))
	require.NoError(t, err)
	again, _ := store.GetToken(ctx, "user-42", model.ProviderGmail)
	require.NotNil(t, again.EncryptedRefreshToken)
	refresh, err := v.Decrypt(*again.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", refresh)
}

func TestExchangeRejectsBadState(t *testing.T) {
	ctx := context.Background()
	fp := newFakeProvider(t)
	m, _, _ := newTestManager(t, fp, nil)

	_, _, err := m.ExchangeCode(ctx, model.ProviderGmail, "code", "garbage")
	assert.ErrorIs(t, err, ErrInvalidState)

	authURL, _ := m.AuthorizationURL("user-42", model.ProviderOutlook)
	_, _, err = m.ExchangeCode(ctx, model.ProviderGmail, "code", stateFrom(t, authURL))
	assert.ErrorIs(t, err, ErrInvalidState, "state minted for another provider")

	_, err = m.AuthorizationURL("user-42", model.Provider("yahoo"))
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func seedToken(t *testing.T, store *MemoryStore, v *vault.Vault, expires time.Time, refresh string) {
	access, err := v.Encrypt("stored-access")
	require.NoError(t, err)
	tok := &model.OAuthToken{
		UserID:               "u1",
		Provider:             model.ProviderGmail,
		EncryptedAccessToken: access,
		ExpiresAt:            expires,
		ConnectedAt:          time.Now(),
	}
	if refresh != "" {
		enc, err := v.Encrypt(refresh)
		require.NoError(t, err)
		tok.EncryptedRefreshToken = &enc
	}
	require.NoError(t, store.SaveToken(context.Background(), tok))
}

func TestValidAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("never connected", func(t *testing.T) {
		m, _, _ := newTestManager(t, newFakeProvider(t), nil)
		_, err := m.ValidAccessToken(ctx, "u1", model.ProviderGmail)
		assert.ErrorIs(t, err, ErrNoTokenFound)
		assert.True(t, IsCredentialError(err))
	})

	t.Run("fresh token is returned as is", func(t *testing.T) {
		m, store, v := newTestManager(t, newFakeProvider(t), nil)
		seedToken(t, store, v, time.Now().Add(time.Hour), "refresh-1")

		access, err := m.ValidAccessToken(ctx, "u1", model.ProviderGmail)
		require.NoError(t, err)
		assert.Equal(t, "stored-access", access)

		stored, _ := store.GetToken(ctx, "u1", model.ProviderGmail)
		assert.NotNil(t, stored.LastUsed)
	})

	t.Run("token inside the buffer is refreshed", func(t *testing.T) {
		fp := newFakeProvider(t)
		fp.refreshToken = ""
		m, store, v := newTestManager(t, fp, nil)
		seedToken(t, store, v, time.Now().Add(4*time.Minute), "refresh-1")

		access, err := m.ValidAccessToken(ctx, "u1", model.ProviderGmail)
		require.NoError(t, err)
		assert.Equal(t, "access-refresh_token", access)
		assert.Equal(t, "refresh-1", fp.lastGrant.Get("refresh_token"))

		stored, _ := store.GetToken(ctx, "u1", model.ProviderGmail)
		assert.True(t, stored.ExpiresAt.After(time.Now().Add(50*time.Minute)))
		plain, _ := v.Decrypt(stored.EncryptedAccessToken)
		assert.Equal(t, "access-refresh_token", plain)
		require.NotNil(t, stored.EncryptedRefreshToken)
	})

	t.Run("missing refresh token", func(t *testing.T) {
		m, store, v := newTestManager(t, newFakeProvider(t), nil)
		seedToken(t, store, v, time.Now().Add(-time.Minute), "")

		_, err := m.ValidAccessToken(ctx, "u1", model.ProviderGmail)
		assert.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("provider rejects refresh", func(t *testing.T) {
		fp := newFakeProvider(t)
		fp.rejectGrant = true
		m, store, v := newTestManager(t, fp, nil)
		seedToken(t, store, v, time.Now().Add(-time.Minute), "refresh-1")

		_, err := m.ValidAccessToken(ctx, "u1", model.ProviderGmail)
		assert.ErrorIs(t, err, ErrRefreshFailed)
	})
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	fp := newFakeProvider(t)
	purger := new(mockPurger)
	purger.On("PurgeUserEmailData", mock.Anything, "u1", model.ProviderGmail).
		Return(model.PurgeResult{EmailRecords: 3, ContentFingerprints: 2, Transactions: 1}, nil).Twice()
	m, store, v := newTestManager(t, fp, purger)
	seedToken(t, store, v, time.Now().Add(time.Hour), "refresh-1")

	res, err := m.Revoke(ctx, "u1", model.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.EmailRecords)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fp.revokes))

	_, err = store.GetToken(ctx, "u1", model.ProviderGmail)
	assert.Error(t, err)

	// revoking again still purges
	_, err = m.Revoke(ctx, "u1", model.ProviderGmail)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fp.revokes))
	purger.AssertExpectations(t)
}

func TestRevokeSurvivesProviderFailure(t *testing.T) {
	ctx := context.Background()
	v, _ := vault.New(testKey)
	store := NewMemoryStore()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	client := &ProviderClient{Provider: model.ProviderGmail, Config: &oauth2.Config{}, RevokeURL: down.URL}
	m := NewManager(store, nil, v, client)
	seedToken(t, store, v, time.Now().Add(time.Hour), "refresh-1")

	_, err := m.Revoke(ctx, "u1", model.ProviderGmail)
	require.NoError(t, err)
	_, err = store.GetToken(ctx, "u1", model.ProviderGmail)
	assert.Error(t, err)
}

func TestConnectedAccountsAndProviders(t *testing.T) {
	ctx := context.Background()
	m, store, v := newTestManager(t, newFakeProvider(t), nil)
	seedToken(t, store, v, time.Now().Add(time.Hour), "")

	accounts, err := m.ConnectedAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "u1", accounts[0].UserID)
	assert.Equal(t, []model.Provider{model.ProviderGmail, model.ProviderOutlook}, m.Providers())
}
