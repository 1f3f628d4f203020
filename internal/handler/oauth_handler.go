package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/oauth"
)

// Authorize redirects the browser to the provider consent screen
func (h *Handlers) Authorize(c *gin.Context) {
	provider, ok := providerParam(c)
	if !ok {
		return
	}
	userID := c.Query("user_id")
	if userID == "" {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	authURL, err := h.tokens.AuthorizationURL(userID, provider)
	if err != nil {
		if errors.Is(err, oauth.ErrUnsupportedProvider) {
			abortWithError(c, http.StatusBadRequest, "unsupported_provider", err.Error())
			return
		}
		logrus.WithField("provider", provider).Errorf("Failed to build authorization URL: %v", err)
		abortWithError(c, http.StatusInternalServerError, "oauth_error", "Failed to start authorization")
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the authorization code flow and redirects to the app
func (h *Handlers) Callback(c *gin.Context) {
	provider, ok := providerParam(c)
	if !ok {
		return
	}

	if denied := c.Query("error"); denied != "" {
		reason := c.DefaultQuery("error_description", "Access to the mailbox was not granted")
		logrus.WithField("provider", provider).Warnf("Authorization denied: %s", denied)
		h.redirectError(c, reason)
		return
	}

	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		h.redirectError(c, "The authorization response was incomplete")
		return
	}

	_, userID, err := h.tokens.ExchangeCode(c.Request.Context(), provider, code, state)
	if err != nil {
		logrus.WithFields(logrus.Fields{"provider": provider, "user_id": userID}).
			Errorf("OAuth callback failed: %v", err)
		if errors.Is(err, oauth.ErrInvalidState) {
			h.redirectError(c, "The authorization request expired or was tampered with")
			return
		}
		h.redirectError(c, "Could not connect the mailbox, please try again")
		return
	}

	logrus.WithFields(logrus.Fields{"provider": provider, "user_id": userID}).Info("Mailbox connected")
	c.Redirect(http.StatusFound, withQuery(h.oauthCfg.SuccessRedirect, "provider", string(provider)))
}

func (h *Handlers) redirectError(c *gin.Context, reason string) {
	c.Redirect(http.StatusFound, withQuery(h.oauthCfg.ErrorRedirect, "reason", reason))
}

// withQuery appends key=value to target, keeping any query it already has
func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
