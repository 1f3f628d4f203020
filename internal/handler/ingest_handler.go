package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/oauth"
	"mail-txn-ingest-go/internal/service"
)

// ProcessEmails runs the pipeline for one mailbox on demand
func (h *Handlers) ProcessEmails(c *gin.Context) {
	provider, ok := providerParam(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")

	var req ProcessRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	daysBack := req.DaysBack
	if daysBack == 0 {
		daysBack = h.daysBack
	}

	ctx := c.Request.Context()
	token, err := h.tokens.ValidAccessToken(ctx, userID, provider)
	if err != nil {
		switch {
		case oauth.IsCredentialError(err):
			abortWithError(c, http.StatusUnauthorized, "reauthorization_required", err.Error())
		case errors.Is(err, oauth.ErrUnsupportedProvider):
			abortWithError(c, http.StatusBadRequest, "unsupported_provider", err.Error())
		default:
			logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Errorf("Failed to get access token: %v", err)
			abortWithError(c, http.StatusInternalServerError, "token_error", "Failed to get access token")
		}
		return
	}

	result, err := h.ingest.ProcessEmails(ctx, userID, provider, token, daysBack)
	if err != nil {
		if service.IsFetchError(err) {
			abortWithError(c, http.StatusBadGateway, "provider_error", err.Error())
			return
		}
		abortWithError(c, http.StatusInternalServerError, "processing_error", err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// Disconnect revokes the mailbox and deletes everything derived from it
func (h *Handlers) Disconnect(c *gin.Context) {
	provider, ok := providerParam(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")

	purged, err := h.tokens.Revoke(c.Request.Context(), userID, provider)
	if err != nil {
		if errors.Is(err, oauth.ErrUnsupportedProvider) {
			abortWithError(c, http.StatusBadRequest, "unsupported_provider", err.Error())
			return
		}
		logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider}).Errorf("Disconnect failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, "disconnect_error", "Failed to disconnect mailbox")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Mailbox disconnected",
		"purged":  purged,
	})
}

// GetBanks lists banks with a dedicated parser
func (h *Handlers) GetBanks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"banks": h.ingest.SupportedBanks()})
}

// GetEmailRecords returns a user's email records with pagination
func (h *Handlers) GetEmailRecords(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	records, total, err := h.records.ListEmailRecords(c.Request.Context(), c.Param("user_id"), page, limit)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "database_error", "Failed to fetch email records")
		return
	}

	responses := make([]EmailRecordResponse, 0, len(records))
	for _, r := range records {
		responses = append(responses, EmailRecordResponse{
			ID:                  r.ID,
			Provider:            r.Provider,
			MessageID:           r.MessageID,
			Subject:             r.Subject,
			From:                r.From,
			ReceivedDate:        r.ReceivedDate,
			ProcessedAt:         r.ProcessedAt,
			ParsedSuccessfully:  r.ParsedSuccessfully,
			BankName:            r.BankName,
			LinkedTransactionID: r.LinkedTransactionID,
			ErrorMessage:        r.ErrorMessage,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"email_records": responses,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}
