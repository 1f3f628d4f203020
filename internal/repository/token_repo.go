package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"mail-txn-ingest-go/internal/model"
)

func (r *Repository) GetToken(ctx context.Context, userID string, provider model.Provider) (*model.OAuthToken, error) {
	var token model.OAuthToken
	result := r.db.WithContext(ctx).Where("user_id = ? AND provider = ?", userID, provider).First(&token)
	if result.Error != nil {
		if notFound(result.Error) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", result.Error)
	}
	return &token, nil
}

// SaveToken inserts the token or replaces the stored credentials for (user, provider)
func (r *Repository) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_access_token",
			"encrypted_refresh_token",
			"expires_at",
			"scope",
			"connected_at",
			"updated_at",
		}),
	}).Create(token)
	if result.Error != nil {
		return fmt.Errorf("failed to save token: %w", result.Error)
	}
	return nil
}

func (r *Repository) DeleteToken(ctx context.Context, userID string, provider model.Provider) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&model.OAuthToken{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete token: %w", result.Error)
	}
	return nil
}

func (r *Repository) ListTokens(ctx context.Context) ([]model.OAuthToken, error) {
	var tokens []model.OAuthToken
	result := r.db.WithContext(ctx).Order("id").Find(&tokens)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", result.Error)
	}
	return tokens, nil
}

// TouchToken stamps LastUsed
func (r *Repository) TouchToken(ctx context.Context, userID string, provider model.Provider, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.OAuthToken{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Update("last_used", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update token last used: %w", result.Error)
	}
	return nil
}
