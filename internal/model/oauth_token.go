package model

import "time"

// OAuthToken represents a user's encrypted mailbox credentials for one provider
type OAuthToken struct {
	ID                    uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID                string     `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_oauth_user_provider"`
	Provider              Provider   `json:"provider" gorm:"type:varchar(16);not null;uniqueIndex:idx_oauth_user_provider"`
	EncryptedAccessToken  string     `json:"-" gorm:"type:text;not null"`
	EncryptedRefreshToken *string    `json:"-" gorm:"type:text"`
	ExpiresAt             time.Time  `json:"expires_at"`
	Scope                 string     `json:"scope" gorm:"type:text"`
	ConnectedAt           time.Time  `json:"connected_at"`
	LastUsed              *time.Time `json:"last_used,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// TableName specifies the table name for OAuthToken
func (OAuthToken) TableName() string {
	return "oauth_tokens"
}
