package model

import "time"

// ContentFingerprint records that a transaction with this normalized content was seen for a user
type ContentFingerprint struct {
	ID                  uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID              string    `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_fingerprint_user_hash"`
	Provider            Provider  `json:"provider" gorm:"type:varchar(16);not null;index"`
	ContentHash         string    `json:"content_hash" gorm:"type:char(64);not null;uniqueIndex:idx_fingerprint_user_hash"`
	MessageID           string    `json:"message_id" gorm:"type:varchar(255);not null"`
	LinkedTransactionID *string   `json:"linked_transaction_id,omitempty" gorm:"type:varchar(36)"`
	CreatedAt           time.Time `json:"created_at"`
}

// TableName specifies the table name for ContentFingerprint
func (ContentFingerprint) TableName() string {
	return "content_fingerprints"
}
