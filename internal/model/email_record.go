package model

import "time"

// EmailRecord represents one handled message. Rows are insert-only.
type EmailRecord struct {
	ID                  uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID              string    `json:"user_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_email_user_message"`
	Provider            Provider  `json:"provider" gorm:"type:varchar(16);not null;index"`
	MessageID           string    `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_email_user_message"`
	Subject             string    `json:"subject" gorm:"type:text"`
	From                string    `json:"from" gorm:"column:from_address;type:varchar(512)"`
	ReceivedDate        time.Time `json:"received_date"`
	ProcessedAt         time.Time `json:"processed_at"`
	ParsedSuccessfully  bool      `json:"parsed_successfully"`
	BankName            *string   `json:"bank_name,omitempty" gorm:"type:varchar(100)"`
	LinkedTransactionID *string   `json:"linked_transaction_id,omitempty" gorm:"type:varchar(36);index"`
	ErrorMessage        *string   `json:"error_message,omitempty" gorm:"type:text"`
	Body                string    `json:"body,omitempty" gorm:"type:mediumtext"`
	Snippet             string    `json:"snippet" gorm:"type:text"`
}

// TableName specifies the table name for EmailRecord
func (EmailRecord) TableName() string {
	return "email_records"
}
