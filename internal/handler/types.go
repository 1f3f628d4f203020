package handler

import (
	"time"

	"mail-txn-ingest-go/internal/model"
)

// ProcessRequest is the optional body of a manual processing trigger
type ProcessRequest struct {
	DaysBack int `json:"days_back" binding:"omitempty,min=1,max=365"`
}

// EmailRecordResponse is an EmailRecord as listed over HTTP
type EmailRecordResponse struct {
	ID                  uint           `json:"id"`
	Provider            model.Provider `json:"provider"`
	MessageID           string         `json:"message_id"`
	Subject             string         `json:"subject"`
	From                string         `json:"from"`
	ReceivedDate        time.Time      `json:"received_date"`
	ProcessedAt         time.Time      `json:"processed_at"`
	ParsedSuccessfully  bool           `json:"parsed_successfully"`
	BankName            *string        `json:"bank_name,omitempty"`
	LinkedTransactionID *string        `json:"linked_transaction_id,omitempty"`
	ErrorMessage        *string        `json:"error_message,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Providers []model.Provider  `json:"providers"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SchedulerStatusResponse describes the periodic job
type SchedulerStatusResponse struct {
	Running bool       `json:"running"`
	Status  string     `json:"status"`
	NextRun *time.Time `json:"next_run,omitempty"`
	LastRun *time.Time `json:"last_run,omitempty"`
}
