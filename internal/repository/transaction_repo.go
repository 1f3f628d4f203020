package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mail-txn-ingest-go/internal/model"
)

// CreateTransaction stores the row with its date normalized to UTC
func (r *Repository) CreateTransaction(ctx context.Context, txn *model.Transaction) error {
	txn.Date = txn.Date.UTC()
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// FindEquivalentTransaction looks for a same-amount credit transaction on the instrument within
// [from, to) that was not created from email, such as a manual entry
func (r *Repository) FindEquivalentTransaction(ctx context.Context, userID string, amount decimal.Decimal, from, to time.Time, instrumentID string) (*model.Transaction, error) {
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND amount = ? AND date >= ? AND date < ?", userID, amount, from.UTC(), to.UTC()).
		Where("payment_type = ? AND credit_instrument_id = ?", model.PaymentCredit, instrumentID).
		Where("(source IS NULL OR source NOT LIKE ?)", "email:%")

	var txns []model.Transaction
	if err := query.Order("created_at").Limit(1).Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("failed to find equivalent transaction: %w", err)
	}
	if len(txns) == 0 {
		return nil, nil
	}
	return &txns[0], nil
}

func (r *Repository) CountTransactions(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

func (r *Repository) CreateInstrument(ctx context.Context, inst *model.CreditInstrument) error {
	if err := r.db.WithContext(ctx).Create(inst).Error; err != nil {
		return fmt.Errorf("failed to create credit instrument: %w", err)
	}
	return nil
}

// FindInstrumentsByBank matches the bank name exactly, ignoring case. An empty last4 matches any card.
func (r *Repository) FindInstrumentsByBank(ctx context.Context, userID, bankName, last4 string) ([]model.CreditInstrument, error) {
	query := r.db.WithContext(ctx).Where("user_id = ? AND LOWER(bank_name) = LOWER(?)", userID, bankName)
	return r.findInstruments(query, last4)
}

// FindInstrumentsLikeBank matches instruments whose bank name contains bankName
func (r *Repository) FindInstrumentsLikeBank(ctx context.Context, userID, bankName, last4 string) ([]model.CreditInstrument, error) {
	query := r.db.WithContext(ctx).Where("user_id = ? AND LOWER(bank_name) LIKE LOWER(?)", userID, "%"+bankName+"%")
	return r.findInstruments(query, last4)
}

func (r *Repository) findInstruments(query *gorm.DB, last4 string) ([]model.CreditInstrument, error) {
	if last4 != "" {
		query = query.Where("last4_digits = ?", last4)
	}
	var instruments []model.CreditInstrument
	if err := query.Order("created_at").Find(&instruments).Error; err != nil {
		return nil, fmt.Errorf("failed to find credit instruments: %w", err)
	}
	return instruments, nil
}
