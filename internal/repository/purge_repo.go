package repository

import (
	"context"
	"fmt"

	"mail-txn-ingest-go/internal/model"
)

// PurgeUserEmailData deletes every row the pipeline derived from one of the user's mailboxes:
// email records, content fingerprints, and unmatched credit transactions it created.
func (r *Repository) PurgeUserEmailData(ctx context.Context, userID string, provider model.Provider) (model.PurgeResult, error) {
	var res model.PurgeResult

	err := r.Transaction(ctx, func(tx *Repository) error {
		db := tx.db.WithContext(ctx)

		deleted := db.Where("user_id = ? AND provider = ?", userID, provider).Delete(&model.EmailRecord{})
		if deleted.Error != nil {
			return fmt.Errorf("failed to delete email records: %w", deleted.Error)
		}
		res.EmailRecords = deleted.RowsAffected

		deleted = db.Where("user_id = ? AND provider = ?", userID, provider).Delete(&model.ContentFingerprint{})
		if deleted.Error != nil {
			return fmt.Errorf("failed to delete content fingerprints: %w", deleted.Error)
		}
		res.ContentFingerprints = deleted.RowsAffected

		deleted = db.Where("user_id = ? AND source = ? AND payment_type = ? AND credit_instrument_id IS NULL",
			userID, provider.Source(), model.PaymentCredit).Delete(&model.Transaction{})
		if deleted.Error != nil {
			return fmt.Errorf("failed to delete unmatched transactions: %w", deleted.Error)
		}
		res.Transactions = deleted.RowsAffected

		return nil
	})
	if err != nil {
		return model.PurgeResult{}, err
	}
	return res, nil
}
