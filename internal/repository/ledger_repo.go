package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"mail-txn-ingest-go/internal/model"
)

func (r *Repository) EmailRecordExists(ctx context.Context, userID, messageID string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&model.EmailRecord{}).
		Where("user_id = ? AND message_id = ?", userID, messageID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking email record: %w", result.Error)
	}
	return count > 0, nil
}

// InsertEmailRecord reports false when a record for the message already exists
func (r *Repository) InsertEmailRecord(ctx context.Context, rec *model.EmailRecord) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert email record: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) FingerprintExists(ctx context.Context, userID, contentHash string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&model.ContentFingerprint{}).
		Where("user_id = ? AND content_hash = ?", userID, contentHash).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking fingerprint: %w", result.Error)
	}
	return count > 0, nil
}

// InsertFingerprint reports false when (user, hash) is already claimed
func (r *Repository) InsertFingerprint(ctx context.Context, fp *model.ContentFingerprint) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(fp)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert fingerprint: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) LinkFingerprint(ctx context.Context, userID, contentHash, transactionID string) error {
	result := r.db.WithContext(ctx).Model(&model.ContentFingerprint{}).
		Where("user_id = ? AND content_hash = ?", userID, contentHash).
		Update("linked_transaction_id", transactionID)
	if result.Error != nil {
		return fmt.Errorf("failed to link fingerprint: %w", result.Error)
	}
	return nil
}

// ListEmailRecords returns one page of a user's records, newest first, and the total count
func (r *Repository) ListEmailRecords(ctx context.Context, userID string, page, limit int) ([]model.EmailRecord, int64, error) {
	var (
		records []model.EmailRecord
		total   int64
	)

	db := r.db.WithContext(ctx)
	if err := db.Model(&model.EmailRecord{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count email records: %w", err)
	}

	offset := (page - 1) * limit
	err := db.Where("user_id = ?", userID).Omit("body").Order("processed_at DESC, id DESC").Offset(offset).Limit(limit).Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get email records: %w", err)
	}
	return records, total, nil
}
