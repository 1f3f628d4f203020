// Package ledger implements the two idempotency gates of the ingest pipeline.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/model"
)

// InsertOutcome is the result of a ledger write that may lose a unique-constraint race
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	DuplicateInsertIgnored
)

func (o InsertOutcome) String() string {
	if o == DuplicateInsertIgnored {
		return "duplicate_insert_ignored"
	}
	return "inserted"
}

// Store is the persistence the ledger needs
type Store interface {
	EmailRecordExists(ctx context.Context, userID, messageID string) (bool, error)
	InsertEmailRecord(ctx context.Context, rec *model.EmailRecord) (bool, error)
	FingerprintExists(ctx context.Context, userID, contentHash string) (bool, error)
	InsertFingerprint(ctx context.Context, fp *model.ContentFingerprint) (bool, error)
	LinkFingerprint(ctx context.Context, userID, contentHash, transactionID string) error
}

// Ledger guards against handling a message twice (gate 1) and recording the same
// transaction content twice (gate 2)
type Ledger struct {
	store Store
}

func New(store Store) *Ledger {
	return &Ledger{store: store}
}

// AlreadyProcessed reports whether an EmailRecord exists for the message
func (l *Ledger) AlreadyProcessed(ctx context.Context, userID, messageID string) (bool, error) {
	return l.store.EmailRecordExists(ctx, userID, messageID)
}

// IsDuplicateContent reports whether the content hash was already claimed by the user
func (l *Ledger) IsDuplicateContent(ctx context.Context, userID, contentHash string) (bool, error) {
	return l.store.FingerprintExists(ctx, userID, contentHash)
}

func (l *Ledger) RecordEmail(ctx context.Context, rec *model.EmailRecord) (InsertOutcome, error) {
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	inserted, err := l.store.InsertEmailRecord(ctx, rec)
	if err != nil {
		return Inserted, err
	}
	if !inserted {
		logrus.WithFields(logrus.Fields{"user_id": rec.UserID, "message_id": rec.MessageID}).
			Debug("Email record already present, insert ignored")
		return DuplicateInsertIgnored, nil
	}
	return Inserted, nil
}

func (l *Ledger) ClaimFingerprint(ctx context.Context, fp *model.ContentFingerprint) (InsertOutcome, error) {
	inserted, err := l.store.InsertFingerprint(ctx, fp)
	if err != nil {
		return Inserted, err
	}
	if !inserted {
		logrus.WithFields(logrus.Fields{"user_id": fp.UserID, "message_id": fp.MessageID}).
			Debug("Content fingerprint already claimed, insert ignored")
		return DuplicateInsertIgnored, nil
	}
	return Inserted, nil
}

func (l *Ledger) LinkFingerprint(ctx context.Context, userID, contentHash, transactionID string) error {
	return l.store.LinkFingerprint(ctx, userID, contentHash, transactionID)
}

// ContentHash fingerprints a transaction independently of the message it arrived in:
// sha256(amount with 2 decimals | YYYY-MM-DD | merchant lower-cased without whitespace | card or "unknown")
func ContentHash(amount decimal.Decimal, date time.Time, merchant, maskedCard string) string {
	card := maskedCard
	if card == "" {
		card = "unknown"
	}

	input := amount.StringFixed(2) + "|" + date.Format("2006-01-02") + "|" + normalizeMerchant(merchant) + "|" + card
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

func normalizeMerchant(merchant string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.ToLower(merchant))
}
