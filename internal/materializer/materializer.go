// Package materializer matches parsed transactions to credit instruments and writes each
// real-world transaction at most once.
package materializer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/aggregate"
	"mail-txn-ingest-go/internal/ledger"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/repository"
)

// OutcomeKind says what Materialize did
type OutcomeKind int

const (
	OutcomeCreated OutcomeKind = iota
	// OutcomeDuplicateContent means another run already claimed the content hash
	OutcomeDuplicateContent
	// OutcomeExistingTransaction means an equivalent non-email transaction was linked instead
	OutcomeExistingTransaction
)

// Outcome is the result of one materialization
type Outcome struct {
	Kind        OutcomeKind
	Transaction *model.Transaction
	Alert       *aggregate.BreachAlert
}

// Request carries everything needed to write one transaction
type Request struct {
	UserID      string
	Provider    model.Provider
	MessageID   string
	Parsed      *model.ParsedTransaction
	ContentHash string
	Instrument  *model.CreditInstrument
}

type Materializer struct {
	repo       *repository.Repository
	aggregator *aggregate.Aggregator
}

func New(repo *repository.Repository, aggregator *aggregate.Aggregator) *Materializer {
	return &Materializer{repo: repo, aggregator: aggregator}
}

// FindEquivalentTransaction looks for a non-email credit transaction with the same amount on
// the same day and instrument
func (m *Materializer) FindEquivalentTransaction(ctx context.Context, userID string, amount decimal.Decimal, day time.Time, instrumentID string) (*model.Transaction, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return m.repo.FindEquivalentTransaction(ctx, userID, amount, start, start.AddDate(0, 0, 1), instrumentID)
}

// Materialize claims the content fingerprint, then creates the transaction and updates the
// monthly aggregate in the same database transaction. Breach alerts are dispatched after
// commit.
func (m *Materializer) Materialize(ctx context.Context, req Request) (*Outcome, error) {
	var outcome *Outcome

	err := m.repo.Transaction(ctx, func(tx *repository.Repository) error {
		l := ledger.New(tx)

		claim, err := l.ClaimFingerprint(ctx, &model.ContentFingerprint{
			UserID:      req.UserID,
			Provider:    req.Provider,
			ContentHash: req.ContentHash,
			MessageID:   req.MessageID,
		})
		if err != nil {
			return err
		}
		if claim == ledger.DuplicateInsertIgnored {
			outcome = &Outcome{Kind: OutcomeDuplicateContent}
			return nil
		}

		// without a matched card nothing ties the alert to a manual row
		if req.Instrument != nil {
			day := req.Parsed.TransactionDate
			existing, err := tx.FindEquivalentTransaction(ctx, req.UserID, req.Parsed.Amount,
				day, day.AddDate(0, 0, 1), req.Instrument.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				if err := l.LinkFingerprint(ctx, req.UserID, req.ContentHash, existing.ID); err != nil {
					return err
				}
				outcome = &Outcome{Kind: OutcomeExistingTransaction, Transaction: existing}
				return nil
			}
		}

		instrumentID := instrumentIDOf(req.Instrument)

		txn := &model.Transaction{
			ID:                 uuid.NewString(),
			UserID:             req.UserID,
			Amount:             req.Parsed.Amount,
			Category:           Categorize(req.Parsed.MerchantName),
			Description:        Describe(req.Parsed, req.Instrument),
			Date:               req.Parsed.TransactionDate,
			PaymentType:        model.PaymentCredit,
			CreditInstrumentID: instrumentID,
			Source:             req.Provider.Source(),
		}
		if err := tx.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := l.LinkFingerprint(ctx, req.UserID, req.ContentHash, txn.ID); err != nil {
			return err
		}

		outcome = &Outcome{Kind: OutcomeCreated, Transaction: txn}
		if req.Instrument == nil {
			return nil
		}

		alert, err := m.aggregator.Apply(ctx, tx, req.Instrument, req.Parsed.Amount, req.Parsed.TransactionDate)
		if err != nil {
			return err
		}
		outcome.Alert = alert
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to materialize transaction: %w", err)
	}

	if outcome.Kind == OutcomeDuplicateContent {
		logrus.WithFields(logrus.Fields{"user_id": req.UserID, "message_id": req.MessageID}).
			Debug("Content hash claimed by another run, no transaction created")
	}
	if outcome.Alert != nil {
		m.aggregator.Dispatch(ctx, outcome.Alert)
	}
	return outcome, nil
}

// Describe builds the transaction description. Unmatched transactions name the bank and
// masked card so the user can reconcile them by hand.
func Describe(parsed *model.ParsedTransaction, inst *model.CreditInstrument) string {
	merchant := parsed.MerchantName
	if merchant == "" {
		merchant = "Card transaction"
	}
	if inst != nil {
		return fmt.Sprintf("%s - %s", merchant, inst.Label())
	}

	card := "card"
	if parsed.MaskedCardLast4 != "" {
		card = "card XX" + parsed.MaskedCardLast4
	}
	return strings.TrimSpace(fmt.Sprintf("%s - %s %s (unmatched)", merchant, parsed.BankName, card))
}

func instrumentIDOf(inst *model.CreditInstrument) *string {
	if inst == nil {
		return nil
	}
	id := inst.ID
	return &id
}
