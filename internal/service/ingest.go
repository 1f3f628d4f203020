package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"mail-txn-ingest-go/internal/aggregate"
	"mail-txn-ingest-go/internal/classifier"
	"mail-txn-ingest-go/internal/extract"
	"mail-txn-ingest-go/internal/ledger"
	"mail-txn-ingest-go/internal/mail"
	"mail-txn-ingest-go/internal/materializer"
	metricsPkg "mail-txn-ingest-go/internal/metrics"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/parser"
	"mail-txn-ingest-go/internal/repository"
)

// Duplicate skip reasons, also used as metric labels
const (
	ReasonAlreadyProcessed     = "already_processed"
	ReasonNonDebit             = "non_debit"
	ReasonDuplicateContentHash = "duplicate_content_hash"
	ReasonNoMatchingCard       = "no_matching_card"
	ReasonExistingTransaction  = "existing_transaction"
)

// DuplicatesSkipped breaks down emails that produced no new transaction
type DuplicatesSkipped struct {
	Total                int `json:"total"`
	AlreadyProcessed     int `json:"already_processed"`
	NonDebit             int `json:"non_debit"`
	DuplicateContentHash int `json:"duplicate_content_hash"`
	NoMatchingCard       int `json:"no_matching_card"`
	ExistingTransaction  int `json:"existing_transaction"`
}

// ProcessResult summarizes one run over a mailbox
type ProcessResult struct {
	Success                 bool              `json:"success"`
	Error                   string            `json:"error,omitempty"`
	EmailsFetched           int               `json:"emails_fetched"`
	EmailsProcessed         int               `json:"emails_processed"`
	TransactionsCreated     int               `json:"transactions_created"`
	DuplicatesSkipped       DuplicatesSkipped `json:"duplicates_skipped"`
	TransactionsWithoutCard int               `json:"transactions_without_card"`
	ParseFailures           int               `json:"parse_failures"`
	LimitBreachAlerts       int               `json:"limit_breach_alerts"`
}

func (r *ProcessResult) skip(reason string) {
	switch reason {
	case ReasonAlreadyProcessed:
		r.DuplicatesSkipped.AlreadyProcessed++
	case ReasonNonDebit:
		r.DuplicatesSkipped.NonDebit++
	case ReasonDuplicateContentHash:
		r.DuplicatesSkipped.DuplicateContentHash++
	case ReasonNoMatchingCard:
		r.DuplicatesSkipped.NoMatchingCard++
	case ReasonExistingTransaction:
		r.DuplicatesSkipped.ExistingTransaction++
	}
	r.DuplicatesSkipped.Total++
}

// IngestOptions tunes the pipeline
type IngestOptions struct {
	Location               *time.Location
	RequireInstrumentMatch bool
}

// IngestService turns a mailbox's bank emails into transactions
type IngestService struct {
	retrievers   map[model.Provider]mail.Retriever
	ledger       *ledger.Ledger
	classifier   *classifier.Classifier
	registry     *parser.Registry
	matcher      *materializer.Matcher
	materializer *materializer.Materializer
	metrics      *metricsPkg.Metrics
	opts         IngestOptions
}

// NewIngestService wires the pipeline over repo. metrics may be nil.
func NewIngestService(repo *repository.Repository, retrievers []mail.Retriever, registry *parser.Registry,
	aggregator *aggregate.Aggregator, metrics *metricsPkg.Metrics, opts IngestOptions) *IngestService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if registry == nil {
		registry = parser.DefaultRegistry(opts.Location)
	}
	byProvider := make(map[model.Provider]mail.Retriever, len(retrievers))
	for _, r := range retrievers {
		byProvider[r.Provider()] = r
	}
	return &IngestService{
		retrievers:   byProvider,
		ledger:       ledger.New(repo),
		classifier:   classifier.New(),
		registry:     registry,
		matcher:      materializer.NewMatcher(repo),
		materializer: materializer.New(repo, aggregator),
		metrics:      metrics,
		opts:         opts,
	}
}

// SupportedBanks lists banks with a dedicated parser
func (s *IngestService) SupportedBanks() []string {
	return s.registry.SupportedBanks()
}

// ProcessEmails fetches the mailbox and runs every email through the pipeline in received
// order. A fetch failure returns an unsuccessful result together with the error; failures
// on a single email never abort the batch.
func (s *IngestService) ProcessEmails(ctx context.Context, userID string, provider model.Provider, accessToken string, daysBack int) (*ProcessResult, error) {
	startTime := time.Now()
	result := &ProcessResult{}
	fields := logrus.Fields{"user_id": userID, "provider": provider}

	retriever, ok := s.retrievers[provider]
	if !ok {
		err := fmt.Errorf("no retriever configured for provider %q", provider)
		result.Error = err.Error()
		return result, err
	}

	if s.metrics != nil {
		s.metrics.Runs.Inc()
		defer func() { s.metrics.ProcessingTime.Observe(time.Since(startTime).Seconds()) }()
	}

	emails, err := retriever.Fetch(ctx, accessToken, daysBack)
	if err != nil {
		logrus.WithFields(fields).Errorf("Failed to fetch emails: %v", err)
		if s.metrics != nil {
			s.metrics.FetchFailures.Inc()
		}
		result.Error = err.Error()
		return result, err
	}
	result.EmailsFetched = len(emails)
	if s.metrics != nil {
		s.metrics.EmailsFetched.Add(float64(len(emails)))
	}

	for _, email := range emails {
		if err := s.processEmail(ctx, userID, provider, email, result); err != nil {
			// nothing was recorded, so the next run retries this email
			result.ParseFailures++
			s.observeParseFailure()
			logrus.WithFields(fields).WithField("message_id", email.MessageID).
				Errorf("Failed to process email: %v", err)
		}
	}

	result.Success = true
	logrus.WithFields(fields).Infof("Processed %d of %d emails in %v: %d created, %d skipped, %d failed",
		result.EmailsProcessed, result.EmailsFetched, time.Since(startTime),
		result.TransactionsCreated, result.DuplicatesSkipped.Total, result.ParseFailures)
	return result, nil
}

func (s *IngestService) processEmail(ctx context.Context, userID string, provider model.Provider, email model.RawEmail, result *ProcessResult) error {
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "provider": provider, "message_id": email.MessageID})

	processed, err := s.ledger.AlreadyProcessed(ctx, userID, email.MessageID)
	if err != nil {
		return err
	}
	if processed {
		log.Debug("Email already processed, skipping")
		result.skip(ReasonAlreadyProcessed)
		s.observeSkip(ReasonAlreadyProcessed)
		return nil
	}

	rec := newEmailRecord(userID, provider, email)

	cls := s.classifier.Classify(email)
	if !cls.ShouldProcess() {
		rec.ErrorMessage = strPtr(fmt.Sprintf("skipped: classified as %s (confidence %.2f)", cls.Category, cls.Confidence))
		return s.record(ctx, rec, result)
	}

	parsed := s.parse(email, cls)
	if parsed == nil || !parsed.IsValid {
		rec.ErrorMessage = strPtr("no parser could extract a transaction")
		if cls.BankHint != "" {
			rec.BankName = strPtr(cls.BankHint)
		}
		if err := s.record(ctx, rec, result); err != nil {
			return err
		}
		result.ParseFailures++
		s.observeParseFailure()
		return nil
	}
	rec.ParsedSuccessfully = true
	rec.BankName = strPtr(parsed.BankName)

	if parsed.Direction != model.DirectionDebit {
		rec.ErrorMessage = strPtr("credit transaction, not recorded as spend")
		return s.recordSkip(ctx, rec, result, ReasonNonDebit)
	}

	hash := ledger.ContentHash(parsed.Amount, parsed.TransactionDate, parsed.MerchantName, parsed.MaskedCardLast4)
	duplicate, err := s.ledger.IsDuplicateContent(ctx, userID, hash)
	if err != nil {
		return err
	}
	if duplicate {
		log.Debug("Transaction content already recorded")
		rec.ErrorMessage = strPtr("duplicate transaction content")
		return s.recordSkip(ctx, rec, result, ReasonDuplicateContentHash)
	}

	inst, err := s.matcher.Match(ctx, userID, parsed.BankName, parsed.MaskedCardLast4)
	if err != nil {
		return err
	}
	if inst == nil && s.opts.RequireInstrumentMatch {
		rec.ErrorMessage = strPtr(fmt.Sprintf("no registered %s card matches XX%s", parsed.BankName, parsed.MaskedCardLast4))
		return s.recordSkip(ctx, rec, result, ReasonNoMatchingCard)
	}

	outcome, err := s.materializer.Materialize(ctx, materializer.Request{
		UserID:      userID,
		Provider:    provider,
		MessageID:   email.MessageID,
		Parsed:      parsed,
		ContentHash: hash,
		Instrument:  inst,
	})
	if err != nil {
		return err
	}

	switch outcome.Kind {
	case materializer.OutcomeDuplicateContent:
		rec.ErrorMessage = strPtr("duplicate transaction content")
		s.skipWith(result, ReasonDuplicateContentHash)
	case materializer.OutcomeExistingTransaction:
		rec.LinkedTransactionID = strPtr(outcome.Transaction.ID)
		s.skipWith(result, ReasonExistingTransaction)
	case materializer.OutcomeCreated:
		rec.LinkedTransactionID = strPtr(outcome.Transaction.ID)
		result.TransactionsCreated++
		if inst == nil {
			result.TransactionsWithoutCard++
		}
		if outcome.Alert != nil {
			result.LimitBreachAlerts++
		}
		if s.metrics != nil {
			s.metrics.TransactionsCreated.Inc()
			if outcome.Alert != nil {
				s.metrics.LimitBreachAlerts.Inc()
			}
		}
		log.WithField("transaction_id", outcome.Transaction.ID).
			Infof("Created transaction %s for %s", parsed.Amount.StringFixed(2), outcome.Transaction.Description)
	}

	return s.record(ctx, rec, result)
}

// parse promotes the quick extraction when the preview is convincing, otherwise runs the
// full-body strategies
func (s *IngestService) parse(email model.RawEmail, cls classifier.Classification) *model.ParsedTransaction {
	quick := extract.Extract(email.Snippet, email.Subject)
	if !extract.NeedsFullBodyParse(cls, quick) {
		if parsed := quick.ToParsedTransaction(email, cls.BankHint, s.opts.Location); parsed != nil {
			return parsed
		}
	}
	return s.registry.Parse(email)
}

// record writes the EmailRecord last so an interrupted email is retried on the next run
func (s *IngestService) record(ctx context.Context, rec *model.EmailRecord, result *ProcessResult) error {
	outcome, err := s.ledger.RecordEmail(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to record email: %w", err)
	}
	if outcome == ledger.Inserted {
		result.EmailsProcessed++
		if s.metrics != nil {
			s.metrics.EmailsProcessed.Inc()
		}
	}
	return nil
}

// recordSkip counts the skip only after its record is written
func (s *IngestService) recordSkip(ctx context.Context, rec *model.EmailRecord, result *ProcessResult, reason string) error {
	if err := s.record(ctx, rec, result); err != nil {
		return err
	}
	s.skipWith(result, reason)
	return nil
}

func (s *IngestService) skipWith(result *ProcessResult, reason string) {
	result.skip(reason)
	s.observeSkip(reason)
}

func (s *IngestService) observeSkip(reason string) {
	if s.metrics != nil {
		s.metrics.DuplicatesSkipped.WithLabelValues(reason).Inc()
	}
}

func (s *IngestService) observeParseFailure() {
	if s.metrics != nil {
		s.metrics.ParseFailures.Inc()
	}
}

func newEmailRecord(userID string, provider model.Provider, email model.RawEmail) *model.EmailRecord {
	return &model.EmailRecord{
		UserID:       userID,
		Provider:     provider,
		MessageID:    email.MessageID,
		Subject:      email.Subject,
		From:         email.From,
		ReceivedDate: email.ReceivedDate,
		Body:         email.Body,
		Snippet:      email.Snippet,
	}
}

func strPtr(s string) *string {
	return &s
}

// IsFetchError reports whether err came from the mail provider
func IsFetchError(err error) bool {
	var fetchErr *mail.ProviderFetchError
	return errors.As(err, &fetchErr)
}
