package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mail-txn-ingest-go/internal/aggregate"
	"mail-txn-ingest-go/internal/db"
	"mail-txn-ingest-go/internal/mail"
	metricsPkg "mail-txn-ingest-go/internal/metrics"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/repository"
)

var ist, _ = time.LoadLocation("Asia/Kolkata")

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Provider() model.Provider {
	return model.ProviderGmail
}

func (m *mockRetriever) Fetch(ctx context.Context, accessToken string, daysBack int) ([]model.RawEmail, error) {
	args := m.Called(ctx, accessToken, daysBack)
	emails, _ := args.Get(0).([]model.RawEmail)
	return emails, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyLimitBreach(ctx context.Context, alert aggregate.BreachAlert) error {
	return m.Called(ctx, alert).Error(0)
}

func newRepo(t *testing.T) *repository.Repository {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	return repository.New(gdb)
}

func received(day int) time.Time {
	return time.Date(2026, 2, day, 4, 30, 0, 0, time.UTC)
}

const hdfcBody = "Your HDFC Bank Credit Card ending 5678 is used for Rs.3,250.00 at ZOMATO on 31-01-26 at 19:45"

func hdfcAlert(messageID string, day int) model.RawEmail {
	return model.RawEmail{
		MessageID:    messageID,
		From:         "HDFC Bank InstaAlerts <alerts@hdfcbank.com>",
		Subject:      "Alert : Update on your HDFC Bank Credit Card",
		Body:         hdfcBody,
		ReceivedDate: received(day),
	}
}

func batch() []model.RawEmail {
	return []model.RawEmail{
		hdfcAlert("m1", 1),
		{
			MessageID:    "m2",
			From:         "alerts@hdfcbank.com",
			Subject:      "OTP for your transaction",
			Body:         "123456 is your OTP",
			ReceivedDate: received(1),
		},
		{
			MessageID:    "m3",
			From:         "American Express <alerts@aexp.com>",
			Subject:      "Card alert",
			Body:         "Your American Express credit card ending 1122 was used for INR 640.00 at CROSSWORD BOOKS on 15-01-2026.",
			ReceivedDate: received(2),
		},
		{
			MessageID:    "m4",
			From:         "alerts@hdfcbank.net",
			Subject:      "Refund processed",
			Body:         "Rs.499.00 has been credited to your HDFC Bank Credit Card ending 5678 as refund from MYNTRA on 10-01-2026.",
			ReceivedDate: received(2),
		},
		// same alert delivered again under a new message id
		hdfcAlert("m5", 3),
	}
}

func newService(repo *repository.Repository, retriever mail.Retriever, notifier aggregate.Notifier, requireMatch bool) (*IngestService, *metricsPkg.Metrics) {
	metrics := metricsPkg.NewMetrics(prometheus.NewRegistry())
	svc := NewIngestService(repo, []mail.Retriever{retriever}, nil, aggregate.New(notifier), metrics,
		IngestOptions{Location: ist, RequireInstrumentMatch: requireMatch})
	return svc, metrics
}

func TestProcessEmailsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	retriever := new(mockRetriever)
	retriever.On("Fetch", mock.Anything, "token", 7).Return(batch(), nil)
	svc, metrics := newService(repo, retriever, aggregate.LogNotifier{}, false)

	first, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, 5, first.EmailsFetched)
	assert.Equal(t, 5, first.EmailsProcessed)
	assert.Equal(t, 2, first.TransactionsCreated)
	assert.Equal(t, 2, first.TransactionsWithoutCard)
	assert.Equal(t, 1, first.DuplicatesSkipped.NonDebit)
	assert.Equal(t, 1, first.DuplicatesSkipped.DuplicateContentHash)
	assert.Equal(t, 2, first.DuplicatesSkipped.Total)
	assert.Equal(t, 0, first.ParseFailures)

	second, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.NoError(t, err)
	assert.Equal(t, first.EmailsProcessed, second.DuplicatesSkipped.AlreadyProcessed)
	assert.Equal(t, 0, second.EmailsProcessed)
	assert.Equal(t, 0, second.TransactionsCreated)

	count, err := repo.CountTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	records, total, err := repo.ListEmailRecords(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	byID := map[string]model.EmailRecord{}
	for _, r := range records {
		byID[r.MessageID] = r
	}
	assert.NotNil(t, byID["m1"].LinkedTransactionID)
	assert.True(t, byID["m1"].ParsedSuccessfully)
	require.NotNil(t, byID["m2"].ErrorMessage)
	assert.Contains(t, *byID["m2"].ErrorMessage, "OTP")
	require.NotNil(t, byID["m3"].BankName)
	assert.Equal(t, "American Express", *byID["m3"].BankName)
	assert.Nil(t, byID["m5"].LinkedTransactionID)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Runs))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.TransactionsCreated))
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.DuplicatesSkipped.WithLabelValues(ReasonAlreadyProcessed)))
}

func TestProcessEmailsParseFailure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	retriever := new(mockRetriever)
	retriever.On("Fetch", mock.Anything, "token", 7).Return([]model.RawEmail{{
		MessageID:    "m1",
		From:         "alerts@hdfcbank.com",
		Subject:      "Important information",
		Body:         "We have updated our terms and conditions.",
		ReceivedDate: received(1),
	}}, nil)
	svc, _ := newService(repo, retriever, aggregate.LogNotifier{}, false)

	res, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ParseFailures)
	assert.Equal(t, 1, res.EmailsProcessed)

	records, _, err := repo.ListEmailRecords(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].ParsedSuccessfully)
	require.NotNil(t, records[0].ErrorMessage)
}

func TestProcessEmailsRecordWriteFailureCountedOnce(t *testing.T) {
	ctx := context.Background()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register("test:fail_email_records", func(tx *gorm.DB) {
		if tx.Statement.Table == "email_records" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
	repo := repository.New(gdb)

	emails := batch()
	retriever := new(mockRetriever)
	retriever.On("Fetch", mock.Anything, "token", 7).Return([]model.RawEmail{
		{
			MessageID:    "m1",
			From:         "alerts@hdfcbank.com",
			Subject:      "Important information",
			Body:         "We have updated our terms and conditions.",
			ReceivedDate: received(1),
		},
		emails[3],
	}, nil)
	svc, metrics := newService(repo, retriever, aggregate.LogNotifier{}, false)

	res, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ParseFailures)
	assert.Equal(t, 0, res.EmailsProcessed)
	assert.Equal(t, 0, res.DuplicatesSkipped.NonDebit)
	assert.Equal(t, 0, res.DuplicatesSkipped.Total)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ParseFailures))
}

func TestProcessEmailsRequireInstrumentMatch(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	retriever := new(mockRetriever)
	retriever.On("Fetch", mock.Anything, "token", 7).Return([]model.RawEmail{hdfcAlert("m1", 1)}, nil)
	svc, _ := newService(repo, retriever, aggregate.LogNotifier{}, true)

	res, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicatesSkipped.NoMatchingCard)
	assert.Equal(t, 0, res.TransactionsCreated)
	assert.Equal(t, 1, res.EmailsProcessed)
}

func TestProcessEmailsMatchedBreach(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	limit := decimal.NewFromInt(90000)
	inst := &model.CreditInstrument{ID: "card-1", UserID: "u1", BankName: "HDFC", Last4Digits: "5678", Nickname: "Regalia", MonthlyLimit: &limit}
	require.NoError(t, repo.CreateInstrument(ctx, inst))
	_, err := repo.IncrementAggregate(ctx, "card-1", "2026-01", decimal.NewFromInt(89000), time.Now())
	require.NoError(t, err)

	notifier := new(mockNotifier)
	notifier.On("NotifyLimitBreach", mock.Anything, mock.MatchedBy(func(a aggregate.BreachAlert) bool {
		return a.InstrumentID == "card-1" && a.Overage.Equal(decimal.NewFromInt(2250))
	})).Return(nil).Once()

	retriever := new(mockRetriever)
	retriever.On("Fetch", mock.Anything, "token", 7).Return([]model.RawEmail{hdfcAlert("m1", 1)}, nil)
	svc, metrics := newService(repo, retriever, notifier, true)

	res, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TransactionsCreated)
	assert.Equal(t, 0, res.TransactionsWithoutCard)
	assert.Equal(t, 1, res.LimitBreachAlerts)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LimitBreachAlerts))

	agg, err := repo.GetAggregate(ctx, "card-1", "2026-01")
	require.NoError(t, err)
	assert.True(t, agg.TotalSpent.Equal(decimal.NewFromInt(92250)))
	notifier.AssertExpectations(t)
}

func TestProcessEmailsExistingTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	inst := &model.CreditInstrument{ID: "card-1", UserID: "u1", BankName: "HDFC", Last4Digits: "5678"}
	require.NoError(t, repo.CreateInstrument(ctx, inst))
	require.NoError(t, repo.CreateTransaction(ctx, &model.Transaction{
		ID:                 "manual-1",
		UserID:             "u1",
		Amount:             decimal.NewFromInt(3250),
		Category:           "Food & Dining",
		Description:        "Dinner",
		Date:               time.Date(2026, 1, 31, 20, 0, 0, 0, ist),
		PaymentType:        model.PaymentCredit,
		CreditInstrumentID: &inst.ID,
	}))

	retriever := new(mockRetriever)
	retriever.On("Fetch", mock.Anything, "token", 7).Return([]model.RawEmail{hdfcAlert("m1", 1)}, nil)
	svc, _ := newService(repo, retriever, aggregate.LogNotifier{}, false)

	res, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicatesSkipped.ExistingTransaction)
	assert.Equal(t, 0, res.TransactionsCreated)

	count, _ := repo.CountTransactions(ctx, "u1")
	assert.Equal(t, int64(1), count)
}

func TestProcessEmailsFetchFailure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	retriever := new(mockRetriever)
	fetchErr := &mail.ProviderFetchError{Provider: model.ProviderGmail, Op: "list", Err: errors.New("unavailable")}
	retriever.On("Fetch", mock.Anything, "token", 7).Return(nil, fetchErr)
	svc, metrics := newService(repo, retriever, aggregate.LogNotifier{}, false)

	res, err := svc.ProcessEmails(ctx, "u1", model.ProviderGmail, "token", 7)
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.EmailsFetched)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FetchFailures))

	_, err = svc.ProcessEmails(ctx, "u1", model.ProviderOutlook, "token", 7)
	assert.Error(t, err)
}

func TestSupportedBanks(t *testing.T) {
	svc, _ := newService(newRepo(t), new(mockRetriever), aggregate.LogNotifier{}, false)
	assert.Equal(t, []string{"HDFC", "ICICI", "SBI Card", "Axis", "Kotak"}, svc.SupportedBanks())
}
