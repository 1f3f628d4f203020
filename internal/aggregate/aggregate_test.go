package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mail-txn-ingest-go/internal/db"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/repository"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyLimitBreach(ctx context.Context, alert BreachAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func newRepo(t *testing.T) *repository.Repository {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	return repository.New(gdb)
}

func TestBreachScenario(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	limit := decimal.NewFromInt(90000)
	inst := &model.CreditInstrument{ID: "i1", UserID: "u1", BankName: "HDFC", Last4Digits: "5678", MonthlyLimit: &limit}
	date := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	agg := New(nil)

	alert, err := agg.Apply(ctx, repo, inst, decimal.NewFromInt(89000), date)
	require.NoError(t, err)
	assert.Nil(t, alert)

	alert, err = agg.Apply(ctx, repo, inst, decimal.NewFromInt(3250), date)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.True(t, alert.CurrentSpend.Equal(decimal.NewFromInt(92250)))
	assert.True(t, alert.Limit.Equal(limit))
	assert.True(t, alert.Overage.Equal(decimal.NewFromInt(2250)))
	assert.Equal(t, "2026-01", alert.Month)
	assert.Equal(t, "HDFC XX5678", alert.InstrumentLabel)

	row, err := repo.GetAggregate(ctx, "i1", "2026-01")
	require.NoError(t, err)
	assert.Equal(t, 2, row.TransactionCount)
}

func TestExactLimitBreaches(t *testing.T) {
	repo := newRepo(t)
	limit := decimal.NewFromInt(1000)
	inst := &model.CreditInstrument{ID: "i1", UserID: "u1", BankName: "Axis", MonthlyLimit: &limit}

	alert, err := New(nil).Apply(context.Background(), repo, inst, decimal.NewFromInt(1000), time.Now())
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.True(t, alert.Overage.IsZero())
}

func TestNoLimitStillAggregates(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	inst := &model.CreditInstrument{ID: "i2", UserID: "u1", BankName: "ICICI"}
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	alert, err := New(nil).Apply(ctx, repo, inst, decimal.NewFromInt(500000), date)
	require.NoError(t, err)
	assert.Nil(t, alert)

	row, err := repo.GetAggregate(ctx, "i2", "2026-03")
	require.NoError(t, err)
	assert.True(t, row.TotalSpent.Equal(decimal.NewFromInt(500000)))
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	alert := &BreachAlert{UserID: "u1", InstrumentID: "i1", Month: "2026-01"}

	n := new(mockNotifier)
	n.On("NotifyLimitBreach", ctx, *alert).Return(nil).Once()
	New(n).Dispatch(ctx, alert)
	n.AssertExpectations(t)

	failing := new(mockNotifier)
	failing.On("NotifyLimitBreach", ctx, *alert).Return(errors.New("smtp down")).Once()
	assert.NotPanics(t, func() { New(failing).Dispatch(ctx, alert) })
	failing.AssertExpectations(t)

	assert.NotPanics(t, func() { New(n).Dispatch(ctx, nil) })
	assert.NoError(t, LogNotifier{}.NotifyLimitBreach(ctx, *alert))
}
