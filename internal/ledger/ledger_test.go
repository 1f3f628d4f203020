package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-txn-ingest-go/internal/db"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/repository"
)

func TestContentHashFormat(t *testing.T) {
	date := time.Date(2026, 1, 31, 19, 45, 0, 0, time.UTC)
	sum := sha256.Sum256([]byte("3250.00|2026-01-31|zomato|5678"))

	assert.Equal(t, hex.EncodeToString(sum[:]), ContentHash(decimal.NewFromInt(3250), date, "Zomato", "5678"))

	unknown := sha256.Sum256([]byte("10.50|2026-01-31|amazonpay|unknown"))
	assert.Equal(t, hex.EncodeToString(unknown[:]), ContentHash(decimal.RequireFromString("10.5"), date, "Amazon Pay", ""))
}

func TestContentHashStability(t *testing.T) {
	morning := time.Date(2026, 1, 31, 8, 0, 0, 0, time.UTC)
	night := time.Date(2026, 1, 31, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		name string
		a, b string
	}{
		{"casing", "ZOMATO", "zomato"},
		{"internal whitespace", "Amazon  Pay India", "amazon pay\tindia"},
		{"surrounding whitespace", " Swiggy ", "Swiggy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t,
				ContentHash(decimal.NewFromInt(500), morning, tt.a, "1234"),
				ContentHash(decimal.NewFromInt(500), night, tt.b, "1234"))
		})
	}

	assert.NotEqual(t,
		ContentHash(decimal.NewFromInt(500), morning, "Swiggy", "1234"),
		ContentHash(decimal.NewFromInt(500), morning.AddDate(0, 0, 1), "Swiggy", "1234"))
	assert.NotEqual(t,
		ContentHash(decimal.NewFromInt(500), morning, "Swiggy", "1234"),
		ContentHash(decimal.NewFromInt(500), morning, "Swiggy", ""))
}

func TestGates(t *testing.T) {
	ctx := context.Background()
	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	l := New(repository.New(gdb))

	processed, err := l.AlreadyProcessed(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.False(t, processed)

	outcome, err := l.RecordEmail(ctx, &model.EmailRecord{UserID: "u1", Provider: model.ProviderGmail, MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	outcome, err = l.RecordEmail(ctx, &model.EmailRecord{UserID: "u1", Provider: model.ProviderGmail, MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, DuplicateInsertIgnored, outcome)

	processed, err = l.AlreadyProcessed(ctx, "u1", "m1")
	require.NoError(t, err)
	assert.True(t, processed)

	hash := ContentHash(decimal.NewFromInt(3250), time.Now(), "Zomato", "5678")
	outcome, err = l.ClaimFingerprint(ctx, &model.ContentFingerprint{UserID: "u1", Provider: model.ProviderGmail, ContentHash: hash, MessageID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	outcome, err = l.ClaimFingerprint(ctx, &model.ContentFingerprint{UserID: "u1", Provider: model.ProviderGmail, ContentHash: hash, MessageID: "m2"})
	require.NoError(t, err)
	assert.Equal(t, DuplicateInsertIgnored, outcome)

	dup, err := l.IsDuplicateContent(ctx, "u1", hash)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.NoError(t, l.LinkFingerprint(ctx, "u1", hash, "txn-1"))
}

func TestInsertOutcomeString(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "duplicate_insert_ignored", DuplicateInsertIgnored.String())
}
