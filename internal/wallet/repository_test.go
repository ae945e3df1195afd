package wallet

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB connects to DB_CONN_STR and skips the test when it is unset.
func openTestDB(t *testing.T) *GormRepository {
	t.Helper()
	dsn := os.Getenv("DB_CONN_STR")
	if dsn == "" {
		t.Skip("DB_CONN_STR not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	repo := NewGormRepository(db)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func TestGormConcurrentDebits(t *testing.T) {
	runConcurrentDebits(t, openTestDB(t))
}

func TestGormDebitRejections(t *testing.T) {
	repo := openTestDB(t)
	ledger, w := setUpLedger(t, repo, decimal.NewFromInt(20))
	ctx := context.Background()

	_, err := ledger.Debit(ctx, Posting{WalletID: w.ID, Amount: decimal.NewFromInt(21), Type: EntryWithdrawal})
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	require.NoError(t, ledger.SetFrozen(ctx, w.ID, true))
	_, err = ledger.Debit(ctx, Posting{WalletID: w.ID, Amount: decimal.NewFromInt(5), Type: EntryWithdrawal})
	assert.True(t, errors.Is(err, ErrWalletFrozen))

	_, err = ledger.Debit(ctx, Posting{WalletID: uuid.NewString(), Amount: decimal.NewFromInt(5), Type: EntryWithdrawal})
	assert.True(t, errors.Is(err, ErrWalletNotFound))
}

func TestGormCreateWalletUniquePerUser(t *testing.T) {
	repo := openTestDB(t)
	userID := uuid.NewString()

	_, err := repo.CreateWallet(context.Background(), userID, "EUR")
	require.NoError(t, err)
	_, err = repo.CreateWallet(context.Background(), userID, "EUR")
	assert.True(t, errors.Is(err, ErrWalletExists))
}

func TestGormEntriesByReference(t *testing.T) {
	repo := openTestDB(t)
	ledger, w := setUpLedger(t, repo, decimal.NewFromInt(100))
	ctx := context.Background()
	ref := uuid.NewString()

	_, err := ledger.Debit(ctx, Posting{WalletID: w.ID, Amount: decimal.NewFromInt(40), Type: EntryWithdrawal, ReferenceType: "payout", ReferenceID: ref})
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, Posting{WalletID: w.ID, Amount: decimal.NewFromInt(40), Type: EntryEscrowRefund, ReferenceType: "payout", ReferenceID: ref,
		Metadata: Metadata{"reason": "cancelled"}})
	require.NoError(t, err)

	entries, err := ledger.EntriesByReference(ctx, "payout", ref)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EntryWithdrawal, entries[0].Type)
	assert.Equal(t, EntryEscrowRefund, entries[1].Type)
	assert.Equal(t, "cancelled", entries[1].Metadata["reason"])
	assert.True(t, entries[0].Signed().Add(entries[1].Signed()).IsZero())
}

func TestGormDuplicateEntryRollsBackBalance(t *testing.T) {
	runDuplicateEntry(t, openTestDB(t))
}
