package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/data/memory"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "clerk@facility"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Ledger:     config.LedgerConfig{AdjustRetryDelay: time.Millisecond},
		CashBox:    config.CashBoxConfig{OpeningBalance: "200.00"},
		WorkerPool: config.WorkerPoolConfig{PreAuthCap: DefaultPreAuthWorkers},
	}
}

func memoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Residents:      store.Residents(),
		Ledger:         store.Ledger(),
		ServiceBatches: store.ServiceBatches(),
		DepositBatches: store.DepositBatches(),
		PreAuth:        store.PreAuth(),
		CashBox:        store.CashBox(),
		CashBoxHistory: store.CashBoxHistory(),
		Withdrawals:    store.Withdrawals(),
	}
}

// fixture is an engine over a fresh in-memory store with one facility
type fixture struct {
	ctx        context.Context
	store      *memory.Store
	cache      *cache.MemoryCache
	engine     *Engine
	facilityID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	c := cache.NewMemoryCache(time.Minute)
	eng, err := New(testConfig(), memoryRepositories(store), c, newTestLogger())
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)

	return &fixture{
		ctx:        context.Background(),
		store:      store,
		cache:      c,
		engine:     eng,
		facilityID: uuid.New(),
	}
}

// resident opens an account and funds it with a manual credit
func (f *fixture) resident(t *testing.T, balance string) *resident.Account {
	t.Helper()
	acc, err := f.engine.Ledger.OpenAccount(f.ctx, f.facilityID, "Resident "+uuid.NewString()[:8])
	require.NoError(t, err)

	if amount := dec(balance); amount.IsPositive() {
		_, err := f.engine.Ledger.RecordEntry(f.ctx, RecordEntryRequest{
			ResidentID:  acc.ID,
			Type:        shared.EntryTypeCredit,
			Amount:      amount,
			Method:      shared.MethodManual,
			Description: "Opening deposit",
			CreatedBy:   testUser,
		})
		require.NoError(t, err)
	}
	return acc
}

func (f *fixture) balance(t *testing.T, residentID uuid.UUID) decimal.Decimal {
	t.Helper()
	acc, err := f.store.Residents().GetByID(f.ctx, residentID)
	require.NoError(t, err)
	return acc.Balance
}

func (f *fixture) entryCount(t *testing.T, residentID uuid.UUID) int {
	t.Helper()
	entries, err := f.store.Ledger().ListByResident(f.ctx, residentID, 0)
	require.NoError(t, err)
	return len(entries)
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, dec(expected).Equal(actual), append([]interface{}{"expected %s, got %s", expected, actual.String()}, msgAndArgs...)...)
}

// assertInvariant checks balance == credits - debits for every resident of the facility
func (f *fixture) assertInvariant(t *testing.T) {
	t.Helper()
	accounts, err := f.engine.Ledger.ListAccounts(f.ctx, f.facilityID)
	require.NoError(t, err)
	for _, acc := range accounts {
		rec, err := f.engine.Ledger.Reconcile(f.ctx, acc.ID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent, "resident %s: balance %s, ledger %s", acc.ID, rec.Balance, rec.LedgerSum)
	}
}
