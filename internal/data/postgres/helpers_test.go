package postgres

import (
	"log/slog"
	"os"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

// q quotes a SQL fragment for pgxmock's regexp matcher
func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
