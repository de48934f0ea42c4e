package engine

import (
	"log/slog"

	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/resident-trust-ledger/internal/platform/cache"
)

// Repositories is the ledger store as seen by the engine
type Repositories struct {
	Residents      resident.Repository
	Ledger         ledger.Repository
	ServiceBatches servicebatch.Repository
	DepositBatches depositbatch.Repository
	PreAuth        preauth.Repository
	CashBox        cashbox.Repository
	CashBoxHistory cashbox.HistoryRepository
	Withdrawals    reporting.WithdrawalRepository
}

// Engine bundles the services. Every money movement goes through Ledger.
type Engine struct {
	Ledger         *LedgerService
	ServiceBatches *ServiceBatchService
	DepositBatches *DepositBatchService
	PreAuth        *PreAuthService
	CashBox        *CashBoxService
}

func New(cfg *config.Config, repos Repositories, c cache.Cache, logger *slog.Logger) (*Engine, error) {
	cashBox, err := NewCashBoxService(logger.With("component", "cash_box"), repos.CashBox, repos.CashBoxHistory, c, cfg.CashBox, cfg.Ledger)
	if err != nil {
		return nil, err
	}

	ledgerService := NewLedgerService(logger.With("component", "ledger"), repos.Residents, repos.Ledger, repos.Withdrawals, cashBox, c, cfg.Ledger)

	preAuth, err := NewPreAuthService(logger.With("component", "preauth"), repos.PreAuth, repos.Residents, ledgerService, cfg.WorkerPool)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Ledger:         ledgerService,
		ServiceBatches: NewServiceBatchService(logger.With("component", "service_batch"), repos.ServiceBatches, repos.Residents, ledgerService, c),
		DepositBatches: NewDepositBatchService(logger.With("component", "deposit_batch"), repos.DepositBatches, repos.Residents, ledgerService, c),
		PreAuth:        preAuth,
		CashBox:        cashBox,
	}, nil
}

// Shutdown releases the pre-authorization worker pool
func (e *Engine) Shutdown() {
	e.PreAuth.Shutdown()
}
