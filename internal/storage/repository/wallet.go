package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kirillm/ai-fund/internal/domain"
)

// WalletRepository реализует работу с кошельками агентов
type WalletRepository struct {
	db Querier
}

// NewWalletRepository создает новый репозиторий кошельков
func NewWalletRepository(db Querier) *WalletRepository {
	return &WalletRepository{db: db}
}

// Get получает кошелек агента
func (r *WalletRepository) Get(ctx context.Context, agentID string) (*domain.Wallet, error) {
	wallet := &domain.Wallet{}
	query := `
		SELECT agent_id, cash_balance, long_term_cash, short_term_cash,
		       reserved_cash, total_invested, total_withdrawn,
		       last_transaction_at, updated_at
		FROM wallets WHERE agent_id = $1
	`
	var lastTx sql.NullTime
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(
		&wallet.AgentID,
		&wallet.CashBalance,
		&wallet.LongTermCash,
		&wallet.ShortTermCash,
		&wallet.ReservedCash,
		&wallet.TotalInvested,
		&wallet.TotalWithdrawn,
		&lastTx,
		&wallet.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastTx.Valid {
		wallet.LastTransactionAt = &lastTx.Time
	}
	return wallet, nil
}

// ApplyBuy списывает сумму покупки: cash_balance и соответствующий
// субсчет уменьшаются на одну и ту же дельту, total_invested растет.
func (r *WalletRepository) ApplyBuy(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error {
	var query string
	switch positionType {
	case domain.PositionLongTerm:
		query = `
			UPDATE wallets
			SET cash_balance = cash_balance - $1,
			    long_term_cash = long_term_cash - $1,
			    total_invested = total_invested + $1,
			    last_transaction_at = CURRENT_TIMESTAMP,
			    updated_at = CURRENT_TIMESTAMP
			WHERE agent_id = $2
		`
	case domain.PositionShortTerm:
		query = `
			UPDATE wallets
			SET cash_balance = cash_balance - $1,
			    short_term_cash = short_term_cash - $1,
			    total_invested = total_invested + $1,
			    last_transaction_at = CURRENT_TIMESTAMP,
			    updated_at = CURRENT_TIMESTAMP
			WHERE agent_id = $2
		`
	default:
		return fmt.Errorf("unknown position type: %s", positionType)
	}

	return r.exec(ctx, query, amount, agentID)
}

// ApplySell зачисляет выручку от продажи на cash_balance и субсчет
// позиции, total_withdrawn растет.
func (r *WalletRepository) ApplySell(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error {
	var query string
	switch positionType {
	case domain.PositionLongTerm:
		query = `
			UPDATE wallets
			SET cash_balance = cash_balance + $1,
			    long_term_cash = long_term_cash + $1,
			    total_withdrawn = total_withdrawn + $1,
			    last_transaction_at = CURRENT_TIMESTAMP,
			    updated_at = CURRENT_TIMESTAMP
			WHERE agent_id = $2
		`
	case domain.PositionShortTerm:
		query = `
			UPDATE wallets
			SET cash_balance = cash_balance + $1,
			    short_term_cash = short_term_cash + $1,
			    total_withdrawn = total_withdrawn + $1,
			    last_transaction_at = CURRENT_TIMESTAMP,
			    updated_at = CURRENT_TIMESTAMP
			WHERE agent_id = $2
		`
	default:
		return fmt.Errorf("unknown position type: %s", positionType)
	}

	return r.exec(ctx, query, amount, agentID)
}

func (r *WalletRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
