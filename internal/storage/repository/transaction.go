package repository

import (
	"context"

	"github.com/kirillm/ai-fund/internal/domain"
)

// TransactionRepository журнал исполненных сделок. Строки только
// добавляются, обновление и удаление не предусмотрены.
type TransactionRepository struct {
	db Querier
}

// NewTransactionRepository создает новый репозиторий сделок
func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Save записывает исполненную сделку
func (r *TransactionRepository) Save(ctx context.Context, t *domain.Transaction) error {
	marketContext := t.MarketContext
	if len(marketContext) == 0 {
		marketContext = []byte("{}")
	}

	query := `
		INSERT INTO transactions (
			agent_id, symbol, action, quantity, price, total_amount,
			reason, position_type, decision_id, market_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
		RETURNING id, executed_at
	`
	return r.db.QueryRowContext(ctx, query,
		t.AgentID,
		t.Symbol,
		t.Action,
		t.Quantity,
		t.Price,
		t.TotalAmount,
		t.Reason,
		t.PositionType,
		t.DecisionID,
		string(marketContext),
	).Scan(&t.ID, &t.ExecutedAt)
}

// GetRecent получает последние N сделок агента
func (r *TransactionRepository) GetRecent(ctx context.Context, agentID string, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT id, agent_id, symbol, action, quantity, price, total_amount,
		       reason, position_type, decision_id, market_context, executed_at
		FROM transactions
		WHERE agent_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		err := rows.Scan(
			&t.ID,
			&t.AgentID,
			&t.Symbol,
			&t.Action,
			&t.Quantity,
			&t.Price,
			&t.TotalAmount,
			&t.Reason,
			&t.PositionType,
			&t.DecisionID,
			&t.MarketContext,
			&t.ExecutedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
