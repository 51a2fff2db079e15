package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/kirillm/ai-fund/internal/domain"
)

// PositionRepository реализует работу с позициями агентов
type PositionRepository struct {
	db Querier
}

// NewPositionRepository создает новый репозиторий позиций
func NewPositionRepository(db Querier) *PositionRepository {
	return &PositionRepository{db: db}
}

const positionColumns = `
	agent_id, symbol, quantity, average_cost, position_type,
	first_buy_date, current_value, unrealized_pnl, updated_at
`

// Get получает позицию по символу
func (r *PositionRepository) Get(ctx context.Context, agentID, symbol string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE agent_id = $1 AND symbol = $2`
	return r.scanOne(r.db.QueryRowContext(ctx, query, agentID, symbol))
}

// GetForUpdate получает позицию с блокировкой строки до конца
// транзакции. Вызывается только внутри транзакции исполнителя.
func (r *PositionRepository) GetForUpdate(ctx context.Context, agentID, symbol string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE agent_id = $1 AND symbol = $2 FOR UPDATE`
	return r.scanOne(r.db.QueryRowContext(ctx, query, agentID, symbol))
}

// List получает все позиции агента
func (r *PositionRepository) List(ctx context.Context, agentID string) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE agent_id = $1 ORDER BY symbol`
	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// Create создает новую позицию при первой покупке символа
func (r *PositionRepository) Create(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO positions (
			agent_id, symbol, quantity, average_cost,
			position_type, first_buy_date
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.AgentID, p.Symbol, p.Quantity, p.AverageCost,
		p.PositionType, p.FirstBuyDate,
	)
	return err
}

// SetAmount обновляет количество и среднюю цену (докупка)
func (r *PositionRepository) SetAmount(ctx context.Context, agentID, symbol string, quantity, averageCost decimal.Decimal) error {
	query := `
		UPDATE positions
		SET quantity = $1, average_cost = $2, updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = $3 AND symbol = $4
	`
	return r.exec(ctx, query, quantity, averageCost, agentID, symbol)
}

// SetQuantity обновляет только количество (частичная продажа,
// средняя цена не пересчитывается)
func (r *PositionRepository) SetQuantity(ctx context.Context, agentID, symbol string, quantity decimal.Decimal) error {
	query := `
		UPDATE positions
		SET quantity = $1, updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = $2 AND symbol = $3
	`
	return r.exec(ctx, query, quantity, agentID, symbol)
}

// Delete удаляет позицию (полная продажа, нулевых позиций не бывает)
func (r *PositionRepository) Delete(ctx context.Context, agentID, symbol string) error {
	query := `DELETE FROM positions WHERE agent_id = $1 AND symbol = $2`
	return r.exec(ctx, query, agentID, symbol)
}

// SetMarketValue обновляет рыночную стоимость и нереализованный PnL.
// Деньги и количество не трогает, может выполняться параллельно
// с исполнением сделок.
func (r *PositionRepository) SetMarketValue(ctx context.Context, agentID, symbol string, currentValue, unrealizedPnL decimal.Decimal) error {
	query := `
		UPDATE positions
		SET current_value = $1, unrealized_pnl = $2, updated_at = CURRENT_TIMESTAMP
		WHERE agent_id = $3 AND symbol = $4
	`
	return r.exec(ctx, query, currentValue, unrealizedPnL, agentID, symbol)
}

func (r *PositionRepository) exec(ctx context.Context, query string, args ...interface{}) error {
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PositionRepository) scanOne(row *sql.Row) (*domain.Position, error) {
	p, err := r.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return p, err
}

func (r *PositionRepository) scanRow(row rowScanner) (*domain.Position, error) {
	p := &domain.Position{}
	var firstBuy sql.NullTime
	var currentValue, unrealizedPnL sql.NullString

	err := row.Scan(
		&p.AgentID,
		&p.Symbol,
		&p.Quantity,
		&p.AverageCost,
		&p.PositionType,
		&firstBuy,
		&currentValue,
		&unrealizedPnL,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if firstBuy.Valid {
		d := firstBuy.Time
		p.FirstBuyDate = &d
	}
	if currentValue.Valid {
		if p.CurrentValue, err = decimal.NewFromString(currentValue.String); err != nil {
			return nil, err
		}
	}
	if unrealizedPnL.Valid {
		if p.UnrealizedPnL, err = decimal.NewFromString(unrealizedPnL.String); err != nil {
			return nil, err
		}
	}
	return p, nil
}
