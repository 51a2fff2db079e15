package repository

import (
	"context"

	"github.com/kirillm/ai-fund/internal/domain"
)

// StockRepository каталог торгуемых инструментов
type StockRepository struct {
	db Querier
}

// NewStockRepository создает новый репозиторий каталога
func NewStockRepository(db Querier) *StockRepository {
	return &StockRepository{db: db}
}

// IsTradable проверяет, что символ есть в пуле, включен и имеет
// допустимый тип (stock/etf)
func (r *StockRepository) IsTradable(ctx context.Context, symbol string) (bool, error) {
	query := `
		SELECT COUNT(*) FROM stocks
		WHERE symbol = $1 AND enabled = TRUE AND type IN ($2, $3)
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, symbol, domain.StockTypeStock, domain.StockTypeETF).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListTradable получает все включенные инструменты пула
func (r *StockRepository) ListTradable(ctx context.Context) ([]domain.Stock, error) {
	query := `
		SELECT symbol, name, type, enabled FROM stocks
		WHERE enabled = TRUE AND type IN ($1, $2)
		ORDER BY symbol
	`
	rows, err := r.db.QueryContext(ctx, query, domain.StockTypeStock, domain.StockTypeETF)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stocks []domain.Stock
	for rows.Next() {
		var s domain.Stock
		if err := rows.Scan(&s.Symbol, &s.Name, &s.Type, &s.Enabled); err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

// Upsert добавляет или обновляет инструмент пула
func (r *StockRepository) Upsert(ctx context.Context, s *domain.Stock) error {
	query := `
		INSERT INTO stocks (symbol, name, type, enabled)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			enabled = EXCLUDED.enabled
	`
	_, err := r.db.ExecContext(ctx, query, s.Symbol, s.Name, s.Type, s.Enabled)
	return err
}
