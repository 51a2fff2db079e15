package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/ai-fund/internal/domain"
	"github.com/kirillm/ai-fund/pkg/utils"
)

// Ledger является контрактом на хранилище портфеля. Реализуется
// storage.PostgresStorage.
type Ledger interface {
	ExecuteAtomic(ctx context.Context, fn func(tx LedgerTx) error) error
	ListPositions(ctx context.Context, agentID string) ([]domain.Position, error)
	SetPositionMarketValue(ctx context.Context, agentID, symbol string, currentValue, unrealizedPnL decimal.Decimal) error
}

// LedgerTx набор операций, доступных внутри одной транзакции.
// Все изменения либо применяются целиком, либо откатываются.
type LedgerTx interface {
	GetPositionForUpdate(ctx context.Context, agentID, symbol string) (*domain.Position, error)
	CreatePosition(ctx context.Context, p *domain.Position) error
	SetPositionAmount(ctx context.Context, agentID, symbol string, quantity, averageCost decimal.Decimal) error
	SetPositionQuantity(ctx context.Context, agentID, symbol string, quantity decimal.Decimal) error
	DeletePosition(ctx context.Context, agentID, symbol string) error
	ApplyBuy(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error
	ApplySell(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error
	SaveTransaction(ctx context.Context, t *domain.Transaction) error
	IncrementMonthlyUsed(ctx context.Context, agentID string) error
}

// Calendar дает текущую торговую дату
type Calendar interface {
	Today() time.Time
}

// Средняя цена позиции хранится с точностью 4 знака
const averageCostScale = 4

// Executor атомарно применяет одобренные сделки к портфелю
type Executor struct {
	ledger Ledger
	cal    Calendar
	logger *utils.Logger
}

// NewExecutor создает новый исполнитель сделок
func NewExecutor(ledger Ledger, cal Calendar) *Executor {
	return &Executor{
		ledger: ledger,
		cal:    cal,
		logger: utils.NewLogger("executor"),
	}
}

// ExecuteTrade применяет сделку к портфелю в одной транзакции:
// позиция, кошелек, журнал транзакций и месячная квота меняются
// вместе или не меняются вовсе.
func (e *Executor) ExecuteTrade(ctx context.Context, agentID string, d *domain.Decision) error {
	switch d.DecisionType {
	case domain.DecisionBuy:
		return e.executeBuy(ctx, agentID, d)
	case domain.DecisionSell:
		return e.executeSell(ctx, agentID, d)
	default:
		return fmt.Errorf("%w: cannot execute decision type %q", domain.ErrInvalidDecision, d.DecisionType)
	}
}

func (e *Executor) executeBuy(ctx context.Context, agentID string, d *domain.Decision) error {
	total := d.TotalAmount()

	err := e.ledger.ExecuteAtomic(ctx, func(tx LedgerTx) error {
		pos, err := tx.GetPositionForUpdate(ctx, agentID, d.Symbol)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			firstBuy := e.cal.Today()
			if err := tx.CreatePosition(ctx, &domain.Position{
				AgentID:      agentID,
				Symbol:       d.Symbol,
				Quantity:     d.Quantity,
				AverageCost:  d.Price.Round(averageCostScale),
				PositionType: d.PositionType,
				FirstBuyDate: &firstBuy,
			}); err != nil {
				return fmt.Errorf("failed to create position: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to lock position: %w", err)
		default:
			if pos.PositionType != d.PositionType {
				return fmt.Errorf("%w: position %s is %s, decision says %s",
					domain.ErrPositionTypeMismatch, d.Symbol, pos.PositionType, d.PositionType)
			}
			newQuantity := pos.Quantity.Add(d.Quantity)
			// Средневзвешенная цена по старой и новой партии
			newAverage := pos.Quantity.Mul(pos.AverageCost).Add(total).DivRound(newQuantity, averageCostScale)
			if err := tx.SetPositionAmount(ctx, agentID, d.Symbol, newQuantity, newAverage); err != nil {
				return fmt.Errorf("failed to update position: %w", err)
			}
		}

		if err := tx.ApplyBuy(ctx, agentID, d.PositionType, total); err != nil {
			return fmt.Errorf("failed to debit wallet: %w", err)
		}

		if err := tx.SaveTransaction(ctx, &domain.Transaction{
			AgentID:       agentID,
			Symbol:        d.Symbol,
			Action:        domain.DecisionBuy,
			Quantity:      d.Quantity,
			Price:         d.Price,
			TotalAmount:   total,
			Reason:        d.Reasoning,
			PositionType:  d.PositionType,
			DecisionID:    d.DecisionID,
			MarketContext: d.MarketContext,
		}); err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}

		return tx.IncrementMonthlyUsed(ctx, agentID)
	})
	if err != nil {
		return err
	}

	e.logger.Info("Executed BUY %s %s @ %s for agent %s (total %s)",
		d.Quantity.String(), d.Symbol, d.Price.String(), agentID, total.String())
	return nil
}

func (e *Executor) executeSell(ctx context.Context, agentID string, d *domain.Decision) error {
	total := d.TotalAmount()

	err := e.ledger.ExecuteAtomic(ctx, func(tx LedgerTx) error {
		pos, err := tx.GetPositionForUpdate(ctx, agentID, d.Symbol)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: no position in %s", domain.ErrNotFound, d.Symbol)
		}
		if err != nil {
			return fmt.Errorf("failed to lock position: %w", err)
		}

		if d.Quantity.GreaterThan(pos.Quantity) {
			return fmt.Errorf("%w: have %s %s, selling %s",
				domain.ErrInsufficientQuantity, pos.Quantity.String(), d.Symbol, d.Quantity.String())
		}

		remaining := pos.Quantity.Sub(d.Quantity)
		if remaining.IsZero() {
			if err := tx.DeletePosition(ctx, agentID, d.Symbol); err != nil {
				return fmt.Errorf("failed to close position: %w", err)
			}
		} else {
			// Средняя цена при частичной продаже не меняется
			if err := tx.SetPositionQuantity(ctx, agentID, d.Symbol, remaining); err != nil {
				return fmt.Errorf("failed to reduce position: %w", err)
			}
		}

		if err := tx.ApplySell(ctx, agentID, pos.PositionType, total); err != nil {
			return fmt.Errorf("failed to credit wallet: %w", err)
		}

		// В журнал пишется фактический тип позиции, а не заявленный
		if err := tx.SaveTransaction(ctx, &domain.Transaction{
			AgentID:       agentID,
			Symbol:        d.Symbol,
			Action:        domain.DecisionSell,
			Quantity:      d.Quantity,
			Price:         d.Price,
			TotalAmount:   total,
			Reason:        d.Reasoning,
			PositionType:  pos.PositionType,
			DecisionID:    d.DecisionID,
			MarketContext: d.MarketContext,
		}); err != nil {
			return fmt.Errorf("failed to record transaction: %w", err)
		}

		return tx.IncrementMonthlyUsed(ctx, agentID)
	})
	if err != nil {
		return err
	}

	e.logger.Info("Executed SELL %s %s @ %s for agent %s (total %s)",
		d.Quantity.String(), d.Symbol, d.Price.String(), agentID, total.String())
	return nil
}

// UpdatePositionValues пересчитывает рыночную стоимость и unrealized PnL
// всех позиций агента по переданным ценам. Позиции без цены пропускаются.
// Операция идемпотентна.
func (e *Executor) UpdatePositionValues(ctx context.Context, agentID string, prices map[string]decimal.Decimal) error {
	positions, err := e.ledger.ListPositions(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to list positions: %w", err)
	}

	for _, pos := range positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			e.logger.Warn("No price for %s, skipping mark-to-market", pos.Symbol)
			continue
		}
		currentValue := pos.Quantity.Mul(price)
		unrealized := currentValue.Sub(pos.Quantity.Mul(pos.AverageCost))
		if err := e.ledger.SetPositionMarketValue(ctx, agentID, pos.Symbol, currentValue, unrealized); err != nil {
			return fmt.Errorf("failed to update market value for %s: %w", pos.Symbol, err)
		}
	}

	return nil
}
