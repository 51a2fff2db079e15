package executor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/ai-fund/internal/domain"
)

// ledgerState снимок портфеля в памяти
type ledgerState struct {
	wallet       domain.Wallet
	positions    map[string]domain.Position
	transactions []domain.Transaction
	monthlyUsed  int
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		wallet:       s.wallet,
		positions:    make(map[string]domain.Position, len(s.positions)),
		transactions: append([]domain.Transaction(nil), s.transactions...),
		monthlyUsed:  s.monthlyUsed,
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	return c
}

// fakeLedger моделирует транзакционность: fn работает с копией
// состояния, копия становится текущим состоянием только при успехе
type fakeLedger struct {
	state *ledgerState
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		state: &ledgerState{
			wallet: domain.Wallet{
				AgentID:       "agent-1",
				CashBalance:   decimal.NewFromInt(10000),
				LongTermCash:  decimal.NewFromInt(7000),
				ShortTermCash: decimal.NewFromInt(3000),
			},
			positions: map[string]domain.Position{},
		},
	}
}

func (l *fakeLedger) ExecuteAtomic(ctx context.Context, fn func(tx LedgerTx) error) error {
	working := l.state.clone()
	if err := fn(&fakeTx{state: working}); err != nil {
		return err
	}
	l.state = working
	return nil
}

func (l *fakeLedger) ListPositions(ctx context.Context, agentID string) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range l.state.positions {
		out = append(out, p)
	}
	return out, nil
}

func (l *fakeLedger) SetPositionMarketValue(ctx context.Context, agentID, symbol string, currentValue, unrealizedPnL decimal.Decimal) error {
	p, ok := l.state.positions[symbol]
	if !ok {
		return domain.ErrNotFound
	}
	p.CurrentValue = currentValue
	p.UnrealizedPnL = unrealizedPnL
	l.state.positions[symbol] = p
	return nil
}

type fakeTx struct {
	state *ledgerState
}

func (t *fakeTx) GetPositionForUpdate(ctx context.Context, agentID, symbol string) (*domain.Position, error) {
	p, ok := t.state.positions[symbol]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (t *fakeTx) CreatePosition(ctx context.Context, p *domain.Position) error {
	t.state.positions[p.Symbol] = *p
	return nil
}

func (t *fakeTx) SetPositionAmount(ctx context.Context, agentID, symbol string, quantity, averageCost decimal.Decimal) error {
	p := t.state.positions[symbol]
	p.Quantity = quantity
	p.AverageCost = averageCost
	t.state.positions[symbol] = p
	return nil
}

func (t *fakeTx) SetPositionQuantity(ctx context.Context, agentID, symbol string, quantity decimal.Decimal) error {
	p := t.state.positions[symbol]
	p.Quantity = quantity
	t.state.positions[symbol] = p
	return nil
}

func (t *fakeTx) DeletePosition(ctx context.Context, agentID, symbol string) error {
	delete(t.state.positions, symbol)
	return nil
}

func (t *fakeTx) ApplyBuy(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error {
	t.state.wallet.CashBalance = t.state.wallet.CashBalance.Sub(amount)
	if positionType == domain.PositionLongTerm {
		t.state.wallet.LongTermCash = t.state.wallet.LongTermCash.Sub(amount)
	} else {
		t.state.wallet.ShortTermCash = t.state.wallet.ShortTermCash.Sub(amount)
	}
	t.state.wallet.TotalInvested = t.state.wallet.TotalInvested.Add(amount)
	return nil
}

func (t *fakeTx) ApplySell(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error {
	t.state.wallet.CashBalance = t.state.wallet.CashBalance.Add(amount)
	if positionType == domain.PositionLongTerm {
		t.state.wallet.LongTermCash = t.state.wallet.LongTermCash.Add(amount)
	} else {
		t.state.wallet.ShortTermCash = t.state.wallet.ShortTermCash.Add(amount)
	}
	t.state.wallet.TotalWithdrawn = t.state.wallet.TotalWithdrawn.Add(amount)
	return nil
}

func (t *fakeTx) SaveTransaction(ctx context.Context, tr *domain.Transaction) error {
	t.state.transactions = append(t.state.transactions, *tr)
	return nil
}

func (t *fakeTx) IncrementMonthlyUsed(ctx context.Context, agentID string) error {
	t.state.monthlyUsed++
	return nil
}

type fixedCalendar struct {
	today time.Time
}

func (c fixedCalendar) Today() time.Time {
	return c.today
}

var testDay = time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

func newTestExecutor(l *fakeLedger) *Executor {
	return NewExecutor(l, fixedCalendar{today: testDay})
}

// walletSplitOK проверяет инвариант cash_balance = long + short + reserved
func walletSplitOK(w domain.Wallet) bool {
	sum := w.LongTermCash.Add(w.ShortTermCash).Add(w.ReservedCash)
	return w.CashBalance.Equal(sum)
}

func TestExecuteTrade_BuyCreatesPosition(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	err := ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(100),
		PositionType: domain.PositionLongTerm,
		DecisionID:   "dec-1",
		Reasoning:    "long-term value",
	})
	require.NoError(t, err)

	pos, ok := ledger.state.positions["AAPL"]
	require.True(t, ok, "position should exist")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.AverageCost.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, pos.FirstBuyDate)
	assert.Equal(t, testDay, *pos.FirstBuyDate)

	// Кошелек: общий баланс и субсчет уменьшаются на одну сумму
	w := ledger.state.wallet
	assert.True(t, w.CashBalance.Equal(decimal.NewFromInt(9000)), "cash balance = %s", w.CashBalance)
	assert.True(t, w.LongTermCash.Equal(decimal.NewFromInt(6000)), "long-term cash = %s", w.LongTermCash)
	assert.True(t, w.ShortTermCash.Equal(decimal.NewFromInt(3000)), "short-term cash untouched")
	assert.True(t, walletSplitOK(w), "wallet split invariant broken")

	require.Len(t, ledger.state.transactions, 1)
	tr := ledger.state.transactions[0]
	assert.Equal(t, domain.DecisionBuy, tr.Action)
	assert.Equal(t, "dec-1", tr.DecisionID)
	assert.True(t, tr.TotalAmount.Equal(decimal.NewFromInt(1000)))

	assert.Equal(t, 1, ledger.state.monthlyUsed)
}

func TestExecuteTrade_BuyRecomputesWeightedAverage(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	buy := func(qty, price int64) error {
		return ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
			DecisionType: domain.DecisionBuy,
			Symbol:       "AAPL",
			Quantity:     decimal.NewFromInt(qty),
			Price:        decimal.NewFromInt(price),
			PositionType: domain.PositionLongTerm,
		})
	}

	require.NoError(t, buy(10, 100))
	require.NoError(t, buy(10, 200))

	pos := ledger.state.positions["AAPL"]
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(20)), "quantity = %s", pos.Quantity)
	assert.True(t, pos.AverageCost.Equal(decimal.NewFromInt(150)), "average cost = %s, want 150", pos.AverageCost)
	assert.Equal(t, 2, ledger.state.monthlyUsed)
}

func TestExecuteTrade_BuyPositionTypeMismatch(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	require.NoError(t, ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(100),
		PositionType: domain.PositionLongTerm,
	}))
	before := ledger.state.clone()

	err := ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(5),
		Price:        decimal.NewFromInt(100),
		PositionType: domain.PositionShortTerm,
	})
	require.ErrorIs(t, err, domain.ErrPositionTypeMismatch)

	// Откат: ничего не изменилось
	assert.True(t, ledger.state.wallet.CashBalance.Equal(before.wallet.CashBalance))
	assert.True(t, ledger.state.positions["AAPL"].Quantity.Equal(before.positions["AAPL"].Quantity))
	assert.Len(t, ledger.state.transactions, len(before.transactions))
	assert.Equal(t, before.monthlyUsed, ledger.state.monthlyUsed)
}

func TestExecuteTrade_SellPartial(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	require.NoError(t, ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(100),
		PositionType: domain.PositionLongTerm,
	}))

	err := ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionSell,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(4),
		Price:        decimal.NewFromInt(150),
		// Заявленный тип игнорируется: в журнал идет тип позиции
		PositionType: domain.PositionShortTerm,
	})
	require.NoError(t, err)

	pos := ledger.state.positions["AAPL"]
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(6)), "quantity = %s", pos.Quantity)
	assert.True(t, pos.AverageCost.Equal(decimal.NewFromInt(100)), "average cost must not change on sell")

	w := ledger.state.wallet
	// 10000 - 1000 + 600
	assert.True(t, w.CashBalance.Equal(decimal.NewFromInt(9600)), "cash balance = %s", w.CashBalance)
	assert.True(t, w.LongTermCash.Equal(decimal.NewFromInt(6600)), "proceeds go to the position's own account")
	assert.True(t, walletSplitOK(w), "wallet split invariant broken")

	require.Len(t, ledger.state.transactions, 2)
	sell := ledger.state.transactions[1]
	assert.Equal(t, domain.DecisionSell, sell.Action)
	assert.Equal(t, domain.PositionLongTerm, sell.PositionType)
}

func TestExecuteTrade_SellToZeroDeletesPosition(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	require.NoError(t, ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(100),
		PositionType: domain.PositionShortTerm,
	}))

	require.NoError(t, ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionSell,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(120),
	}))

	_, ok := ledger.state.positions["AAPL"]
	assert.False(t, ok, "position with zero quantity must be deleted")
	assert.True(t, walletSplitOK(ledger.state.wallet))
}

func TestExecuteTrade_OversellRollsBack(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	require.NoError(t, ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(100),
		PositionType: domain.PositionLongTerm,
	}))
	before := ledger.state.clone()

	err := ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionSell,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(11),
		Price:        decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientQuantity)

	assert.True(t, ledger.state.wallet.CashBalance.Equal(before.wallet.CashBalance))
	assert.True(t, ledger.state.positions["AAPL"].Quantity.Equal(before.positions["AAPL"].Quantity))
	assert.Len(t, ledger.state.transactions, len(before.transactions))
	assert.Equal(t, before.monthlyUsed, ledger.state.monthlyUsed)
}

func TestExecuteTrade_SellWithoutPosition(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	err := ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionSell,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(1),
		Price:        decimal.NewFromInt(100),
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExecuteTrade_HoldIsNotExecutable(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	err := ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionHold,
	})
	require.ErrorIs(t, err, domain.ErrInvalidDecision)
}

func TestUpdatePositionValues(t *testing.T) {
	ledger := newFakeLedger()
	ex := newTestExecutor(ledger)

	require.NoError(t, ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "AAPL",
		Quantity:     decimal.NewFromInt(10),
		Price:        decimal.NewFromInt(100),
		PositionType: domain.PositionLongTerm,
	}))
	require.NoError(t, ex.ExecuteTrade(context.Background(), "agent-1", &domain.Decision{
		DecisionType: domain.DecisionBuy,
		Symbol:       "VOO",
		Quantity:     decimal.NewFromInt(5),
		Price:        decimal.NewFromInt(400),
		PositionType: domain.PositionLongTerm,
	}))

	prices := map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(120),
		// Цены для VOO нет: позиция пропускается
	}
	require.NoError(t, ex.UpdatePositionValues(context.Background(), "agent-1", prices))

	aapl := ledger.state.positions["AAPL"]
	assert.True(t, aapl.CurrentValue.Equal(decimal.NewFromInt(1200)), "current value = %s", aapl.CurrentValue)
	assert.True(t, aapl.UnrealizedPnL.Equal(decimal.NewFromInt(200)), "unrealized = %s", aapl.UnrealizedPnL)

	voo := ledger.state.positions["VOO"]
	assert.True(t, voo.CurrentValue.IsZero(), "VOO must be skipped")

	// Повторный прогон дает тот же результат
	require.NoError(t, ex.UpdatePositionValues(context.Background(), "agent-1", prices))
	aapl = ledger.state.positions["AAPL"]
	assert.True(t, aapl.CurrentValue.Equal(decimal.NewFromInt(1200)))
}
