package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet представляет кошелек агента (один на агента)
type Wallet struct {
	AgentID           string          `db:"agent_id"`
	CashBalance       decimal.Decimal `db:"cash_balance"`
	LongTermCash      decimal.Decimal `db:"long_term_cash"`
	ShortTermCash     decimal.Decimal `db:"short_term_cash"`
	ReservedCash      decimal.Decimal `db:"reserved_cash"`
	TotalInvested     decimal.Decimal `db:"total_invested"`
	TotalWithdrawn    decimal.Decimal `db:"total_withdrawn"`
	LastTransactionAt *time.Time      `db:"last_transaction_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// Position представляет позицию агента по одному символу.
// Строка существует только пока quantity > 0.
type Position struct {
	AgentID       string          `db:"agent_id"`
	Symbol        string          `db:"symbol"`
	Quantity      decimal.Decimal `db:"quantity"`
	AverageCost   decimal.Decimal `db:"average_cost"`
	PositionType  string          `db:"position_type"` // "LONG_TERM" or "SHORT_TERM"
	FirstBuyDate  *time.Time      `db:"first_buy_date"`
	CurrentValue  decimal.Decimal `db:"current_value"`
	UnrealizedPnL decimal.Decimal `db:"unrealized_pnl"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Transaction представляет исполненную сделку (append-only журнал)
type Transaction struct {
	ID            int64           `db:"id"`
	AgentID       string          `db:"agent_id"`
	Symbol        string          `db:"symbol"`
	Action        string          `db:"action"` // "BUY" or "SELL"
	Quantity      decimal.Decimal `db:"quantity"`
	Price         decimal.Decimal `db:"price"`
	TotalAmount   decimal.Decimal `db:"total_amount"`
	Reason        string          `db:"reason"`
	PositionType  string          `db:"position_type"`
	DecisionID    string          `db:"decision_id"`
	MarketContext json.RawMessage `db:"market_context"`
	ExecutedAt    time.Time       `db:"executed_at"`
}

// TradeQuota квота на количество сделок за период
type TradeQuota struct {
	Used  int    `json:"used"`
	Limit int    `json:"limit"`
	Month string `json:"month,omitempty"`
	Week  string `json:"week,omitempty"`
}

// Exhausted сообщает, исчерпана ли квота
func (q TradeQuota) Exhausted() bool {
	return q.Used >= q.Limit
}

// AgentState версионированное состояние агента.
// state_version увеличивается ровно на 1 при каждом успешном обновлении.
type AgentState struct {
	AgentID          string          `db:"agent_id"`
	PortfolioSummary json.RawMessage `db:"portfolio_summary"`
	InvestmentThesis string          `db:"investment_thesis"`
	MarketView       string          `db:"market_view"`
	WeeklyQuota      TradeQuota      `db:"weekly_trade_quota"`
	MonthlyQuota     TradeQuota      `db:"monthly_trade_quota"`
	StateVersion     int64           `db:"state_version"`
	LastUpdated      time.Time       `db:"last_updated"`
}

// StatePatch частичное обновление AgentState. Nil-поля не трогаются.
type StatePatch struct {
	PortfolioSummary json.RawMessage
	InvestmentThesis *string
	MarketView       *string
	WeeklyQuota      *TradeQuota
	MonthlyQuota     *TradeQuota
}

// ComplianceViolation запись о нарушении инвестиционных правил (append-only)
type ComplianceViolation struct {
	ID              int64           `db:"id"`
	AgentID         string          `db:"agent_id"`
	ViolationType   string          `db:"violation_type"`
	AttemptedAction json.RawMessage `db:"attempted_action"`
	DetectionMethod string          `db:"detection_method"`
	Severity        string          `db:"severity"`
	Notes           string          `db:"notes"`
	DetectedAt      time.Time       `db:"detected_at"`
}

// Stock представляет инструмент из торгового пула
type Stock struct {
	Symbol  string `db:"symbol"`
	Name    string `db:"name"`
	Type    string `db:"type"` // "stock" or "etf"
	Enabled bool   `db:"enabled"`
}

// Agent конфигурация AI-агента
type Agent struct {
	AgentID     string  `db:"agent_id"`
	Name        string  `db:"name"`
	Model       string  `db:"model"`
	APIURL      string  `db:"api_url"`
	APIKeyEnv   string  `db:"api_key_env"`
	Temperature float64 `db:"temperature"`
	Enabled     bool    `db:"enabled"`
}

// Decision предложение сделки от оракула. Не персистится: после
// исполнения остается строка Transaction, после отказа - записи
// в журнале нарушений.
type Decision struct {
	DecisionID    string          `json:"decision_id,omitempty"`
	DecisionType  string          `json:"decision_type"`
	Symbol        string          `json:"symbol,omitempty"`
	Quantity      decimal.Decimal `json:"quantity,omitempty"`
	Price         decimal.Decimal `json:"price,omitempty"`
	PositionType  string          `json:"position_type,omitempty"`
	Reasoning     string          `json:"reasoning,omitempty"`
	Confidence    float64         `json:"confidence,omitempty"`
	MarketContext json.RawMessage `json:"market_context,omitempty"`
}

// TotalAmount сумма сделки (quantity * price)
func (d *Decision) TotalAmount() decimal.Decimal {
	return d.Quantity.Mul(d.Price)
}
