package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillm/ai-fund/internal/calendar"
	"github.com/kirillm/ai-fund/internal/domain"
)

// ValidationFailure одна отклоненная попытка в рамках запуска
type ValidationFailure struct {
	Attempt       int
	ViolationType string
	Reason        string
}

// PromptData контекст для построения промпта решения
type PromptData struct {
	Agent        *domain.Agent
	State        *domain.AgentState
	Wallet       *domain.Wallet
	Positions    []domain.Position
	RecentTrades []domain.Transaction
	StockPool    []domain.Stock
	Prices       map[string]decimal.Decimal
	Today        time.Time
}

// GetSystemPrompt возвращает системный промпт инвестиционного агента
func GetSystemPrompt() string {
	return `You are an autonomous AI portfolio manager competing against other AI agents.

# Your Role
You manage a real-money stock portfolio. Each trading day you review your
portfolio, market prices, and your own investment thesis, then produce exactly
ONE decision: BUY, SELL, or HOLD.

# Accounts
Your cash is split between two sub-accounts:
- LONG_TERM: positions held at least 30 calendar days before selling
- SHORT_TERM: positions you may sell at any time

A BUY spends cash from the chosen sub-account; a SELL returns proceeds to the
sub-account the position belongs to.

# Hard Rules (violations are rejected and logged)
1. Only symbols from the provided stock pool are tradable
2. You have a monthly trade quota; when it is exhausted, only HOLD is accepted
3. A BUY must fit within the chosen sub-account's cash
4. A LONG_TERM position cannot be sold before 30 calendar days have passed
   since the first purchase
5. You cannot sell more shares than you hold

# Response Format

Return ONLY valid JSON (no markdown, no text outside JSON):

{
  "decision_type": "BUY|SELL|HOLD",
  "symbol": "AAPL",
  "quantity": 10,
  "price": 195.50,
  "position_type": "LONG_TERM|SHORT_TERM",
  "reasoning": "Brief explanation of your decision",
  "confidence": 0.0-1.0
}

For HOLD only decision_type and reasoning are required.
For BUY all fields are required.
For SELL position_type may be omitted; the position's own type applies.

# Important Notes
- Always provide reasoning
- Use the current market price provided in the context
- HOLD is a perfectly valid decision; do not trade for the sake of trading
- Prioritize capital preservation over aggressive gains`
}

// BuildDecisionPrompt строит промпт с портфелем, квотами и полным
// списком отклоненных попыток этого запуска
func BuildDecisionPrompt(data PromptData, failures []ValidationFailure) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review your portfolio and make today's decision.\n\n")
	fmt.Fprintf(&b, "Date: %s\n", data.Today.Format("2006-01-02"))
	fmt.Fprintf(&b, "Agent: %s\n\n", data.Agent.Name)

	walletJSON, _ := json.MarshalIndent(walletView(data.Wallet), "", "  ")
	fmt.Fprintf(&b, "Wallet:\n%s\n\n", walletJSON)

	positionsJSON, _ := json.MarshalIndent(positionViews(data.Positions, data.Today), "", "  ")
	fmt.Fprintf(&b, "Positions:\n%s\n\n", positionsJSON)

	fmt.Fprintf(&b, "Monthly trade quota: %d of %d used\n",
		data.State.MonthlyQuota.Used, data.State.MonthlyQuota.Limit)
	fmt.Fprintf(&b, "Weekly trade quota: %d of %d used\n\n",
		data.State.WeeklyQuota.Used, data.State.WeeklyQuota.Limit)

	if data.State.InvestmentThesis != "" {
		fmt.Fprintf(&b, "Your investment thesis:\n%s\n\n", data.State.InvestmentThesis)
	}
	if data.State.MarketView != "" {
		fmt.Fprintf(&b, "Your market view:\n%s\n\n", data.State.MarketView)
	}

	b.WriteString("Tradable stock pool with current prices:\n")
	for _, s := range data.StockPool {
		if price, ok := data.Prices[s.Symbol]; ok {
			fmt.Fprintf(&b, "- %s (%s, %s): %s\n", s.Symbol, s.Name, s.Type, price.StringFixed(2))
		} else {
			fmt.Fprintf(&b, "- %s (%s, %s): price unavailable\n", s.Symbol, s.Name, s.Type)
		}
	}
	b.WriteString("\n")

	if len(data.RecentTrades) > 0 {
		b.WriteString("Your recent trades:\n")
		for _, t := range data.RecentTrades {
			fmt.Fprintf(&b, "- %s %s %s %s @ %s\n",
				t.ExecutedAt.Format("2006-01-02"), t.Action, t.Quantity.String(), t.Symbol, t.Price.String())
		}
		b.WriteString("\n")
	}

	if len(failures) > 0 {
		b.WriteString("IMPORTANT: your previous decisions in this session were REJECTED:\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- Attempt %d: %s - %s\n", f.Attempt, f.ViolationType, f.Reason)
			if guidance := guidanceFor(f.ViolationType); guidance != "" {
				fmt.Fprintf(&b, "  Guidance: %s\n", guidance)
			}
		}
		b.WriteString("Produce a decision that does not repeat these violations.\n\n")
	}

	b.WriteString("Respond with a single JSON object, no markdown.")
	return b.String()
}

// GetStrictFormatPrompt повторный запрос после нечитаемого ответа
func GetStrictFormatPrompt() string {
	return `Your previous response could not be parsed as JSON.

Respond again with ONLY a valid JSON object. No markdown code fences, no text
before or after. Use double quotes for all keys and string values. Example:

{"decision_type": "HOLD", "reasoning": "Waiting for a better entry point."}`
}

// guidanceFor подсказка по типу нарушения для следующей попытки
func guidanceFor(violationType string) string {
	switch violationType {
	case domain.ViolationInvalidStock, domain.ViolationMissingSymbol:
		return "Pick a symbol from the tradable stock pool listed above."
	case domain.ViolationQuotaExceeded:
		return "Your trade quota is exhausted. HOLD is the appropriate decision."
	case domain.ViolationInsufficientLongTerm, domain.ViolationInsufficientShortTerm:
		return "Reduce the quantity or use the other sub-account with enough cash."
	case domain.ViolationWashTrade:
		return "LONG_TERM positions must be held 30 calendar days. Pick another position or HOLD."
	case domain.ViolationPositionNotFound:
		return "You can only sell symbols you currently hold. Check your positions list."
	case domain.ViolationMissingPositionType, domain.ViolationInvalidPositionType:
		return "BUY requires position_type of LONG_TERM or SHORT_TERM."
	default:
		return ""
	}
}

type walletSummary struct {
	CashBalance   string `json:"cash_balance"`
	LongTermCash  string `json:"long_term_cash"`
	ShortTermCash string `json:"short_term_cash"`
}

func walletView(w *domain.Wallet) walletSummary {
	return walletSummary{
		CashBalance:   w.CashBalance.StringFixed(2),
		LongTermCash:  w.LongTermCash.StringFixed(2),
		ShortTermCash: w.ShortTermCash.StringFixed(2),
	}
}

type positionSummary struct {
	Symbol       string `json:"symbol"`
	Quantity     string `json:"quantity"`
	AverageCost  string `json:"average_cost"`
	PositionType string `json:"position_type"`
	HeldDays     int    `json:"held_days,omitempty"`
}

func positionViews(positions []domain.Position, today time.Time) []positionSummary {
	views := make([]positionSummary, 0, len(positions))
	for _, p := range positions {
		v := positionSummary{
			Symbol:       p.Symbol,
			Quantity:     p.Quantity.String(),
			AverageCost:  p.AverageCost.StringFixed(2),
			PositionType: p.PositionType,
		}
		if p.FirstBuyDate != nil {
			v.HeldDays = calendar.DaysBetween(*p.FirstBuyDate, today)
		}
		views = append(views, v)
	}
	return views
}
