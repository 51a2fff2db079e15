package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/kirillm/ai-fund/internal/ai"
	"github.com/kirillm/ai-fund/internal/calendar"
	"github.com/kirillm/ai-fund/internal/domain"
	"github.com/kirillm/ai-fund/internal/validator"
	"github.com/kirillm/ai-fund/pkg/utils"
)

// Store интерфейс для работы с БД
type Store interface {
	GetWallet(ctx context.Context, agentID string) (*domain.Wallet, error)
	ListPositions(ctx context.Context, agentID string) ([]domain.Position, error)
	GetRecentTransactions(ctx context.Context, agentID string, limit int) ([]domain.Transaction, error)
	ListTradableStocks(ctx context.Context) ([]domain.Stock, error)
}

// StateManager управление состоянием и квотами агента
type StateManager interface {
	LoadState(ctx context.Context, agentID string) (*domain.AgentState, error)
	ResetMonthlyQuota(ctx context.Context, agentID, monthLabel string) error
	ResetWeeklyQuota(ctx context.Context, agentID, weekLabel string) error
}

// Validator проверка решения по цепочке правил
type Validator interface {
	Validate(ctx context.Context, agentID string, d *domain.Decision) (*validator.Result, error)
}

// TradeExecutor атомарное исполнение одобренной сделки
type TradeExecutor interface {
	ExecuteTrade(ctx context.Context, agentID string, d *domain.Decision) error
}

// Oracle LLM-оракул агента
type Oracle interface {
	Chat(ctx context.Context, model string, messages []ai.Message, temperature float64) (string, error)
}

// Calendar дает текущую торговую дату
type Calendar interface {
	Today() time.Time
}

// Результаты запуска
const (
	OutcomeTraded  = "TRADED"
	OutcomeNoTrade = "NO_TRADE"
)

// Outcome итог одного запуска агента
type Outcome struct {
	Result   string
	Decision *domain.Decision
	Attempts int
	Reason   string
}

// Controller связывает оракула с валидатором и исполнителем.
// За один запуск делается не больше maxAttempts попыток получить
// валидное решение; каждая отклоненная попытка попадает в промпт
// следующей.
type Controller struct {
	store       Store
	states      StateManager
	validator   Validator
	executor    TradeExecutor
	cal         Calendar
	maxAttempts int
	recentLimit int
	logger      *utils.Logger
}

// NewController создает новый контроллер решений
func NewController(store Store, states StateManager, v Validator, ex TradeExecutor, cal Calendar, maxAttempts int) *Controller {
	return &Controller{
		store:       store,
		states:      states,
		validator:   v,
		executor:    ex,
		cal:         cal,
		maxAttempts: maxAttempts,
		recentLimit: 10,
		logger:      utils.NewLogger("workflow"),
	}
}

// Run выполняет один торговый цикл агента. Возвращает Outcome при
// любом штатном исходе; ошибка означает сбой инфраструктуры или
// исполнения, а не плохие решения оракула.
func (c *Controller) Run(ctx context.Context, agent *domain.Agent, oracle Oracle, prices map[string]decimal.Decimal) (*Outcome, error) {
	today := c.cal.Today()
	if !calendar.IsTradingDay(today) {
		c.logger.Info("Market closed on %s, skipping agent %s", today.Format("2006-01-02"), agent.AgentID)
		return &Outcome{Result: OutcomeNoTrade, Reason: "market closed"}, nil
	}

	state, err := c.refreshQuotas(ctx, agent.AgentID, today)
	if err != nil {
		return nil, err
	}

	if state.MonthlyQuota.Exhausted() {
		c.logger.Info("Agent %s has no monthly quota left (%d/%d)",
			agent.AgentID, state.MonthlyQuota.Used, state.MonthlyQuota.Limit)
		return &Outcome{Result: OutcomeNoTrade, Reason: "monthly trade quota exhausted"}, nil
	}

	data, err := c.collectPromptData(ctx, agent, state, prices, today)
	if err != nil {
		return nil, err
	}

	var failures []ai.ValidationFailure
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		decision, ok := c.generateDecision(ctx, agent, oracle, data, failures, attempt)
		if !ok {
			continue
		}

		if decision.DecisionType == domain.DecisionHold {
			c.logger.Info("Agent %s holds: %s", agent.AgentID, decision.Reasoning)
			return &Outcome{
				Result:   OutcomeNoTrade,
				Decision: decision,
				Attempts: attempt,
				Reason:   decision.Reasoning,
			}, nil
		}

		decision.DecisionID = ulid.Make().String()

		result, err := c.validator.Validate(ctx, agent.AgentID, decision)
		if err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
		if !result.OK {
			failures = append(failures, ai.ValidationFailure{
				Attempt:       attempt,
				ViolationType: result.ViolationType,
				Reason:        result.Reason,
			})
			continue
		}

		// Одобренное решение исполняется ровно один раз; сбой
		// исполнения - жесткая ошибка, а не повод для новой попытки
		if err := c.executor.ExecuteTrade(ctx, agent.AgentID, decision); err != nil {
			return nil, fmt.Errorf("execution failed: %w", err)
		}

		return &Outcome{
			Result:   OutcomeTraded,
			Decision: decision,
			Attempts: attempt,
		}, nil
	}

	c.logger.Warn("Agent %s exhausted %d attempts without a valid decision", agent.AgentID, c.maxAttempts)
	return &Outcome{
		Result:   OutcomeNoTrade,
		Attempts: c.maxAttempts,
		Reason:   fmt.Sprintf("no valid decision in %d attempts", c.maxAttempts),
	}, nil
}

// generateDecision один вызов оракула с разбором ответа. Нечитаемый
// ответ дает ровно один повторный запрос с жестким требованием формата.
// Ложный второй результат означает, что попытка потрачена впустую.
func (c *Controller) generateDecision(ctx context.Context, agent *domain.Agent, oracle Oracle, data ai.PromptData, failures []ai.ValidationFailure, attempt int) (*domain.Decision, bool) {
	messages := []ai.Message{
		{Role: "system", Content: ai.GetSystemPrompt()},
		{Role: "user", Content: ai.BuildDecisionPrompt(data, failures)},
	}

	raw, err := oracle.Chat(ctx, agent.Model, messages, agent.Temperature)
	if err != nil {
		c.logger.Error("Oracle call failed for agent %s (attempt %d): %v", agent.AgentID, attempt, err)
		return nil, false
	}

	decision, err := ai.ParseDecision(raw)
	if err == nil {
		return decision, true
	}
	c.logger.Warn("Unparseable oracle response for agent %s (attempt %d): %v", agent.AgentID, attempt, err)

	retryMessages := append(messages,
		ai.Message{Role: "assistant", Content: raw},
		ai.Message{Role: "user", Content: ai.GetStrictFormatPrompt()},
	)
	raw, err = oracle.Chat(ctx, agent.Model, retryMessages, agent.Temperature)
	if err != nil {
		c.logger.Error("Oracle retry failed for agent %s (attempt %d): %v", agent.AgentID, attempt, err)
		return nil, false
	}

	decision, err = ai.ParseDecision(raw)
	if err != nil {
		c.logger.Warn("Oracle response still unparseable for agent %s (attempt %d): %v", agent.AgentID, attempt, err)
		return nil, false
	}
	return decision, true
}

// refreshQuotas сбрасывает квоты при смене месяца или ISO-недели
func (c *Controller) refreshQuotas(ctx context.Context, agentID string, today time.Time) (*domain.AgentState, error) {
	state, err := c.states.LoadState(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	monthLabel := today.Format("2006-01")
	year, week := today.ISOWeek()
	weekLabel := fmt.Sprintf("%d-W%02d", year, week)

	changed := false
	if state.MonthlyQuota.Month != monthLabel {
		if err := c.states.ResetMonthlyQuota(ctx, agentID, monthLabel); err != nil {
			return nil, fmt.Errorf("failed to reset monthly quota: %w", err)
		}
		changed = true
	}
	if state.WeeklyQuota.Week != weekLabel {
		if err := c.states.ResetWeeklyQuota(ctx, agentID, weekLabel); err != nil {
			return nil, fmt.Errorf("failed to reset weekly quota: %w", err)
		}
		changed = true
	}

	if changed {
		state, err = c.states.LoadState(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload state: %w", err)
		}
	}
	return state, nil
}

func (c *Controller) collectPromptData(ctx context.Context, agent *domain.Agent, state *domain.AgentState, prices map[string]decimal.Decimal, today time.Time) (ai.PromptData, error) {
	wallet, err := c.store.GetWallet(ctx, agent.AgentID)
	if err != nil {
		return ai.PromptData{}, fmt.Errorf("failed to load wallet: %w", err)
	}
	positions, err := c.store.ListPositions(ctx, agent.AgentID)
	if err != nil {
		return ai.PromptData{}, fmt.Errorf("failed to load positions: %w", err)
	}
	recent, err := c.store.GetRecentTransactions(ctx, agent.AgentID, c.recentLimit)
	if err != nil {
		return ai.PromptData{}, fmt.Errorf("failed to load transactions: %w", err)
	}
	pool, err := c.store.ListTradableStocks(ctx)
	if err != nil {
		return ai.PromptData{}, fmt.Errorf("failed to load stock pool: %w", err)
	}

	return ai.PromptData{
		Agent:        agent,
		State:        state,
		Wallet:       wallet,
		Positions:    positions,
		RecentTrades: recent,
		StockPool:    pool,
		Prices:       prices,
		Today:        today,
	}, nil
}
