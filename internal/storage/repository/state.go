package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillm/ai-fund/internal/domain"
)

// StateRepository реализует работу с версионированным состоянием агентов
type StateRepository struct {
	db Querier
}

// NewStateRepository создает новый репозиторий состояния
func NewStateRepository(db Querier) *StateRepository {
	return &StateRepository{db: db}
}

// Get получает состояние агента
func (r *StateRepository) Get(ctx context.Context, agentID string) (*domain.AgentState, error) {
	query := `
		SELECT agent_id, portfolio_summary, investment_thesis, market_view,
		       weekly_trade_quota, monthly_trade_quota, state_version, last_updated
		FROM ai_state
		WHERE agent_id = $1
	`
	state := &domain.AgentState{}
	var weekly, monthly []byte
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(
		&state.AgentID,
		&state.PortfolioSummary,
		&state.InvestmentThesis,
		&state.MarketView,
		&weekly,
		&monthly,
		&state.StateVersion,
		&state.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(weekly, &state.WeeklyQuota); err != nil {
		return nil, fmt.Errorf("corrupt weekly_trade_quota: %w", err)
	}
	if err := json.Unmarshal(monthly, &state.MonthlyQuota); err != nil {
		return nil, fmt.Errorf("corrupt monthly_trade_quota: %w", err)
	}
	return state, nil
}

// GetMonthlyQuota читает только месячную квоту. Дешевая проверка
// до обращения к кошельку и позициям.
func (r *StateRepository) GetMonthlyQuota(ctx context.Context, agentID string) (*domain.TradeQuota, error) {
	query := `SELECT monthly_trade_quota FROM ai_state WHERE agent_id = $1`
	var raw []byte
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	quota := &domain.TradeQuota{}
	if err := json.Unmarshal(raw, quota); err != nil {
		return nil, fmt.Errorf("corrupt monthly_trade_quota: %w", err)
	}
	return quota, nil
}

// Init создает начальную запись состояния. Существующую запись
// не перезаписывает.
func (r *StateRepository) Init(ctx context.Context, state *domain.AgentState) error {
	weekly, err := json.Marshal(state.WeeklyQuota)
	if err != nil {
		return err
	}
	monthly, err := json.Marshal(state.MonthlyQuota)
	if err != nil {
		return err
	}
	summary := state.PortfolioSummary
	if len(summary) == 0 {
		summary = []byte("{}")
	}

	query := `
		INSERT INTO ai_state (
			agent_id, portfolio_summary, investment_thesis, market_view,
			weekly_trade_quota, monthly_trade_quota, state_version
		) VALUES ($1, $2::jsonb, $3, $4, $5::jsonb, $6::jsonb, $7)
		ON CONFLICT (agent_id) DO NOTHING
	`
	_, err = r.db.ExecContext(ctx, query,
		state.AgentID,
		string(summary),
		state.InvestmentThesis,
		state.MarketView,
		string(weekly),
		string(monthly),
		state.StateVersion,
	)
	return err
}

// Update применяет частичное обновление. state_version растет на 1
// при каждом успехе; при заданном expectedVersion несовпадение
// отклоняет обновление целиком. Возвращает число затронутых строк.
func (r *StateRepository) Update(ctx context.Context, agentID string, patch domain.StatePatch, expectedVersion *int64) (int64, error) {
	var setClauses []string
	var params []interface{}

	addParam := func(v interface{}) string {
		params = append(params, v)
		return fmt.Sprintf("$%d", len(params))
	}

	if patch.PortfolioSummary != nil {
		setClauses = append(setClauses, "portfolio_summary = "+addParam(string(patch.PortfolioSummary))+"::jsonb")
	}
	if patch.InvestmentThesis != nil {
		setClauses = append(setClauses, "investment_thesis = "+addParam(*patch.InvestmentThesis))
	}
	if patch.MarketView != nil {
		setClauses = append(setClauses, "market_view = "+addParam(*patch.MarketView))
	}
	if patch.WeeklyQuota != nil {
		raw, err := json.Marshal(patch.WeeklyQuota)
		if err != nil {
			return 0, err
		}
		setClauses = append(setClauses, "weekly_trade_quota = "+addParam(string(raw))+"::jsonb")
	}
	if patch.MonthlyQuota != nil {
		raw, err := json.Marshal(patch.MonthlyQuota)
		if err != nil {
			return 0, err
		}
		setClauses = append(setClauses, "monthly_trade_quota = "+addParam(string(raw))+"::jsonb")
	}

	if len(setClauses) == 0 {
		return 0, domain.ErrEmptyPatch
	}

	setClauses = append(setClauses, "state_version = state_version + 1")
	setClauses = append(setClauses, "last_updated = CURRENT_TIMESTAMP")

	where := "agent_id = " + addParam(agentID)
	if expectedVersion != nil {
		where += " AND state_version = " + addParam(*expectedVersion)
	}

	query := fmt.Sprintf("UPDATE ai_state SET %s WHERE %s", strings.Join(setClauses, ", "), where)

	res, err := r.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IncrementMonthlyUsed увеличивает счетчик использованных сделок
// точечным jsonb-патчем, не перезаписывая остальные поля квоты.
// Вызывается внутри транзакции исполнителя.
func (r *StateRepository) IncrementMonthlyUsed(ctx context.Context, agentID string) error {
	query := `
		UPDATE ai_state
		SET monthly_trade_quota = jsonb_set(
		        monthly_trade_quota,
		        '{used}',
		        (COALESCE((monthly_trade_quota->>'used')::int, 0) + 1)::text::jsonb
		    ),
		    last_updated = CURRENT_TIMESTAMP
		WHERE agent_id = $1
	`
	res, err := r.db.ExecContext(ctx, query, agentID)
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
