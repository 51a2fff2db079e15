package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kirillm/ai-fund/internal/domain"
)

// AgentRepository реестр AI-агентов фонда
type AgentRepository struct {
	db Querier
}

// NewAgentRepository создает новый репозиторий агентов
func NewAgentRepository(db Querier) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = `agent_id, name, model, api_url, api_key_env, temperature, enabled`

// Get получает агента по идентификатору
func (r *AgentRepository) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM ai_agents WHERE agent_id = $1`

	var a domain.Agent
	err := r.db.QueryRowContext(ctx, query, agentID).Scan(
		&a.AgentID, &a.Name, &a.Model, &a.APIURL, &a.APIKeyEnv, &a.Temperature, &a.Enabled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetEnabled получает всех включенных агентов
func (r *AgentRepository) GetEnabled(ctx context.Context) ([]domain.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM ai_agents WHERE enabled = TRUE ORDER BY agent_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(
			&a.AgentID, &a.Name, &a.Model, &a.APIURL, &a.APIKeyEnv, &a.Temperature, &a.Enabled,
		); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// Upsert добавляет или обновляет агента в реестре
func (r *AgentRepository) Upsert(ctx context.Context, a *domain.Agent) error {
	query := `
		INSERT INTO ai_agents (agent_id, name, model, api_url, api_key_env, temperature, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id) DO UPDATE SET
			name = EXCLUDED.name,
			model = EXCLUDED.model,
			api_url = EXCLUDED.api_url,
			api_key_env = EXCLUDED.api_key_env,
			temperature = EXCLUDED.temperature,
			enabled = EXCLUDED.enabled
	`
	_, err := r.db.ExecContext(ctx, query,
		a.AgentID, a.Name, a.Model, a.APIURL, a.APIKeyEnv, a.Temperature, a.Enabled,
	)
	return err
}
