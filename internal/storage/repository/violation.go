package repository

import (
	"context"

	"github.com/kirillm/ai-fund/internal/domain"
)

// ViolationRepository журнал нарушений инвестиционных правил
// (append-only, записи никогда не изменяются)
type ViolationRepository struct {
	db Querier
}

// NewViolationRepository создает новый репозиторий нарушений
func NewViolationRepository(db Querier) *ViolationRepository {
	return &ViolationRepository{db: db}
}

// Save сохраняет нарушение
func (r *ViolationRepository) Save(ctx context.Context, v *domain.ComplianceViolation) error {
	attempted := v.AttemptedAction
	if len(attempted) == 0 {
		attempted = []byte("{}")
	}

	query := `
		INSERT INTO compliance_violations (
			agent_id, violation_type, attempted_action,
			detection_method, severity, notes
		) VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		RETURNING id, detected_at
	`
	return r.db.QueryRowContext(ctx, query,
		v.AgentID,
		v.ViolationType,
		string(attempted),
		v.DetectionMethod,
		v.Severity,
		v.Notes,
	).Scan(&v.ID, &v.DetectedAt)
}

// GetRecent получает нарушения агента за последние N дней
func (r *ViolationRepository) GetRecent(ctx context.Context, agentID string, days int) ([]domain.ComplianceViolation, error) {
	query := `
		SELECT id, agent_id, violation_type, attempted_action,
		       detection_method, severity, notes, detected_at
		FROM compliance_violations
		WHERE agent_id = $1
		  AND detected_at > NOW() - INTERVAL '1 day' * $2
		ORDER BY detected_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, agentID, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []domain.ComplianceViolation
	for rows.Next() {
		var v domain.ComplianceViolation
		err := rows.Scan(
			&v.ID,
			&v.AgentID,
			&v.ViolationType,
			&v.AttemptedAction,
			&v.DetectionMethod,
			&v.Severity,
			&v.Notes,
			&v.DetectedAt,
		)
		if err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// CountByType статистика нарушений агента по типам
func (r *ViolationRepository) CountByType(ctx context.Context, agentID string) (map[string]int, error) {
	query := `
		SELECT violation_type, COUNT(*)
		FROM compliance_violations
		WHERE agent_id = $1
		GROUP BY violation_type
	`
	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var violationType string
		var count int
		if err := rows.Scan(&violationType, &count); err != nil {
			return nil, err
		}
		stats[violationType] = count
	}
	return stats, rows.Err()
}
