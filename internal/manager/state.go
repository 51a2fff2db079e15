package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillm/ai-fund/internal/domain"
	"github.com/kirillm/ai-fund/pkg/utils"
)

// Store интерфейс для работы с БД
type Store interface {
	GetState(ctx context.Context, agentID string) (*domain.AgentState, error)
	InitState(ctx context.Context, state *domain.AgentState) error
	UpdateState(ctx context.Context, agentID string, patch domain.StatePatch, expectedVersion *int64) (int64, error)
}

// Manager управляет версионированным состоянием агентов и квотами.
// Дата-арифметики здесь нет: метки периодов приходят от вызывающего.
type Manager struct {
	store        Store
	monthlyLimit int
	weeklyLimit  int
	logger       *utils.Logger
}

// NewManager создает новый менеджер состояния
func NewManager(store Store, monthlyLimit, weeklyLimit int) *Manager {
	return &Manager{
		store:        store,
		monthlyLimit: monthlyLimit,
		weeklyLimit:  weeklyLimit,
		logger:       utils.NewLogger("state"),
	}
}

// LoadState загружает состояние агента. При первом обращении создается
// строка по умолчанию: пустые квоты, версия 1.
func (m *Manager) LoadState(ctx context.Context, agentID string) (*domain.AgentState, error) {
	state, err := m.store.GetState(ctx, agentID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	m.logger.Info("Initializing state for agent %s", agentID)
	if err := m.store.InitState(ctx, &domain.AgentState{
		AgentID:      agentID,
		WeeklyQuota:  domain.TradeQuota{Used: 0, Limit: m.weeklyLimit},
		MonthlyQuota: domain.TradeQuota{Used: 0, Limit: m.monthlyLimit},
		StateVersion: 1,
	}); err != nil {
		return nil, fmt.Errorf("failed to init state: %w", err)
	}

	// Перечитываем: Init мог проиграть гонку другому процессу
	return m.store.GetState(ctx, agentID)
}

// UpdateState применяет частичное обновление. Если expectedVersion задан
// и не совпадает с текущей версией, возвращается ErrVersionConflict и
// состояние не меняется. Каждое успешное обновление увеличивает
// state_version ровно на 1.
func (m *Manager) UpdateState(ctx context.Context, agentID string, patch domain.StatePatch, expectedVersion *int64) error {
	rows, err := m.store.UpdateState(ctx, agentID, patch, expectedVersion)
	if err != nil {
		return err
	}
	if rows == 0 {
		if expectedVersion != nil {
			return fmt.Errorf("%w: agent %s is not at version %d",
				domain.ErrVersionConflict, agentID, *expectedVersion)
		}
		return fmt.Errorf("%w: no state for agent %s", domain.ErrNotFound, agentID)
	}
	return nil
}

// ResetMonthlyQuota заменяет месячную квоту на чистую с новой меткой
func (m *Manager) ResetMonthlyQuota(ctx context.Context, agentID, monthLabel string) error {
	m.logger.Info("Resetting monthly quota for agent %s (%s)", agentID, monthLabel)
	return m.UpdateState(ctx, agentID, domain.StatePatch{
		MonthlyQuota: &domain.TradeQuota{Used: 0, Limit: m.monthlyLimit, Month: monthLabel},
	}, nil)
}

// ResetWeeklyQuota заменяет недельную квоту на чистую с новой меткой
func (m *Manager) ResetWeeklyQuota(ctx context.Context, agentID, weekLabel string) error {
	m.logger.Info("Resetting weekly quota for agent %s (%s)", agentID, weekLabel)
	return m.UpdateState(ctx, agentID, domain.StatePatch{
		WeeklyQuota: &domain.TradeQuota{Used: 0, Limit: m.weeklyLimit, Week: weekLabel},
	}, nil)
}
