package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillm/ai-fund/internal/calendar"
	"github.com/kirillm/ai-fund/internal/domain"
	"github.com/kirillm/ai-fund/pkg/utils"
)

// Store интерфейс для работы с БД
type Store interface {
	IsTradableSymbol(ctx context.Context, symbol string) (bool, error)
	GetMonthlyQuota(ctx context.Context, agentID string) (*domain.TradeQuota, error)
	GetWallet(ctx context.Context, agentID string) (*domain.Wallet, error)
	GetPosition(ctx context.Context, agentID, symbol string) (*domain.Position, error)
	SaveViolation(ctx context.Context, v *domain.ComplianceViolation) error
}

// Calendar дает текущую торговую дату
type Calendar interface {
	Today() time.Time
}

// Result результат проверки решения. При отказе ViolationType содержит
// тип нарушения, Reason - человекочитаемое объяснение.
type Result struct {
	OK            bool
	ViolationType string
	Reason        string
}

// Validator проверяет решения агента по цепочке правил.
// Порядок фиксирован: пул инструментов -> квота -> платежеспособность
// (только BUY) -> срок удержания (только SELL). Первое нарушение
// останавливает проверку.
type Validator struct {
	store  Store
	cal    Calendar
	rules  *Rules
	dryRun bool
	logger *utils.Logger
}

// NewValidator создает новый валидатор решений
func NewValidator(store Store, cal Calendar, rules *Rules, dryRun bool) *Validator {
	return &Validator{
		store:  store,
		cal:    cal,
		rules:  rules,
		dryRun: dryRun,
		logger: utils.NewLogger("validator"),
	}
}

// Validate проверяет решение. HOLD одобряется без проверок. Каждый отказ
// пишет строку в журнал нарушений (кроме dry-run). Ошибка возвращается
// только при сбое самого хранилища.
func (v *Validator) Validate(ctx context.Context, agentID string, d *domain.Decision) (*Result, error) {
	if d.DecisionType == domain.DecisionHold {
		return &Result{OK: true}, nil
	}

	if d.Symbol == "" {
		return v.reject(ctx, agentID, d, domain.ViolationMissingSymbol,
			"decision has no symbol")
	}

	tradable, err := v.store.IsTradableSymbol(ctx, d.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to check stock pool: %w", err)
	}
	if !tradable {
		return v.reject(ctx, agentID, d, domain.ViolationInvalidStock,
			fmt.Sprintf("%s is not in the tradable pool", d.Symbol))
	}

	quota, err := v.store.GetMonthlyQuota(ctx, agentID)
	if errors.Is(err, domain.ErrNotFound) {
		return v.reject(ctx, agentID, d, domain.ViolationStateNotFound,
			fmt.Sprintf("no state found for agent %s", agentID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read quota: %w", err)
	}
	if quota.Exhausted() {
		return v.reject(ctx, agentID, d, domain.ViolationQuotaExceeded,
			fmt.Sprintf("monthly trade quota exhausted (%d/%d)", quota.Used, quota.Limit))
	}

	switch d.DecisionType {
	case domain.DecisionBuy:
		return v.validateBuy(ctx, agentID, d)
	case domain.DecisionSell:
		return v.validateSell(ctx, agentID, d)
	default:
		return nil, fmt.Errorf("%w: unknown decision type %q", domain.ErrInvalidDecision, d.DecisionType)
	}
}

// validateBuy проверяет платежеспособность по нужному субсчету
func (v *Validator) validateBuy(ctx context.Context, agentID string, d *domain.Decision) (*Result, error) {
	if d.PositionType == "" {
		return v.reject(ctx, agentID, d, domain.ViolationMissingPositionType,
			"BUY decision has no position_type")
	}
	if d.PositionType != domain.PositionLongTerm && d.PositionType != domain.PositionShortTerm {
		return v.reject(ctx, agentID, d, domain.ViolationInvalidPositionType,
			fmt.Sprintf("unknown position_type %q", d.PositionType))
	}

	wallet, err := v.store.GetWallet(ctx, agentID)
	if errors.Is(err, domain.ErrNotFound) {
		return v.reject(ctx, agentID, d, domain.ViolationWalletNotFound,
			fmt.Sprintf("no wallet found for agent %s", agentID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet: %w", err)
	}

	total := d.TotalAmount()
	if d.PositionType == domain.PositionLongTerm {
		if total.GreaterThan(wallet.LongTermCash) {
			return v.reject(ctx, agentID, d, domain.ViolationInsufficientLongTerm,
				fmt.Sprintf("need %s, long-term cash is %s", total.String(), wallet.LongTermCash.String()))
		}
	} else {
		if total.GreaterThan(wallet.ShortTermCash) {
			return v.reject(ctx, agentID, d, domain.ViolationInsufficientShortTerm,
				fmt.Sprintf("need %s, short-term cash is %s", total.String(), wallet.ShortTermCash.String()))
		}
	}

	return &Result{OK: true}, nil
}

// validateSell проверяет наличие позиции и срок удержания.
// Правило срока действует только для LONG_TERM позиций: ровно
// MinHoldingDays календарных дней проходит, меньше - нет.
func (v *Validator) validateSell(ctx context.Context, agentID string, d *domain.Decision) (*Result, error) {
	pos, err := v.store.GetPosition(ctx, agentID, d.Symbol)
	if errors.Is(err, domain.ErrNotFound) {
		return v.reject(ctx, agentID, d, domain.ViolationPositionNotFound,
			fmt.Sprintf("no position in %s", d.Symbol))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read position: %w", err)
	}

	if pos.PositionType == domain.PositionLongTerm {
		if pos.FirstBuyDate == nil {
			return v.reject(ctx, agentID, d, domain.ViolationMissingFirstBuyDate,
				fmt.Sprintf("long-term position %s has no first buy date", d.Symbol))
		}
		held := calendar.DaysBetween(*pos.FirstBuyDate, v.cal.Today())
		if held < v.rules.MinHoldingDays {
			return v.reject(ctx, agentID, d, domain.ViolationWashTrade,
				fmt.Sprintf("%s held %d days, minimum is %d", d.Symbol, held, v.rules.MinHoldingDays))
		}
	}

	return &Result{OK: true}, nil
}

// reject записывает нарушение в журнал и возвращает отказ
func (v *Validator) reject(ctx context.Context, agentID string, d *domain.Decision, violationType, reason string) (*Result, error) {
	v.logger.Warn("Rejected %s for agent %s: %s (%s)", d.DecisionType, agentID, violationType, reason)

	if !v.dryRun {
		attempted, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal decision: %w", err)
		}
		if err := v.store.SaveViolation(ctx, &domain.ComplianceViolation{
			AgentID:         agentID,
			ViolationType:   violationType,
			AttemptedAction: attempted,
			DetectionMethod: domain.DetectionPreExecution,
			Severity:        domain.SeverityBlocked,
			Notes:           reason,
		}); err != nil {
			return nil, fmt.Errorf("failed to save violation: %w", err)
		}
	}

	return &Result{ViolationType: violationType, Reason: reason}, nil
}
