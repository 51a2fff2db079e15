package validator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules инвестиционные правила фонда
type Rules struct {
	MinHoldingDays    int `yaml:"min_holding_days"`
	MonthlyTradeLimit int `yaml:"monthly_trade_limit"`
	WeeklyTradeLimit  int `yaml:"weekly_trade_limit"`
}

// DefaultRules возвращает правила по умолчанию
func DefaultRules() *Rules {
	return &Rules{
		MinHoldingDays:    30,
		MonthlyTradeLimit: 5,
		WeeklyTradeLimit:  5,
	}
}

// LoadRules загружает правила из YAML. Отсутствующий файл не является
// ошибкой: используются правила по умолчанию.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultRules(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}

	rules := DefaultRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	if rules.MinHoldingDays < 0 || rules.MonthlyTradeLimit < 1 || rules.WeeklyTradeLimit < 1 {
		return nil, fmt.Errorf("invalid rules: holding days %d, monthly limit %d, weekly limit %d",
			rules.MinHoldingDays, rules.MonthlyTradeLimit, rules.WeeklyTradeLimit)
	}

	return rules, nil
}
