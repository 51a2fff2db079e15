package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillm/ai-fund/internal/domain"
)

// ParseDecision разбирает ответ оракула в решение. Markdown-обертки
// и посторонний текст вокруг JSON отбрасываются, типичные дефекты
// (одинарные кавычки, висячие запятые) чинятся перед повторным
// разбором. Семантические ошибки заворачиваются в ErrInvalidDecision.
func ParseDecision(raw string) (*domain.Decision, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", domain.ErrInvalidDecision)
	}

	var d domain.Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		repaired := repairJSON(payload)
		if err2 := json.Unmarshal([]byte(repaired), &d); err2 != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDecision, err)
		}
	}

	d.DecisionType = strings.ToUpper(strings.TrimSpace(d.DecisionType))
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
	d.PositionType = strings.ToUpper(strings.TrimSpace(d.PositionType))

	if err := validateDecisionFields(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// validateDecisionFields проверяет обязательные поля по типу решения.
// HOLD требует только reasoning, BUY/SELL - полный набор.
func validateDecisionFields(d *domain.Decision) error {
	switch d.DecisionType {
	case domain.DecisionHold:
		if d.Reasoning == "" {
			return fmt.Errorf("%w: HOLD requires reasoning", domain.ErrInvalidDecision)
		}
		return nil
	case domain.DecisionBuy, domain.DecisionSell:
		if d.Symbol == "" {
			return fmt.Errorf("%w: %s requires a symbol", domain.ErrInvalidDecision, d.DecisionType)
		}
		if !d.Quantity.IsPositive() {
			return fmt.Errorf("%w: quantity must be positive, got %s", domain.ErrInvalidDecision, d.Quantity.String())
		}
		if !d.Price.IsPositive() {
			return fmt.Errorf("%w: price must be positive, got %s", domain.ErrInvalidDecision, d.Price.String())
		}
		if d.Reasoning == "" {
			return fmt.Errorf("%w: %s requires reasoning", domain.ErrInvalidDecision, d.DecisionType)
		}
		if d.DecisionType == domain.DecisionBuy && d.PositionType == "" {
			return fmt.Errorf("%w: BUY requires position_type", domain.ErrInvalidDecision)
		}
		return nil
	case "":
		return fmt.Errorf("%w: decision_type is missing", domain.ErrInvalidDecision)
	default:
		return fmt.Errorf("%w: unknown decision_type %q", domain.ErrInvalidDecision, d.DecisionType)
	}
}

// extractJSON вырезает первый сбалансированный JSON-объект из текста.
// Вложенность и фигурные скобки внутри строк учитываются.
func extractJSON(text string) string {
	// Сначала убираем markdown code fences
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// repairJSON чинит частые дефекты генерируемого JSON: одинарные
// кавычки вместо двойных и висячие запятые перед закрывающей скобкой
func repairJSON(payload string) string {
	var b strings.Builder
	b.Grow(len(payload))

	inDouble := false
	inSingle := false
	escaped := false
	for i := 0; i < len(payload); i++ {
		ch := payload[i]

		if inDouble {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inDouble = false
			}
			continue
		}
		if inSingle {
			switch {
			case escaped:
				b.WriteByte(ch)
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '\'':
				b.WriteByte('"')
				inSingle = false
			case ch == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(ch)
			}
			continue
		}

		switch ch {
		case '"':
			inDouble = true
			b.WriteByte(ch)
		case '\'':
			inSingle = true
			b.WriteByte('"')
		case ',':
			// Висячая запятая: до закрывающей скобки только пробелы
			j := i + 1
			for j < len(payload) && (payload[j] == ' ' || payload[j] == '\t' || payload[j] == '\n' || payload[j] == '\r') {
				j++
			}
			if j < len(payload) && (payload[j] == '}' || payload[j] == ']') {
				continue
			}
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}

	return b.String()
}
