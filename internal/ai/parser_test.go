package ai

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kirillm/ai-fund/internal/domain"
)

func TestParseDecision_CleanJSON(t *testing.T) {
	raw := `{"decision_type": "BUY", "symbol": "AAPL", "quantity": 10, "price": 195.5, "position_type": "LONG_TERM", "reasoning": "strong earnings", "confidence": 0.8}`

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision() error = %v", err)
	}
	if d.DecisionType != domain.DecisionBuy {
		t.Errorf("decision_type = %s, want BUY", d.DecisionType)
	}
	if d.Symbol != "AAPL" {
		t.Errorf("symbol = %s, want AAPL", d.Symbol)
	}
	if !d.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("quantity = %s, want 10", d.Quantity)
	}
	if !d.Price.Equal(decimal.NewFromFloat(195.5)) {
		t.Errorf("price = %s, want 195.5", d.Price)
	}
	if d.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", d.Confidence)
	}
}

func TestParseDecision_MarkdownFences(t *testing.T) {
	raw := "Here is my decision:\n```json\n{\"decision_type\": \"HOLD\", \"reasoning\": \"waiting for pullback\"}\n```\nLet me know."

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision() error = %v", err)
	}
	if d.DecisionType != domain.DecisionHold {
		t.Errorf("decision_type = %s, want HOLD", d.DecisionType)
	}
	if d.Reasoning != "waiting for pullback" {
		t.Errorf("reasoning = %q", d.Reasoning)
	}
}

func TestParseDecision_SurroundingText(t *testing.T) {
	raw := `Based on my analysis, {"decision_type": "SELL", "symbol": "voo", "quantity": 5, "price": 412.3, "reasoning": "take profit"} is my call.`

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision() error = %v", err)
	}
	if d.DecisionType != domain.DecisionSell {
		t.Errorf("decision_type = %s, want SELL", d.DecisionType)
	}
	// Символ нормализуется к верхнему регистру
	if d.Symbol != "VOO" {
		t.Errorf("symbol = %s, want VOO", d.Symbol)
	}
}

func TestParseDecision_RepairsSingleQuotes(t *testing.T) {
	raw := `{'decision_type': 'HOLD', 'reasoning': 'market too volatile'}`

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision() error = %v", err)
	}
	if d.DecisionType != domain.DecisionHold {
		t.Errorf("decision_type = %s, want HOLD", d.DecisionType)
	}
}

func TestParseDecision_RepairsTrailingComma(t *testing.T) {
	raw := `{"decision_type": "HOLD", "reasoning": "nothing attractive today",}`

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision() error = %v", err)
	}
	if d.DecisionType != domain.DecisionHold {
		t.Errorf("decision_type = %s, want HOLD", d.DecisionType)
	}
}

func TestParseDecision_NestedBracesInStrings(t *testing.T) {
	raw := `{"decision_type": "HOLD", "reasoning": "watching {AAPL} and } brackets"}`

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision() error = %v", err)
	}
	if d.Reasoning != "watching {AAPL} and } brackets" {
		t.Errorf("reasoning = %q", d.Reasoning)
	}
}

func TestParseDecision_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty response", ""},
		{"no JSON at all", "I think we should buy Apple today."},
		{"missing decision type", `{"symbol": "AAPL", "reasoning": "buy it"}`},
		{"unknown decision type", `{"decision_type": "SHORT", "reasoning": "bearish"}`},
		{"hold without reasoning", `{"decision_type": "HOLD"}`},
		{"buy without symbol", `{"decision_type": "BUY", "quantity": 10, "price": 100, "position_type": "LONG_TERM", "reasoning": "x"}`},
		{"buy without position type", `{"decision_type": "BUY", "symbol": "AAPL", "quantity": 10, "price": 100, "reasoning": "x"}`},
		{"zero quantity", `{"decision_type": "BUY", "symbol": "AAPL", "quantity": 0, "price": 100, "position_type": "LONG_TERM", "reasoning": "x"}`},
		{"negative quantity", `{"decision_type": "SELL", "symbol": "AAPL", "quantity": -5, "price": 100, "reasoning": "x"}`},
		{"zero price", `{"decision_type": "BUY", "symbol": "AAPL", "quantity": 10, "price": 0, "position_type": "LONG_TERM", "reasoning": "x"}`},
		{"truncated JSON", `{"decision_type": "BUY", "symbol": "AAPL", "quantity": 10`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDecision(tt.raw)
			if err == nil {
				t.Fatal("ParseDecision() succeeded, want error")
			}
			if !errors.Is(err, domain.ErrInvalidDecision) {
				t.Errorf("error = %v, want ErrInvalidDecision", err)
			}
		})
	}
}

func TestParseDecision_LowercaseTypeNormalized(t *testing.T) {
	raw := `{"decision_type": "hold", "reasoning": "sitting this one out"}`

	d, err := ParseDecision(raw)
	if err != nil {
		t.Fatalf("ParseDecision() error = %v", err)
	}
	if d.DecisionType != domain.DecisionHold {
		t.Errorf("decision_type = %s, want HOLD", d.DecisionType)
	}
}
