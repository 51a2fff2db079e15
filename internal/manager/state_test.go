package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillm/ai-fund/internal/domain"
)

// fakeStateStore хранит состояния в памяти и повторяет семантику
// версионированного UPDATE
type fakeStateStore struct {
	states map[string]*domain.AgentState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{states: map[string]*domain.AgentState{}}
}

func (f *fakeStateStore) GetState(ctx context.Context, agentID string) (*domain.AgentState, error) {
	state, ok := f.states[agentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *state
	return &copied, nil
}

func (f *fakeStateStore) InitState(ctx context.Context, state *domain.AgentState) error {
	if _, ok := f.states[state.AgentID]; ok {
		return nil // ON CONFLICT DO NOTHING
	}
	copied := *state
	f.states[state.AgentID] = &copied
	return nil
}

func (f *fakeStateStore) UpdateState(ctx context.Context, agentID string, patch domain.StatePatch, expectedVersion *int64) (int64, error) {
	state, ok := f.states[agentID]
	if !ok {
		return 0, nil
	}
	if expectedVersion != nil && state.StateVersion != *expectedVersion {
		return 0, nil
	}
	if patch.InvestmentThesis != nil {
		state.InvestmentThesis = *patch.InvestmentThesis
	}
	if patch.MarketView != nil {
		state.MarketView = *patch.MarketView
	}
	if patch.PortfolioSummary != nil {
		state.PortfolioSummary = patch.PortfolioSummary
	}
	if patch.WeeklyQuota != nil {
		state.WeeklyQuota = *patch.WeeklyQuota
	}
	if patch.MonthlyQuota != nil {
		state.MonthlyQuota = *patch.MonthlyQuota
	}
	state.StateVersion++
	return 1, nil
}

func TestLoadState_InitializesDefaults(t *testing.T) {
	store := newFakeStateStore()
	m := NewManager(store, 5, 5)

	state, err := m.LoadState(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}

	if state.StateVersion != 1 {
		t.Errorf("initial version = %d, want 1", state.StateVersion)
	}
	if state.MonthlyQuota.Used != 0 || state.MonthlyQuota.Limit != 5 {
		t.Errorf("monthly quota = %+v, want {0 5}", state.MonthlyQuota)
	}
	if state.WeeklyQuota.Used != 0 || state.WeeklyQuota.Limit != 5 {
		t.Errorf("weekly quota = %+v, want {0 5}", state.WeeklyQuota)
	}
}

func TestLoadState_ReturnsExisting(t *testing.T) {
	store := newFakeStateStore()
	store.states["agent-1"] = &domain.AgentState{
		AgentID:      "agent-1",
		StateVersion: 7,
		MonthlyQuota: domain.TradeQuota{Used: 3, Limit: 5},
	}
	m := NewManager(store, 5, 5)

	state, err := m.LoadState(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if state.StateVersion != 7 {
		t.Errorf("version = %d, want 7", state.StateVersion)
	}
	if state.MonthlyQuota.Used != 3 {
		t.Errorf("quota used = %d, want 3", state.MonthlyQuota.Used)
	}
}

func TestUpdateState_IncrementsVersion(t *testing.T) {
	store := newFakeStateStore()
	m := NewManager(store, 5, 5)

	if _, err := m.LoadState(context.Background(), "agent-1"); err != nil {
		t.Fatal(err)
	}

	thesis := "overweight tech"
	if err := m.UpdateState(context.Background(), "agent-1", domain.StatePatch{
		InvestmentThesis: &thesis,
	}, nil); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	state, _ := m.LoadState(context.Background(), "agent-1")
	if state.StateVersion != 2 {
		t.Errorf("version = %d, want 2", state.StateVersion)
	}
	if state.InvestmentThesis != thesis {
		t.Errorf("thesis = %q, want %q", state.InvestmentThesis, thesis)
	}
}

func TestUpdateState_VersionConflict(t *testing.T) {
	store := newFakeStateStore()
	m := NewManager(store, 5, 5)

	if _, err := m.LoadState(context.Background(), "agent-1"); err != nil {
		t.Fatal(err)
	}

	stale := int64(99)
	view := "bearish"
	err := m.UpdateState(context.Background(), "agent-1", domain.StatePatch{
		MarketView: &view,
	}, &stale)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("UpdateState() error = %v, want ErrVersionConflict", err)
	}

	// Состояние не изменилось
	state, _ := m.LoadState(context.Background(), "agent-1")
	if state.StateVersion != 1 {
		t.Errorf("version = %d, want 1 after failed CAS", state.StateVersion)
	}
	if state.MarketView != "" {
		t.Errorf("market view = %q, want empty", state.MarketView)
	}
}

func TestUpdateState_CorrectVersionPasses(t *testing.T) {
	store := newFakeStateStore()
	m := NewManager(store, 5, 5)

	if _, err := m.LoadState(context.Background(), "agent-1"); err != nil {
		t.Fatal(err)
	}

	current := int64(1)
	view := "bullish"
	if err := m.UpdateState(context.Background(), "agent-1", domain.StatePatch{
		MarketView: &view,
	}, &current); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	state, _ := m.LoadState(context.Background(), "agent-1")
	if state.StateVersion != 2 {
		t.Errorf("version = %d, want 2", state.StateVersion)
	}
}

func TestUpdateState_MissingAgent(t *testing.T) {
	store := newFakeStateStore()
	m := NewManager(store, 5, 5)

	view := "neutral"
	err := m.UpdateState(context.Background(), "ghost", domain.StatePatch{MarketView: &view}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateState() error = %v, want ErrNotFound", err)
	}
}

func TestResetQuotas(t *testing.T) {
	store := newFakeStateStore()
	m := NewManager(store, 5, 3)

	if _, err := m.LoadState(context.Background(), "agent-1"); err != nil {
		t.Fatal(err)
	}
	store.states["agent-1"].MonthlyQuota = domain.TradeQuota{Used: 5, Limit: 5, Month: "2025-05"}
	store.states["agent-1"].WeeklyQuota = domain.TradeQuota{Used: 3, Limit: 3, Week: "2025-W23"}

	if err := m.ResetMonthlyQuota(context.Background(), "agent-1", "2025-06"); err != nil {
		t.Fatalf("ResetMonthlyQuota() error = %v", err)
	}
	if err := m.ResetWeeklyQuota(context.Background(), "agent-1", "2025-W25"); err != nil {
		t.Fatalf("ResetWeeklyQuota() error = %v", err)
	}

	state, _ := m.LoadState(context.Background(), "agent-1")
	if state.MonthlyQuota.Used != 0 || state.MonthlyQuota.Month != "2025-06" {
		t.Errorf("monthly quota = %+v, want reset with label 2025-06", state.MonthlyQuota)
	}
	if state.WeeklyQuota.Used != 0 || state.WeeklyQuota.Limit != 3 || state.WeeklyQuota.Week != "2025-W25" {
		t.Errorf("weekly quota = %+v, want reset with label 2025-W25", state.WeeklyQuota)
	}
}
