package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kirillm/ai-fund/internal/domain"
	"github.com/kirillm/ai-fund/internal/executor"
	"github.com/kirillm/ai-fund/internal/storage/repository"
)

// Переопределяем типы из domain для обратной совместимости
type (
	Wallet              = domain.Wallet
	Position            = domain.Position
	Transaction         = domain.Transaction
	AgentState          = domain.AgentState
	ComplianceViolation = domain.ComplianceViolation
	Stock               = domain.Stock
	Agent               = domain.Agent
)

// PostgresStorage является фасадом для работы с PostgreSQL через репозитории
type PostgresStorage struct {
	db           *sql.DB
	wallets      *repository.WalletRepository
	positions    *repository.PositionRepository
	transactions *repository.TransactionRepository
	states       *repository.StateRepository
	violations   *repository.ViolationRepository
	stocks       *repository.StockRepository
	agents       *repository.AgentRepository
}

func NewPostgresStorage(host string, port int, user, password, dbname, sslmode string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*PostgresStorage, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Настройка connection pool из конфигурации
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	storage := &PostgresStorage{
		db:           db,
		wallets:      repository.NewWalletRepository(db),
		positions:    repository.NewPositionRepository(db),
		transactions: repository.NewTransactionRepository(db),
		states:       repository.NewStateRepository(db),
		violations:   repository.NewViolationRepository(db),
		stocks:       repository.NewStockRepository(db),
		agents:       repository.NewAgentRepository(db),
	}

	// Запускаем миграции
	if err := storage.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) migrate() error {
	migrations := []string{
		// Кошельки агентов: cash_balance = long_term_cash + short_term_cash + reserved_cash
		`CREATE TABLE IF NOT EXISTS wallets (
			agent_id VARCHAR(50) PRIMARY KEY,
			cash_balance DECIMAL(20, 8) NOT NULL DEFAULT 0,
			long_term_cash DECIMAL(20, 8) NOT NULL DEFAULT 0,
			short_term_cash DECIMAL(20, 8) NOT NULL DEFAULT 0,
			reserved_cash DECIMAL(20, 8) NOT NULL DEFAULT 0,
			total_invested DECIMAL(20, 8) NOT NULL DEFAULT 0,
			total_withdrawn DECIMAL(20, 8) NOT NULL DEFAULT 0,
			last_transaction_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Позиции: строка существует только пока quantity > 0
		`CREATE TABLE IF NOT EXISTS positions (
			agent_id VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			average_cost DECIMAL(20, 4) NOT NULL,
			position_type VARCHAR(20) NOT NULL,
			first_buy_date TIMESTAMPTZ,
			current_value DECIMAL(20, 8),
			unrealized_pnl DECIMAL(20, 8),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (agent_id, symbol)
		)`,
		// Журнал исполненных сделок (append-only)
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			agent_id VARCHAR(50) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			action VARCHAR(10) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			total_amount DECIMAL(20, 8) NOT NULL,
			reason TEXT,
			position_type VARCHAR(20),
			decision_id VARCHAR(50),
			market_context JSONB DEFAULT '{}',
			executed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Версионированное состояние агента, квоты в JSONB
		`CREATE TABLE IF NOT EXISTS ai_state (
			agent_id VARCHAR(50) PRIMARY KEY,
			portfolio_summary JSONB DEFAULT '{}',
			investment_thesis TEXT DEFAULT '',
			market_view TEXT DEFAULT '',
			weekly_trade_quota JSONB NOT NULL DEFAULT '{"used": 0, "limit": 5}',
			monthly_trade_quota JSONB NOT NULL DEFAULT '{"used": 0, "limit": 5}',
			state_version BIGINT NOT NULL DEFAULT 1,
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Журнал нарушений инвестиционных правил (append-only)
		`CREATE TABLE IF NOT EXISTS compliance_violations (
			id BIGSERIAL PRIMARY KEY,
			agent_id VARCHAR(50) NOT NULL,
			violation_type VARCHAR(50) NOT NULL,
			attempted_action JSONB DEFAULT '{}',
			detection_method VARCHAR(50),
			severity VARCHAR(20),
			notes TEXT,
			detected_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		// Пул торгуемых инструментов
		`CREATE TABLE IF NOT EXISTS stocks (
			symbol VARCHAR(20) PRIMARY KEY,
			name VARCHAR(100) NOT NULL DEFAULT '',
			type VARCHAR(10) NOT NULL DEFAULT 'stock',
			enabled BOOLEAN NOT NULL DEFAULT true
		)`,
		// Реестр AI-агентов
		`CREATE TABLE IF NOT EXISTS ai_agents (
			agent_id VARCHAR(50) PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			model VARCHAR(100) NOT NULL,
			api_url VARCHAR(200) NOT NULL,
			api_key_env VARCHAR(100) NOT NULL DEFAULT '',
			temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
			enabled BOOLEAN NOT NULL DEFAULT true
		)`,
		// Индексы
		`CREATE INDEX IF NOT EXISTS idx_transactions_agent_id ON transactions(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_executed_at ON transactions(executed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_agent_symbol ON transactions(agent_id, symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_agent_id ON compliance_violations(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_detected_at ON compliance_violations(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_agent_id ON positions(agent_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// ==================== WALLETS ====================

func (s *PostgresStorage) GetWallet(ctx context.Context, agentID string) (*Wallet, error) {
	return s.wallets.Get(ctx, agentID)
}

// ==================== POSITIONS ====================

func (s *PostgresStorage) GetPosition(ctx context.Context, agentID, symbol string) (*Position, error) {
	return s.positions.Get(ctx, agentID, symbol)
}

func (s *PostgresStorage) ListPositions(ctx context.Context, agentID string) ([]Position, error) {
	return s.positions.List(ctx, agentID)
}

func (s *PostgresStorage) SetPositionMarketValue(ctx context.Context, agentID, symbol string, currentValue, unrealizedPnL decimal.Decimal) error {
	return s.positions.SetMarketValue(ctx, agentID, symbol, currentValue, unrealizedPnL)
}

// ==================== TRANSACTIONS ====================

func (s *PostgresStorage) GetRecentTransactions(ctx context.Context, agentID string, limit int) ([]Transaction, error) {
	return s.transactions.GetRecent(ctx, agentID, limit)
}

// ==================== AI STATE ====================

func (s *PostgresStorage) GetState(ctx context.Context, agentID string) (*AgentState, error) {
	return s.states.Get(ctx, agentID)
}

func (s *PostgresStorage) GetMonthlyQuota(ctx context.Context, agentID string) (*domain.TradeQuota, error) {
	return s.states.GetMonthlyQuota(ctx, agentID)
}

func (s *PostgresStorage) InitState(ctx context.Context, state *AgentState) error {
	return s.states.Init(ctx, state)
}

func (s *PostgresStorage) UpdateState(ctx context.Context, agentID string, patch domain.StatePatch, expectedVersion *int64) (int64, error) {
	return s.states.Update(ctx, agentID, patch, expectedVersion)
}

// ==================== VIOLATIONS ====================

func (s *PostgresStorage) SaveViolation(ctx context.Context, v *ComplianceViolation) error {
	return s.violations.Save(ctx, v)
}

func (s *PostgresStorage) GetRecentViolations(ctx context.Context, agentID string, days int) ([]ComplianceViolation, error) {
	return s.violations.GetRecent(ctx, agentID, days)
}

func (s *PostgresStorage) CountViolationsByType(ctx context.Context, agentID string) (map[string]int, error) {
	return s.violations.CountByType(ctx, agentID)
}

// ==================== STOCKS ====================

func (s *PostgresStorage) IsTradableSymbol(ctx context.Context, symbol string) (bool, error) {
	return s.stocks.IsTradable(ctx, symbol)
}

func (s *PostgresStorage) ListTradableStocks(ctx context.Context) ([]Stock, error) {
	return s.stocks.ListTradable(ctx)
}

func (s *PostgresStorage) UpsertStock(ctx context.Context, stock *Stock) error {
	return s.stocks.Upsert(ctx, stock)
}

// ==================== AGENTS ====================

func (s *PostgresStorage) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	return s.agents.Get(ctx, agentID)
}

func (s *PostgresStorage) GetEnabledAgents(ctx context.Context) ([]Agent, error) {
	return s.agents.GetEnabled(ctx)
}

func (s *PostgresStorage) UpsertAgent(ctx context.Context, agent *Agent) error {
	return s.agents.Upsert(ctx, agent)
}

// ==================== ATOMIC EXECUTION ====================

// ledgerTx связывает репозитории с открытой транзакцией
type ledgerTx struct {
	positions    *repository.PositionRepository
	wallets      *repository.WalletRepository
	transactions *repository.TransactionRepository
	states       *repository.StateRepository
}

func (t *ledgerTx) GetPositionForUpdate(ctx context.Context, agentID, symbol string) (*domain.Position, error) {
	return t.positions.GetForUpdate(ctx, agentID, symbol)
}

func (t *ledgerTx) CreatePosition(ctx context.Context, p *domain.Position) error {
	return t.positions.Create(ctx, p)
}

func (t *ledgerTx) SetPositionAmount(ctx context.Context, agentID, symbol string, quantity, averageCost decimal.Decimal) error {
	return t.positions.SetAmount(ctx, agentID, symbol, quantity, averageCost)
}

func (t *ledgerTx) SetPositionQuantity(ctx context.Context, agentID, symbol string, quantity decimal.Decimal) error {
	return t.positions.SetQuantity(ctx, agentID, symbol, quantity)
}

func (t *ledgerTx) DeletePosition(ctx context.Context, agentID, symbol string) error {
	return t.positions.Delete(ctx, agentID, symbol)
}

func (t *ledgerTx) ApplyBuy(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error {
	return t.wallets.ApplyBuy(ctx, agentID, positionType, amount)
}

func (t *ledgerTx) ApplySell(ctx context.Context, agentID, positionType string, amount decimal.Decimal) error {
	return t.wallets.ApplySell(ctx, agentID, positionType, amount)
}

func (t *ledgerTx) SaveTransaction(ctx context.Context, tr *domain.Transaction) error {
	return t.transactions.Save(ctx, tr)
}

func (t *ledgerTx) IncrementMonthlyUsed(ctx context.Context, agentID string) error {
	return t.states.IncrementMonthlyUsed(ctx, agentID)
}

// ExecuteAtomic выполняет fn внутри одной транзакции БД.
// Ошибка fn приводит к полному откату.
func (s *PostgresStorage) ExecuteAtomic(ctx context.Context, fn func(tx executor.LedgerTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	t := &ledgerTx{
		positions:    repository.NewPositionRepository(sqlTx),
		wallets:      repository.NewWalletRepository(sqlTx),
		transactions: repository.NewTransactionRepository(sqlTx),
		states:       repository.NewStateRepository(sqlTx),
	}

	if err := fn(t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close закрывает соединение с базой данных
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// DB возвращает указатель на *sql.DB
func (s *PostgresStorage) DB() *sql.DB {
	return s.db
}
