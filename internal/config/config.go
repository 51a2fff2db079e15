package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки приложения
type Config struct {
	Database DatabaseConfig
	Oracle   OracleConfig
	Telegram TelegramConfig
	Trading  TradingConfig
	LogLevel string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OracleConfig настройки LLM-оракула. APIURL/модель каждого агента
// хранятся в таблице ai_agents, здесь только общие параметры клиента.
type OracleConfig struct {
	Timeout      time.Duration
	CallInterval time.Duration // минимальный интервал между вызовами
	MaxHTTPRetry int
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

type TradingConfig struct {
	RulesPath   string // YAML с инвестиционными правилами
	MaxAttempts int    // попытки генерации решения за один запуск
}

// Load загружает конфигурацию из .env файла и переменных окружения
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	oracleTimeout, err := time.ParseDuration(getEnv("ORACLE_TIMEOUT", "200s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_TIMEOUT: %w", err)
	}

	callInterval, err := time.ParseDuration(getEnv("ORACLE_CALL_INTERVAL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_CALL_INTERVAL: %w", err)
	}

	httpRetry, err := strconv.Atoi(getEnv("ORACLE_HTTP_RETRY", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_HTTP_RETRY: %w", err)
	}

	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	maxAttempts, err := strconv.Atoi(getEnv("DECISION_MAX_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid DECISION_MAX_ATTEMPTS: %w", err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "ai_fund"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		Oracle: OracleConfig{
			Timeout:      oracleTimeout,
			CallInterval: callInterval,
			MaxHTTPRetry: httpRetry,
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   chatID,
		},
		Trading: TradingConfig{
			RulesPath:   getEnv("RULES_PATH", "rules.yaml"),
			MaxAttempts: maxAttempts,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Trading.MaxAttempts < 1 {
		return fmt.Errorf("DECISION_MAX_ATTEMPTS must be at least 1")
	}
	// Telegram опционален: без токена уведомления отключены
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
