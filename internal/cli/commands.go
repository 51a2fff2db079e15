package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kirillm/ai-fund/internal/ai"
	"github.com/kirillm/ai-fund/internal/calendar"
	"github.com/kirillm/ai-fund/internal/config"
	"github.com/kirillm/ai-fund/internal/domain"
	"github.com/kirillm/ai-fund/internal/executor"
	"github.com/kirillm/ai-fund/internal/manager"
	"github.com/kirillm/ai-fund/internal/notify"
	"github.com/kirillm/ai-fund/internal/storage"
	"github.com/kirillm/ai-fund/internal/validator"
	"github.com/kirillm/ai-fund/internal/workflow"
	"github.com/kirillm/ai-fund/pkg/utils"
)

// NewRootCmd создает корневую команду CLI
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fund",
		Short: "AI fund - autonomous multi-agent stock portfolio",
		Long: `AI fund runs a competition of LLM agents, each managing its own
stock portfolio under shared investment rules: a tradable stock pool,
monthly trade quotas, split long-term/short-term accounts and a 30-day
holding period for long-term positions.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newDecideCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newMarkCmd())
	rootCmd.AddCommand(newViolationsCmd())
	rootCmd.AddCommand(newStockCmd())
	rootCmd.AddCommand(newAgentCmd())

	return rootCmd
}

// app собирает зависимости команд поверх конфигурации
type app struct {
	cfg   *config.Config
	store *storage.PostgresStorage
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	utils.SetDefaultLevel(cfg.LogLevel)

	store, err := storage.NewPostgresStorage(
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.DBName, cfg.Database.SSLMode,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}

	return &app{cfg: cfg, store: store}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// controller собирает цепочку оракул -> валидатор -> исполнитель
func (a *app) controller(dryRun bool) (*workflow.Controller, error) {
	rules, err := validator.LoadRules(a.cfg.Trading.RulesPath)
	if err != nil {
		return nil, err
	}

	cal := calendar.Clock{}
	v := validator.NewValidator(a.store, cal, rules, dryRun)
	ex := executor.NewExecutor(a.store, cal)
	states := manager.NewManager(a.store, rules.MonthlyTradeLimit, rules.WeeklyTradeLimit)

	return workflow.NewController(a.store, states, v, ex, cal, a.cfg.Trading.MaxAttempts), nil
}

func (a *app) oracleRegistry() *ai.Registry {
	return ai.NewRegistry(a.cfg.Oracle.Timeout, a.cfg.Oracle.CallInterval, a.cfg.Oracle.MaxHTTPRetry)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			// Миграции выполняются при подключении
			fmt.Println("Schema is up to date")
			return nil
		},
	}
}

func newDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Run one decision cycle for a single agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			pricesPath, _ := cmd.Flags().GetString("prices")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			prices, err := loadPrices(pricesPath)
			if err != nil {
				return err
			}

			agent, err := app.store.GetAgent(cmd.Context(), agentID)
			if err != nil {
				return fmt.Errorf("unknown agent %s: %w", agentID, err)
			}

			controller, err := app.controller(dryRun)
			if err != nil {
				return err
			}
			oracle, err := app.oracleRegistry().ForAgent(agent)
			if err != nil {
				return err
			}

			outcome, err := controller.Run(cmd.Context(), agent, oracle, prices)
			if err != nil {
				return err
			}
			printOutcome(agent, outcome)
			return nil
		},
	}

	cmd.Flags().String("agent", "", "Agent id to run")
	cmd.Flags().String("prices", "", "JSON file with current prices {\"AAPL\": 195.5}")
	cmd.Flags().Bool("dry-run", false, "Validate decisions without writing violations or trading")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("prices")

	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run decision cycles for all enabled agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			pricesPath, _ := cmd.Flags().GetString("prices")

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			prices, err := loadPrices(pricesPath)
			if err != nil {
				return err
			}

			agents, err := app.store.GetEnabledAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load agents: %w", err)
			}
			if len(agents) == 0 {
				return fmt.Errorf("no enabled agents, add one with 'fund agent add'")
			}

			controller, err := app.controller(false)
			if err != nil {
				return err
			}
			registry := app.oracleRegistry()

			notifier, err := notify.NewNotifier(app.cfg.Telegram.BotToken, app.cfg.Telegram.ChatID)
			if err != nil {
				return err
			}

			ex := executor.NewExecutor(app.store, calendar.Clock{})

			var failed int
			for i := range agents {
				agent := &agents[i]
				oracle, err := registry.ForAgent(agent)
				if err != nil {
					fmt.Fprintf(os.Stderr, "agent %s: %v\n", agent.AgentID, err)
					failed++
					continue
				}

				outcome, err := controller.Run(cmd.Context(), agent, oracle, prices)
				if err != nil {
					fmt.Fprintf(os.Stderr, "agent %s: %v\n", agent.AgentID, err)
					notifier.RunFailed(agent, err)
					failed++
					continue
				}
				printOutcome(agent, outcome)
				notifier.RunCompleted(agent, outcome)

				if err := ex.UpdatePositionValues(cmd.Context(), agent.AgentID, prices); err != nil {
					fmt.Fprintf(os.Stderr, "agent %s: mark-to-market failed: %v\n", agent.AgentID, err)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d agents failed", failed, len(agents))
			}
			return nil
		},
	}

	cmd.Flags().String("prices", "", "JSON file with current prices")
	cmd.MarkFlagRequired("prices")

	return cmd
}

func newMarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Mark positions to market without trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			pricesPath, _ := cmd.Flags().GetString("prices")
			agentID, _ := cmd.Flags().GetString("agent")

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			prices, err := loadPrices(pricesPath)
			if err != nil {
				return err
			}

			ex := executor.NewExecutor(app.store, calendar.Clock{})

			var agentIDs []string
			if agentID != "" {
				agentIDs = []string{agentID}
			} else {
				agents, err := app.store.GetEnabledAgents(cmd.Context())
				if err != nil {
					return err
				}
				for _, a := range agents {
					agentIDs = append(agentIDs, a.AgentID)
				}
			}

			for _, id := range agentIDs {
				if err := ex.UpdatePositionValues(cmd.Context(), id, prices); err != nil {
					return fmt.Errorf("agent %s: %w", id, err)
				}
				fmt.Printf("Marked positions for %s\n", id)
			}
			return nil
		},
	}

	cmd.Flags().String("prices", "", "JSON file with current prices")
	cmd.Flags().String("agent", "", "Limit to one agent")
	cmd.MarkFlagRequired("prices")

	return cmd
}

func newViolationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "violations",
		Short: "Show recent compliance violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			days, _ := cmd.Flags().GetInt("days")

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			violations, err := app.store.GetRecentViolations(cmd.Context(), agentID, days)
			if err != nil {
				return err
			}

			if len(violations) == 0 {
				fmt.Printf("No violations for %s in the last %d days\n", agentID, days)
				return nil
			}
			for _, v := range violations {
				fmt.Printf("%s  %-28s %s\n", v.DetectedAt.Format("2006-01-02 15:04"), v.ViolationType, v.Notes)
			}

			counts, err := app.store.CountViolationsByType(cmd.Context(), agentID)
			if err != nil {
				return err
			}
			fmt.Println("\nTotals:")
			for vt, n := range counts {
				fmt.Printf("  %-28s %d\n", vt, n)
			}
			return nil
		},
	}

	cmd.Flags().String("agent", "", "Agent id")
	cmd.Flags().Int("days", 30, "Lookback window in days")
	cmd.MarkFlagRequired("agent")

	return cmd
}

func newStockCmd() *cobra.Command {
	stockCmd := &cobra.Command{
		Use:   "stock",
		Short: "Manage the tradable stock pool",
	}

	addCmd := &cobra.Command{
		Use:   "add SYMBOL",
		Short: "Add or update a stock in the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			stockType, _ := cmd.Flags().GetString("type")
			disabled, _ := cmd.Flags().GetBool("disabled")

			if stockType != domain.StockTypeStock && stockType != domain.StockTypeETF {
				return fmt.Errorf("type must be %s or %s", domain.StockTypeStock, domain.StockTypeETF)
			}

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.store.UpsertStock(cmd.Context(), &domain.Stock{
				Symbol:  args[0],
				Name:    name,
				Type:    stockType,
				Enabled: !disabled,
			}); err != nil {
				return err
			}
			fmt.Printf("Saved %s\n", args[0])
			return nil
		},
	}
	addCmd.Flags().String("name", "", "Company or fund name")
	addCmd.Flags().String("type", domain.StockTypeStock, "stock or etf")
	addCmd.Flags().Bool("disabled", false, "Add without enabling")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tradable stocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			stocks, err := app.store.ListTradableStocks(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range stocks {
				fmt.Printf("%-8s %-6s %s\n", s.Symbol, s.Type, s.Name)
			}
			return nil
		},
	}

	stockCmd.AddCommand(addCmd)
	stockCmd.AddCommand(listCmd)
	return stockCmd
}

func newAgentCmd() *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage AI agents",
	}

	addCmd := &cobra.Command{
		Use:   "add AGENT_ID",
		Short: "Register or update an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			model, _ := cmd.Flags().GetString("model")
			apiURL, _ := cmd.Flags().GetString("api-url")
			apiKeyEnv, _ := cmd.Flags().GetString("api-key-env")
			temperature, _ := cmd.Flags().GetFloat64("temperature")
			disabled, _ := cmd.Flags().GetBool("disabled")

			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.store.UpsertAgent(cmd.Context(), &domain.Agent{
				AgentID:     args[0],
				Name:        name,
				Model:       model,
				APIURL:      apiURL,
				APIKeyEnv:   apiKeyEnv,
				Temperature: temperature,
				Enabled:     !disabled,
			}); err != nil {
				return err
			}
			fmt.Printf("Saved agent %s\n", args[0])
			return nil
		},
	}
	addCmd.Flags().String("name", "", "Display name")
	addCmd.Flags().String("model", "", "Model identifier, e.g. gpt-4o")
	addCmd.Flags().String("api-url", "", "OpenAI-compatible API base URL")
	addCmd.Flags().String("api-key-env", "", "Env var holding the API key")
	addCmd.Flags().Float64("temperature", 0.7, "Sampling temperature")
	addCmd.Flags().Bool("disabled", false, "Register without enabling")
	addCmd.MarkFlagRequired("name")
	addCmd.MarkFlagRequired("model")
	addCmd.MarkFlagRequired("api-url")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List enabled agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			agents, err := app.store.GetEnabledAgents(cmd.Context())
			if err != nil {
				return err
			}
			for _, a := range agents {
				fmt.Printf("%-16s %-24s %s\n", a.AgentID, a.Model, a.Name)
			}
			return nil
		},
	}

	agentCmd.AddCommand(addCmd)
	agentCmd.AddCommand(listCmd)
	return agentCmd
}

// loadPrices читает файл цен {"AAPL": 195.5, "VOO": "412.30"}
func loadPrices(path string) (map[string]decimal.Decimal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prices: %w", err)
	}

	var raw map[string]json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prices: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for symbol, num := range raw {
		price, err := decimal.NewFromString(num.String())
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", symbol, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("price for %s must be positive, got %s", symbol, price.String())
		}
		prices[symbol] = price
	}
	return prices, nil
}

func printOutcome(agent *domain.Agent, outcome *workflow.Outcome) {
	switch outcome.Result {
	case workflow.OutcomeTraded:
		d := outcome.Decision
		fmt.Printf("%s: %s %s %s @ %s (attempt %d)\n",
			agent.AgentID, d.DecisionType, d.Quantity.String(), d.Symbol, d.Price.String(), outcome.Attempts)
	default:
		fmt.Printf("%s: no trade - %s\n", agent.AgentID, outcome.Reason)
	}
}
