package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/ai-fund/internal/domain"
	"github.com/kirillm/ai-fund/internal/workflow"
	"github.com/kirillm/ai-fund/pkg/utils"
)

// Notifier отправляет оператору уведомления о работе фонда.
// Nil-safe: без токена все методы молча ничего не делают.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *utils.Logger
}

// NewNotifier создает нотификатор. При пустом токене возвращается nil,
// что валидно для всех методов.
func NewNotifier(botToken string, chatID int64) (*Notifier, error) {
	if botToken == "" {
		return nil, nil
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Notifier{
		bot:    bot,
		chatID: chatID,
		logger: utils.NewLogger("notify"),
	}, nil
}

// RunCompleted сообщает об итоге торгового цикла агента
func (n *Notifier) RunCompleted(agent *domain.Agent, outcome *workflow.Outcome) {
	if n == nil {
		return
	}

	var text string
	switch outcome.Result {
	case workflow.OutcomeTraded:
		d := outcome.Decision
		text = fmt.Sprintf("✅ *%s*\n%s %s %s @ %s\nattempt %d\n\n_%s_",
			escapeMarkdown(agent.Name), d.DecisionType, d.Quantity.String(), d.Symbol,
			d.Price.String(), outcome.Attempts, escapeMarkdown(d.Reasoning))
	default:
		text = fmt.Sprintf("💤 *%s*: no trade\n%s",
			escapeMarkdown(agent.Name), escapeMarkdown(outcome.Reason))
	}

	n.send(text)
}

// RunFailed сообщает о сбое торгового цикла
func (n *Notifier) RunFailed(agent *domain.Agent, err error) {
	if n == nil {
		return
	}
	n.send(fmt.Sprintf("🚨 *%s*: run failed\n%s",
		escapeMarkdown(agent.Name), escapeMarkdown(err.Error())))
}

func (n *Notifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error("Failed to send telegram message: %v", err)
	}
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "[", "\\[", "`", "\\`")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
