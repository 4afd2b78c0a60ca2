// Package notify pushes job completion notifications to Telegram.
package notify

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cruxtone/hymnsift/src/features/config"
	"github.com/cruxtone/hymnsift/src/features/queue"
)

// TelegramNotifier sends a short message when a job reaches a terminal
// state. Delivery is best-effort; failures are logged and dropped.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier creates a notifier, or nil when disabled or
// misconfigured.
func NewTelegramNotifier(cfg config.Telegram) *TelegramNotifier {
	if !cfg.Enabled || cfg.Token == "" || cfg.ChatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		slog.Error("Failed to initialize Telegram bot", "error", err)
		return nil
	}
	slog.Info("Telegram notifier initialized", "bot", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID}
}

// NotifyJobFinished implements worker.Notifier.
func (n *TelegramNotifier) NotifyJobFinished(job *queue.Job, success bool, message string) {
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	text := fmt.Sprintf("Job %s (%s) %s", job.ID, job.Type, outcome)
	if message != "" {
		text += ": " + message
	}

	go func() {
		msg := tgbotapi.NewMessage(n.chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			slog.Warn("Failed to send Telegram notification", "job_id", job.ID, "error", err)
		}
	}()
}
