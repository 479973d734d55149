// Package notify delivers run reports to operators.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/aatumaykin/odoosweep/internal/logger"
	"github.com/aatumaykin/odoosweep/internal/report"
)

// maxMessageLength is Telegram's limit for a single text message.
const maxMessageLength = 4096

// Sender is the subset of the Telegram bot API the notifier needs.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Config holds Telegram delivery settings.
type Config struct {
	Token       string
	ChatID      int64
	SendTimeout time.Duration
}

// Telegram posts a short summary of every finished run to a chat.
type Telegram struct {
	sender  Sender
	chatID  int64
	timeout time.Duration
	logger  *logger.Logger
}

// NewTelegram creates a notifier backed by a telego bot.
func NewTelegram(cfg Config, log *logger.Logger) (*Telegram, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, cfg, log), nil
}

// NewTelegramWithSender is NewTelegram with an explicit sender.
func NewTelegramWithSender(sender Sender, cfg Config, log *logger.Logger) *Telegram {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Telegram{
		sender:  sender,
		chatID:  cfg.ChatID,
		timeout: cfg.SendTimeout,
		logger:  log,
	}
}

// Notify sends rep as HTML and retries once as plain text when Telegram
// rejects the markup.
func (t *Telegram) Notify(ctx context.Context, rep *report.Report) error {
	sendCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	params := &telego.SendMessageParams{
		ChatID:    telego.ChatID{ID: t.chatID},
		Text:      truncate(FormatHTML(rep)),
		ParseMode: telego.ModeHTML,
	}

	if _, err := t.sender.SendMessage(sendCtx, params); err != nil {
		t.logger.Warn("html notification rejected, retrying as plain text",
			logger.Field{Key: "instance", Value: rep.Instance},
			logger.Field{Key: "error", Value: err.Error()})

		params.ParseMode = ""
		params.Text = truncate(FormatText(rep))
		if _, err := t.sender.SendMessage(sendCtx, params); err != nil {
			return fmt.Errorf("failed to send telegram notification: %w", err)
		}
	}

	t.logger.Debug("report notification sent",
		logger.Field{Key: "instance", Value: rep.Instance},
		logger.Field{Key: "run_id", Value: rep.RunID})
	return nil
}

func status(rep *report.Report) string {
	switch {
	case !rep.Success:
		return "FAILED"
	case rep.HasErrors():
		return "completed with errors"
	default:
		return "ok"
	}
}

func mode(rep *report.Report) string {
	if rep.Simulation {
		return "dry run"
	}
	return "live"
}

// FormatText renders rep as plain text.
func FormatText(rep *report.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s on %s: %s (%s)\n", rep.Engine, rep.Instance, status(rep), mode(rep))
	for _, key := range rep.SummaryKeys() {
		fmt.Fprintf(&b, "%s: %d\n", key, rep.Summary[key])
	}
	if n := len(rep.Warnings); n > 0 {
		fmt.Fprintf(&b, "warnings: %d\n", n)
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(&b, "error: %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHTML renders rep for Telegram's HTML parse mode.
func FormatHTML(rep *report.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> on <code>%s</code>: %s (%s)\n",
		html.EscapeString(rep.Engine), html.EscapeString(rep.Instance), status(rep), mode(rep))

	total := rep.TotalKey()
	for _, key := range rep.SummaryKeys() {
		if key == total {
			fmt.Fprintf(&b, "<b>%s: %d</b>\n", html.EscapeString(key), rep.Summary[key])
			continue
		}
		fmt.Fprintf(&b, "%s: %d\n", html.EscapeString(key), rep.Summary[key])
	}
	if n := len(rep.Warnings); n > 0 {
		fmt.Fprintf(&b, "warnings: %d\n", n)
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(&b, "<i>error:</i> %s\n", html.EscapeString(e))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMessageLength {
		return s
	}
	return string(runes[:maxMessageLength-1]) + "…"
}
