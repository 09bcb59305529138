// Package notify pushes run summaries to Telegram. Everything here is best
// effort: a notifier failure never fails the run that produced the results.
package notify

import (
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"video-auditor/api/internal/audit"
)

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram returns nil when the token or chat id is absent, so callers
// can hold a nil notifier and skip sends.
func NewTelegram(token string, chatID int64) *Telegram {
	if strings.TrimSpace(token) == "" || chatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("telegram: init failed, notifications disabled: %v", err)
		return nil
	}
	bot.Debug = false
	return &Telegram{bot: bot, chatID: chatID}
}

// RunSummary posts one message with per-run totals and the worst failures.
func (t *Telegram) RunSummary(stamp string, results []*audit.Result) {
	if t == nil {
		return
	}
	var ok, failed, degraded int
	var sumTotal float64
	var failLines []string
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Success {
			ok++
			sumTotal += r.WeightedTotal()
			if r.Degraded {
				degraded++
			}
			continue
		}
		failed++
		if len(failLines) < 5 {
			failLines = append(failLines, fmt.Sprintf("  unit %d: %s", r.Unit.Index, r.Err))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audit run %s finished\n", stamp)
	fmt.Fprintf(&b, "units: %d ok / %d failed", ok, failed)
	if degraded > 0 {
		fmt.Fprintf(&b, " (%d degraded)", degraded)
	}
	b.WriteString("\n")
	if ok > 0 {
		fmt.Fprintf(&b, "mean weighted score: %.2f\n", sumTotal/float64(ok))
	}
	if len(failLines) > 0 {
		b.WriteString("failures:\n")
		b.WriteString(strings.Join(failLines, "\n"))
	}

	msg := tgbotapi.NewMessage(t.chatID, b.String())
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("telegram: send summary: %v", err)
	}
}
