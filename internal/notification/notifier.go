// Package notification provides alert delivery to external channels
// (Telegram, webhooks, etc.) for signal and order events.
package notification

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Spectavi/spectr/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// SignalAlert builds the alert for a detected signal. queued distinguishes
// manual-mode signals awaiting confirmation from auto-submitted ones.
func SignalAlert(sig model.Signal, queued bool) Alert {
	verb := "submitted"
	if queued {
		verb = "awaiting confirmation"
	}
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s signal: %s", sig.Side, sig.Symbol),
		Message: fmt.Sprintf("%s %s at %.2f (%s, %s), %s",
			sig.Side, sig.Symbol, sig.Price, sig.Strategy, sig.Reason, verb),
	}
}

// OrderErrorAlert builds the alert for a failed order submission.
func OrderErrorAlert(symbol string, side model.Side, err error) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("order failed: %s", symbol),
		Message: fmt.Sprintf("%s %s: %v", side, symbol, err),
	}
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several backends. Delivery errors are logged
// and do not stop the remaining backends.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var firstErr error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			log.Printf("[notify] delivery failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// FromEnv assembles notifiers from environment variables:
//
//	SPECTR_WEBHOOK_URL  — generic JSON webhook endpoint
//	TELEGRAM_BOT_TOKEN  — Telegram Bot API token
//	TELEGRAM_CHAT_ID    — Telegram target chat
//
// Returns nil when nothing is configured.
func FromEnv() Notifier {
	var out Multi
	if url := os.Getenv("SPECTR_WEBHOOK_URL"); url != "" {
		out = append(out, NewWebhookNotifier(url))
	}
	token, chat := os.Getenv("TELEGRAM_BOT_TOKEN"), os.Getenv("TELEGRAM_CHAT_ID")
	if token != "" && chat != "" {
		out = append(out, NewTelegramNotifier(token, chat))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
