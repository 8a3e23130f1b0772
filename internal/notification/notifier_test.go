package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Spectavi/spectr/internal/model"
)

func TestSignalAlert(t *testing.T) {
	sig := model.Signal{
		Symbol:   "AAPL",
		Side:     model.SideBuy,
		Price:    185.05,
		Strategy: "CustomStrategy",
		Reason:   "macd cross",
	}

	a := SignalAlert(sig, true)
	if a.Level != AlertInfo {
		t.Errorf("level = %s", a.Level)
	}
	if !strings.Contains(a.Message, "awaiting confirmation") {
		t.Errorf("queued alert message = %q", a.Message)
	}

	a = SignalAlert(sig, false)
	if !strings.Contains(a.Message, "submitted") {
		t.Errorf("auto alert message = %q", a.Message)
	}
	if !strings.Contains(a.Title, "AAPL") {
		t.Errorf("title = %q", a.Title)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "t", Message: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if got["level"] != "WARNING" || got["title"] != "t" || got["ts"] == "" {
		t.Fatalf("payload = %+v", got)
	}
}

func TestWebhookNotifierBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error on 502")
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Send(ctx context.Context, alert Alert) error {
	s.calls++
	return s.err
}

func TestMultiContinuesPastFailures(t *testing.T) {
	bad := &stubNotifier{err: errors.New("down")}
	good := &stubNotifier{}

	m := Multi{bad, good}
	err := m.Send(context.Background(), Alert{Title: "x"})
	if err == nil {
		t.Fatal("expected first error to surface")
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Fatalf("calls bad=%d good=%d", bad.calls, good.calls)
	}
}

func TestFromEnvUnconfigured(t *testing.T) {
	t.Setenv("SPECTR_WEBHOOK_URL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_CHAT_ID", "")
	if n := FromEnv(); n != nil {
		t.Fatalf("expected nil notifier, got %T", n)
	}
}

func TestFromEnvWebhook(t *testing.T) {
	t.Setenv("SPECTR_WEBHOOK_URL", "http://localhost:1/hook")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	n := FromEnv()
	m, ok := n.(Multi)
	if !ok || len(m) != 1 {
		t.Fatalf("notifier = %#v", n)
	}
}
