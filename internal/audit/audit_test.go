package audit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/mondominator/opsdec/internal/config"
	"github.com/mondominator/opsdec/internal/store"
)

func setupTestLogger(t *testing.T) *Logger {
	t.Helper()
	st, err := store.Open(&config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	l := NewLogger(st, 10)
	t.Cleanup(l.Close)
	return l
}

func waitForEvents(t *testing.T, l *Logger, want int) []*store.AuditEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, err := l.Recent(context.Background(), 10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(events) >= want {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d audit events", want)
	return nil
}

func TestLogger_RecordPersistsEvent(t *testing.T) {
	l := setupTestLogger(t)

	l.Record(Event{ActorID: "user-1", Action: "auth.login", Outcome: OutcomeSuccess})

	events := waitForEvents(t, l, 1)
	if events[0].Action != "auth.login" {
		t.Errorf("Action = %q, want auth.login", events[0].Action)
	}
	if events[0].ActorID != "user-1" {
		t.Errorf("ActorID = %q, want user-1", events[0].ActorID)
	}
}

func TestLogger_RecordDefaultsOutcomeToSuccess(t *testing.T) {
	l := setupTestLogger(t)

	l.Record(Event{ActorID: "user-2", Action: "auth.me"})

	events := waitForEvents(t, l, 1)
	if events[0].Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want %q", events[0].Outcome, OutcomeSuccess)
	}
}

func TestClientIP_PrefersXForwardedFor(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := ClientIP(req); got != "203.0.113.9" {
		t.Errorf("ClientIP() = %q, want 203.0.113.9", got)
	}
}

func TestClientIP_FallsBackToRemoteAddr(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.10:4444"

	if got := ClientIP(req); got != "192.168.1.10" {
		t.Errorf("ClientIP() = %q, want 192.168.1.10", got)
	}
}
