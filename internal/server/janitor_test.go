package server

import (
	"testing"
	"time"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

func TestJanitorSweepsStaleTerminalSessions(t *testing.T) {
	store := session.NewStore(nil, nil)

	stale := session.New("https://stale.example.com", "", 5, false)
	stale.SetStatus(session.StatusCompleted)
	stale.UpdatedAt = time.Now().Add(-48 * time.Hour)
	store.Create(stale)

	fresh := session.New("https://fresh.example.com", "", 5, false)
	fresh.SetStatus(session.StatusFailed)
	store.Create(fresh)

	active := session.New("https://active.example.com", "", 5, false)
	active.SetStatus(session.StatusRunning)
	active.UpdatedAt = time.Now().Add(-48 * time.Hour)
	store.Create(active)

	janitor, err := NewJanitor(store, "@hourly", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	if removed := janitor.Sweep(); removed != 1 {
		t.Fatalf("swept %d sessions, want 1", removed)
	}
	if _, err := store.Get(stale.ID); err != session.ErrNotFound {
		t.Fatal("stale terminal session survived the sweep")
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Fatal("recently finished session was swept")
	}
	got, err := store.Get(active.ID)
	if err != nil {
		t.Fatal("stalled running session was deleted instead of cancelled")
	}
	if got.CurrentStatus() != session.StatusCancelled {
		t.Fatalf("stalled running session status = %s, want cancelled", got.CurrentStatus())
	}
}

func TestNewJanitorRejectsBadCron(t *testing.T) {
	store := session.NewStore(nil, nil)
	if _, err := NewJanitor(store, "not a schedule", time.Hour); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestJanitorRunStops(t *testing.T) {
	store := session.NewStore(nil, nil)
	janitor, err := NewJanitor(store, "@hourly", time.Hour)
	if err != nil {
		t.Fatalf("NewJanitor: %v", err)
	}

	done := make(chan struct{})
	go func() {
		janitor.Run()
		close(done)
	}()
	janitor.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}
