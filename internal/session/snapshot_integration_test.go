package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

func TestRedisSnapshotterRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	defer func() {
		_ = redisC.Terminate(ctx)
	}()

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	snap, err := session.NewRedisSnapshotter(ctx, host+":"+port.Port(), "", 0, time.Hour)
	if err != nil {
		t.Fatalf("NewRedisSnapshotter: %v", err)
	}
	defer snap.Close()

	sess := session.New("https://example.com", "extract prices", 5, true)
	sess.SetStatus(session.StatusRunning)
	sess.AppendLog(session.ActionLog{Kind: session.ActionNavigation, Description: "navigate"})
	sess.SetStatus(session.StatusCompleted)

	if err := snap.Save(sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored, err := snap.Load(sess.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.ID != sess.ID || restored.Status != session.StatusCompleted {
		t.Fatalf("restored session mismatch: %+v", restored)
	}
	if len(restored.Logs) != 1 {
		t.Fatalf("restored %d logs, want 1", len(restored.Logs))
	}

	if err := snap.Delete(sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := snap.Load(sess.ID); err != session.ErrNotFound {
		t.Fatalf("Load after delete = %v, want ErrNotFound", err)
	}
}
