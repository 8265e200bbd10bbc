package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/amparachrist-beep/gestion-ventes-sync/internal/progress"
)

func startTestServer(t *testing.T) (*Server, *progress.Notifier) {
	t.Helper()

	notifier := progress.NewNotifier()
	server := NewServer(notifier, &Config{
		Port:   0, // random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})

	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	time.Sleep(50 * time.Millisecond)
	return server, notifier
}

func TestServerStartStop(t *testing.T) {
	server, _ := startTestServer(t)

	if server.Addr() == "" {
		t.Fatal("server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}
}

func TestWebSocketReceivesProgress(t *testing.T) {
	server, notifier := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", server.Addr()), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Wait for the server to register the client before publishing.
	deadline := time.After(2 * time.Second)
	for server.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	notifier.Publish(progress.Event{
		Status:      progress.StatusSyncing,
		Current:     1,
		Total:       3,
		SyncedCount: 1,
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode broadcast: %v", err)
	}
	if msg.Type != "sync_progress" {
		t.Errorf("expected sync_progress message, got %q", msg.Type)
	}
	if msg.Event.Status != progress.StatusSyncing || msg.Event.SyncedCount != 1 {
		t.Errorf("unexpected event payload: %+v", msg.Event)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := startTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", server.Addr()))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("expected ok status, got %q", body.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := startTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", server.Addr()))
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestClientDisconnectIsTracked(t *testing.T) {
	server, _ := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", server.Addr()), nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for server.ClientCount() != 1 {
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")

	deadline = time.After(2 * time.Second)
	for server.ClientCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("disconnect never tracked")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
