package http

import (
	"context"
	"testing"
	"time"

	"elsa-progression-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketLeaderboardStream(t *testing.T) {
	server, service := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The initial snapshot arrives first and is empty.
	_, payload := readNext(conn, t, "leaderboard")
	if entries, _ := payload["entries"].([]any); len(entries) != 0 {
		t.Fatalf("expected empty initial leaderboard, got %v", payload)
	}

	attempt, _ := domain.NewContentAttempt("u1", time.Now(), "pod-1")
	if _, err := service.Submit(context.Background(), attempt); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, payload = readNext(conn, t, "leaderboard")
	entries, _ := payload["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected one leaderboard entry after submit, got %v", payload)
	}
	if entry := entries[0].(map[string]any); entry["userId"] != "u1" || entry["cumulativeXp"].(float64) != 25 {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestWebSocketRefreshAndUnsupported(t *testing.T) {
	server, _ := newTestServer(t)

	u := "ws" + server.URL[len("http"):] + "/ws/leaderboard"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	readNext(conn, t, "leaderboard")

	if err := conn.WriteJSON(map[string]any{"type": "refresh", "payload": map[string]any{"limit": 3}}); err != nil {
		t.Fatalf("write refresh: %v", err)
	}
	readNext(conn, t, "leaderboard")

	if err := conn.WriteJSON(map[string]any{"type": "answer"}); err != nil {
		t.Fatalf("write unsupported: %v", err)
	}
	_, payload := readNext(conn, t, "error")
	if payload["message"] != "unsupported message type" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
