package http

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"timed-quiz-service/internal/domain"
)

type streamMessage struct {
	Type    string                 `json:"type"`
	Payload domain.AttemptSnapshot `json:"payload"`
}

func TestStreamPushesCountdownAndAcceptsCommands(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	alice := domain.Identity{Name: "Alice", Email: "alice@example.com"}
	if _, err := s.ctrl.RequestStart(ctx, alice, "quiz-1"); err != nil {
		t.Fatalf("request start: %v", err)
	}
	if _, err := s.ctrl.ConfirmStart(ctx, alice, "quiz-1"); err != nil {
		t.Fatalf("confirm start: %v", err)
	}

	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/quizzes/quiz-1/attempt?token=" + s.token
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readUntil(t, conn, func(m streamMessage) bool { return m.Type == "attempt" })
	if first.Payload.Status != domain.StatusRunning || first.Payload.RemainingSeconds != 5 {
		t.Fatalf("expected running with 5s left, got %+v", first.Payload)
	}

	if _, err := s.ctrl.Tick(ctx, alice, "quiz-1"); err != nil {
		t.Fatalf("tick: %v", err)
	}
	readUntil(t, conn, func(m streamMessage) bool { return m.Payload.RemainingSeconds == 4 })

	if err := conn.WriteJSON(map[string]interface{}{
		"type":    "answer",
		"payload": map[string]string{"questionId": "q1", "choice": "4"},
	}); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readUntil(t, conn, func(m streamMessage) bool { return m.Payload.Answers["q1"] == "4" })

	if err := conn.WriteJSON(map[string]interface{}{"type": "shout"}); err != nil {
		t.Fatalf("write unknown: %v", err)
	}
	readUntil(t, conn, func(m streamMessage) bool { return m.Type == "error" })

	if err := conn.WriteJSON(map[string]interface{}{
		"type":    "submit",
		"payload": map[string]interface{}{"answers": map[string]string{"q2": "Paris"}},
	}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	done := readUntil(t, conn, func(m streamMessage) bool { return m.Payload.Status == domain.StatusCompleted })
	if done.Payload.Score == nil || *done.Payload.Score != 3 {
		t.Fatalf("expected score 3, got %+v", done.Payload)
	}
}

func TestStreamRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws/quizzes/quiz-1/attempt"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(streamMessage) bool) streamMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		var msg streamMessage
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
	t.Fatalf("no matching message within 10 reads")
	return streamMessage{}
}
