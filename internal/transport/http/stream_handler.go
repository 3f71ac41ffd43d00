package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"timed-quiz-service/internal/app"
)

// StreamHandler pushes countdown snapshots of one attempt over a websocket
// and accepts answer and submit commands on the same connection.
type StreamHandler struct {
	attempts *app.AttemptController
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewStreamHandler(attempts *app.AttemptController, log *zap.Logger, checkOrigin func(r *http.Request) bool) *StreamHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &StreamHandler{
		attempts: attempts,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Choice     string `json:"choice"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func errorMessage(err error) outboundMessage {
	_, code := statusFor(err)
	return outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Code: code}}
}

// ServeWS upgrades the request and streams the caller's attempt until either
// side closes the connection.
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	quizID := mux.Vars(r)["quizId"]

	// Resolve before upgrading so unknown quizzes get a plain 404.
	updates, cancel, err := h.attempts.Subscribe(r.Context(), id, quizID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.log.With(zap.String("email", id.Email), zap.String("quiz_id", quizID))
	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "attempt", Payload: snap}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload", Code: "bad_request"}})
				continue
			}
			if _, err := h.attempts.Answer(r.Context(), id, quizID, payload.QuestionID, payload.Choice); err != nil {
				reply(errorMessage(err))
			}
		case "submit":
			var payload submitRequest
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid submit payload", Code: "bad_request"}})
					continue
				}
			}
			if _, err := h.attempts.Submit(r.Context(), id, quizID, payload.Answers); err != nil {
				reply(errorMessage(err))
			}
		case "retry":
			if _, err := h.attempts.Retry(r.Context(), id, quizID); err != nil {
				reply(errorMessage(err))
			}
		default:
			reply(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type", Code: "bad_request"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
