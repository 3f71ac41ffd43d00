package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
)

// AttemptHandler exposes the attempt lifecycle over REST. Every route is
// scoped to the caller resolved by requireIdentity.
type AttemptHandler struct {
	attempts *app.AttemptController
}

func NewAttemptHandler(attempts *app.AttemptController) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

type enterResponse struct {
	Attempt domain.AttemptSnapshot `json:"attempt"`
	Quiz    domain.QuizView        `json:"quiz"`
}

type answerRequest struct {
	Choice string `json:"choice"`
}

type submitRequest struct {
	Answers domain.Answers `json:"answers"`
}

func (h *AttemptHandler) Enter(w http.ResponseWriter, r *http.Request) {
	snap, view, err := h.attempts.Enter(r.Context(), identityFrom(r.Context()), mux.Vars(r)["quizId"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, enterResponse{Attempt: snap, Quiz: view})
}

func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.attempts.RequestStart)
}

func (h *AttemptHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.attempts.CancelStart)
}

func (h *AttemptHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.attempts.ConfirmStart)
}

func (h *AttemptHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.attempts.Retry)
}

func (h *AttemptHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: answer: %v", errBadRequest, err), nil)
		return
	}
	vars := mux.Vars(r)
	snap, err := h.attempts.Answer(r.Context(), identityFrom(r.Context()), vars["quizId"], vars["questionId"], req.Choice)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Submit accepts an optional answer set. An empty body submits the
// attempt's accumulated answers.
func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, fmt.Errorf("%w: submit: %v", errBadRequest, err), nil)
		return
	}
	snap, err := h.attempts.Submit(r.Context(), identityFrom(r.Context()), mux.Vars(r)["quizId"], req.Answers)
	if err != nil {
		var attempt *domain.AttemptSnapshot
		if snap.QuizID != "" {
			attempt = &snap
		}
		writeError(w, err, attempt)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type attemptOp func(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, error)

func (h *AttemptHandler) respond(w http.ResponseWriter, r *http.Request, op attemptOp) {
	snap, err := op(r.Context(), identityFrom(r.Context()), mux.Vars(r)["quizId"])
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
