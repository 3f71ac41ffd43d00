package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"timed-quiz-service/internal/auth"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/remote"
)

// SubmissionRecorder stores a finished attempt and reports whether it was the
// first one for its (email, quiz) pair.
type SubmissionRecorder interface {
	Record(ctx context.Context, rec domain.SubmissionRecord) (bool, error)
}

// ReferenceHandler serves the identity and submission endpoints the attempt
// controller talks to when no external collaborators are configured.
type ReferenceHandler struct {
	tokens      *auth.Tokens
	submissions SubmissionRecorder
	log         *zap.Logger
	now         func() time.Time
}

func NewReferenceHandler(tokens *auth.Tokens, submissions SubmissionRecorder, log *zap.Logger) *ReferenceHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReferenceHandler{tokens: tokens, submissions: submissions, log: log, now: time.Now}
}

type userBody struct {
	FName string `json:"fname"`
	LName string `json:"lname"`
	Email string `json:"email"`
}

type userResponse struct {
	User userBody `json:"user"`
}

type submitQuizResponse struct {
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
}

// User answers GET /api/user for a bearer token.
func (h *ReferenceHandler) User(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, domain.ErrIdentityUnavailable, nil)
		return
	}
	claims, err := h.tokens.Parse(token)
	if err != nil || claims.Email == "" {
		writeError(w, domain.ErrIdentityUnavailable, nil)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: userBody{
		FName: claims.FName,
		LName: claims.LName,
		Email: claims.Email,
	}})
}

// SubmitQuiz answers POST /api/submit-quiz. Duplicates are acknowledged
// with 200 so a redelivered submission never fails.
func (h *ReferenceHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var payload remote.SubmissionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, fmt.Errorf("%w: submission: %v", errBadRequest, err), nil)
		return
	}
	if strings.TrimSpace(payload.UserEmail) == "" || strings.TrimSpace(payload.QuizID) == "" {
		writeError(w, fmt.Errorf("%w: userEmail and quizId are required", errBadRequest), nil)
		return
	}
	rec := domain.SubmissionRecord{
		Identity:    domain.Identity{Name: payload.UserName, Email: payload.UserEmail},
		QuizID:      payload.QuizID,
		Answers:     payload.Answers,
		Score:       payload.Score,
		Auto:        payload.Auto,
		SubmittedAt: h.now().UTC(),
	}
	created, err := h.submissions.Record(r.Context(), rec)
	if err != nil {
		h.log.Error("record submission", zap.String("email", rec.Identity.Email), zap.String("quiz_id", rec.QuizID), zap.Error(err))
		writeError(w, errors.New("could not record submission"), nil)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, submitQuizResponse{Message: "Quiz already submitted", Duplicate: true})
		return
	}
	h.log.Info("submission recorded",
		zap.String("email", rec.Identity.Email),
		zap.String("quiz_id", rec.QuizID),
		zap.Int("score", rec.Score),
		zap.Bool("auto", rec.Auto))
	writeJSON(w, http.StatusCreated, submitQuizResponse{Message: "Quiz submitted successfully"})
}
