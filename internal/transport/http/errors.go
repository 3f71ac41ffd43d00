package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"timed-quiz-service/internal/domain"
)

// errBadRequest marks a request body that could not be decoded.
var errBadRequest = errors.New("malformed request body")

type errorBody struct {
	Error   string                  `json:"error"`
	Code    string                  `json:"code"`
	Attempt *domain.AttemptSnapshot `json:"attempt,omitempty"`
}

// statusFor maps domain errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrIdentityUnavailable):
		return http.StatusUnauthorized, "identity_unavailable"
	case errors.Is(err, domain.ErrIncompleteAnswers):
		return http.StatusUnprocessableEntity, "incomplete_answers"
	case errors.Is(err, domain.ErrSubmissionTransport):
		return http.StatusBadGateway, "submission_failed"
	case errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrQuestionNotFound), errors.Is(err, domain.ErrChoiceNotFound):
		return http.StatusBadRequest, "invalid_answer"
	case errors.Is(err, domain.ErrInvalidQuiz):
		return http.StatusInternalServerError, "invalid_quiz"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error, snap *domain.AttemptSnapshot) {
	status, code := statusFor(err)
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code, Attempt: snap})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
