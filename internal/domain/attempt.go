package domain

import (
	"fmt"
	"strings"
	"time"
)

// AttemptKey namespaces attempt state by student and quiz.
type AttemptKey struct {
	Email  string
	QuizID string
}

// String joins the escaped email and quiz ID with ":". Neither part can
// contain a bare ":" once escaped, so distinct keys never render the same.
func (k AttemptKey) String() string {
	return keyPartEscaper.Replace(k.Email) + ":" + keyPartEscaper.Replace(k.QuizID)
}

var keyPartEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// AttemptStatus is a state of the attempt state machine.
type AttemptStatus string

const (
	StatusNotStarted           AttemptStatus = "NOT_STARTED"
	StatusAwaitingConfirmation AttemptStatus = "AWAITING_CONFIRMATION"
	StatusRunning              AttemptStatus = "RUNNING"
	StatusSubmitting           AttemptStatus = "SUBMITTING"
	StatusCompleted            AttemptStatus = "COMPLETED"
	StatusFailed               AttemptStatus = "FAILED"
)

// SubmissionRecord is the payload delivered once per completed attempt.
type SubmissionRecord struct {
	Identity    Identity  `json:"identity"`
	QuizID      string    `json:"quizId"`
	Answers     Answers   `json:"answers"`
	Score       int       `json:"score"`
	Auto        bool      `json:"auto"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Key returns the attempt key the record belongs to.
func (r SubmissionRecord) Key() AttemptKey {
	return AttemptKey{Email: r.Identity.Email, QuizID: r.QuizID}
}

// AttemptState is the durable session record for one attempt.
// Pending holds a submission that has been computed but not yet acknowledged.
type AttemptState struct {
	Identity         Identity          `json:"identity"`
	QuizID           string            `json:"quizId"`
	Started          bool              `json:"started"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Answers          Answers           `json:"answers,omitempty"`
	Pending          *SubmissionRecord `json:"pending,omitempty"`
}

// Key returns the attempt key of the state.
func (s AttemptState) Key() AttemptKey {
	return AttemptKey{Email: s.Identity.Email, QuizID: s.QuizID}
}

// Clone returns a deep copy.
func (s AttemptState) Clone() AttemptState {
	out := s
	out.Answers = s.Answers.Clone()
	if s.Pending != nil {
		pending := *s.Pending
		pending.Answers = s.Pending.Answers.Clone()
		out.Pending = &pending
	}
	return out
}

// Validate runs the basic checks a resumed record must pass.
func (s AttemptState) Validate() error {
	switch {
	case s.Identity.Email == "":
		return fmt.Errorf("%w: missing identity", ErrCorruptedSession)
	case s.QuizID == "":
		return fmt.Errorf("%w: missing quiz reference", ErrCorruptedSession)
	case s.RemainingSeconds < 0:
		return fmt.Errorf("%w: negative remaining time %d", ErrCorruptedSession, s.RemainingSeconds)
	case s.Pending != nil && !s.Started:
		return fmt.Errorf("%w: pending submission on an attempt that never started", ErrCorruptedSession)
	case s.Pending != nil && s.Pending.Key() != s.Key():
		return fmt.Errorf("%w: pending submission belongs to %s", ErrCorruptedSession, s.Pending.Key())
	}
	return nil
}

// AttemptSnapshot is a read-only view of an attempt handed to callers and subscribers.
type AttemptSnapshot struct {
	QuizID           string        `json:"quizId"`
	Email            string        `json:"email"`
	Status           AttemptStatus `json:"status"`
	RemainingSeconds int           `json:"remainingSeconds"`
	Remaining        string        `json:"remaining"`
	Answers          Answers       `json:"answers"`
	Score            *int          `json:"score,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// FormatSeconds renders seconds as "{h}h {m}m {s}s".
func FormatSeconds(seconds int) string {
	seconds = nonNegative(seconds)
	return fmt.Sprintf("%dh %dm %ds", seconds/3600, (seconds%3600)/60, seconds%60)
}
