package app

import (
	"context"

	"timed-quiz-service/internal/domain"
)

// SessionStore abstracts where attempt state lives (in-memory, Redis, etc).
// Load reports ok=false when no record exists and wraps
// domain.ErrCorruptedSession when a record exists but cannot be trusted.
type SessionStore interface {
	Load(ctx context.Context, key domain.AttemptKey) (domain.AttemptState, bool, error)
	Save(ctx context.Context, state domain.AttemptState) error
	Clear(ctx context.Context, key domain.AttemptKey) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SubmissionGateway records a finished attempt. A nil error is a positive
// acknowledgement.
type SubmissionGateway interface {
	Submit(ctx context.Context, record domain.SubmissionRecord) error
}

// IdentityResolver turns a bearer credential into the current identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}
