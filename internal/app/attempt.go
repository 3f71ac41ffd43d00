package app

import (
	"sync"

	"timed-quiz-service/internal/countdown"
	"timed-quiz-service/internal/domain"
)

// attempt is the in-process view of one (identity, quiz) attempt. Every
// field is guarded by mu; ticks and transitions for the same key take mu, so
// they never interleave.
type attempt struct {
	mu       sync.Mutex
	key      domain.AttemptKey
	identity domain.Identity
	quiz     domain.Quiz
	status   domain.AttemptStatus
	engine   *countdown.Engine
	answers  domain.Answers
	pending  *domain.SubmissionRecord
	score    *int
	lastErr  error

	stopDriver  chan struct{}
	subscribers map[chan domain.AttemptSnapshot]struct{}
}

func newAttempt(identity domain.Identity, quiz domain.Quiz) *attempt {
	return &attempt{
		key:         domain.AttemptKey{Email: identity.Email, QuizID: quiz.ID},
		identity:    identity,
		quiz:        quiz,
		status:      domain.StatusNotStarted,
		engine:      countdown.NewAt(quiz.TimeLimit.TotalSeconds()),
		subscribers: make(map[chan domain.AttemptSnapshot]struct{}),
	}
}

func (a *attempt) started() bool {
	return a.status != domain.StatusNotStarted && a.status != domain.StatusAwaitingConfirmation
}

// stateLocked is the durable form of the attempt.
func (a *attempt) stateLocked() domain.AttemptState {
	state := domain.AttemptState{
		Identity:         a.identity,
		QuizID:           a.key.QuizID,
		Started:          a.started(),
		RemainingSeconds: a.engine.Remaining(),
		Answers:          a.answers.Clone(),
	}
	if a.pending != nil {
		pending := *a.pending
		state.Pending = &pending
	}
	return state
}

func (a *attempt) snapshotLocked() domain.AttemptSnapshot {
	remaining := a.engine.Remaining()
	snap := domain.AttemptSnapshot{
		QuizID:           a.key.QuizID,
		Email:            a.key.Email,
		Status:           a.status,
		RemainingSeconds: remaining,
		Remaining:        domain.FormatSeconds(remaining),
		Answers:          a.answers.Clone(),
	}
	if snap.Answers == nil {
		snap.Answers = domain.Answers{}
	}
	if a.score != nil {
		score := *a.score
		snap.Score = &score
	}
	if a.lastErr != nil {
		snap.Error = a.lastErr.Error()
	}
	return snap
}

func (a *attempt) subscribe() (<-chan domain.AttemptSnapshot, func()) {
	ch := make(chan domain.AttemptSnapshot, 8)

	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	ch <- a.snapshotLocked()
	a.mu.Unlock()

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

func (a *attempt) broadcastLocked() domain.AttemptSnapshot {
	snap := a.snapshotLocked()
	for ch := range a.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow subscriber: drop its oldest update so the tick never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}
