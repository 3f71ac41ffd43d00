package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"timed-quiz-service/internal/countdown"
	"timed-quiz-service/internal/domain"
)

// AttemptController runs timed quiz attempts. It keeps one countdown per
// (identity, quiz) key, writes every tick and transition through the
// SessionStore before exposing it, and submits each finished attempt until
// the gateway acknowledges it.
type AttemptController struct {
	store     SessionStore
	quizzes   QuizRepository
	gateway   SubmissionGateway
	log       *zap.Logger
	retry     RetryPolicy
	newTicker func() countdown.Ticker
	now       func() time.Time

	// ctx outlives requests; tick drivers and expiry submissions run under it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sf     singleflight.Group

	mu       sync.Mutex
	attempts map[domain.AttemptKey]*attempt
}

// Option configures an AttemptController.
type Option func(*AttemptController)

// WithTicker makes the controller drive running countdowns itself, one
// ticker per attempt. Without it, time only advances through Tick.
func WithTicker(newTicker func() countdown.Ticker) Option {
	return func(c *AttemptController) { c.newTicker = newTicker }
}

// WithRetryPolicy sets the automatic redelivery policy for submissions.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *AttemptController) { c.retry = policy }
}

// WithClock is used by tests for deterministic submission timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *AttemptController) { c.now = now }
}

func NewAttemptController(store SessionStore, quizzes QuizRepository, gateway SubmissionGateway, log *zap.Logger, opts ...Option) *AttemptController {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &AttemptController{
		store:    store,
		quizzes:  quizzes,
		gateway:  gateway,
		log:      log,
		retry:    DefaultRetryPolicy(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		attempts: make(map[domain.AttemptKey]*attempt),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enter opens the attempt for a student, resuming persisted state when there
// is any, and returns it together with the student's view of the quiz.
func (c *AttemptController) Enter(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, domain.QuizView, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, domain.QuizView{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(), a.quiz.View(), nil
}

// Snapshot returns the current state of an attempt.
func (c *AttemptController) Snapshot(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(), nil
}

// RequestStart asks to start the attempt. Nothing is persisted until the
// student confirms.
func (c *AttemptController) RequestStart(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.status {
	case domain.StatusNotStarted:
		a.status = domain.StatusAwaitingConfirmation
		return a.broadcastLocked(), nil
	case domain.StatusAwaitingConfirmation:
		return a.snapshotLocked(), nil
	default:
		return a.snapshotLocked(), transitionError(a.status, "request start")
	}
}

// CancelStart backs out of the confirmation step.
func (c *AttemptController) CancelStart(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.status {
	case domain.StatusAwaitingConfirmation:
		a.status = domain.StatusNotStarted
		return a.broadcastLocked(), nil
	case domain.StatusNotStarted:
		return a.snapshotLocked(), nil
	default:
		return a.snapshotLocked(), transitionError(a.status, "cancel start")
	}
}

// ConfirmStart starts the countdown from the quiz's declared time limit.
// The started record is persisted before the attempt reports Running.
// Confirming a running attempt is a no-op.
func (c *AttemptController) ConfirmStart(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	a.mu.Lock()
	switch a.status {
	case domain.StatusAwaitingConfirmation:
	case domain.StatusRunning:
		defer a.mu.Unlock()
		return a.snapshotLocked(), nil
	default:
		defer a.mu.Unlock()
		return a.snapshotLocked(), transitionError(a.status, "confirm start")
	}

	initial := a.quiz.TimeLimit.TotalSeconds()
	state := a.stateLocked()
	state.Started = true
	state.RemainingSeconds = initial
	if err := c.store.Save(ctx, state); err != nil {
		defer a.mu.Unlock()
		return a.snapshotLocked(), fmt.Errorf("persist started attempt: %w", err)
	}

	a.status = domain.StatusRunning
	c.startCountdownLocked(a, initial)
	c.log.Info("attempt started",
		zap.String("quiz_id", a.key.QuizID),
		zap.String("email", a.key.Email),
		zap.Int("remaining", initial))

	if a.engine.Expired() {
		return c.expire(ctx, a)
	}
	defer a.mu.Unlock()
	return a.broadcastLocked(), nil
}

// Answer records one choice on a running attempt and persists it.
func (c *AttemptController) Answer(ctx context.Context, id domain.Identity, quizID, questionID, choice string) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != domain.StatusRunning {
		return a.snapshotLocked(), transitionError(a.status, "answer")
	}
	if err := validateAnswer(a.quiz, questionID, choice); err != nil {
		return a.snapshotLocked(), err
	}

	state := a.stateLocked()
	if state.Answers == nil {
		state.Answers = domain.Answers{}
	}
	state.Answers[questionID] = choice
	if err := c.store.Save(ctx, state); err != nil {
		return a.snapshotLocked(), fmt.Errorf("persist answer: %w", err)
	}
	a.answers = state.Answers
	return a.broadcastLocked(), nil
}

// Submit hands in a running attempt. answers are merged over the choices
// already recorded. An incomplete set is rejected with
// domain.ErrIncompleteAnswers and leaves the attempt untouched. Submitting
// an attempt that is already submitting or completed is ignored; submitting
// a failed attempt retries it.
func (c *AttemptController) Submit(ctx context.Context, id domain.Identity, quizID string, answers domain.Answers) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	a.mu.Lock()
	switch a.status {
	case domain.StatusRunning:
	case domain.StatusSubmitting, domain.StatusCompleted:
		defer a.mu.Unlock()
		return a.snapshotLocked(), nil
	case domain.StatusFailed:
		a.mu.Unlock()
		return c.retryAttempt(ctx, a)
	default:
		defer a.mu.Unlock()
		return a.snapshotLocked(), transitionError(a.status, "submit")
	}

	merged := a.answers.Clone()
	if merged == nil {
		merged = domain.Answers{}
	}
	for questionID, choice := range answers {
		if err := validateAnswer(a.quiz, questionID, choice); err != nil {
			defer a.mu.Unlock()
			return a.snapshotLocked(), err
		}
		merged[questionID] = choice
	}
	score, err := Score(a.quiz.Questions, merged)
	if err != nil {
		defer a.mu.Unlock()
		return a.snapshotLocked(), err
	}

	record := c.newRecord(a, merged, score, false)
	if err := c.beginSubmitLocked(ctx, a, record); err != nil {
		defer a.mu.Unlock()
		return a.snapshotLocked(), err
	}
	a.mu.Unlock()
	return c.deliver(ctx, a, record)
}

// Retry redelivers the submission of a failed attempt with the same answers
// and score it was computed with.
func (c *AttemptController) Retry(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	return c.retryAttempt(ctx, a)
}

// Tick advances a running attempt by one second and persists the remaining
// time. The tick that reaches zero submits the attempt. Ticks on attempts
// that are not running are ignored.
func (c *AttemptController) Tick(ctx context.Context, id domain.Identity, quizID string) (domain.AttemptSnapshot, error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return domain.AttemptSnapshot{}, err
	}
	return c.tick(ctx, a)
}

// Subscribe streams snapshots of an attempt: the current one first, then one
// per tick or transition. The caller must invoke cancel to avoid leaks.
func (c *AttemptController) Subscribe(ctx context.Context, id domain.Identity, quizID string) (<-chan domain.AttemptSnapshot, func(), error) {
	a, err := c.lookup(ctx, id, quizID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := a.subscribe()
	return ch, cancel, nil
}

// Shutdown stops every tick driver. Persisted state is left in place so
// attempts resume when the process comes back.
func (c *AttemptController) Shutdown() {
	c.cancel()
	c.mu.Lock()
	attempts := make([]*attempt, 0, len(c.attempts))
	for _, a := range c.attempts {
		attempts = append(attempts, a)
	}
	c.mu.Unlock()
	for _, a := range attempts {
		a.mu.Lock()
		c.stopDriverLocked(a)
		a.mu.Unlock()
	}
	c.wg.Wait()
}

// lookup returns the tracked attempt for the key, restoring it from the
// session store on first use.
func (c *AttemptController) lookup(ctx context.Context, id domain.Identity, quizID string) (*attempt, error) {
	if id.Email == "" {
		return nil, domain.ErrIdentityUnavailable
	}
	key := domain.AttemptKey{Email: id.Email, QuizID: quizID}
	if a, ok := c.tracked(key); ok {
		return a, nil
	}

	// The load is shared by every concurrent caller for key, so one caller
	// going away must not fail the others.
	shared := context.WithoutCancel(ctx)
	result, err, _ := c.sf.Do(key.String(), func() (interface{}, error) {
		if a, ok := c.tracked(key); ok {
			return a, nil
		}
		quiz, err := c.quizzes.GetQuiz(shared, quizID)
		if err != nil {
			return nil, err
		}
		a, err := c.restore(shared, id, quiz)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.attempts[key] = a
		c.mu.Unlock()
		c.activate(a)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*attempt), nil
}

func (c *AttemptController) tracked(key domain.AttemptKey) (*attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.attempts[key]
	return a, ok
}

// restore builds the attempt from the session store. A started record
// resumes from its persisted remaining time, never from the quiz's nominal
// duration. A record that fails validation is discarded and the attempt
// starts fresh.
func (c *AttemptController) restore(ctx context.Context, id domain.Identity, quiz domain.Quiz) (*attempt, error) {
	a := newAttempt(id, quiz)
	state, ok, err := c.store.Load(ctx, a.key)
	if err == nil && ok {
		err = state.Validate()
	}
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptedSession) {
			return nil, fmt.Errorf("load attempt: %w", err)
		}
		c.log.Warn("discarding corrupted attempt session",
			zap.String("quiz_id", a.key.QuizID),
			zap.String("email", a.key.Email),
			zap.Error(err))
		if err := c.store.Clear(ctx, a.key); err != nil {
			return nil, fmt.Errorf("clear corrupted attempt: %w", err)
		}
		ok = false
	}

	if !ok {
		if err := c.store.Save(ctx, a.stateLocked()); err != nil {
			return nil, fmt.Errorf("persist new attempt: %w", err)
		}
		return a, nil
	}

	a.answers = state.Answers.Clone()
	remaining := state.RemainingSeconds
	if nominal := quiz.TimeLimit.TotalSeconds(); remaining > nominal {
		remaining = nominal
	}
	switch {
	case state.Pending != nil:
		pending := *state.Pending
		a.pending = &pending
		a.status = domain.StatusFailed
		a.lastErr = errors.New("previous submission was not acknowledged")
		a.engine = countdown.NewAt(remaining)
	case state.Started:
		a.status = domain.StatusRunning
		a.engine = countdown.NewAt(remaining)
	}
	c.log.Info("attempt restored",
		zap.String("quiz_id", a.key.QuizID),
		zap.String("email", a.key.Email),
		zap.String("status", string(a.status)),
		zap.Int("remaining", remaining))
	return a, nil
}

// activate resumes the countdown of a restored running attempt. An attempt
// restored at zero is submitted right away.
func (c *AttemptController) activate(a *attempt) {
	a.mu.Lock()
	if a.status != domain.StatusRunning {
		a.mu.Unlock()
		return
	}
	c.startCountdownLocked(a, a.engine.Remaining())
	if !a.engine.Expired() {
		a.mu.Unlock()
		return
	}
	if _, err := c.expire(c.ctx, a); err != nil {
		c.log.Warn("expiry submission failed", zap.String("quiz_id", a.key.QuizID), zap.String("email", a.key.Email), zap.Error(err))
	}
}

func (c *AttemptController) startCountdownLocked(a *attempt, seconds int) {
	if !a.engine.Start(seconds) || a.engine.Expired() {
		return
	}
	if c.newTicker == nil || a.stopDriver != nil {
		return
	}
	stop := make(chan struct{})
	a.stopDriver = stop
	c.wg.Add(1)
	go c.drive(a, c.newTicker(), stop)
}

func (c *AttemptController) stopDriverLocked(a *attempt) {
	if a.stopDriver != nil {
		close(a.stopDriver)
		a.stopDriver = nil
	}
}

func (c *AttemptController) drive(a *attempt, ticker countdown.Ticker, stop <-chan struct{}) {
	defer c.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C():
			snap, err := c.tick(c.ctx, a)
			if err != nil {
				c.log.Warn("tick failed", zap.String("quiz_id", a.key.QuizID), zap.String("email", a.key.Email), zap.Error(err))
			}
			if snap.Status != domain.StatusRunning {
				return
			}
		}
	}
}

func (c *AttemptController) tick(ctx context.Context, a *attempt) (domain.AttemptSnapshot, error) {
	a.mu.Lock()
	if a.status != domain.StatusRunning {
		defer a.mu.Unlock()
		return a.snapshotLocked(), nil
	}
	if _, expired := a.engine.Tick(); expired {
		return c.expire(ctx, a)
	}
	defer a.mu.Unlock()
	err := c.store.Save(ctx, a.stateLocked())
	snap := a.broadcastLocked()
	if err != nil {
		return snap, fmt.Errorf("persist remaining time: %w", err)
	}
	return snap, nil
}

// expire submits an attempt whose countdown reached zero, scoring missing
// answers as incorrect. The caller holds a.mu; expire releases it.
func (c *AttemptController) expire(ctx context.Context, a *attempt) (domain.AttemptSnapshot, error) {
	record := c.newRecord(a, a.answers.Clone(), ScoreExpired(a.quiz.Questions, a.answers), true)
	if err := c.beginSubmitLocked(ctx, a, record); err != nil {
		c.stopDriverLocked(a)
		a.pending = &record
		a.status = domain.StatusFailed
		a.lastErr = err
		defer a.mu.Unlock()
		return a.broadcastLocked(), err
	}
	a.mu.Unlock()
	c.log.Info("attempt time expired", zap.String("quiz_id", a.key.QuizID), zap.String("email", a.key.Email))
	return c.deliver(ctx, a, record)
}

func (c *AttemptController) retryAttempt(ctx context.Context, a *attempt) (domain.AttemptSnapshot, error) {
	a.mu.Lock()
	switch {
	case a.status == domain.StatusFailed && a.pending != nil:
	case a.status == domain.StatusSubmitting, a.status == domain.StatusCompleted:
		defer a.mu.Unlock()
		return a.snapshotLocked(), nil
	default:
		defer a.mu.Unlock()
		return a.snapshotLocked(), transitionError(a.status, "retry")
	}
	record := *a.pending
	if err := c.beginSubmitLocked(ctx, a, record); err != nil {
		a.lastErr = err
		defer a.mu.Unlock()
		return a.broadcastLocked(), err
	}
	a.mu.Unlock()
	return c.deliver(ctx, a, record)
}

// beginSubmitLocked persists record as the pending submission, then stops the
// countdown and moves to Submitting.
func (c *AttemptController) beginSubmitLocked(ctx context.Context, a *attempt, record domain.SubmissionRecord) error {
	state := a.stateLocked()
	state.Started = true
	state.Answers = record.Answers.Clone()
	pending := record
	state.Pending = &pending
	if err := c.store.Save(ctx, state); err != nil {
		return fmt.Errorf("persist pending submission: %w", err)
	}
	a.engine.Stop()
	c.stopDriverLocked(a)
	a.answers = record.Answers.Clone()
	a.pending = &pending
	a.status = domain.StatusSubmitting
	a.lastErr = nil
	a.broadcastLocked()
	return nil
}

// deliver sends record and settles the attempt. Local state is cleared only
// after a positive acknowledgement.
func (c *AttemptController) deliver(ctx context.Context, a *attempt, record domain.SubmissionRecord) (domain.AttemptSnapshot, error) {
	err := c.retry.submit(ctx, c.gateway, record)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrSubmissionTransport, err)
		a.status = domain.StatusFailed
		a.lastErr = err
		c.log.Warn("submission failed",
			zap.String("quiz_id", a.key.QuizID),
			zap.String("email", a.key.Email),
			zap.Int("score", record.Score),
			zap.Error(err))
		return a.broadcastLocked(), err
	}

	if err := c.store.Clear(ctx, a.key); err != nil {
		c.log.Error("clear submitted attempt", zap.String("quiz_id", a.key.QuizID), zap.String("email", a.key.Email), zap.Error(err))
	}
	score := record.Score
	a.score = &score
	a.pending = nil
	a.status = domain.StatusCompleted
	c.log.Info("attempt submitted",
		zap.String("quiz_id", a.key.QuizID),
		zap.String("email", a.key.Email),
		zap.Int("score", score),
		zap.Bool("auto", record.Auto))
	return a.broadcastLocked(), nil
}

func (c *AttemptController) newRecord(a *attempt, answers domain.Answers, score int, auto bool) domain.SubmissionRecord {
	if answers == nil {
		answers = domain.Answers{}
	}
	return domain.SubmissionRecord{
		Identity:    a.identity,
		QuizID:      a.key.QuizID,
		Answers:     answers,
		Score:       score,
		Auto:        auto,
		SubmittedAt: c.now().UTC(),
	}
}

func validateAnswer(quiz domain.Quiz, questionID, choice string) error {
	question, ok := quiz.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrQuestionNotFound, questionID)
	}
	if !question.HasChoice(choice) {
		return fmt.Errorf("%w: %q for %s", domain.ErrChoiceNotFound, choice, questionID)
	}
	return nil
}

func transitionError(status domain.AttemptStatus, op string) error {
	return fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidTransition, op, status)
}
