package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/countdown"
	"timed-quiz-service/internal/domain"
	"timed-quiz-service/internal/infra/memory"
)

var alice = domain.Identity{Name: "Alice", Email: "alice@example.com"}

func TestManualSubmitBeforeExpiry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.start(ctx, t)
	if _, err := h.ctrl.Tick(ctx, alice, "quiz-1"); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if _, err := h.ctrl.Answer(ctx, alice, "quiz-1", "q1", "4"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	snap, err := h.ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q2": "Paris"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.Status != domain.StatusCompleted || snap.Score == nil || *snap.Score != 3 {
		t.Fatalf("expected completed with score 3, got %+v", snap)
	}
	if _, ok, _ := h.store.Load(ctx, key()); ok {
		t.Fatalf("expected session entry cleared")
	}
	rec, ok := h.log.Get(key())
	if !ok || rec.Score != 3 || rec.Auto {
		t.Fatalf("expected manual record with score 3, got %+v", rec)
	}
}

func TestExpiryAutoSubmitsWithMissingAnswersAsIncorrect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.start(ctx, t)
	var snap domain.AttemptSnapshot
	for i := 0; i < 5; i++ {
		var err error
		snap, err = h.ctrl.Tick(ctx, alice, "quiz-1")
		if err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}
	if snap.Status != domain.StatusCompleted || snap.Score == nil || *snap.Score != 0 {
		t.Fatalf("expected completed with score 0, got %+v", snap)
	}
	rec, ok := h.log.Get(key())
	if !ok || !rec.Auto || len(rec.Answers) != 0 {
		t.Fatalf("expected auto submission with no answers, got %+v", rec)
	}
	if _, ok, _ := h.store.Load(ctx, key()); ok {
		t.Fatalf("expected session entry cleared")
	}

	// Further ticks are ignored.
	snap, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
	if snap.Status != domain.StatusCompleted || h.gateway.callCount() != 1 {
		t.Fatalf("expected single submission, got %d calls and %+v", h.gateway.callCount(), snap)
	}
}

func TestExpiryKeepsPartialAnswers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.start(ctx, t)
	if _, err := h.ctrl.Answer(ctx, alice, "quiz-1", "q2", "Paris"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
	}
	rec, _ := h.log.Get(key())
	if rec.Score != 2 || rec.Answers["q2"] != "Paris" {
		t.Fatalf("expected partial score 2, got %+v", rec)
	}
}

func TestIncompleteManualSubmitLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.start(ctx, t)
	_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
	_, _ = h.ctrl.Answer(ctx, alice, "quiz-1", "q1", "4")
	before, _, _ := h.store.Load(ctx, key())

	snap, err := h.ctrl.Submit(ctx, alice, "quiz-1", nil)
	if !errors.Is(err, domain.ErrIncompleteAnswers) {
		t.Fatalf("expected incomplete answers, got %v", err)
	}
	if snap.Status != domain.StatusRunning {
		t.Fatalf("expected still running, got %s", snap.Status)
	}
	after, ok, _ := h.store.Load(ctx, key())
	if !ok || !after.Started || after.RemainingSeconds != before.RemainingSeconds || after.RemainingSeconds != 4 {
		t.Fatalf("expected unchanged state, before %+v after %+v", before, after)
	}
	if len(after.Answers) != 1 || after.Pending != nil {
		t.Fatalf("expected no mutation, got %+v", after)
	}
	if h.gateway.callCount() != 0 {
		t.Fatalf("gateway must not be called")
	}
}

func TestResumeNeverRewindsTheClock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.start(ctx, t)
	_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
	_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
	_, _ = h.ctrl.Answer(ctx, alice, "quiz-1", "q1", "4")

	// A new process over the same store stands in for a page reload.
	reloaded := app.NewAttemptController(h.store, h.quizzes, h.gateway, zap.NewNop())
	snap, _, err := reloaded.Enter(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if snap.Status != domain.StatusRunning || snap.RemainingSeconds != 3 {
		t.Fatalf("expected running with 3 seconds, got %+v", snap)
	}
	if snap.Answers["q1"] != "4" {
		t.Fatalf("expected recorded answer to survive, got %+v", snap.Answers)
	}
	// Confirming again must not restart from the nominal duration.
	snap, err = reloaded.ConfirmStart(ctx, alice, "quiz-1")
	if err != nil || snap.RemainingSeconds != 3 {
		t.Fatalf("expected confirm to be a no-op, got %+v, %v", snap, err)
	}
}

func TestResumeClampsToNominalDuration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Put(key(), domain.AttemptState{Identity: alice, QuizID: "quiz-1", Started: true, RemainingSeconds: 500})

	snap, _, err := h.ctrl.Enter(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if snap.RemainingSeconds != 5 {
		t.Fatalf("expected remaining clamped to 5, got %d", snap.RemainingSeconds)
	}
}

func TestResumeAtZeroSubmitsImmediately(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Put(key(), domain.AttemptState{
		Identity: alice, QuizID: "quiz-1", Started: true, RemainingSeconds: 0,
		Answers: domain.Answers{"q1": "4"},
	})

	snap, _, err := h.ctrl.Enter(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if snap.Status != domain.StatusCompleted || *snap.Score != 1 {
		t.Fatalf("expected immediate auto submission scoring 1, got %+v", snap)
	}
}

func TestCorruptedSessionStartsFresh(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Put(key(), domain.AttemptState{Identity: alice, QuizID: "quiz-1", Started: true, RemainingSeconds: -4})

	snap, _, err := h.ctrl.Enter(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("corrupted state must not block the student: %v", err)
	}
	if snap.Status != domain.StatusNotStarted {
		t.Fatalf("expected fresh attempt, got %s", snap.Status)
	}
	state, ok, _ := h.store.Load(ctx, key())
	if !ok || state.Started {
		t.Fatalf("expected fresh unstarted record, got %+v", state)
	}
}

func TestTransportFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gateway.failures = 1

	h.start(ctx, t)
	_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
	snap, err := h.ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q1": "4", "q2": "Rome"})
	if !errors.Is(err, domain.ErrSubmissionTransport) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if snap.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", snap.Status)
	}
	state, ok, _ := h.store.Load(ctx, key())
	if !ok || state.Pending == nil || state.Pending.Score != 1 || state.RemainingSeconds != 4 {
		t.Fatalf("expected preserved state with pending record, got %+v", state)
	}

	// Ticks are ignored while failed.
	_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")

	snap, err = h.ctrl.Retry(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if snap.Status != domain.StatusCompleted || *snap.Score != 1 {
		t.Fatalf("expected completed with score 1, got %+v", snap)
	}
	scores := h.gateway.scores()
	if len(scores) != 2 || scores[0] != scores[1] {
		t.Fatalf("expected the same score on both deliveries, got %v", scores)
	}
	if h.log.Len() != 1 {
		t.Fatalf("expected exactly one accepted record, got %d", h.log.Len())
	}
}

func TestPendingSubmissionSurvivesRestartAsFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.gateway.failures = 1

	h.start(ctx, t)
	_, _ = h.ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q1": "4", "q2": "Paris"})

	reloaded := app.NewAttemptController(h.store, h.quizzes, h.gateway, zap.NewNop())
	snap, _, err := reloaded.Enter(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	if snap.Status != domain.StatusFailed {
		t.Fatalf("expected failed after restart, got %s", snap.Status)
	}
	// Manual submit on a failed attempt retries the stored record.
	snap, err = reloaded.Submit(ctx, alice, "quiz-1", domain.Answers{"q2": "Rome"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if *snap.Score != 3 {
		t.Fatalf("expected original score 3, got %d", *snap.Score)
	}
}

func TestAutomaticRetryPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.WithRetryPolicy(app.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}))
	h.gateway.failures = 2

	h.start(ctx, t)
	snap, err := h.ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q1": "4", "q2": "Paris"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if snap.Status != domain.StatusCompleted || h.gateway.callCount() != 3 {
		t.Fatalf("expected completion on third call, got %s after %d calls", snap.Status, h.gateway.callCount())
	}
}

func TestRejectedSubmissionIsNotRetriedAutomatically(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, app.WithRetryPolicy(app.RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond}))
	h.gateway.failures = 1
	h.gateway.failWith = domain.ErrSubmissionRejected

	h.start(ctx, t)
	_, err := h.ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q1": "4", "q2": "Paris"})
	if !errors.Is(err, domain.ErrSubmissionRejected) || h.gateway.callCount() != 1 {
		t.Fatalf("expected one rejected call, got %v after %d calls", err, h.gateway.callCount())
	}
}

func TestStateMachineTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	snap, _, err := h.ctrl.Enter(ctx, alice, "quiz-1")
	if err != nil || snap.Status != domain.StatusNotStarted || snap.RemainingSeconds != 5 {
		t.Fatalf("expected not started showing 5s, got %+v, %v", snap, err)
	}
	if _, err := h.ctrl.ConfirmStart(ctx, alice, "quiz-1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("confirm without request must fail, got %v", err)
	}
	if _, err := h.ctrl.Answer(ctx, alice, "quiz-1", "q1", "4"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("answer before start must fail, got %v", err)
	}

	snap, _ = h.ctrl.RequestStart(ctx, alice, "quiz-1")
	if snap.Status != domain.StatusAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", snap.Status)
	}
	state, _, _ := h.store.Load(ctx, key())
	if state.Started {
		t.Fatalf("request start must not persist a started attempt")
	}
	snap, _ = h.ctrl.CancelStart(ctx, alice, "quiz-1")
	if snap.Status != domain.StatusNotStarted {
		t.Fatalf("expected not started after cancel, got %s", snap.Status)
	}

	h.start(ctx, t)
	state, _, _ = h.store.Load(ctx, key())
	if !state.Started || state.RemainingSeconds != 5 {
		t.Fatalf("expected persisted start with 5 seconds, got %+v", state)
	}
	if _, err := h.ctrl.Answer(ctx, alice, "quiz-1", "q9", "4"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected unknown question, got %v", err)
	}
	if _, err := h.ctrl.Answer(ctx, alice, "quiz-1", "q1", "7"); !errors.Is(err, domain.ErrChoiceNotFound) {
		t.Fatalf("expected unknown choice, got %v", err)
	}
}

func TestUnknownQuizAndIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	if _, _, err := h.ctrl.Enter(ctx, alice, "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if _, _, err := h.ctrl.Enter(ctx, domain.Identity{}, "quiz-1"); !errors.Is(err, domain.ErrIdentityUnavailable) {
		t.Fatalf("expected identity unavailable, got %v", err)
	}
}

func TestSubscribeReceivesTicks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.start(ctx, t)

	ch, cancel, err := h.ctrl.Subscribe(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch // initial snapshot

	_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
	update := <-ch
	if update.RemainingSeconds != 4 || update.Remaining != "0h 0m 4s" {
		t.Fatalf("expected 4 seconds remaining, got %+v", update)
	}
}

func TestTickerDrivesCountdownToSubmission(t *testing.T) {
	ctx := context.Background()
	ticker := countdown.NewManualTicker()
	var created int
	var mu sync.Mutex
	h := newHarness(t, app.WithTicker(func() countdown.Ticker {
		mu.Lock()
		created++
		mu.Unlock()
		return ticker
	}))
	defer h.ctrl.Shutdown()

	h.start(ctx, t)
	// A repeated confirm must not spawn a second driver.
	_, _ = h.ctrl.ConfirmStart(ctx, alice, "quiz-1")

	for i := 0; i < 5; i++ {
		if !ticker.Fire(time.Second) {
			t.Fatalf("tick %d not consumed", i+1)
		}
	}
	select {
	case <-ticker.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatalf("driver did not stop after expiry")
	}

	snap, _ := h.ctrl.Snapshot(ctx, alice, "quiz-1")
	if snap.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", snap.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if created != 1 {
		t.Fatalf("expected one ticker, got %d", created)
	}
}

func TestZeroLengthQuizSubmitsOnConfirm(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, _ = h.ctrl.RequestStart(ctx, alice, "quiz-0")
	snap, err := h.ctrl.ConfirmStart(ctx, alice, "quiz-0")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if snap.Status != domain.StatusCompleted {
		t.Fatalf("expected immediate submission, got %s", snap.Status)
	}
}

type harness struct {
	ctrl    *app.AttemptController
	store   *memory.SessionStore
	quizzes *memory.QuizRepository
	log     *memory.SubmissionLog
	gateway *flakyGateway
}

func newHarness(t *testing.T, opts ...app.Option) *harness {
	t.Helper()
	store := memory.NewSessionStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": sampleQuiz(),
		"quiz-0": {ID: "quiz-0", Questions: sampleQuiz().Questions},
	}), time.Minute)
	log := memory.NewSubmissionLog()
	gateway := &flakyGateway{next: log}
	return &harness{
		ctrl:    app.NewAttemptController(store, quizzes, gateway, zap.NewNop(), opts...),
		store:   store,
		quizzes: quizzes,
		log:     log,
		gateway: gateway,
	}
}

func (h *harness) start(ctx context.Context, t *testing.T) {
	t.Helper()
	if _, err := h.ctrl.RequestStart(ctx, alice, "quiz-1"); err != nil {
		t.Fatalf("request start: %v", err)
	}
	snap, err := h.ctrl.ConfirmStart(ctx, alice, "quiz-1")
	if err != nil {
		t.Fatalf("confirm start: %v", err)
	}
	if snap.Status != domain.StatusRunning {
		t.Fatalf("expected running, got %s", snap.Status)
	}
}

func key() domain.AttemptKey {
	return domain.AttemptKey{Email: alice.Email, QuizID: "quiz-1"}
}

// flakyGateway fails its first `failures` calls, then forwards to next.
type flakyGateway struct {
	mu       sync.Mutex
	next     app.SubmissionGateway
	failures int
	failWith error
	calls    []domain.SubmissionRecord
}

func (g *flakyGateway) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	g.mu.Lock()
	g.calls = append(g.calls, rec)
	fail := g.failures > 0
	if fail {
		g.failures--
	}
	failWith := g.failWith
	g.mu.Unlock()
	if fail {
		if failWith == nil {
			failWith = domain.ErrSubmissionNetwork
		}
		return failWith
	}
	return g.next.Submit(ctx, rec)
}

func (g *flakyGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *flakyGateway) scores() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int, 0, len(g.calls))
	for _, c := range g.calls {
		out = append(out, c.Score)
	}
	return out
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:           "quiz-1",
		Title:        "General knowledge",
		Description:  "Two quick questions",
		Instructions: "Pick one answer per question",
		TimeLimit:    domain.TimeLimit{Hours: 0, Minutes: 0, Seconds: 5},
		Questions: []domain.Question{
			{ID: "q1", Text: "What is 2 + 2?", Choices: []string{"3", "4", "5"}, CorrectAnswer: "4", Points: 1},
			{ID: "q2", Text: "Capital of France?", Choices: []string{"Paris", "Rome"}, CorrectAnswer: "Paris", Points: 2},
		},
	}
}

func TestSubmittingIgnoresDuplicatesAndTicks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	gateway := newBlockingGateway(h.log)
	ctrl := app.NewAttemptController(h.store, h.quizzes, gateway, zap.NewNop())
	defer ctrl.Shutdown()

	_, _ = ctrl.RequestStart(ctx, alice, "quiz-1")
	if _, err := ctrl.ConfirmStart(ctx, alice, "quiz-1"); err != nil {
		t.Fatalf("confirm start: %v", err)
	}

	type result struct {
		snap domain.AttemptSnapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q1": "4", "q2": "Paris"})
		done <- result{snap, err}
	}()

	select {
	case <-gateway.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("gateway was never called")
	}

	snap, err := ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q1": "3", "q2": "Rome"})
	if err != nil || snap.Status != domain.StatusSubmitting {
		t.Fatalf("expected duplicate submit to be ignored while submitting, got %+v err=%v", snap, err)
	}
	snap, err = ctrl.Tick(ctx, alice, "quiz-1")
	if err != nil || snap.Status != domain.StatusSubmitting || snap.RemainingSeconds != 5 {
		t.Fatalf("expected tick to be suppressed while submitting, got %+v err=%v", snap, err)
	}
	if snap, err = ctrl.Retry(ctx, alice, "quiz-1"); err != nil || snap.Status != domain.StatusSubmitting {
		t.Fatalf("expected retry to be ignored while submitting, got %+v err=%v", snap, err)
	}

	close(gateway.release)
	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("submission never finished")
	}
	if res.err != nil || res.snap.Status != domain.StatusCompleted || *res.snap.Score != 3 {
		t.Fatalf("expected completed with score 3, got %+v err=%v", res.snap, res.err)
	}
	if gateway.callCount() != 1 || h.log.Len() != 1 {
		t.Fatalf("expected one gateway call and one record, got %d calls and %d records", gateway.callCount(), h.log.Len())
	}
	rec, _ := h.log.Get(key())
	if rec.Answers["q1"] != "4" || rec.Auto {
		t.Fatalf("expected the first manual submission to be recorded, got %+v", rec)
	}
}

func TestFinalTickRacingManualSubmitDeliversOnce(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		h := newHarness(t)
		h.start(ctx, t)
		for i := 0; i < 4; i++ {
			_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.ctrl.Tick(ctx, alice, "quiz-1")
		}()
		go func() {
			defer wg.Done()
			_, _ = h.ctrl.Submit(ctx, alice, "quiz-1", domain.Answers{"q1": "4", "q2": "Paris"})
		}()
		wg.Wait()

		snap, err := h.ctrl.Snapshot(ctx, alice, "quiz-1")
		if err != nil || snap.Status != domain.StatusCompleted {
			t.Fatalf("round %d: expected completed, got %+v err=%v", round, snap, err)
		}
		if h.gateway.callCount() != 1 || h.log.Len() != 1 {
			t.Fatalf("round %d: expected a single delivery, got %d calls and %d records", round, h.gateway.callCount(), h.log.Len())
		}
		h.ctrl.Shutdown()
	}
}

// blockingGateway holds every submission until release is closed.
type blockingGateway struct {
	next    app.SubmissionGateway
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	calls int
}

func newBlockingGateway(next app.SubmissionGateway) *blockingGateway {
	return &blockingGateway{next: next, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *blockingGateway) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.next.Submit(ctx, rec)
}

func (g *blockingGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestCancelledCallerDoesNotFailSharedRestore(t *testing.T) {
	h := newHarness(t)
	quizzes := &gatedQuizzes{next: h.quizzes, entered: make(chan struct{}), release: make(chan struct{})}
	ctrl := app.NewAttemptController(h.store, quizzes, h.gateway, zap.NewNop())
	defer ctrl.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, _, err := ctrl.Enter(ctx, alice, "quiz-1")
		errs <- err
	}()

	select {
	case <-quizzes.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("quiz load never started")
	}
	cancel()
	close(quizzes.release)

	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("shared restore failed with the first caller's cancellation: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("enter never returned")
	}
	snap, _, err := ctrl.Enter(context.Background(), alice, "quiz-1")
	if err != nil || snap.Status != domain.StatusNotStarted {
		t.Fatalf("expected restored attempt, got %+v err=%v", snap, err)
	}
}

// gatedQuizzes holds the first quiz load until release is closed, failing
// early if the load's context is cancelled.
type gatedQuizzes struct {
	next    app.QuizRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (q *gatedQuizzes) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	q.once.Do(func() { close(q.entered) })
	select {
	case <-q.release:
	case <-ctx.Done():
		return domain.Quiz{}, ctx.Err()
	}
	return q.next.GetQuiz(ctx, quizID)
}
