package domain

import "errors"

var (
	// ErrIdentityUnavailable is returned when the current user cannot be resolved from a bearer credential.
	ErrIdentityUnavailable = errors.New("identity unavailable")
	// ErrIncompleteAnswers is returned when a manual submission leaves questions unanswered.
	ErrIncompleteAnswers = errors.New("incomplete answers")
	// ErrSubmissionTransport marks a failed delivery to the submission endpoint. The attempt stays retryable.
	ErrSubmissionTransport = errors.New("submission transport failure")
	// ErrSubmissionNetwork indicates the submission endpoint could not be reached.
	ErrSubmissionNetwork = errors.New("submission endpoint unreachable")
	// ErrSubmissionServer indicates the submission endpoint answered with a 5xx status.
	ErrSubmissionServer = errors.New("submission endpoint error")
	// ErrSubmissionRejected indicates the submission endpoint answered with a 4xx status.
	ErrSubmissionRejected = errors.New("submission rejected")
	// ErrCorruptedSession is returned by session stores when a persisted attempt fails validity checks.
	ErrCorruptedSession = errors.New("corrupted attempt session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates an answer references an unknown question ID.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound indicates an answer is not one of the question's choices.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrInvalidTransition is returned when an operation is not allowed in the attempt's current status.
	ErrInvalidTransition = errors.New("invalid attempt transition")
	// ErrInvalidQuiz is returned by quiz loaders when quiz content breaks the quiz invariants.
	ErrInvalidQuiz = errors.New("invalid quiz")
)
