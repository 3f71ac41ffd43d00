package memory

import (
	"context"
	"sync"

	"timed-quiz-service/internal/domain"
)

// SubmissionLog keeps the first submission per (email, quiz) in memory and
// acknowledges duplicates without storing them.
type SubmissionLog struct {
	mu      sync.RWMutex
	records map[domain.AttemptKey]domain.SubmissionRecord
}

func NewSubmissionLog() *SubmissionLog {
	return &SubmissionLog{records: make(map[domain.AttemptKey]domain.SubmissionRecord)}
}

// Record stores rec unless one exists for its key and reports whether it was new.
func (l *SubmissionLog) Record(_ context.Context, rec domain.SubmissionRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := rec.Key()
	if _, ok := l.records[key]; ok {
		return false, nil
	}
	rec.Answers = rec.Answers.Clone()
	l.records[key] = rec
	return true, nil
}

// Submit lets the log act as an in-process submission gateway.
func (l *SubmissionLog) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	_, err := l.Record(ctx, rec)
	return err
}

func (l *SubmissionLog) Get(key domain.AttemptKey) (domain.SubmissionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[key]
	return rec, ok
}

func (l *SubmissionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
