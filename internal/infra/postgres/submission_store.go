package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"timed-quiz-service/internal/domain"
)

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID          uuid.UUID         `bun:"id,pk,type:uuid"`
	UserEmail   string            `bun:"user_email,notnull"`
	UserName    string            `bun:"user_name,notnull"`
	QuizID      string            `bun:"quiz_id,notnull"`
	Answers     map[string]string `bun:"answers,type:jsonb"`
	Score       int               `bun:"score,notnull"`
	Auto        bool              `bun:"auto,notnull"`
	SubmittedAt time.Time         `bun:"submitted_at,notnull"`
}

// SubmissionStore records finished attempts. The first submission per
// (user_email, quiz_id) wins; later ones are acknowledged and dropped.
type SubmissionStore struct {
	db *bun.DB
}

// OpenDB connects bun to Postgres through pgdriver.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func NewSubmissionStore(db *bun.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// Record stores rec and reports whether it was the first for its attempt.
func (s *SubmissionStore) Record(ctx context.Context, rec domain.SubmissionRecord) (bool, error) {
	submittedAt := rec.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now().UTC()
	}
	row := &submissionRow{
		ID:          uuid.New(),
		UserEmail:   rec.Identity.Email,
		UserName:    rec.Identity.Name,
		QuizID:      rec.QuizID,
		Answers:     map[string]string(rec.Answers),
		Score:       rec.Score,
		Auto:        rec.Auto,
		SubmittedAt: submittedAt,
	}
	if row.Answers == nil {
		row.Answers = map[string]string{}
	}
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_email, quiz_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("record submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record submission: %w", err)
	}
	return n == 1, nil
}

// Submit lets the store act as an in-process submission gateway.
func (s *SubmissionStore) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	_, err := s.Record(ctx, rec)
	return err
}

// Get returns the recorded submission for an attempt.
func (s *SubmissionStore) Get(ctx context.Context, key domain.AttemptKey) (domain.SubmissionRecord, bool, error) {
	row := new(submissionRow)
	err := s.db.NewSelect().
		Model(row).
		Where("user_email = ?", key.Email).
		Where("quiz_id = ?", key.QuizID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SubmissionRecord{}, false, nil
	}
	if err != nil {
		return domain.SubmissionRecord{}, false, fmt.Errorf("get submission: %w", err)
	}
	return domain.SubmissionRecord{
		Identity:    domain.Identity{Name: row.UserName, Email: row.UserEmail},
		QuizID:      row.QuizID,
		Answers:     domain.Answers(row.Answers),
		Score:       row.Score,
		Auto:        row.Auto,
		SubmittedAt: row.SubmittedAt,
	}, true, nil
}
