package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"timed-quiz-service/internal/domain"
)

// SessionStore keeps attempt state in Redis so it survives process restarts.
// Each attempt is spread over plain string keys, with {email}:{quizID}
// rendered by domain.AttemptKey.String:
//
//	attempt:{email}:{quizID}:started    "true" | "false"
//	attempt:{email}:{quizID}:remaining  integer seconds
//	attempt:{email}:{quizID}:identity   JSON identity
//	attempt:{email}:{quizID}:answers    JSON answers (optional)
//	attempt:{email}:{quizID}:pending    JSON submission record (optional)
//
// Writes go through MULTI/EXEC so a reader never sees half an attempt. Only
// records that never started expire; a started attempt or one holding a
// pending submission is kept until it is cleared.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore returns a store whose unstarted records expire after ttl of
// inactivity. A zero ttl keeps every record until it is cleared.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Load(ctx context.Context, key domain.AttemptKey) (domain.AttemptState, bool, error) {
	k := keysFor(key)
	values, err := s.client.MGet(ctx, k.started, k.remaining, k.identity, k.answers, k.pending).Result()
	if err != nil {
		return domain.AttemptState{}, false, fmt.Errorf("load attempt %s: %w", key, err)
	}
	if values[0] == nil {
		return domain.AttemptState{}, false, nil
	}

	state := domain.AttemptState{
		Identity: domain.Identity{Email: key.Email},
		QuizID:   key.QuizID,
	}
	if state.Started, err = strconv.ParseBool(str(values[0])); err != nil {
		return domain.AttemptState{}, true, corrupted(key, "started flag", err)
	}
	if values[1] != nil {
		if state.RemainingSeconds, err = strconv.Atoi(str(values[1])); err != nil {
			return domain.AttemptState{}, true, corrupted(key, "remaining seconds", err)
		}
	} else if state.Started {
		return domain.AttemptState{}, true, corrupted(key, "remaining seconds", errors.New("missing"))
	}
	if values[2] != nil {
		if err := json.Unmarshal([]byte(str(values[2])), &state.Identity); err != nil {
			return domain.AttemptState{}, true, corrupted(key, "identity", err)
		}
	}
	if values[3] != nil {
		if err := json.Unmarshal([]byte(str(values[3])), &state.Answers); err != nil {
			return domain.AttemptState{}, true, corrupted(key, "answers", err)
		}
	}
	if values[4] != nil {
		var pending domain.SubmissionRecord
		if err := json.Unmarshal([]byte(str(values[4])), &pending); err != nil {
			return domain.AttemptState{}, true, corrupted(key, "pending submission", err)
		}
		state.Pending = &pending
	}
	if err := state.Validate(); err != nil {
		return domain.AttemptState{}, true, err
	}
	return state, true, nil
}

func (s *SessionStore) Save(ctx context.Context, state domain.AttemptState) error {
	key := state.Key()
	k := keysFor(key)
	identity, err := json.Marshal(state.Identity)
	if err != nil {
		return err
	}
	var answers, pending []byte
	if len(state.Answers) > 0 {
		if answers, err = json.Marshal(state.Answers); err != nil {
			return err
		}
	}
	if state.Pending != nil {
		if pending, err = json.Marshal(state.Pending); err != nil {
			return err
		}
	}

	// A zero expiration makes SET drop any TTL left by an unstarted write.
	ttl := s.ttl
	if state.Started || state.Pending != nil {
		ttl = 0
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k.started, strconv.FormatBool(state.Started), ttl)
		pipe.Set(ctx, k.remaining, state.RemainingSeconds, ttl)
		pipe.Set(ctx, k.identity, identity, ttl)
		if answers != nil {
			pipe.Set(ctx, k.answers, answers, ttl)
		} else {
			pipe.Del(ctx, k.answers)
		}
		if pending != nil {
			pipe.Set(ctx, k.pending, pending, ttl)
		} else {
			pipe.Del(ctx, k.pending)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save attempt %s: %w", key, err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, key domain.AttemptKey) error {
	k := keysFor(key)
	if err := s.client.Del(ctx, k.started, k.remaining, k.identity, k.answers, k.pending).Err(); err != nil {
		return fmt.Errorf("clear attempt %s: %w", key, err)
	}
	return nil
}

type attemptKeys struct {
	started, remaining, identity, answers, pending string
}

func keysFor(key domain.AttemptKey) attemptKeys {
	prefix := "attempt:" + key.String() + ":"
	return attemptKeys{
		started:   prefix + "started",
		remaining: prefix + "remaining",
		identity:  prefix + "identity",
		answers:   prefix + "answers",
		pending:   prefix + "pending",
	}
}

func corrupted(key domain.AttemptKey, field string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrCorruptedSession, key, field, err)
}

func str(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
