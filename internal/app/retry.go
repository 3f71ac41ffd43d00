package app

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"timed-quiz-service/internal/domain"
)

// RetryPolicy controls automatic redelivery of a submission before the
// attempt is marked failed. MaxAttempts below 2 disables automatic retry.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy tries once and leaves retries to the student.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    1,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialBackoff > 0 {
		b.InitialInterval = p.InitialBackoff
	}
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	b.MaxElapsedTime = 0
	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// submit delivers record through gateway under the policy. 4xx rejections
// are not retried.
func (p RetryPolicy) submit(ctx context.Context, gateway SubmissionGateway, record domain.SubmissionRecord) error {
	return backoff.Retry(func() error {
		err := gateway.Submit(ctx, record)
		if errors.Is(err, domain.ErrSubmissionRejected) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx))
}
