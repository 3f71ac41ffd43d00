package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"timed-quiz-service/internal/domain"
)

// SubmissionGateway posts finished attempts to the submission endpoint. It
// makes exactly one request per call; retries belong to the caller.
type SubmissionGateway struct {
	url    string
	client *http.Client
}

func NewSubmissionGateway(url string, timeout time.Duration) *SubmissionGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SubmissionGateway{url: url, client: &http.Client{Timeout: timeout}}
}

// SubmissionPayload is the wire body of a submission.
type SubmissionPayload struct {
	UserEmail string         `json:"userEmail"`
	UserName  string         `json:"userName,omitempty"`
	QuizID    string         `json:"quizId"`
	Answers   domain.Answers `json:"answers"`
	Score     int            `json:"score"`
	Auto      bool           `json:"auto,omitempty"`
}

// PayloadFor converts a record to its wire form.
func PayloadFor(rec domain.SubmissionRecord) SubmissionPayload {
	answers := rec.Answers
	if answers == nil {
		answers = domain.Answers{}
	}
	return SubmissionPayload{
		UserEmail: rec.Identity.Email,
		UserName:  rec.Identity.Name,
		QuizID:    rec.QuizID,
		Answers:   answers,
		Score:     rec.Score,
		Auto:      rec.Auto,
	}
}

func (g *SubmissionGateway) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	body, err := json.Marshal(PayloadFor(rec))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSubmissionNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSubmissionNetwork, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode <= 499:
		return fmt.Errorf("%w: status %d", domain.ErrSubmissionRejected, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", domain.ErrSubmissionServer, resp.StatusCode)
	}
}
