// Package remote talks to the collaborators that live outside this service:
// the current-user endpoint and the quiz submission endpoint.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"timed-quiz-service/internal/domain"
)

// IdentityClient resolves the current user with GET {url} and a bearer
// credential. Any failure is reported as domain.ErrIdentityUnavailable.
type IdentityClient struct {
	url    string
	client *http.Client
}

func NewIdentityClient(url string, timeout time.Duration) *IdentityClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IdentityClient{url: url, client: &http.Client{Timeout: timeout}}
}

type currentUserResponse struct {
	User struct {
		FName string `json:"fname"`
		LName string `json:"lname"`
		Email string `json:"email"`
	} `json:"user"`
}

func (c *IdentityClient) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing credential", domain.ErrIdentityUnavailable)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Identity{}, fmt.Errorf("%w: status %d", domain.ErrIdentityUnavailable, resp.StatusCode)
	}

	var body currentUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: decode user: %v", domain.ErrIdentityUnavailable, err)
	}
	if body.User.Email == "" {
		return domain.Identity{}, fmt.Errorf("%w: user has no email", domain.ErrIdentityUnavailable)
	}
	return domain.Identity{Name: body.User.FName, Email: body.User.Email}, nil
}
