package pubsub

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseExcerpt = 256

// poster POSTs messages to the endpoints of the subscriptions.
type poster struct {
	httpClient *http.Client
}

func newPoster(timeout time.Duration) *poster {
	return &poster{&http.Client{Timeout: timeout}}
}

// post delivers the JSON message to the endpoint of sub, with a bearer token
// if sub is secured. Any non 2xx response is an error carrying an excerpt of
// the response body.
func (p *poster) post(ctx context.Context, sub Subscription, message string) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, sub.Endpoint, strings.NewReader(message),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if sub.IsSecured() {
		token, err := sub.token(time.Now())
		if err != nil {
			return fmt.Errorf("failed to sign token for webhook %s: %w", sub.ID, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseExcerpt))
		return fmt.Errorf(
			"webhook %s: %s %s", sub.ID, resp.Status, strings.TrimSpace(string(excerpt)),
		)
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
