package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sink is the downstream notification endpoint.
type Sink interface {
	Deliver(ctx context.Context, task Task) error
}

// PokeClient delivers rendered messages to the Poke API. Failures are
// classified so the scheduler knows what to retry: 429 and 5xx (and network
// errors) are transient, any other non-2xx is terminal.
type PokeClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewPokeClient(url, apiKey string, timeout time.Duration) *PokeClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PokeClient{
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pokeMessage struct {
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (c *PokeClient) Deliver(ctx context.Context, task Task) error {
	body, err := json.Marshal(pokeMessage{Message: task.Message, Metadata: task.Metadata})
	if err != nil {
		return &TerminalDeliveryError{Body: fmt.Sprintf("marshal: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &TerminalDeliveryError{Body: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientDeliveryError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &TransientDeliveryError{Status: resp.StatusCode}
	default:
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return &TerminalDeliveryError{Status: resp.StatusCode, Body: string(excerpt)}
	}
}
