package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/scenegen/internal/chat"
	"github.com/antoniostano/scenegen/internal/reliability"
)

const httpGeneratorRetries = 2

// HTTPGenerator calls a chat-completions style HTTP endpoint.
type HTTPGenerator struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func NewHTTPGenerator(url, apiKey, model string) *HTTPGenerator {
	return &HTTPGenerator{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		model:  strings.TrimSpace(model),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, msgs []Message) (string, error) {
	payload, err := json.Marshal(completionRequest{Model: g.model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= httpGeneratorRetries; attempt++ {
		if attempt > 0 {
			delay := reliability.ExponentialBackoff(attempt, 500*time.Millisecond, 5*time.Second)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, retryable, err := g.once(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", lastErr
}

func (g *HTTPGenerator) once(ctx context.Context, payload []byte) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	res, err := g.client.Do(httpReq)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		err := fmt.Errorf("generator http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode), err
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	var obj completionResponse
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if len(obj.Choices) == 0 || strings.TrimSpace(obj.Choices[0].Message.Content) == "" {
		return "", false, chat.ErrEmptyResponse
	}
	return obj.Choices[0].Message.Content, false, nil
}
