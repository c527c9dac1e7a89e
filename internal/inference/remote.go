package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

const (
	remoteMaxRetries   = 3
	remoteInitialDelay = 1 * time.Second
)

// RemoteOptions configures a RemoteBackend.
type RemoteOptions struct {
	// BaseURL is an OpenAI-compatible API root, e.g. https://api.openai.com/v1.
	BaseURL string
	Model   string
	APIKey  string
	// HTTPClient defaults to a client without its own timeout; the router bounds calls.
	HTTPClient *http.Client
	// InitialDelay is the first retry delay; tests shrink it.
	InitialDelay time.Duration
}

// RemoteBackend talks to an OpenAI-compatible /chat/completions endpoint.
type RemoteBackend struct {
	baseURL      string
	mu           sync.RWMutex
	model        string
	apiKey       string
	client       *http.Client
	initialDelay time.Duration
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewRemoteBackend creates a remote backend.
func NewRemoteBackend(opts RemoteOptions) *RemoteBackend {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	delay := opts.InitialDelay
	if delay <= 0 {
		delay = remoteInitialDelay
	}
	return &RemoteBackend{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		model:        opts.Model,
		apiKey:       opts.APIKey,
		client:       client,
		initialDelay: delay,
	}
}

func (b *RemoteBackend) Name() string { return "remote" }

// IsAvailable reports whether the endpoint answers an authenticated model listing.
func (b *RemoteBackend) IsAvailable(ctx context.Context) bool {
	if b.apiKey == "" || b.baseURL == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// LoadModel switches the model name used for subsequent requests.
func (b *RemoteBackend) LoadModel(_ context.Context, ref string) error {
	if ref != "" {
		b.mu.Lock()
		b.model = ref
		b.mu.Unlock()
	}
	return nil
}

func (b *RemoteBackend) UnloadModel(context.Context) error { return nil }

// Infer sends one chat completion, retrying rate limits and server errors.
func (b *RemoteBackend) Infer(ctx context.Context, req Request) (*Completion, error) {
	if b.apiKey == "" {
		return nil, fmt.Errorf("remote API key not set")
	}

	b.mu.RLock()
	model := b.model
	b.mu.RUnlock()

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < remoteMaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1x, 2x, 4x
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * b.initialDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := b.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response body: %w", err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr apiError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
				lastErr = fmt.Errorf("remote API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
			} else {
				lastErr = fmt.Errorf("remote API error (%d): %s", resp.StatusCode, string(respBody))
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				continue
			}
			return nil, lastErr
		}

		var out chatResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if len(out.Choices) == 0 {
			return nil, fmt.Errorf("remote API returned no choices")
		}
		return &Completion{
			Text:             out.Choices[0].Message.Content,
			Latency:          time.Since(start),
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
		}, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", remoteMaxRetries, lastErr)
}

func (b *RemoteBackend) Dispose() error {
	b.client.CloseIdleConnections()
	return nil
}
