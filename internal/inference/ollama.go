package inference

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Runtime is the on-device model runtime the local backend drives.
type Runtime interface {
	// Ping reports whether the runtime process answers.
	Ping(ctx context.Context) error
	// HasModel reports whether ref is present on disk.
	HasModel(ctx context.Context, ref string) (bool, error)
	// Pull downloads ref, reporting progress in [0,1].
	Pull(ctx context.Context, ref string, progress func(float64)) error
	Load(ctx context.Context, ref string) error
	Unload(ctx context.Context, ref string) error
	// Loaded reports whether ref is resident in memory. The runtime outlives
	// this process, so a model loaded by an earlier run still counts.
	Loaded(ctx context.Context, ref string) (bool, error)
	Chat(ctx context.Context, ref string, req Request) (*Completion, error)
	// Remove deletes ref from disk.
	Remove(ctx context.Context, ref string) error
}

// OllamaRuntime implements Runtime against an Ollama-compatible HTTP API.
type OllamaRuntime struct {
	baseURL string
	client  *http.Client
}

// NewOllamaRuntime creates a runtime client for baseURL (e.g. http://127.0.0.1:11434).
func NewOllamaRuntime(baseURL string, client *http.Client) *OllamaRuntime {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaRuntime{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type ollamaModelRequest struct {
	Model     string `json:"model"`
	Stream    *bool  `json:"stream,omitempty"`
	KeepAlive *int   `json:"keep_alive,omitempty"`
}

type ollamaPullStatus struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error"`
}

type ollamaRunning struct {
	Models []struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	} `json:"models"`
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error"`
}

func (r *OllamaRuntime) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resp, err := r.do(ctx, http.MethodGet, "/api/version", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("runtime answered %d", resp.StatusCode)
	}
	return nil
}

func (r *OllamaRuntime) HasModel(ctx context.Context, ref string) (bool, error) {
	resp, err := r.do(ctx, http.MethodPost, "/api/show", ollamaModelRequest{Model: ref})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, readError(resp)
	}
}

// Pull streams newline-delimited status objects until the download completes.
func (r *OllamaRuntime) Pull(ctx context.Context, ref string, progress func(float64)) error {
	stream := true
	resp, err := r.do(ctx, http.MethodPost, "/api/pull", ollamaModelRequest{Model: ref, Stream: &stream})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var last string
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var st ollamaPullStatus
		if err := json.Unmarshal(line, &st); err != nil {
			return fmt.Errorf("decode pull status: %w", err)
		}
		if st.Error != "" {
			return fmt.Errorf("pull %s: %s", ref, st.Error)
		}
		last = st.Status
		if progress != nil && st.Total > 0 {
			progress(float64(st.Completed) / float64(st.Total))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pull stream: %w", err)
	}
	if last != "success" {
		return fmt.Errorf("pull %s ended with status %q", ref, last)
	}
	if progress != nil {
		progress(1)
	}
	return nil
}

// Load pins the model in memory; Unload releases it.
func (r *OllamaRuntime) Load(ctx context.Context, ref string) error {
	return r.keepAlive(ctx, ref, -1)
}

func (r *OllamaRuntime) Unload(ctx context.Context, ref string) error {
	return r.keepAlive(ctx, ref, 0)
}

func (r *OllamaRuntime) Loaded(ctx context.Context, ref string) (bool, error) {
	resp, err := r.do(ctx, http.MethodGet, "/api/ps", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, readError(resp)
	}
	var out ollamaRunning
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode running models: %w", err)
	}
	for _, m := range out.Models {
		if m.Name == ref || m.Model == ref {
			return true, nil
		}
	}
	return false, nil
}

func (r *OllamaRuntime) keepAlive(ctx context.Context, ref string, seconds int) error {
	stream := false
	resp, err := r.do(ctx, http.MethodPost, "/api/generate",
		ollamaModelRequest{Model: ref, Stream: &stream, KeepAlive: &seconds})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return readError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (r *OllamaRuntime) Chat(ctx context.Context, ref string, req Request) (*Completion, error) {
	body := ollamaChatRequest{Model: ref, Messages: req.Messages}
	if req.Temperature != nil || req.MaxTokens != nil {
		body.Options = map[string]any{}
		if req.Temperature != nil {
			body.Options["temperature"] = *req.Temperature
		}
		if req.MaxTokens != nil {
			body.Options["num_predict"] = *req.MaxTokens
		}
	}

	start := time.Now()
	resp, err := r.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("runtime error: %s", out.Error)
	}
	return &Completion{
		Text:             out.Message.Content,
		Latency:          time.Since(start),
		PromptTokens:     out.PromptEvalCount,
		CompletionTokens: out.EvalCount,
	}, nil
}

func (r *OllamaRuntime) Remove(ctx context.Context, ref string) error {
	resp, err := r.do(ctx, http.MethodDelete, "/api/delete", ollamaModelRequest{Model: ref})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return readError(resp)
	}
	return nil
}

func (r *OllamaRuntime) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("runtime error (%d): %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("runtime error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
