// Package inference routes chat completions to a local or remote backend.
package inference

import (
	"context"
	"time"
)

// Mode selects which backend serves completions.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// DefaultMode is used until the user picks one.
const DefaultMode = ModeLocal

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeLocal || m == ModeRemote
}

// ModelStatus is the state of the on-device model.
type ModelStatus string

const (
	StatusNotDownloaded ModelStatus = "not_downloaded"
	StatusDownloading   ModelStatus = "downloading"
	StatusDownloaded    ModelStatus = "downloaded"
	StatusReady         ModelStatus = "ready"
	StatusError         ModelStatus = "error"
)

// SettingKey is the settings key holding the persisted mode.
const SettingKey = "ai_mode"

// ActiveModelKey records whether the user last activated the local model, so
// a later process can load it again after a runtime restart.
const ActiveModelKey = "local_model_active"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System and User build messages with the matching role.
func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

// Request is a chat completion request.
type Request struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

// Completion is a backend's answer.
type Completion struct {
	Text             string        `json:"text"`
	Latency          time.Duration `json:"latency"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
}

// Backend is a chat completion provider.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// IsAvailable is a cheap reachability probe.
	IsAvailable(ctx context.Context) bool
	LoadModel(ctx context.Context, ref string) error
	UnloadModel(ctx context.Context) error
	Infer(ctx context.Context, req Request) (*Completion, error)
	// Dispose releases resources held by the backend.
	Dispose() error
}

// Status is the user-facing view of the inference configuration.
type Status struct {
	Mode      Mode        `json:"mode"`
	Status    ModelStatus `json:"status"`
	Backend   string      `json:"backend,omitempty"`
	ModelRef  string      `json:"model_ref,omitempty"`
	Progress  float64     `json:"progress"`
	LastError string      `json:"last_error,omitempty"`
}

// CallOption adjusts a ChatComplete call.
type CallOption func(*Request)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(r *Request) { r.Temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) CallOption {
	return func(r *Request) { r.MaxTokens = &n }
}
