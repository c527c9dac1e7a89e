package inference_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/bodypress/internal/inference"
)

func TestRemoteBackend_Infer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "small-model", body["model"])
		assert.InDelta(t, 0.2, body["temperature"], 0.0001)

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hello"}}],
			"usage":{"prompt_tokens":12,"completion_tokens":3}}`)
	}))
	defer srv.Close()

	b := inference.NewRemoteBackend(inference.RemoteOptions{
		BaseURL: srv.URL + "/v1/", Model: "small-model", APIKey: "sk-test",
	})
	temp := 0.2
	c, err := b.Infer(context.Background(), inference.Request{
		Messages:    []inference.Message{inference.User("hi")},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Text)
	assert.Equal(t, 12, c.PromptTokens)
	assert.Equal(t, 3, c.CompletionTokens)
}

func TestRemoteBackend_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"finally"}}]}`)
	}))
	defer srv.Close()

	b := inference.NewRemoteBackend(inference.RemoteOptions{
		BaseURL: srv.URL, APIKey: "k", InitialDelay: time.Millisecond,
	})
	c, err := b.Infer(context.Background(), inference.Request{Messages: []inference.Message{inference.User("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "finally", c.Text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteBackend_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	b := inference.NewRemoteBackend(inference.RemoteOptions{BaseURL: srv.URL, APIKey: "k", InitialDelay: time.Millisecond})
	_, err := b.Infer(context.Background(), inference.Request{Messages: []inference.Message{inference.User("hi")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteBackend_NoKey(t *testing.T) {
	b := inference.NewRemoteBackend(inference.RemoteOptions{BaseURL: "http://127.0.0.1:1"})
	assert.False(t, b.IsAvailable(context.Background()))
	_, err := b.Infer(context.Background(), inference.Request{})
	assert.Error(t, err)
}

func TestOllamaRuntime(t *testing.T) {
	var loaded atomic.Bool
	present := atomic.Bool{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"0.5.0"}`)
	})
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		if !present.Load() {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"model not found"}`)
			return
		}
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/api/pull", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"status":"downloading","total":100,"completed":40}`)
		fmt.Fprintln(w, `{"status":"downloading","total":100,"completed":100}`)
		fmt.Fprintln(w, `{"status":"success"}`)
		present.Store(true)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			KeepAlive *int `json:"keep_alive"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.NotNil(t, body.KeepAlive) {
			loaded.Store(*body.KeepAlive != 0)
		}
		fmt.Fprint(w, `{"done":true}`)
	})
	mux.HandleFunc("/api/ps", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if !loaded.Load() {
			fmt.Fprint(w, `{"models":[]}`)
			return
		}
		fmt.Fprint(w, `{"models":[{"name":"tiny:1b","model":"tiny:1b","size":1024}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(data), `"num_predict":32`)
		fmt.Fprint(w, `{"message":{"role":"assistant","content":"on device"},"prompt_eval_count":7,"eval_count":2}`)
	})
	mux.HandleFunc("/api/delete", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		present.Store(false)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	rt := inference.NewOllamaRuntime(srv.URL, nil)
	require.NoError(t, rt.Ping(ctx))

	has, err := rt.HasModel(ctx, "tiny:1b")
	require.NoError(t, err)
	assert.False(t, has)

	var progress []float64
	require.NoError(t, rt.Pull(ctx, "tiny:1b", func(p float64) { progress = append(progress, p) }))
	assert.Equal(t, []float64{0.4, 1, 1}, progress)

	has, err = rt.HasModel(ctx, "tiny:1b")
	require.NoError(t, err)
	assert.True(t, has)

	resident, err := rt.Loaded(ctx, "tiny:1b")
	require.NoError(t, err)
	assert.False(t, resident)

	require.NoError(t, rt.Load(ctx, "tiny:1b"))
	assert.True(t, loaded.Load())

	resident, err = rt.Loaded(ctx, "tiny:1b")
	require.NoError(t, err)
	assert.True(t, resident)
	resident, err = rt.Loaded(ctx, "other:7b")
	require.NoError(t, err)
	assert.False(t, resident)

	maxTokens := 32
	c, err := rt.Chat(ctx, "tiny:1b", inference.Request{
		Messages:  []inference.Message{inference.User("hi")},
		MaxTokens: &maxTokens,
	})
	require.NoError(t, err)
	assert.Equal(t, "on device", c.Text)
	assert.Equal(t, 7, c.PromptTokens)

	require.NoError(t, rt.Unload(ctx, "tiny:1b"))
	assert.False(t, loaded.Load())

	require.NoError(t, rt.Remove(ctx, "tiny:1b"))
	assert.False(t, present.Load())
}

func TestOllamaRuntime_PullError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"status":"pulling manifest"}`)
		fmt.Fprintln(w, `{"error":"manifest unknown"}`)
	}))
	defer srv.Close()

	err := inference.NewOllamaRuntime(srv.URL, nil).Pull(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest unknown")
}
