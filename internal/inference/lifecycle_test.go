package inference_test

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/inference"
)

// fakeRuntime is an in-memory inference.Runtime.
type fakeRuntime struct {
	mu       sync.Mutex
	present  bool
	loaded   bool
	pullErr  error
	loadErr  error
	chatText string
	// pullGate, when set, blocks Pull until closed.
	pullGate chan struct{}
	pulling  chan struct{}
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{}
}

func (f *fakeRuntime) Ping(context.Context) error { return nil }

func (f *fakeRuntime) HasModel(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present, nil
}

func (f *fakeRuntime) Pull(ctx context.Context, _ string, progress func(float64)) error {
	if f.pulling != nil {
		close(f.pulling)
	}
	if f.pullGate != nil {
		select {
		case <-f.pullGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.pullErr != nil {
		return f.pullErr
	}
	progress(0.5)
	progress(1)
	f.mu.Lock()
	f.present = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Load(context.Context, string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.mu.Lock()
	f.loaded = true
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Unload(context.Context, string) error {
	f.mu.Lock()
	f.loaded = false
	f.mu.Unlock()
	return nil
}

func (f *fakeRuntime) Loaded(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded, nil
}

func (f *fakeRuntime) Chat(context.Context, string, inference.Request) (*inference.Completion, error) {
	return &inference.Completion{Text: f.chatText}, nil
}

func (f *fakeRuntime) Remove(context.Context, string) error {
	f.mu.Lock()
	f.present = false
	f.mu.Unlock()
	return nil
}

func TestLifecycle_FullCycle(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	lc := inference.NewLifecycle(rt, "tiny:1b")

	assert.Equal(t, inference.StatusNotDownloaded, lc.Resolve(ctx).Status)

	err := lc.Activate(ctx)
	assert.True(t, errors.Is(err, errors.ErrModelNotDownloaded))

	var seen []float64
	require.NoError(t, lc.Download(ctx, func(p float64) { seen = append(seen, p) }))
	assert.Equal(t, []float64{0.5, 1}, seen)
	assert.Equal(t, inference.StatusDownloaded, lc.State().Status)

	require.NoError(t, lc.Activate(ctx))
	assert.True(t, lc.Ready())
	assert.True(t, rt.loaded)

	require.NoError(t, lc.Deactivate(ctx))
	assert.Equal(t, inference.StatusDownloaded, lc.State().Status)
	assert.False(t, rt.loaded)

	require.NoError(t, lc.Delete(ctx))
	assert.Equal(t, inference.StatusNotDownloaded, lc.State().Status)
	assert.Equal(t, inference.StatusNotDownloaded, lc.Resolve(ctx).Status)
}

func TestLifecycle_DownloadFailureIsRecoverable(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.pullErr = stderrors.New("disk full")
	lc := inference.NewLifecycle(rt, "tiny:1b")

	err := lc.Download(ctx, nil)
	require.Error(t, err)
	st := lc.State()
	assert.Equal(t, inference.StatusError, st.Status)
	assert.Contains(t, st.LastError, "disk full")

	rt.pullErr = nil
	require.NoError(t, lc.Download(ctx, nil))
	st = lc.State()
	assert.Equal(t, inference.StatusDownloaded, st.Status)
	assert.Empty(t, st.LastError)
}

func TestLifecycle_BusyDuringDownload(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.pullGate = make(chan struct{})
	rt.pulling = make(chan struct{})
	lc := inference.NewLifecycle(rt, "tiny:1b")

	done := make(chan error, 1)
	go func() { done <- lc.Download(ctx, nil) }()
	<-rt.pulling

	assert.Equal(t, inference.StatusDownloading, lc.State().Status)
	assert.True(t, errors.Is(lc.Download(ctx, nil), errors.ErrLifecycleBusy))
	assert.True(t, errors.Is(lc.Activate(ctx), errors.ErrLifecycleBusy))
	assert.True(t, errors.Is(lc.Delete(ctx), errors.ErrLifecycleBusy))
	assert.Equal(t, inference.StatusDownloading, lc.Resolve(ctx).Status)

	close(rt.pullGate)
	require.NoError(t, <-done)
	assert.Equal(t, inference.StatusDownloaded, lc.State().Status)
}

func TestLifecycle_ActivateFailure(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.present = true
	rt.loadErr = stderrors.New("out of memory")
	lc := inference.NewLifecycle(rt, "tiny:1b")
	lc.Resolve(ctx)

	err := lc.Activate(ctx)
	assert.True(t, errors.Is(err, errors.ErrInferenceFailed))
	assert.Equal(t, inference.StatusError, lc.State().Status)

	rt.loadErr = nil
	assert.Equal(t, inference.StatusDownloaded, lc.Resolve(ctx).Status)
	require.NoError(t, lc.Activate(ctx))
}

func TestLifecycle_ResolveAdoptsResidentModel(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.present = true
	rt.loaded = true

	// A fresh lifecycle sees a model another process left loaded.
	lc := inference.NewLifecycle(rt, "tiny:1b")
	assert.Equal(t, inference.StatusReady, lc.Resolve(ctx).Status)

	rt.loaded = false
	assert.Equal(t, inference.StatusDownloaded, lc.Resolve(ctx).Status)
}

func TestLocalBackend_DisposeKeepsModelLoaded(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	lc := inference.NewLifecycle(rt, "tiny:1b")
	require.NoError(t, lc.Download(ctx, nil))
	b := inference.NewLocalBackend(rt, lc)
	require.NoError(t, b.LoadModel(ctx, ""))

	require.NoError(t, b.Dispose())
	assert.True(t, rt.loaded)
	assert.True(t, lc.Ready())
}

func TestLocalBackend_RefMismatch(t *testing.T) {
	rt := newFakeRuntime()
	b := inference.NewLocalBackend(rt, inference.NewLifecycle(rt, "tiny:1b"))

	assert.Error(t, b.LoadModel(context.Background(), "huge:70b"))
	assert.Equal(t, "local", b.Name())
	assert.False(t, b.IsAvailable(context.Background()))
}
