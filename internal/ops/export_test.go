package ops

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/bodypress/internal/capture"
	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/config"
	"github.com/hpungsan/bodypress/internal/db"
	"github.com/hpungsan/bodypress/internal/errors"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	require.NoError(t, s.Err())
	return lines
}

func TestExport_WritesHeaderAndCaptures(t *testing.T) {
	e := newTestEngine(t, collect.Sources{})
	ctx := context.Background()
	seedCapture(t, e, "01K", testNow.Add(-2*time.Hour), true)
	seedCapture(t, e, "01M", testNow.Add(-time.Hour), false)

	out, err := Export(ctx, e.DB, e.ExportsDir(), e.Config, ExportInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, e.ExportsDir(), filepath.Dir(out.Path))

	lines := readLines(t, out.Path)
	require.Len(t, lines, 3)

	var header ExportHeader
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.True(t, header.BodypressExport)
	assert.Equal(t, ExportSchemaVersion, header.SchemaVersion)

	var first capture.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &first))
	assert.Equal(t, "01M", first.ID, "newest first")

	info, err := os.Stat(out.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	matches, err := filepath.Glob(filepath.Join(e.ExportsDir(), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExport_ProcessedFilter(t *testing.T) {
	e := newTestEngine(t, collect.Sources{})
	ctx := context.Background()
	seedCapture(t, e, "01K", testNow.Add(-2*time.Hour), true)
	seedCapture(t, e, "01M", testNow.Add(-time.Hour), false)

	unprocessed := false
	out, err := Export(ctx, e.DB, e.ExportsDir(), e.Config, ExportInput{
		Path:      filepath.Join(e.ExportsDir(), "pending.jsonl"),
		Processed: &unprocessed,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
}

func TestExport_RejectsPathOutsideExports(t *testing.T) {
	e := newTestEngine(t, collect.Sources{})
	_, err := Export(context.Background(), e.DB, e.ExportsDir(), e.Config, ExportInput{Path: filepath.Join(t.TempDir(), "x.jsonl")})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestEngine(t, collect.Sources{})
	seedCapture(t, src, "01K", testNow.Add(-2*time.Hour), true)
	seedCapture(t, src, "01M", testNow.Add(-time.Hour), false)
	_, err := db.SetAIMetadata(ctx, src.DB, "01K", &capture.AIMetadata{Summary: "Morning.", Tags: []string{}})
	require.NoError(t, err)

	exported, err := Export(ctx, src.DB, src.ExportsDir(), src.Config, ExportInput{})
	require.NoError(t, err)

	dst := newTestEngine(t, collect.Sources{})
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{src.ExportsDir()}

	out, err := Import(ctx, dst.DB, dst.ExportsDir(), cfg, ImportInput{Path: exported.Path})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Imported)
	assert.Empty(t, out.Errors)

	got, err := db.GetCapture(ctx, dst.DB, "01K")
	require.NoError(t, err)
	assert.True(t, got.IsProcessed)
	require.NotNil(t, got.AIMetadata)
	assert.Equal(t, "Morning.", got.AIMetadata.Summary)

	// Importing again skips everything.
	out, err = Import(ctx, dst.DB, dst.ExportsDir(), cfg, ImportInput{Path: exported.Path})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Imported)
	assert.Equal(t, 2, out.Skipped)
}

func TestImport_ErrorModeIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, collect.Sources{})
	seedCapture(t, e, "01K", testNow.Add(-2*time.Hour), false)

	require.NoError(t, os.MkdirAll(e.ExportsDir(), 0700))
	path := filepath.Join(e.ExportsDir(), "in.jsonl")
	body := `{"_bodypress_export":true,"schema_version":"1.0","exported_at":1}
{"id":"01K","timestamp":"2026-05-02T10:00:00Z","source":"manual"}
{"id":"01N","timestamp":"2026-05-02T11:00:00Z","source":"manual"}
not json
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	out, err := Import(ctx, e.DB, e.ExportsDir(), e.Config, ImportInput{Path: path, Mode: ImportModeError})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Imported)
	require.Len(t, out.Errors, 2)
	assert.Equal(t, "PARSE_ERROR", out.Errors[0].Code)
	assert.Equal(t, 4, out.Errors[0].Line)
	assert.Equal(t, "COLLISION", out.Errors[1].Code)

	_, err = db.GetCapture(ctx, e.DB, "01N")
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	out, err = Import(ctx, e.DB, e.ExportsDir(), e.Config, ImportInput{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Imported)
	assert.Equal(t, 1, out.Skipped)
	assert.Len(t, out.Errors, 1)
}

func TestImport_BadMode(t *testing.T) {
	e := newTestEngine(t, collect.Sources{})
	_, err := Import(context.Background(), e.DB, e.ExportsDir(), e.Config, ImportInput{Path: "x.jsonl", Mode: "replace"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
