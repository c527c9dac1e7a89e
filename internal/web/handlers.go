package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/ops"
)

// Handlers contains HTTP route handlers for the web view.
type Handlers struct {
	e        *engine.Engine
	renderer *Renderer
}

// HandleJournalList handles GET /journal.
func (h *Handlers) HandleJournalList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.ListJournals(r.Context(), h.e.DB, ops.ListJournalsInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, r, "journal_list", JournalListPageData{
		PageData:   h.renderer.page("Journal", "journal"),
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleJournal handles GET /journal/{date}. "today" is accepted as a date.
// The stored entry is shown as is; refreshing is left to the CLI and MCP tools.
func (h *Handlers) HandleJournal(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if date == "today" {
		date = ""
	}

	entry, err := ops.FetchJournal(r.Context(), h.e.DB, ops.FetchJournalInput{Date: date, Today: h.e.Today()})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, entry)
		return
	}
	data := JournalPageData{
		PageData:     h.renderer.page(entry.Headline, "journal"),
		Entry:        entry,
		RenderedHTML: renderMarkdown(entry.Body),
	}
	if entry.UserNote != nil {
		data.UserNoteHTML = renderMarkdown(*entry.UserNote)
	}
	h.renderer.renderPage(w, r, "journal", data)
}

// HandleCaptures handles GET /captures. ?state=processed|unprocessed filters.
func (h *Handlers) HandleCaptures(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	var processed *bool
	switch state {
	case "":
	case "processed", "unprocessed":
		v := state == "processed"
		processed = &v
	default:
		h.renderer.renderError(w, r, errors.NewInvalidRequest("state must be processed or unprocessed"))
		return
	}

	result, err := ops.ListCaptures(r.Context(), h.e.DB, ops.ListCapturesInput{
		Processed: processed,
		Limit:     parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:    parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}
	h.renderer.renderPage(w, r, "captures", CaptureListPageData{
		PageData:   h.renderer.page("Captures", "captures"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Filter:     state,
	})
}

// HandleCapture handles GET /captures/{id}.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	entry, err := ops.FetchCapture(r.Context(), h.e.DB, ops.FetchCaptureInput{ID: chi.URLParam(r, "id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, entry)
		return
	}
	h.renderer.renderPage(w, r, "capture", CapturePageData{
		PageData: h.renderer.page("Capture "+entry.ID, "captures"),
		Capture:  entry,
	})
}

// HandleStatus handles GET /api/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := ops.Stats(r.Context(), h.e)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, stats)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
