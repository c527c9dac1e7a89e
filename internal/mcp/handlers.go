package mcp

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/bodypress/internal/collect"
	"github.com/hpungsan/bodypress/internal/engine"
	"github.com/hpungsan/bodypress/internal/errors"
	"github.com/hpungsan/bodypress/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	e *engine.Engine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(e *engine.Engine) *Handlers {
	return &Handlers{e: e}
}

// Request types for each tool

// CaptureNowRequest represents the arguments for capture_now.
type CaptureNowRequest struct {
	Health      *bool    `json:"health,omitempty"`
	Environment *bool    `json:"environment,omitempty"`
	Location    *bool    `json:"location,omitempty"`
	Calendar    *bool    `json:"calendar,omitempty"`
	Note        *string  `json:"note,omitempty"`
	Mood        *string  `json:"mood,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// CaptureListRequest represents the arguments for capture_list.
type CaptureListRequest struct {
	Processed *bool `json:"processed,omitempty"`
	Limit     int   `json:"limit,omitempty"`
	Offset    int   `json:"offset,omitempty"`
}

// IDRequest represents the arguments for capture_fetch and capture_delete.
type IDRequest struct {
	ID string `json:"id"`
}

// DateRequest represents the arguments for journal_refresh and journal_fetch.
type DateRequest struct {
	Date string `json:"date,omitempty"`
}

// JournalListRequest represents the arguments for journal_list.
type JournalListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// JournalNoteRequest represents the arguments for journal_note.
type JournalNoteRequest struct {
	Date string  `json:"date,omitempty"`
	Note *string `json:"note,omitempty"`
	Mood *string `json:"mood,omitempty"`
}

// AIStatusRequest represents the arguments for ai_status.
type AIStatusRequest struct {
	CheckHealth bool `json:"check_health,omitempty"`
}

// AISetModeRequest represents the arguments for ai_set_mode.
type AISetModeRequest struct {
	Mode string `json:"mode"`
}

// ScheduleUpdateRequest represents the arguments for schedule_update.
type ScheduleUpdateRequest struct {
	Enabled              *bool   `json:"enabled,omitempty"`
	IntervalMinutes      *int    `json:"interval_minutes,omitempty"`
	IncludeHealth        *bool   `json:"include_health,omitempty"`
	IncludeEnvironment   *bool   `json:"include_environment,omitempty"`
	IncludeLocation      *bool   `json:"include_location,omitempty"`
	IncludeCalendar      *bool   `json:"include_calendar,omitempty"`
	QuietHoursStart      *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd        *string `json:"quiet_hours_end,omitempty"`
	BatteryOptimization  *bool   `json:"battery_optimization,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
}

// Handler implementations

// HandleCaptureNow handles the capture_now tool call.
func (h *Handlers) HandleCaptureNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureNowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	include := collect.IncludeAll()
	pick(&include.Health, input.Health)
	pick(&include.Environment, input.Environment)
	pick(&include.Location, input.Location)
	pick(&include.Calendar, input.Calendar)

	result, err := ops.CaptureNow(ctx, h.e, ops.CaptureNowInput{
		Include: &include,
		Note:    input.Note,
		Mood:    input.Mood,
		Tags:    input.Tags,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureList handles the capture_list tool call.
func (h *Handlers) HandleCaptureList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CaptureListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListCaptures(ctx, h.e.DB, ops.ListCapturesInput{
		Processed: input.Processed,
		Limit:     input.Limit,
		Offset:    input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureFetch handles the capture_fetch tool call.
func (h *Handlers) HandleCaptureFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchCapture(ctx, h.e.DB, ops.FetchCaptureInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleCaptureDelete handles the capture_delete tool call.
func (h *Handlers) HandleCaptureDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteCapture(ctx, h.e.DB, ops.DeleteCaptureInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJournalRefresh handles the journal_refresh tool call.
func (h *Handlers) HandleJournalRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.RefreshJournal(ctx, h.e, ops.RefreshJournalInput{Date: input.Date})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJournalFetch handles the journal_fetch tool call.
func (h *Handlers) HandleJournalFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchJournal(ctx, h.e.DB, ops.FetchJournalInput{Date: input.Date, Today: h.e.Today()})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJournalList handles the journal_list tool call.
func (h *Handlers) HandleJournalList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JournalListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListJournals(ctx, h.e.DB, ops.ListJournalsInput{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleJournalNote handles the journal_note tool call.
func (h *Handlers) HandleJournalNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JournalNoteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetJournalNote(ctx, h.e, ops.SetJournalNoteInput{Date: input.Date, Note: input.Note, Mood: input.Mood})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAIStatus handles the ai_status tool call.
func (h *Handlers) HandleAIStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AIStatusRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return successResult(ops.AIStatus(ctx, h.e, ops.AIStatusInput{CheckHealth: input.CheckHealth}))
}

// HandleAISetMode handles the ai_set_mode tool call.
func (h *Handlers) HandleAISetMode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AISetModeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetAIMode(ctx, h.e, ops.SetAIModeInput{Mode: input.Mode})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleScheduleStatus handles the schedule_status tool call.
func (h *Handlers) HandleScheduleStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ScheduleStatus(ctx, h.e)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleScheduleUpdate handles the schedule_update tool call.
func (h *Handlers) HandleScheduleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScheduleUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.UpdateSchedule(ctx, h.e, ops.UpdateScheduleInput{
		Enabled:              input.Enabled,
		IntervalMinutes:      input.IntervalMinutes,
		IncludeHealth:        input.IncludeHealth,
		IncludeEnvironment:   input.IncludeEnvironment,
		IncludeLocation:      input.IncludeLocation,
		IncludeCalendar:      input.IncludeCalendar,
		QuietHoursStart:      input.QuietHoursStart,
		QuietHoursEnd:        input.QuietHoursEnd,
		BatteryOptimization:  input.BatteryOptimization,
		NotificationsEnabled: input.NotificationsEnabled,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAnnotatePending handles the annotate_pending tool call.
func (h *Handlers) HandleAnnotatePending(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.AnnotatePending(ctx, h.e, ops.AnnotatePendingInput{})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

func pick(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if pErr, ok := errors.As(err); ok {
		message := pErr.Message
		// Keep context added by wrapping, e.g. "items[2]: ...".
		if err != error(pErr) && pErr.Code != errors.ErrInternal {
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": message,
			"status":  pErr.Status,
		}
		if pErr.Code != errors.ErrInternal && pErr.Details != nil {
			errorObj["details"] = pErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
