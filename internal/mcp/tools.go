package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stringItems = mcp.Items(map[string]any{"type": "string"})

var captureNowToolDef = mcp.NewTool("capture_now",
	mcp.WithDescription("Take a manual capture now. Reads the selected sources (all by default), stores the result unprocessed and queues it for annotation. Sources that fail are left empty and listed in errors."),
	mcp.WithBoolean("health", mcp.Description("Include health metrics (default true)")),
	mcp.WithBoolean("environment", mcp.Description("Include weather and air quality (default true)")),
	mcp.WithBoolean("location", mcp.Description("Include the location fix (default true)")),
	mcp.WithBoolean("calendar", mcp.Description("Include today's calendar events (default true)")),
	mcp.WithString("note", mcp.Description("Free-form note from the user")),
	mcp.WithString("mood", mcp.Description("Self-reported mood")),
	mcp.WithArray("tags", mcp.Description("User tags"), stringItems),
)

var captureListToolDef = mcp.NewTool("capture_list",
	mcp.WithDescription("List captures newest first, with source coverage and annotation summary."),
	mcp.WithBoolean("processed", mcp.Description("Only processed (true) or unprocessed (false) captures")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var captureFetchToolDef = mcp.NewTool("capture_fetch",
	mcp.WithDescription("Fetch one capture with every data block and diagnostic."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Capture id")),
)

var captureDeleteToolDef = mcp.NewTool("capture_delete",
	mcp.WithDescription("Permanently delete one capture. Journal entries already written from it are kept."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Capture id")),
)

var journalRefreshToolDef = mcp.NewTool("journal_refresh",
	mcp.WithDescription("Bring the journal entry for a day up to date. Returns the stored entry when nothing new was captured, folds in new captures otherwise, and writes a first entry from the day's captures or a live reading."),
	mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD (default today)")),
)

var journalFetchToolDef = mcp.NewTool("journal_fetch",
	mcp.WithDescription("Fetch the stored journal entry for a day without refreshing it."),
	mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD (default today)")),
)

var journalListToolDef = mcp.NewTool("journal_list",
	mcp.WithDescription("List journal entries, newest day first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var journalNoteToolDef = mcp.NewTool("journal_note",
	mcp.WithDescription("Set or clear the user's note and mood on a journal day. Refreshes keep them."),
	mcp.WithString("date", mcp.Description("Day as YYYY-MM-DD (default today)")),
	mcp.WithString("note", mcp.Description("Note text; omit or blank to clear")),
	mcp.WithString("mood", mcp.Description("Mood text; omit or blank to clear")),
)

var aiStatusToolDef = mcp.NewTool("ai_status",
	mcp.WithDescription("Report the inference mode and the on-device model state."),
	mcp.WithBoolean("check_health", mcp.Description("Probe the active backend")),
)

var aiSetModeToolDef = mcp.NewTool("ai_set_mode",
	mcp.WithDescription("Switch between the on-device (local) and hosted (remote) backend. The choice is persisted and never changed automatically."),
	mcp.WithString("mode", mcp.Required(), mcp.Enum("local", "remote")),
)

var scheduleStatusToolDef = mcp.NewTool("schedule_status",
	mcp.WithDescription("Report the background capture configuration, last run and success/failure counters."),
)

var scheduleUpdateToolDef = mcp.NewTool("schedule_update",
	mcp.WithDescription("Change background capture settings. Omitted fields keep their value; the interval is raised to the platform minimum."),
	mcp.WithBoolean("enabled"),
	mcp.WithNumber("interval_minutes"),
	mcp.WithBoolean("include_health"),
	mcp.WithBoolean("include_environment"),
	mcp.WithBoolean("include_location"),
	mcp.WithBoolean("include_calendar"),
	mcp.WithString("quiet_hours_start", mcp.Description("HH:MM")),
	mcp.WithString("quiet_hours_end", mcp.Description("HH:MM")),
	mcp.WithBoolean("battery_optimization"),
	mcp.WithBoolean("notifications_enabled"),
)

var annotatePendingToolDef = mcp.NewTool("annotate_pending",
	mcp.WithDescription("Annotate every capture that has no AI metadata yet. Failures are counted, not raised."),
)
