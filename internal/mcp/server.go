// Package mcp exposes bodypress operations as MCP tools over stdio.
package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/bodypress/internal/engine"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"capture", "journal", "ai", "schedule", "annotate"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"capture_now": {
		def:     captureNowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureNow },
	},
	"capture_list": {
		def:     captureListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureList },
	},
	"capture_fetch": {
		def:     captureFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureFetch },
	},
	"capture_delete": {
		def:     captureDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCaptureDelete },
	},
	"journal_refresh": {
		def:     journalRefreshToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalRefresh },
	},
	"journal_fetch": {
		def:     journalFetchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalFetch },
	},
	"journal_list": {
		def:     journalListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalList },
	},
	"journal_note": {
		def:     journalNoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleJournalNote },
	},
	"ai_status": {
		def:     aiStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAIStatus },
	},
	"ai_set_mode": {
		def:     aiSetModeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAISetMode },
	},
	"schedule_status": {
		def:     scheduleStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScheduleStatus },
	},
	"schedule_update": {
		def:     scheduleUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScheduleUpdate },
	},
	"annotate_pending": {
		def:     annotatePendingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAnnotatePending },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "journal_refresh" → "journal").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates an MCP server with the bodypress tools registered.
// Tools listed in DisabledTools or belonging to DisabledTypes are skipped.
func NewServer(e *engine.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"bodypress",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(e)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(e.Config.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range e.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves MCP over stdio until stdin closes.
func Run(e *engine.Engine, version string) error {
	return server.ServeStdio(NewServer(e, version))
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
