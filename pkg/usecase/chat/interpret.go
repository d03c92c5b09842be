package chat

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/truthcast/pkg/model"
)

const (
	// DefaultListLimit is used when the list argument is absent or unparsable.
	DefaultListLimit = 10

	// MaxListLimit bounds the list argument after clamping.
	MaxListLimit = 50

	// analyzeLengthThreshold treats long pasted text as analyze intent even
	// without an explicit command prefix.
	analyzeLengthThreshold = 180
)

// Interpret parses free-text chat input into a whitelisted tool invocation.
// It is deterministic, side-effect-free, and total: unknown input maps to
// help rather than failing. Argument validation (record existence, style
// whitelist) happens downstream.
//
// Rules are evaluated in order, first match wins; explicit commands take
// priority over the analyze heuristic. Commands accept an optional leading
// slash, so "list 20" and "/list 20" are equivalent.
func Interpret(text string) model.ToolInvocation {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return model.ToolInvocation{Name: model.ToolHelp}
	}

	fields := strings.Fields(trimmed)
	command := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]

	switch command {
	case "load_history":
		return model.ToolInvocation{Name: model.ToolLoadHistory, RecordID: firstOrEmpty(args)}

	case "why", "explain":
		return model.ToolInvocation{Name: model.ToolWhy, RecordID: firstOrEmpty(args)}

	case "list", "history", "records":
		return model.ToolInvocation{Name: model.ToolList, Limit: parseLimit(args)}

	case "more_evidence", "more":
		// The record ID is intentionally left empty: the caller supplies it
		// from conversation context.
		return model.ToolInvocation{Name: model.ToolMoreEvidence}

	case "rewrite":
		return model.ToolInvocation{Name: model.ToolRewrite, Style: parseStyle(args)}
	}

	if payload, ok := analyzePayload(trimmed, command); ok {
		return model.ToolInvocation{Name: model.ToolAnalyze, Text: payload}
	}

	return model.ToolInvocation{Name: model.ToolHelp}
}

func firstOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func parseLimit(args []string) int {
	if len(args) == 0 {
		return DefaultListLimit
	}
	raw := strings.TrimPrefix(args[0], "limit=")
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultListLimit
	}
	return limit
}

func parseStyle(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimPrefix(args[0], "style=")
}

// analyzePayload reports whether the input is analyze intent: either an
// explicit analyze command, or text long enough to be pasted content.
func analyzePayload(trimmed, command string) (string, bool) {
	if command == "analyze" {
		rest := strings.TrimPrefix(trimmed, "/")
		rest = strings.TrimPrefix(rest, "analyze")
		return strings.TrimSpace(rest), true
	}
	if utf8.RuneCountInString(trimmed) >= analyzeLengthThreshold {
		return trimmed, true
	}
	return "", false
}

// ClampLimit bounds a list limit to [0, MaxListLimit].
func ClampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
