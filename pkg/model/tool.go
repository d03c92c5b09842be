package model

// ToolName is one of the whitelisted chat tools.
type ToolName string

const (
	ToolAnalyze      ToolName = "analyze"
	ToolLoadHistory  ToolName = "load_history"
	ToolWhy          ToolName = "why"
	ToolList         ToolName = "list"
	ToolMoreEvidence ToolName = "more_evidence"
	ToolRewrite      ToolName = "rewrite"
	ToolHelp         ToolName = "help"
)

// ToolInvocation is the parsed, typed result of interpreting one chat input.
// Only the fields relevant to Name are populated. It is immutable once
// produced; argument validation (record existence, style whitelist) happens
// downstream so interpretation itself never fails.
type ToolInvocation struct {
	Name ToolName

	// Text is the analyze payload.
	Text string

	// RecordID addresses a persisted record. Intentionally empty for
	// more_evidence: the caller supplies it from conversation context.
	RecordID string

	// Limit is the list size before clamping to [0, 50].
	Limit int

	// Style is the raw rewrite style token, normalized downstream.
	Style string
}
