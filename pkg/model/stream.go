package model

// EventType enumerates frames of the chat event stream.
type EventType string

const (
	EventToken   EventType = "token"
	EventStage   EventType = "stage"
	EventMessage EventType = "message"
	EventError   EventType = "error"
	EventDone    EventType = "done"
)

// StageStatus is the lifecycle reported by stage events.
type StageStatus string

const (
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageFailed  StageStatus = "failed"
)

// StreamEvent is one frame of the unidirectional chat stream. A stream is a
// finite ordered sequence: at most one message event, and exactly one
// terminal done event, always last.
type StreamEvent struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

// NewTokenEvent carries incremental human-readable narration.
func NewTokenEvent(content string) StreamEvent {
	return StreamEvent{Type: EventToken, Data: map[string]any{"content": content}}
}

// NewStageEvent reports a pipeline stage transition.
func NewStageEvent(stage string, status StageStatus) StreamEvent {
	return StreamEvent{Type: EventStage, Data: map[string]any{"stage": stage, "status": string(status)}}
}

// NewMessageEvent carries the final structured reply.
func NewMessageEvent(msg *ChatMessage) StreamEvent {
	return StreamEvent{Type: EventMessage, Data: map[string]any{"message": msg}}
}

// NewErrorEvent reports an in-band failure before the terminal done.
func NewErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Data: map[string]any{"message": message}}
}

// NewDoneEvent terminates a stream.
func NewDoneEvent() StreamEvent {
	return StreamEvent{Type: EventDone, Data: map[string]any{}}
}
