package model

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleSystem    ChatRole = "system"
)

// ChatActionKind distinguishes clickable actions attached to a message.
type ChatActionKind string

const (
	ActionLink    ChatActionKind = "link"
	ActionCommand ChatActionKind = "command"
)

// ChatAction is a suggested follow-up the client can render as a button.
// Link actions carry Href, command actions carry Command.
type ChatAction struct {
	Kind    ChatActionKind `json:"type"`
	Label   string         `json:"label"`
	Href    string         `json:"href,omitempty"`
	Command string         `json:"command,omitempty"`
}

// ChatReference is a citation attached to a message, usually an evidence URL
// or a pointer to the history view.
type ChatReference struct {
	Title       string `json:"title"`
	Href        string `json:"href"`
	Description string `json:"description,omitempty"`
}

// ChatMessage is the structured assistant reply. Meta carries free-form
// extras such as the record ID and the structured "blocks" view.
type ChatMessage struct {
	Role       ChatRole        `json:"role"`
	Content    string          `json:"content"`
	Actions    []ChatAction    `json:"actions"`
	References []ChatReference `json:"references"`
	Meta       map[string]any  `json:"meta,omitempty"`
}

// Block is one section of the structured view mirrored into meta.blocks for
// UI consumption. It is a derived rendering of message content, not extra
// computation.
type Block struct {
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Items     []string        `json:"items,omitempty"`
	Links     []ChatReference `json:"links,omitempty"`
	Collapsed bool            `json:"collapsed"`
}
