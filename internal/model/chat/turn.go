package chat

// Role tags one entry of a conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// Turn is one ordered entry in a private conversation history. Plain
// assistant turns carry only Content; a function exchange is recorded as an
// assistant turn with the call fields set, followed by a function turn whose
// Content is the serialized result.
type Turn struct {
	Role       Role   `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`
	ToolArgs   string `json:"toolArgs,omitempty"`
}
