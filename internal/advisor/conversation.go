package advisor

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a model request to invoke a named operation. Arguments is
// the raw JSON argument object.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the conversation history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// Conversation is the running history sent to the model. The system
// prompt is always the first message.
type Conversation struct {
	system   string
	messages []Message
}

func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{system: systemPrompt}
	c.Reset()
	return c
}

func (c *Conversation) AddUser(content string) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: content})
}

func (c *Conversation) AddAssistant(content string) {
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: content})
}

func (c *Conversation) AddAssistantToolCalls(calls []ToolCall) {
	c.messages = append(c.messages, Message{Role: RoleAssistant, ToolCalls: append([]ToolCall(nil), calls...)})
}

func (c *Conversation) AddToolResult(toolCallID, result string) {
	c.messages = append(c.messages, Message{Role: RoleTool, Content: result, ToolCallID: toolCallID})
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Reset drops everything but the system prompt.
func (c *Conversation) Reset() {
	c.messages = []Message{{Role: RoleSystem, Content: c.system}}
}
