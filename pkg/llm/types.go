package llm

// Message represents a single message in a chat request.
type Message struct {
	Role    string `json:"role"` // One of RoleSystem, RoleUser, RoleAssistant.
	Content string `json:"content"`
}

// Role constants for the Message.Role field.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Response contains the generated text and metadata of one completion.
type Response struct {
	Content string `json:"content"` // Text of the first choice.
	Model   string `json:"model"`   // Model that produced this response.
	Choices int    `json:"choices"` // Number of choices returned; zero means no content.
	Usage   Usage  `json:"usage"`
}

// HasContent reports whether the provider returned at least one choice.
// An empty first choice still counts as content.
func (r *Response) HasContent() bool {
	return r != nil && r.Choices > 0
}

// Usage tracks token consumption for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
