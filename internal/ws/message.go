package ws

// Reply payloads written back to the client. Every processed text frame
// gets exactly one of these.
const (
	ReplyPrefix    = "OpenAI: "
	NoContentReply = "No response"
	ErrorReply     = "Error processing request"
)

// Outcome labels a processed or skipped inbound frame.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeNoContent Outcome = "no_content"
	OutcomeError     Outcome = "error"
	OutcomeIgnored   Outcome = "ignored"
)

// successReply formats a completion for the client.
func successReply(content string) string {
	return ReplyPrefix + content
}
