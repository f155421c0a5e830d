// llmrelay accepts WebSocket connections and answers every text frame with
// a chat completion from the OpenAI API.
//
// Usage:
//
//	# Start the relay with defaults (0.0.0.0:7746)
//	OPENAI_API_KEY=... llmrelay
//
//	# Start with a config file and a different port
//	llmrelay serve --config /etc/llmrelay/llmrelay.yaml --port 9000
//
//	# Show the effective configuration (API key redacted)
//	llmrelay config
//
//	# Show version information
//	llmrelay version
package main

func main() {
	Execute()
}
