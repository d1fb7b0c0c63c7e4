// Chatrelay is an LLM chat gateway with a streaming relay core.
//
// It accepts chat requests over HTTP and relays them to a configured
// backend (Ollama or an OpenAI-compatible API), providing:
//   - Incremental streaming with heartbeats while the backend is silent
//   - Line, server-sent event and OpenAI chunk framing
//   - Bounded retries and degraded replies when a backend fails
//   - Optional session history and an outcome ledger
//
// Usage:
//
//	# Start the gateway with default configuration (echo backend)
//	chatrelay run
//
//	# Start with a configuration file
//	chatrelay run --config /etc/chatrelay/config.yaml
//
//	# Ask a single question from the terminal
//	chatrelay ask --stream "why is the sky blue?"
//
//	# List the models each backend serves
//	chatrelay models
//
//	# Check a configuration file
//	chatrelay validate --config config.yaml
//
//	# Export the outcome ledger
//	chatrelay ledger export --format csv --output ledger.csv
package main

func main() {
	Execute()
}
