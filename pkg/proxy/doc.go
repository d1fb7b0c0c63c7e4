// Package proxy holds the HTTP-facing helpers of the gateway: request
// parsing for /chat and /v1/chat/completions, response writers and the
// mapping from Go errors onto the JSON error envelope.
//
// # Request parsing
//
// /chat accepts its parameters as query values, a JSON body or a form body;
// body values override query values. Booleans accept true/false, 1/0,
// yes/no and on/off. The session identifier may also come from the
// X-Session-ID header.
//
//	in, err := proxy.ParseChatRequest(r, cfg.Server.MaxBodyBytes)
//	if err != nil {
//	    proxy.WriteErrorResponse(w, proxy.HandleError(err))
//	    return
//	}
//	framer := in.Framer() // lines, or server-sent events
//
// The stream format is chosen by format=lines|sse|event or, when absent, by
// an Accept header listing text/event-stream.
//
// /v1/chat/completions bodies are mapped with ToChatRequest: the last
// message with text is the prompt, earlier system messages become the
// system prompt and earlier user/assistant messages the history.
//
// # Errors
//
// Every non-2xx body has the form
//
//	{"error": {"message": "...", "type": "invalid_request_error", "param": "message", "code": "missing_field"}}
//
// Upstream failures on the chat paths are not errors: the relay answers
// them with a degraded reply and status 200.
//
// Handlers live in the handlers subpackage and middleware in middleware.
package proxy
