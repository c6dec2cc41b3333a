// Package llm provides a backend-neutral bridge for chat-style Large
// Language Model APIs.
//
// The package absorbs the differences in request/response shape, error
// reporting, and transport behavior between hosted cloud services, a local
// Ollama server, and arbitrary OpenAI-compatible endpoints, behind one
// uniform interface.
//
// # Core Concepts
//
//  1. Messages: the Message type represents a conversation message with a
//     role (system, user, assistant, tool) and text content, plus tool
//     calls on assistant turns.
//
//  2. Adapters: the Client interface is implemented once per backend
//     family (llm/anthropic, llm/openai, llm/ollama, llm/openaicompat).
//     Adapters translate wire formats only; they never retry and never
//     categorize errors.
//
//  3. Bridge: the Bridge type is the single entry point (Send, StreamSend,
//     ValidateConnection). It validates requests before any network call,
//     drives the retry scheduler, and classifies every failure.
//
//  4. Errors: every failure path terminates in a *Error with a canonical
//     Kind, a Retryable flag derived deterministically from the kind, an
//     optional server-supplied retry-after hint, and remediation text.
//     Callers branch on Kind and Retryable, never on raw message text.
//
//  5. Streams: streaming responses are a cancellable sequence of events
//     with an explicit terminal marker (Done), consumed through the Stream
//     interface. Once a stream has started it is never retried; mid-stream
//     cancellation always surfaces as a cancelled error.
//
// # Retry behavior
//
// Retryable failures back off exponentially (base 1s, doubling, with
// jitter) and respect server retry-after hints. Rate-limit errors extend
// the attempt budget so bursty throttling does not abandon a call.
// Non-retryable failures short-circuit after a single transport call.
package llm
