package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// Client is the per-backend adapter contract. Implementations translate
// the canonical request into their wire format and the wire response back,
// and surface failures as *TransportError (or raw transport exceptions).
// They never retry and never assign error kinds; that is the bridge's and
// the classifier's job, which keeps adapters thin and independently
// testable.
type Client interface {
	// Synchronous sends a request and returns a complete response.
	Synchronous(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a request and returns a stream of events. The caller
	// reads from the returned Stream until the Done event or an error.
	Stream(ctx context.Context, req *Request) (Stream, error)

	// HealthCheck performs one lightweight probe of the backend.
	HealthCheck(ctx context.Context) error
}

// Stream represents a streaming response from an LLM. Events arrive in
// order; the final event of a well-formed stream has Done set and no
// events follow it.
type Stream interface {
	// Next advances to the next event in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Event returns the current event.
	// Should only be called after Next() returns true.
	Event() *StreamEvent

	// Err returns any error that occurred during streaming.
	Err() error

	// Close closes the stream and releases resources.
	Close() error
}

// ClientFactory constructs the adapter for a backend configuration.
// It is injected into the Bridge so the llm package does not import the
// provider packages (which import llm).
type ClientFactory func(cfg BackendConfig, logger zerolog.Logger) (Client, error)
