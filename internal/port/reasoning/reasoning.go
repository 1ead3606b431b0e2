// Package reasoning defines the port for the external higher-latency
// reasoning call consulted on ambiguous routing and synthesis decisions.
package reasoning

import (
	"context"
	"encoding/json"
)

// Request is the typed input for one reasoning call.
type Request struct {
	// Purpose labels the call site ("routing", "synthesis") for logging
	// and model selection.
	Purpose string
	// Prompt is the fully rendered instruction text.
	Prompt string
	// MaxTokens bounds the response length.
	MaxTokens int
	// Temperature controls sampling; decision calls run near-deterministic.
	Temperature float64
}

// Decision is the typed envelope every reasoning backend returns: the model's
// free-form reasoning, a confidence in [0, 1], and the structured decision
// payload for the caller to unmarshal.
type Decision struct {
	Reasoning  string          `json:"reasoning"`
	Confidence float64         `json:"confidence"`
	Payload    json.RawMessage `json:"-"`
}

// Caller is the port interface for a reasoning backend. Vendor and protocol
// details live behind it.
type Caller interface {
	Decide(ctx context.Context, req Request) (*Decision, error)
}
