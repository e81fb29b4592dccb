// Package llm drives the language-model backends. Two shapes are supported:
// the Anthropic Messages API with an in-process tool-use loop, and the claude
// CLI spawned as a subprocess emitting a JSONL event stream. Both implement
// Backend.
package llm

import "context"

// MaxToolRounds bounds the tool-use dialog loop for the API backend.
const MaxToolRounds = 20

// NoResponse is returned when the model produced no text at all.
const NoResponse = "(no response)"

// MaxRoundsReached is returned when the tool loop hit its round budget
// without accumulating any text.
const MaxRoundsReached = "(max tool rounds reached)"

// Request is one assembled prompt pair.
type Request struct {
	System string
	User   string
}

// Backend produces one final assistant response for a request, driving any
// tool-use dialog internally.
type Backend interface {
	Respond(ctx context.Context, req Request) (string, error)
}
