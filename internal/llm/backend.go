package llm

import "context"

// Role tags one prior conversation turn.
type Role string

const (
	// RoleSelf marks replies this pipeline previously sent.
	RoleSelf Role = "assistant"
	// RoleCounterpart marks messages received from the other party.
	RoleCounterpart Role = "user"
)

// Turn is one prior message replayed into the backend's context.
type Turn struct {
	Role Role
	Text string
}

// Backend generates reply text from an ordered conversation history and a new
// prompt. Implementations are treated as opaque; they carry no retry logic of
// their own, so callers own timeout and failure policy around each call.
type Backend interface {
	Complete(ctx context.Context, turns []Turn, prompt string) (string, error)
}
