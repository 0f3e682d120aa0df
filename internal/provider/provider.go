package provider

import (
	"context"
	"errors"
	"fmt"

	"ChatGate/internal/conversation"
)

var (
	// ErrUnsupportedProvider is returned when a turn names a provider that
	// is not in the registry.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrEmptyHistory is returned when a generation is attempted without at
	// least one user message to send.
	ErrEmptyHistory = errors.New("history contains no user message")
)

// CallError wraps an upstream provider failure with the provider's name.
type CallError struct {
	Provider string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("provider %s call failed: %v", e.Provider, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Adapter hides one provider's wire format behind a common contract.
// Complete issues exactly one upstream call with the given history and
// returns the raw reply text. Implementations never mutate history and
// never retry.
type Adapter interface {
	Name() string
	Complete(ctx context.Context, history []conversation.Message) (string, error)
}
