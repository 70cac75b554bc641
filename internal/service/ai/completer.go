package ai

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zhouzirui/diagnosa/backend/internal/config"
	"github.com/zhouzirui/diagnosa/backend/internal/model/chat"
)

// ErrEmptyReply is returned when the remote model answers without any text.
var ErrEmptyReply = errors.New("remote model returned an empty reply")

// Completer relays a transcript to a remote model. The last turn of history is
// the user message being answered.
type Completer interface {
	Complete(ctx context.Context, history []chat.Turn) (string, error)
	// Stream behaves like Complete and calls onDelta for every text chunk as it
	// arrives. The returned string is the full reply.
	Stream(ctx context.Context, history []chat.Turn, onDelta func(string)) (string, error)
}

// Verifier is implemented by completers that can check the configured model
// before serving traffic.
type Verifier interface {
	Verify(ctx context.Context) error
}

// NewCompleter builds the completer for the configured provider. Errors mean the
// model could not be initialised and the process should not start.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (Completer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case config.ProviderArk:
		return NewArkCompleter(ctx, cfg)
	case config.ProviderMock:
		return NewMockCompleter(), nil
	default:
		return NewGeminiCompleter(ctx, cfg)
	}
}

// VerifyModel runs the completer's model check when enabled. Completers without a
// check pass.
func VerifyModel(ctx context.Context, completer Completer, enabled bool) error {
	if !enabled {
		return nil
	}
	verifier, ok := completer.(Verifier)
	if !ok {
		return nil
	}
	return verifier.Verify(ctx)
}
