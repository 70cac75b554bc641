package chat

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/zhouzirui/diagnosa/backend/internal/service/ai"
)

// ErrorKind classifies a failed turn.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
	KindRemote     ErrorKind = "remote"
	KindEmptyReply ErrorKind = "empty_reply"
)

// TurnError reports a remote call that produced no reply. It never ends the session.
type TurnError struct {
	Kind ErrorKind
	Err  error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a *TurnError anywhere in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr.Kind
	}
	return ""
}

func classify(callCtx context.Context, err error) *TurnError {
	switch {
	case errors.Is(err, ai.ErrEmptyReply):
		return &TurnError{Kind: KindEmptyReply, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return &TurnError{Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(callCtx.Err(), context.Canceled):
		return &TurnError{Kind: KindCanceled, Err: err}
	default:
		return &TurnError{Kind: KindRemote, Err: err}
	}
}
