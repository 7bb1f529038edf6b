package conversation

import (
	"errors"
	"fmt"

	"github.com/BaSui01/agentcrew/llm"
	"github.com/BaSui01/agentcrew/types"
)

// Sentinels for errors.Is. Any *types.Error carrying the same code matches.
var (
	ErrCompletionFailure  = &types.Error{Code: types.ErrCompletionFailure}
	ErrSelectionAmbiguity = &types.Error{Code: types.ErrSelectionAmbiguity}
	ErrConversationBusy   = &types.Error{Code: types.ErrConversationBusy}
)

var (
	ErrNoParticipants     = errors.New("conversation: at least one participant is required")
	ErrDuplicateName      = errors.New("conversation: duplicate participant name")
	ErrEmptyInput         = errors.New("conversation: input is empty")
	ErrUnknownParticipant = errors.New("conversation: unknown participant")
)

func completionFailure(participant string, cause error) error {
	retryable := false
	if lerr, ok := llm.AsError(cause); ok {
		retryable = lerr.Retryable
	}
	return types.NewError(types.ErrCompletionFailure, fmt.Sprintf("participant %s: completion failed", participant)).
		WithCause(cause).
		WithRetryable(retryable).
		WithHTTPStatus(types.HTTPStatusFor(types.ErrCompletionFailure))
}

func selectionAmbiguity(answer string, cause error) error {
	e := types.NewError(types.ErrSelectionAmbiguity, fmt.Sprintf("unrecognized speaker %q", answer))
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}
