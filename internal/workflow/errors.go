package workflow

import "fmt"

// InvalidTransitionError is returned for a move the state machine does not
// allow. It is an expected business outcome, not a programming error.
type InvalidTransitionError struct {
	From   State
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an edition in state %q", e.Action, e.From)
}

// PublishPreconditionError is returned when a publish is declined because
// the guide is not yet placed in navigation. The edition state is unchanged.
type PublishPreconditionError struct {
	Reason string
}

func (e *PublishPreconditionError) Error() string {
	return "publish precondition failed: " + e.Reason
}
