// Package workflow decides which moves a guide edition may make through the
// review-and-publish lifecycle. Decisions are pure: callers pass the current
// state and any external facts (topic placement), apply the resulting state
// themselves, and own every side effect.
package workflow

type State string
type Action string

const (
	StateDraft           State = "draft"
	StateReviewRequested State = "review_requested"
	StateApproved        State = "approved"
	StatePublished       State = "published"
	StateDiscarded       State = "discarded"
)

const (
	ActionRequestReview Action = "request_review"
	ActionApprove       Action = "approve"
	ActionSendBack      Action = "send_back"
	ActionPublish       Action = "publish"
	ActionDiscard       Action = "discard"
)

// Policy carries the configurable edges of the state machine.
type Policy struct {
	// ApproveFromDraft permits approval without a prior review request,
	// matching the lenient behavior the legacy publisher tolerated.
	ApproveFromDraft bool
}

// Open reports whether a state still accepts edits; published and discarded
// are terminal.
func Open(state State) bool {
	switch state {
	case StateDraft, StateReviewRequested, StateApproved:
		return true
	default:
		return false
	}
}

// Terminal reports whether the review cycle is over for this edition.
func Terminal(state State) bool {
	return state == StatePublished || state == StateDiscarded
}

// Valid reports whether the value is one of the five workflow states.
func Valid(state State) bool {
	switch state {
	case StateDraft, StateReviewRequested, StateApproved, StatePublished, StateDiscarded:
		return true
	default:
		return false
	}
}

// Transition returns the state an edition moves to when action is applied,
// or an InvalidTransitionError when the move is not legal from the current
// state. Publishing also requires the placement precondition; see Publish.
func Transition(current State, action Action, policy Policy) (State, error) {
	switch action {
	case ActionRequestReview:
		if current == StateDraft {
			return StateReviewRequested, nil
		}
	case ActionApprove:
		if current == StateReviewRequested {
			return StateApproved, nil
		}
		if current == StateDraft && policy.ApproveFromDraft {
			return StateApproved, nil
		}
	case ActionSendBack:
		if current == StateReviewRequested {
			return StateDraft, nil
		}
	case ActionPublish:
		if current == StateApproved {
			return StatePublished, nil
		}
	case ActionDiscard:
		if current == StateDraft || current == StateReviewRequested {
			return StateDiscarded, nil
		}
	}
	return current, &InvalidTransitionError{From: current, Action: action}
}

// Publish is the placement-aware publish decision: the guide must be
// reachable from at least one topic before its approved edition can go out.
func Publish(current State, includedInTopic bool, policy Policy) (State, error) {
	if !includedInTopic {
		return current, &PublishPreconditionError{
			Reason: "guide is not included in a topic page",
		}
	}
	return Transition(current, ActionPublish, policy)
}

// CanStartNewDraft reports whether a fresh edition (version+1) may be opened.
// Only a published guide gets a follow-up draft; a discarded cycle reopens
// at the same version by saving a new draft edition.
func CanStartNewDraft(latest State) bool {
	return latest == StatePublished
}
