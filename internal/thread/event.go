package thread

import (
	"time"

	"waypost/api/internal/store"
	"waypost/api/internal/workflow"
)

type EventKind string

const (
	KindNewDraft     EventKind = "new_draft"
	KindAssigned     EventKind = "assigned"
	KindCommented    EventKind = "commented"
	KindStateChanged EventKind = "state_changed"
)

// Event is one fact in the derived narrative of a review cycle. The kind
// selects which of the remaining fields are meaningful: NewDraft and
// Assigned carry the edition (Assigned additionally its content owner),
// Commented carries the comment, StateChanged carries the edition the new
// state became visible in plus the from/to pair.
type Event struct {
	Kind    EventKind
	At      time.Time
	Edition store.Edition
	Comment store.Comment
	From    workflow.State
	To      workflow.State
}
