// Package thread reconstructs the audit narrative of one review cycle from
// its edition snapshots and comments alone. There is no event log table;
// the sequence is re-derived on every read and is a pure function of the
// input, so identical inputs always produce the identical thread.
package thread

import (
	"sort"

	"waypost/api/internal/store"
	"waypost/api/internal/workflow"
)

// Options carries the configurable corners of the reconstruction.
type Options struct {
	// EmitUnassigned emits an Assigned event with a zero content owner when
	// the first edition has none. The legacy publisher only ever exercised
	// the assigned path, so suppression is the default.
	EmitUnassigned bool
}

// Build derives the ordered event sequence for one review cycle.
//
// editions must be the cycle's editions (all sharing one version number)
// ordered by creation time ascending; comments may belong to any edition in
// the cycle and may arrive in any order. Approval records never appear
// directly: an approval only shows up through the state change it caused,
// so duplicate approvals of the same edition yield a single event.
func Build(editions []store.Edition, comments []store.Comment, opts Options) []Event {
	if len(editions) == 0 {
		return []Event{}
	}

	ordered := make([]store.Edition, len(editions))
	copy(ordered, editions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	first := ordered[0]
	events := []Event{{Kind: KindNewDraft, At: first.CreatedAt, Edition: first}}
	if first.ContentOwnerID != "" || opts.EmitUnassigned {
		events = append(events, Event{Kind: KindAssigned, At: first.CreatedAt, Edition: first})
	}

	// Fold left to right carrying the previous state: every edition whose
	// state differs from its predecessor's marks a transition, timestamped
	// at the edition in which the change became visible. A state that
	// reverts and returns yields one event per hop, never a merged one.
	run := make([]Event, 0, len(ordered)+len(comments))
	previous := workflow.State(first.State)
	for _, edition := range ordered[1:] {
		current := workflow.State(edition.State)
		if current != previous {
			run = append(run, Event{
				Kind:    KindStateChanged,
				At:      edition.CreatedAt,
				Edition: edition,
				From:    previous,
				To:      current,
			})
			previous = current
		}
	}

	for _, comment := range comments {
		run = append(run, Event{Kind: KindCommented, At: comment.CreatedAt, Comment: comment})
	}

	// Chronological merge. On an exact timestamp tie the state change goes
	// first: transitions are structural, comments annotate them.
	sort.SliceStable(run, func(i, j int) bool {
		if run[i].At.Equal(run[j].At) {
			return run[i].Kind == KindStateChanged && run[j].Kind == KindCommented
		}
		return run[i].At.Before(run[j].At)
	})

	return append(events, run...)
}
