package model

// State is the lifecycle state of a note.
type State int

const (
	StateDraft State = iota
	StateFinalized
	// StateAmended is StateFinalized with at least one amendment.
	StateAmended
	StateDeleted
	StatePurged
)

func (s State) String() string {
	switch s {
	case StateDraft:
		return "draft"
	case StateFinalized:
		return "finalized"
	case StateAmended:
		return "amended"
	case StateDeleted:
		return "deleted"
	case StatePurged:
		return "purged"
	}
	return "unknown"
}

// State derives the lifecycle state from the note's fields. Purged notes are never returned by the
// record store, so StatePurged is only assigned by callers that observed the purge.
func (n Note) State() State {
	switch {
	case n.DeletedAt != nil:
		return StateDeleted
	case n.IsDraft:
		return StateDraft
	case n.AmendmentCount > 0:
		return StateAmended
	}
	return StateFinalized
}

// ReplacePatch returns a patch that makes a note's text equal to c: null text fields become "".
func (c Content) ReplacePatch() Patch {
	p := c.AsPatch()
	for _, f := range []**string{&p.Subjective, &p.Objective, &p.Assessment, &p.Plan} {
		if *f == nil {
			*f = String("")
		}
	}
	return p
}
