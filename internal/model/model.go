// Package model defines domain entities used by the editing client and the record store.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/chartkeeper/internal/errs"
)

// Bounds enforced on every persisted write.
const (
	MaxFieldRunes      = 5000
	MaxDurationMinutes = 480
)

// Field names of the four free-text content fields, in display order.
const (
	FieldSubjective = "subjective"
	FieldObjective  = "objective"
	FieldAssessment = "assessment"
	FieldPlan       = "plan"
)

// TextFields lists the content field names in display order.
var TextFields = []string{FieldSubjective, FieldObjective, FieldAssessment, FieldPlan}

var validate = validator.New()

// Content is the editable body of a note. A nil field is null.
type Content struct {
	Subjective      *string `json:"subjective,omitempty" validate:"omitempty,max=5000"`
	Objective       *string `json:"objective,omitempty" validate:"omitempty,max=5000"`
	Assessment      *string `json:"assessment,omitempty" validate:"omitempty,max=5000"`
	Plan            *string `json:"plan,omitempty" validate:"omitempty,max=5000"`
	DurationMinutes *int    `json:"duration_minutes,omitempty" validate:"omitempty,min=0,max=480"`
}

// Patch is a partial content change. Nil fields are left untouched; "" clears a field.
type Patch struct {
	Subjective      *string `json:"subjective,omitempty" validate:"omitempty,max=5000"`
	Objective       *string `json:"objective,omitempty" validate:"omitempty,max=5000"`
	Assessment      *string `json:"assessment,omitempty" validate:"omitempty,max=5000"`
	Plan            *string `json:"plan,omitempty" validate:"omitempty,max=5000"`
	DurationMinutes *int    `json:"duration_minutes,omitempty" validate:"omitempty,min=0,max=480"`
}

// Note is the clinical record under edit, including lifecycle and soft-deletion metadata.
type Note struct {
	ID          uuid.UUID  `json:"id"`
	ClientID    uuid.UUID  `json:"client_id"`
	WorkspaceID uuid.UUID  `json:"workspace_id"`
	SessionAt   *time.Time `json:"session_at,omitempty"`

	Content

	IsDraft          bool       `json:"is_draft"`
	DraftLastSavedAt *time.Time `json:"draft_last_saved_at,omitempty"`
	FinalizedAt      *time.Time `json:"finalized_at,omitempty"`
	AmendedAt        *time.Time `json:"amended_at,omitempty"`
	AmendmentCount   int        `json:"amendment_count"`
	Version          int64      `json:"version"`

	DeletedAt            *time.Time `json:"deleted_at,omitempty"`
	PermanentDeleteAfter *time.Time `json:"permanent_delete_after,omitempty"`
	DeletedReason        *string    `json:"deleted_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewNote is a create request for a draft note.
type NewNote struct {
	ClientID    uuid.UUID  `json:"client_id" validate:"required"`
	WorkspaceID uuid.UUID  `json:"workspace_id" validate:"required"`
	SessionAt   *time.Time `json:"session_at,omitempty"`
	Content     Content    `json:"content"`
}

// LocalBackup is the write-ahead cache entry for one note.
type LocalBackup struct {
	NoteID    uuid.UUID `json:"note_id"`
	Content   Content   `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version"`
}

// VersionSnapshot is one immutable entry of a note's version history.
type VersionSnapshot struct {
	NoteID     uuid.UUID `json:"note_id"`
	Version    int64     `json:"version"`
	Subjective *string   `json:"subjective,omitempty"`
	Objective  *string   `json:"objective,omitempty"`
	Assessment *string   `json:"assessment,omitempty"`
	Plan       *string   `json:"plan,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the field bounds of a patch.
func (p Patch) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

// Validate checks the field bounds of content.
func (c Content) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return nil
}

// Validate checks a create request.
func (n NewNote) Validate() error {
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}
	return n.Content.Validate()
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Subjective == nil && p.Objective == nil && p.Assessment == nil && p.Plan == nil && p.DurationMinutes == nil
}

// Merge overlays q on top of p; fields set in q win.
func (p Patch) Merge(q Patch) Patch {
	out := p
	if q.Subjective != nil {
		out.Subjective = cloneString(q.Subjective)
	}
	if q.Objective != nil {
		out.Objective = cloneString(q.Objective)
	}
	if q.Assessment != nil {
		out.Assessment = cloneString(q.Assessment)
	}
	if q.Plan != nil {
		out.Plan = cloneString(q.Plan)
	}
	if q.DurationMinutes != nil {
		out.DurationMinutes = cloneInt(q.DurationMinutes)
	}
	return out
}

// Apply returns a copy of c with every non-nil patch field written over it.
func (c Content) Apply(p Patch) Content {
	out := c.Clone()
	if p.Subjective != nil {
		out.Subjective = cloneString(p.Subjective)
	}
	if p.Objective != nil {
		out.Objective = cloneString(p.Objective)
	}
	if p.Assessment != nil {
		out.Assessment = cloneString(p.Assessment)
	}
	if p.Plan != nil {
		out.Plan = cloneString(p.Plan)
	}
	if p.DurationMinutes != nil {
		out.DurationMinutes = cloneInt(p.DurationMinutes)
	}
	return out
}

// AsPatch returns a patch that writes every non-null field of c.
func (c Content) AsPatch() Patch {
	return Patch{
		Subjective:      cloneString(c.Subjective),
		Objective:       cloneString(c.Objective),
		Assessment:      cloneString(c.Assessment),
		Plan:            cloneString(c.Plan),
		DurationMinutes: cloneInt(c.DurationMinutes),
	}
}

// Clone returns a deep copy.
func (c Content) Clone() Content {
	return Content{
		Subjective:      cloneString(c.Subjective),
		Objective:       cloneString(c.Objective),
		Assessment:      cloneString(c.Assessment),
		Plan:            cloneString(c.Plan),
		DurationMinutes: cloneInt(c.DurationMinutes),
	}
}

// Normalized maps empty strings to null, as stored by the record store.
func (c Content) Normalized() Content {
	out := c.Clone()
	for _, f := range []**string{&out.Subjective, &out.Objective, &out.Assessment, &out.Plan} {
		if *f != nil && **f == "" {
			*f = nil
		}
	}
	return out
}

// HasText reports whether at least one content field is non-empty after trimming whitespace.
func (c Content) HasText() bool {
	for _, f := range []*string{c.Subjective, c.Objective, c.Assessment, c.Plan} {
		if f != nil && strings.TrimSpace(*f) != "" {
			return true
		}
	}
	return false
}

// Field returns the value of a named text field.
func (c Content) Field(name string) *string {
	switch name {
	case FieldSubjective:
		return c.Subjective
	case FieldObjective:
		return c.Objective
	case FieldAssessment:
		return c.Assessment
	case FieldPlan:
		return c.Plan
	}
	return nil
}

// PatchField builds a single-field patch. Unknown names yield a validation error.
func PatchField(name, value string) (Patch, error) {
	v := value
	switch name {
	case FieldSubjective:
		return Patch{Subjective: &v}, nil
	case FieldObjective:
		return Patch{Objective: &v}, nil
	case FieldAssessment:
		return Patch{Assessment: &v}, nil
	case FieldPlan:
		return Patch{Plan: &v}, nil
	}
	return Patch{}, fmt.Errorf("%w: unknown field %q", errs.ErrValidation, name)
}

// Snapshot captures the four text fields of n as version ver.
func (n Note) Snapshot(ver int64, at time.Time) VersionSnapshot {
	return VersionSnapshot{
		NoteID:     n.ID,
		Version:    ver,
		Subjective: cloneString(n.Subjective),
		Objective:  cloneString(n.Objective),
		Assessment: cloneString(n.Assessment),
		Plan:       cloneString(n.Plan),
		CreatedAt:  at,
	}
}

// Field returns the value of a named text field of the snapshot.
func (s VersionSnapshot) Field(name string) *string {
	return Content{Subjective: s.Subjective, Objective: s.Objective, Assessment: s.Assessment, Plan: s.Plan}.Field(name)
}

// LastPersistedAt is the latest server-acknowledged write marker; zero time means never saved.
func (n Note) LastPersistedAt() time.Time {
	var out time.Time
	for _, t := range []*time.Time{n.DraftLastSavedAt, n.FinalizedAt, n.AmendedAt} {
		if t != nil && t.After(out) {
			out = *t
		}
	}
	return out
}

// IsDeleted reports whether the note is soft-deleted.
func (n Note) IsDeleted() bool { return n.DeletedAt != nil }

// Clone returns a deep copy.
func (n Note) Clone() Note {
	out := n
	out.Content = n.Content.Clone()
	out.SessionAt = cloneTime(n.SessionAt)
	out.DraftLastSavedAt = cloneTime(n.DraftLastSavedAt)
	out.FinalizedAt = cloneTime(n.FinalizedAt)
	out.AmendedAt = cloneTime(n.AmendedAt)
	out.DeletedAt = cloneTime(n.DeletedAt)
	out.PermanentDeleteAfter = cloneTime(n.PermanentDeleteAfter)
	out.DeletedReason = cloneString(n.DeletedReason)
	return out
}

// CheckInvariants verifies the lifecycle field relations for the given grace period.
func (n Note) CheckInvariants(grace time.Duration) error {
	if (n.FinalizedAt != nil) == n.IsDraft {
		return fmt.Errorf("finalized_at set=%t but is_draft=%t", n.FinalizedAt != nil, n.IsDraft)
	}
	if n.AmendedAt != nil && n.FinalizedAt == nil {
		return fmt.Errorf("amended_at set on a note that was never finalized")
	}
	if n.AmendmentCount < 0 {
		return fmt.Errorf("negative amendment_count %d", n.AmendmentCount)
	}
	if (n.DeletedAt == nil) != (n.PermanentDeleteAfter == nil) {
		return fmt.Errorf("deleted_at and permanent_delete_after must be set together")
	}
	if n.DeletedAt != nil && !n.PermanentDeleteAfter.Equal(n.DeletedAt.Add(grace)) {
		return fmt.Errorf("permanent_delete_after must equal deleted_at + %s", grace)
	}
	return nil
}

// String returns s as a pointer.
func String(s string) *string { return &s }

// Int returns i as a pointer.
func Int(i int) *int { return &i }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
