// Package convert maps domain types to and from the google.protobuf.Struct messages of the Notes RPC service.
package convert

import (
	"fmt"
	"math"
	"time"

	u "github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/chartkeeper/internal/model"
)

// Message keys.
const (
	KeyID                   = "id"
	KeyClientID             = "client_id"
	KeyWorkspaceID          = "workspace_id"
	KeySessionAt            = "session_at"
	KeyDurationMinutes      = "duration_minutes"
	KeyIsDraft              = "is_draft"
	KeyDraftLastSavedAt     = "draft_last_saved_at"
	KeyFinalizedAt          = "finalized_at"
	KeyAmendedAt            = "amended_at"
	KeyAmendmentCount       = "amendment_count"
	KeyVersion              = "version"
	KeyDeletedAt            = "deleted_at"
	KeyPermanentDeleteAfter = "permanent_delete_after"
	KeyDeletedReason        = "deleted_reason"
	KeyReason               = "reason"
	KeyCreatedAt            = "created_at"
	KeyUpdatedAt            = "updated_at"
	KeyVersions             = "versions"
)

// --- helpers ---

func strv(s *string) *structpb.Value {
	if s == nil {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(*s)
}

func tsv(t *time.Time) *structpb.Value {
	if t == nil || t.IsZero() {
		return structpb.NewNullValue()
	}
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

func numv(n int64) *structpb.Value { return structpb.NewNumberValue(float64(n)) }

func present(s *structpb.Struct, key string) (*structpb.Value, bool) {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil, false
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, false
	}
	return v, true
}

func getString(s *structpb.Struct, key string) (*string, error) {
	v, ok := present(s, key)
	if !ok {
		return nil, nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, fmt.Errorf("%s: want string", key)
	}
	out := sv.StringValue
	return &out, nil
}

func getTime(s *structpb.Struct, key string) (*time.Time, error) {
	raw, err := getString(s, key)
	if err != nil || raw == nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, *raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func getInt(s *structpb.Struct, key string) (*int64, error) {
	v, ok := present(s, key)
	if !ok {
		return nil, nil
	}
	nv, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, fmt.Errorf("%s: want number", key)
	}
	f := nv.NumberValue
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%s: want integer", key)
	}
	out := int64(f)
	return &out, nil
}

func getUUID(s *structpb.Struct, key string) (u.UUID, error) {
	raw, err := getString(s, key)
	if err != nil {
		return u.Nil, err
	}
	if raw == nil {
		return u.Nil, fmt.Errorf("%s: missing", key)
	}
	id, err := u.FromString(*raw)
	if err != nil {
		return u.Nil, fmt.Errorf("%s: invalid uuid: %w", key, err)
	}
	return id, nil
}

func getBool(s *structpb.Struct, key string) bool {
	v, ok := present(s, key)
	return ok && v.GetBoolValue()
}

func putContent(f map[string]*structpb.Value, c model.Content) {
	for _, name := range model.TextFields {
		f[name] = strv(c.Field(name))
	}
	if c.DurationMinutes != nil {
		f[KeyDurationMinutes] = numv(int64(*c.DurationMinutes))
	} else {
		f[KeyDurationMinutes] = structpb.NewNullValue()
	}
}

func readContent(s *structpb.Struct) (model.Content, error) {
	p, err := readPatch(s)
	if err != nil {
		return model.Content{}, err
	}
	return model.Content{}.Apply(p), nil
}

func readPatch(s *structpb.Struct) (model.Patch, error) {
	var p model.Patch
	var err error
	if p.Subjective, err = getString(s, model.FieldSubjective); err != nil {
		return p, err
	}
	if p.Objective, err = getString(s, model.FieldObjective); err != nil {
		return p, err
	}
	if p.Assessment, err = getString(s, model.FieldAssessment); err != nil {
		return p, err
	}
	if p.Plan, err = getString(s, model.FieldPlan); err != nil {
		return p, err
	}
	d, err := getInt(s, KeyDurationMinutes)
	if err != nil {
		return p, err
	}
	if d != nil {
		v := int(*d)
		p.DurationMinutes = &v
	}
	return p, nil
}

// --- Note ---

// ToStructNote converts a note to its wire form.
func ToStructNote(n model.Note) *structpb.Struct {
	f := map[string]*structpb.Value{
		KeyID:                   structpb.NewStringValue(n.ID.String()),
		KeyClientID:             structpb.NewStringValue(n.ClientID.String()),
		KeyWorkspaceID:          structpb.NewStringValue(n.WorkspaceID.String()),
		KeySessionAt:            tsv(n.SessionAt),
		KeyIsDraft:              structpb.NewBoolValue(n.IsDraft),
		KeyDraftLastSavedAt:     tsv(n.DraftLastSavedAt),
		KeyFinalizedAt:          tsv(n.FinalizedAt),
		KeyAmendedAt:            tsv(n.AmendedAt),
		KeyAmendmentCount:       numv(int64(n.AmendmentCount)),
		KeyVersion:              numv(n.Version),
		KeyDeletedAt:            tsv(n.DeletedAt),
		KeyPermanentDeleteAfter: tsv(n.PermanentDeleteAfter),
		KeyDeletedReason:        strv(n.DeletedReason),
		KeyCreatedAt:            tsv(&n.CreatedAt),
		KeyUpdatedAt:            tsv(&n.UpdatedAt),
	}
	putContent(f, n.Content)
	return &structpb.Struct{Fields: f}
}

// FromStructNote converts a wire note to the domain type.
func FromStructNote(s *structpb.Struct) (model.Note, error) {
	if s == nil {
		return model.Note{}, fmt.Errorf("nil note")
	}
	var n model.Note
	var err error
	if n.ID, err = getUUID(s, KeyID); err != nil {
		return n, err
	}
	if n.ClientID, err = getUUID(s, KeyClientID); err != nil {
		return n, err
	}
	if n.WorkspaceID, err = getUUID(s, KeyWorkspaceID); err != nil {
		return n, err
	}
	if n.Content, err = readContent(s); err != nil {
		return n, err
	}
	n.IsDraft = getBool(s, KeyIsDraft)

	times := []struct {
		key string
		dst **time.Time
	}{
		{KeySessionAt, &n.SessionAt},
		{KeyDraftLastSavedAt, &n.DraftLastSavedAt},
		{KeyFinalizedAt, &n.FinalizedAt},
		{KeyAmendedAt, &n.AmendedAt},
		{KeyDeletedAt, &n.DeletedAt},
		{KeyPermanentDeleteAfter, &n.PermanentDeleteAfter},
	}
	for _, tf := range times {
		if *tf.dst, err = getTime(s, tf.key); err != nil {
			return n, err
		}
	}
	for key, dst := range map[string]*time.Time{KeyCreatedAt: &n.CreatedAt, KeyUpdatedAt: &n.UpdatedAt} {
		t, err := getTime(s, key)
		if err != nil {
			return n, err
		}
		if t != nil {
			*dst = *t
		}
	}
	if n.DeletedReason, err = getString(s, KeyDeletedReason); err != nil {
		return n, err
	}
	if c, err := getInt(s, KeyAmendmentCount); err != nil {
		return n, err
	} else if c != nil {
		n.AmendmentCount = int(*c)
	}
	if v, err := getInt(s, KeyVersion); err != nil {
		return n, err
	} else if v != nil {
		n.Version = *v
	}
	return n, nil
}

// --- Requests (client -> server) ---

// ToStructID builds a request addressing a single note.
func ToStructID(id u.UUID) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{KeyID: structpb.NewStringValue(id.String())}}
}

// FromStructID extracts the note id of a request.
func FromStructID(s *structpb.Struct) (u.UUID, error) {
	return getUUID(s, KeyID)
}

// ToStructPatch builds a draft/amend request. Nil patch fields are omitted.
func ToStructPatch(id u.UUID, p model.Patch) *structpb.Struct {
	f := map[string]*structpb.Value{KeyID: structpb.NewStringValue(id.String())}
	for name, v := range map[string]*string{
		model.FieldSubjective: p.Subjective,
		model.FieldObjective:  p.Objective,
		model.FieldAssessment: p.Assessment,
		model.FieldPlan:       p.Plan,
	} {
		if v != nil {
			f[name] = structpb.NewStringValue(*v)
		}
	}
	if p.DurationMinutes != nil {
		f[KeyDurationMinutes] = numv(int64(*p.DurationMinutes))
	}
	return &structpb.Struct{Fields: f}
}

// FromStructPatch reads a draft/amend request.
func FromStructPatch(s *structpb.Struct) (u.UUID, model.Patch, error) {
	id, err := getUUID(s, KeyID)
	if err != nil {
		return u.Nil, model.Patch{}, err
	}
	p, err := readPatch(s)
	return id, p, err
}

// ToStructNewNote builds a create request.
func ToStructNewNote(in model.NewNote) *structpb.Struct {
	f := map[string]*structpb.Value{
		KeyClientID:    structpb.NewStringValue(in.ClientID.String()),
		KeyWorkspaceID: structpb.NewStringValue(in.WorkspaceID.String()),
		KeySessionAt:   tsv(in.SessionAt),
	}
	putContent(f, in.Content)
	return &structpb.Struct{Fields: f}
}

// FromStructNewNote reads a create request.
func FromStructNewNote(s *structpb.Struct) (model.NewNote, error) {
	var in model.NewNote
	var err error
	if in.ClientID, err = getUUID(s, KeyClientID); err != nil {
		return in, err
	}
	if in.WorkspaceID, err = getUUID(s, KeyWorkspaceID); err != nil {
		return in, err
	}
	if in.SessionAt, err = getTime(s, KeySessionAt); err != nil {
		return in, err
	}
	in.Content, err = readContent(s)
	return in, err
}

// ToStructDelete builds a soft-delete request.
func ToStructDelete(id u.UUID, reason *string) *structpb.Struct {
	s := ToStructID(id)
	if reason != nil {
		s.Fields[KeyReason] = structpb.NewStringValue(*reason)
	}
	return s
}

// FromStructDelete reads a soft-delete request.
func FromStructDelete(s *structpb.Struct) (u.UUID, *string, error) {
	id, err := getUUID(s, KeyID)
	if err != nil {
		return u.Nil, nil, err
	}
	reason, err := getString(s, KeyReason)
	return id, reason, err
}

// --- Versions (server -> client) ---

// ToStructVersions wraps the version list of a note.
func ToStructVersions(vs []model.VersionSnapshot) *structpb.Struct {
	list := make([]*structpb.Value, 0, len(vs))
	for _, v := range vs {
		f := map[string]*structpb.Value{
			KeyID:        structpb.NewStringValue(v.NoteID.String()),
			KeyVersion:   numv(v.Version),
			KeyCreatedAt: tsv(&v.CreatedAt),
		}
		for _, name := range model.TextFields {
			f[name] = strv(v.Field(name))
		}
		list = append(list, structpb.NewStructValue(&structpb.Struct{Fields: f}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		KeyVersions: structpb.NewListValue(&structpb.ListValue{Values: list}),
	}}
}

// FromStructVersions unwraps a version list.
func FromStructVersions(s *structpb.Struct) ([]model.VersionSnapshot, error) {
	v, ok := present(s, KeyVersions)
	if !ok {
		return nil, nil
	}
	items := v.GetListValue().GetValues()
	out := make([]model.VersionSnapshot, 0, len(items))
	for i, it := range items {
		vs := it.GetStructValue()
		if vs == nil {
			return nil, fmt.Errorf("versions[%d]: want object", i)
		}
		id, err := getUUID(vs, KeyID)
		if err != nil {
			return nil, fmt.Errorf("versions[%d]: %w", i, err)
		}
		c, err := readContent(vs)
		if err != nil {
			return nil, fmt.Errorf("versions[%d]: %w", i, err)
		}
		snap := model.VersionSnapshot{
			NoteID: id, Subjective: c.Subjective, Objective: c.Objective, Assessment: c.Assessment, Plan: c.Plan,
		}
		if ver, err := getInt(vs, KeyVersion); err != nil {
			return nil, fmt.Errorf("versions[%d]: %w", i, err)
		} else if ver != nil {
			snap.Version = *ver
		}
		if at, err := getTime(vs, KeyCreatedAt); err != nil {
			return nil, fmt.Errorf("versions[%d]: %w", i, err)
		} else if at != nil {
			snap.CreatedAt = *at
		}
		out = append(out, snap)
	}
	return out, nil
}
