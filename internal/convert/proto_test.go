package convert

import (
	"strings"
	"testing"
	"time"

	u "github.com/gofrs/uuid/v5"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/chartkeeper/internal/model"
)

func mustUUID(t *testing.T, s string) u.UUID {
	t.Helper()
	id, err := u.FromString(s)
	if err != nil {
		t.Fatalf("bad uuid %q: %v", s, err)
	}
	return id
}

func TestNote_StructRoundtrip(t *testing.T) {
	t.Parallel()

	saved := time.Date(2025, 2, 3, 4, 5, 6, 789, time.UTC)
	fin := saved.Add(time.Minute)
	n := model.Note{
		ID:          mustUUID(t, "11111111-1111-4111-8111-111111111111"),
		ClientID:    mustUUID(t, "22222222-2222-4222-8222-222222222222"),
		WorkspaceID: mustUUID(t, "33333333-3333-4333-8333-333333333333"),
		Content: model.Content{
			Subjective:      model.String("reports low mood"),
			Plan:            model.String(""),
			DurationMinutes: model.Int(0),
		},
		DraftLastSavedAt: &saved,
		FinalizedAt:      &fin,
		AmendmentCount:   3,
		Version:          12,
		CreatedAt:        saved,
		UpdatedAt:        fin,
	}

	got, err := FromStructNote(ToStructNote(n))
	if err != nil {
		t.Fatalf("FromStructNote: %v", err)
	}
	if d := cmp.Diff(n, got); d != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", d)
	}
}

func TestFromStructNote_Errors(t *testing.T) {
	t.Parallel()

	if _, err := FromStructNote(nil); err == nil {
		t.Fatalf("nil struct must fail")
	}
	s := ToStructNote(model.Note{ID: u.Must(u.NewV4()), ClientID: u.Must(u.NewV4()), WorkspaceID: u.Must(u.NewV4())})
	s.Fields[KeyVersion] = structpb.NewNumberValue(1.5)
	if _, err := FromStructNote(s); err == nil || !strings.Contains(err.Error(), "integer") {
		t.Fatalf("fractional version must fail, got %v", err)
	}
	s.Fields[KeyVersion] = structpb.NewNumberValue(1)
	s.Fields[KeyID] = structpb.NewStringValue("not-a-uuid")
	if _, err := FromStructNote(s); err == nil {
		t.Fatalf("bad id must fail")
	}
}

func TestPatch_KeepsNilVersusEmpty(t *testing.T) {
	t.Parallel()

	id := u.Must(u.NewV4())
	p := model.Patch{Plan: model.String(""), Objective: model.String("bp 120/80")}
	s := ToStructPatch(id, p)
	if _, ok := s.Fields[model.FieldSubjective]; ok {
		t.Fatalf("untouched field must be omitted")
	}

	gotID, got, err := FromStructPatch(s)
	if err != nil {
		t.Fatalf("FromStructPatch: %v", err)
	}
	if gotID != id {
		t.Fatalf("id mismatch")
	}
	if got.Subjective != nil || got.Plan == nil || *got.Plan != "" || *got.Objective != "bp 120/80" {
		t.Fatalf("patch mismatch: %+v", got)
	}
}

func TestVersions_Roundtrip(t *testing.T) {
	t.Parallel()

	id := u.Must(u.NewV4())
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	vs := []model.VersionSnapshot{
		{NoteID: id, Version: 1, Plan: model.String("a"), CreatedAt: at},
		{NoteID: id, Version: 2, Plan: model.String("b"), Assessment: model.String("c"), CreatedAt: at.Add(time.Hour)},
	}
	got, err := FromStructVersions(ToStructVersions(vs))
	if err != nil {
		t.Fatalf("FromStructVersions: %v", err)
	}
	if d := cmp.Diff(vs, got); d != "" {
		t.Fatalf("mismatch (-want +got):\n%s", d)
	}

	empty, err := FromStructVersions(ToStructVersions(nil))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty list: %v %v", empty, err)
	}
}

func TestNewNoteAndDelete(t *testing.T) {
	t.Parallel()

	sess := time.Date(2025, 5, 5, 15, 0, 0, 0, time.UTC)
	in := model.NewNote{
		ClientID:    u.Must(u.NewV4()),
		WorkspaceID: u.Must(u.NewV4()),
		SessionAt:   &sess,
		Content:     model.Content{DurationMinutes: model.Int(50)},
	}
	got, err := FromStructNewNote(ToStructNewNote(in))
	if err != nil {
		t.Fatalf("FromStructNewNote: %v", err)
	}
	if d := cmp.Diff(in, got); d != "" {
		t.Fatalf("mismatch (-want +got):\n%s", d)
	}

	id := u.Must(u.NewV4())
	gotID, reason, err := FromStructDelete(ToStructDelete(id, model.String("duplicate")))
	if err != nil || gotID != id || reason == nil || *reason != "duplicate" {
		t.Fatalf("delete roundtrip: %v %v %v", gotID, reason, err)
	}
	_, reason, _ = FromStructDelete(ToStructDelete(id, nil))
	if reason != nil {
		t.Fatalf("absent reason must stay nil")
	}
}
