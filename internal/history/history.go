// Package history is the read path of the append-only version ledger.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
)

// Diff operations, re-exported for renderers.
const (
	DiffEqual  = diffmatchpatch.DiffEqual
	DiffInsert = diffmatchpatch.DiffInsert
	DiffDelete = diffmatchpatch.DiffDelete
)

// Source fetches a note's snapshots.
type Source interface {
	Versions(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error)
}

// Store reads and checks version history.
type Store struct {
	src Source
}

// New constructs a history store.
func New(src Source) *Store {
	return &Store{src: src}
}

// List returns the snapshots of id ordered by version. Duplicate versions are reported as an error.
func (s *Store) List(ctx context.Context, id uuid.UUID) ([]model.VersionSnapshot, error) {
	vs, err := s.src.Versions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("versions of %s: %w", id, err)
	}
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Version < vs[j].Version })
	for i := 1; i < len(vs); i++ {
		if vs[i].Version == vs[i-1].Version {
			return nil, fmt.Errorf("versions of %s: duplicate version %d", id, vs[i].Version)
		}
	}
	return vs, nil
}

// Get returns one snapshot.
func (s *Store) Get(ctx context.Context, id uuid.UUID, version int64) (model.VersionSnapshot, error) {
	vs, err := s.List(ctx, id)
	if err != nil {
		return model.VersionSnapshot{}, err
	}
	i := sort.Search(len(vs), func(i int) bool { return vs[i].Version >= version })
	if i == len(vs) || vs[i].Version != version {
		return model.VersionSnapshot{}, fmt.Errorf("version %d of %s: %w", version, id, errs.ErrNotFound)
	}
	return vs[i], nil
}

// Current captures a note's present text as an unnumbered snapshot for diffing.
func Current(n model.Note) model.VersionSnapshot {
	return n.Snapshot(0, n.UpdatedAt)
}

// FieldDiff is the line diff of one changed text field.
type FieldDiff struct {
	Field string
	Diffs []diffmatchpatch.Diff
}

// Diff computes line diffs for every text field that differs between a and b.
func Diff(a, b model.VersionSnapshot) []FieldDiff {
	var out []FieldDiff
	for _, f := range model.TextFields {
		from, to := deref(a.Field(f)), deref(b.Field(f))
		if from == to {
			continue
		}
		out = append(out, FieldDiff{Field: f, Diffs: lines(from, to)})
	}
	return out
}

func lines(s1, s2 string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = time.Hour

	c1, c2, arr := dmp.DiffLinesToRunes(s1, s2)
	diffs := dmp.DiffMainRunes(c1, c2, false)
	return dmp.DiffCharsToLines(diffs, arr)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
