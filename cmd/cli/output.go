package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/and161185/chartkeeper/internal/autosave"
	"github.com/and161185/chartkeeper/internal/history"
	"github.com/and161185/chartkeeper/internal/model"
)

var (
	colorRed    = color.New(color.FgRed)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorBlue   = color.New(color.FgBlue)
	colorGray   = color.New(color.FgHiBlack)
)

const indent = "  "

func infof(w io.Writer, msg string, v ...any) {
	fmt.Fprintf(w, "%s%s %s", indent, colorBlue.Sprint("•"), fmt.Sprintf(msg, v...))
}

func successf(w io.Writer, msg string, v ...any) {
	fmt.Fprintf(w, "%s%s %s", indent, colorGreen.Sprint("✔"), fmt.Sprintf(msg, v...))
}

func warnf(w io.Writer, msg string, v ...any) {
	fmt.Fprintf(w, "%s%s %s", indent, colorYellow.Sprint("•"), fmt.Sprintf(msg, v...))
}

func errorf(w io.Writer, msg string, v ...any) {
	fmt.Fprintf(w, "%s%s %s", indent, colorRed.Sprint("⨯"), fmt.Sprintf(msg, v...))
}

func askf(w io.Writer, msg string, v ...any) {
	fmt.Fprintf(w, "%s%s %s: ", indent, colorGreen.Sprint("[?]"), fmt.Sprintf(msg, v...))
}

func statusLabel(s autosave.Status) string {
	switch s {
	case autosave.StatusSynced:
		return colorGreen.Sprint(s.String())
	case autosave.StatusPending:
		return colorYellow.Sprint(s.String())
	case autosave.StatusOffline:
		return colorGray.Sprint(s.String())
	}
	return colorRed.Sprint(s.String())
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func printNote(w io.Writer, n model.Note, local model.Content) {
	fmt.Fprintf(w, "%s %s  [%s]  v%d\n", colorBlue.Sprint("note"), n.ID, n.State(), n.Version)
	fmt.Fprintf(w, "%sclient %s  workspace %s\n", indent, n.ClientID, n.WorkspaceID)
	fmt.Fprintf(w, "%ssaved %s  finalized %s  amended %s (%d)\n", indent,
		fmtTime(n.DraftLastSavedAt), fmtTime(n.FinalizedAt), fmtTime(n.AmendedAt), n.AmendmentCount)
	if n.IsDeleted() {
		fmt.Fprintf(w, "%s%s at %s, purge after %s\n", indent, colorRed.Sprint("deleted"),
			fmtTime(n.DeletedAt), fmtTime(n.PermanentDeleteAfter))
	}
	if local.DurationMinutes != nil {
		fmt.Fprintf(w, "%sduration %d min\n", indent, *local.DurationMinutes)
	}
	for _, f := range model.TextFields {
		v := local.Field(f)
		text := colorGray.Sprint("(empty)")
		if v != nil && *v != "" {
			text = *v
		}
		fmt.Fprintf(w, "\n%s\n%s%s\n", colorYellow.Sprint(strings.ToUpper(f)), indent, strings.ReplaceAll(text, "\n", "\n"+indent))
	}
}

func printDiff(w io.Writer, fds []history.FieldDiff) {
	if len(fds) == 0 {
		fmt.Fprintf(w, "%s%s\n", indent, colorGray.Sprint("no changes"))
		return
	}
	for _, fd := range fds {
		fmt.Fprintf(w, "%s%s\n", indent, colorYellow.Sprint(fd.Field))
		for _, d := range fd.Diffs {
			for _, line := range strings.SplitAfter(d.Text, "\n") {
				if line == "" {
					continue
				}
				line = strings.TrimSuffix(line, "\n")
				switch d.Type {
				case history.DiffInsert:
					fmt.Fprintf(w, "%s%s\n", indent, colorGreen.Sprint("+ "+line))
				case history.DiffDelete:
					fmt.Fprintf(w, "%s%s\n", indent, colorRed.Sprint("- "+line))
				default:
					fmt.Fprintf(w, "%s  %s\n", indent, line)
				}
			}
		}
	}
}
