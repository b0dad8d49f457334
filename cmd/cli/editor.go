package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/session"
)

// lineEditor reads "field: text" lines and feeds them to the autosave session until EOF or :q.
// "field+: text" appends a line instead of replacing the field.
func lineEditor(ctx context.Context, h *session.Handle, r *bufio.Reader, out io.Writer) error {
	infof(out, "editing %s (%s). \"field: text\" to set, :w flush, :s status, :p print, :q quit\n", h.ID(), h.State())
	for {
		line, err := r.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			done, cmdErr := editorLine(ctx, h, line, out)
			if cmdErr != nil {
				if errors.Is(cmdErr, errs.ErrNotFound) || errors.Is(cmdErr, errs.ErrInvalidTransition) {
					return cmdErr
				}
				errorf(out, "%v\n", cmdErr)
			}
			if done {
				return closeEditor(ctx, h, out)
			}
		}
		if errors.Is(err, io.EOF) {
			return closeEditor(ctx, h, out)
		}
		if err != nil {
			return err
		}
	}
}

func editorLine(ctx context.Context, h *session.Handle, line string, out io.Writer) (bool, error) {
	switch strings.TrimSpace(line) {
	case ":q":
		return true, nil
	case ":w":
		if err := h.Flush(ctx); err != nil {
			return false, err
		}
		successf(out, "saved (v%d)\n", h.Note().Version)
		return false, nil
	case ":s":
		st := h.Status()
		msg := statusLabel(st.Status)
		if st.Err != nil {
			msg += ": " + st.Err.Error()
		}
		infof(out, "%s\n", msg)
		return false, nil
	case ":p":
		printNote(out, h.Note(), h.Content())
		return false, nil
	}

	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return false, fmt.Errorf("%w: expected \"field: text\"", errs.ErrValidation)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimPrefix(value, " ")

	if name == "duration" {
		d, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return false, fmt.Errorf("%w: duration must be minutes", errs.ErrValidation)
		}
		return false, h.Edit(ctx, model.Patch{DurationMinutes: model.Int(d)})
	}
	if field, ok := strings.CutSuffix(name, "+"); ok {
		if cur := h.Content().Field(field); cur != nil && *cur != "" {
			value = *cur + "\n" + value
		}
		name = field
	}
	return false, h.SetField(ctx, name, value)
}

func closeEditor(ctx context.Context, h *session.Handle, out io.Writer) error {
	err := h.Flush(ctx)
	switch errs.KindOf(err) {
	case errs.KindNone:
		successf(out, "saved (v%d)\n", h.Note().Version)
		return nil
	case errs.KindOffline, errs.KindTransient, errs.KindRateLimited:
		warnf(out, "not synced (%v); edits are kept in the local backup\n", err)
		return nil
	}
	return err
}
