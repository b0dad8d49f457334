package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/and161185/chartkeeper/internal/errs"
	"github.com/and161185/chartkeeper/internal/model"
	"github.com/and161185/chartkeeper/internal/service"
)

// NoteHandler serves the /v1/notes routes.
type NoteHandler struct {
	notes service.NoteService
}

// NewNoteHandler constructs the handler.
func NewNoteHandler(notes service.NoteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// DeleteRequest is the optional body of a soft delete.
type DeleteRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func noteID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad note id", errs.ErrValidation)
	}
	return id, nil
}

// decode reads an optional JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid request payload", errs.ErrValidation)
	}
	return nil
}

func principal(r *http.Request) (service.Principal, error) {
	p, ok := service.PrincipalFrom(r.Context())
	if !ok {
		return service.Principal{}, errs.ErrUnauthorized
	}
	return p, nil
}

func writeNote(w http.ResponseWriter, statusCode int, n *model.Note, err error) {
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, statusCode, n)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req model.NewNote
	if err := decode(r, &req); err != nil {
		Error(w, err)
		return
	}
	n, err := h.notes.Create(r.Context(), p, req)
	writeNote(w, http.StatusCreated, n, err)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		Error(w, err)
		return
	}
	id, err := noteID(r)
	if err != nil {
		Error(w, err)
		return
	}
	n, err := h.notes.Get(r.Context(), p, id)
	writeNote(w, http.StatusOK, n, err)
}

// patch serves both the draft and amendment paths.
func (h *NoteHandler) patch(amend bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := principal(r)
		if err != nil {
			Error(w, err)
			return
		}
		id, err := noteID(r)
		if err != nil {
			Error(w, err)
			return
		}
		var patch model.Patch
		if err := decode(r, &patch); err != nil {
			Error(w, err)
			return
		}
		var n *model.Note
		if amend {
			n, err = h.notes.Amend(r.Context(), p, id, patch)
		} else {
			n, err = h.notes.PatchDraft(r.Context(), p, id, patch)
		}
		writeNote(w, http.StatusOK, n, err)
	}
}

func (h *NoteHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		Error(w, err)
		return
	}
	id, err := noteID(r)
	if err != nil {
		Error(w, err)
		return
	}
	n, err := h.notes.Finalize(r.Context(), p, id)
	writeNote(w, http.StatusOK, n, err)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		Error(w, err)
		return
	}
	id, err := noteID(r)
	if err != nil {
		Error(w, err)
		return
	}
	var req DeleteRequest
	if err := decode(r, &req); err != nil {
		Error(w, err)
		return
	}
	n, err := h.notes.Delete(r.Context(), p, id, req.Reason)
	writeNote(w, http.StatusOK, n, err)
}

func (h *NoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		Error(w, err)
		return
	}
	id, err := noteID(r)
	if err != nil {
		Error(w, err)
		return
	}
	n, err := h.notes.Restore(r.Context(), p, id)
	writeNote(w, http.StatusOK, n, err)
}

func (h *NoteHandler) Purge(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		Error(w, err)
		return
	}
	id, err := noteID(r)
	if err != nil {
		Error(w, err)
		return
	}
	if err := h.notes.Purge(r.Context(), p, id); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, nil)
}

func (h *NoteHandler) Versions(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		Error(w, err)
		return
	}
	id, err := noteID(r)
	if err != nil {
		Error(w, err)
		return
	}
	vs, err := h.notes.Versions(r.Context(), p, id)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, vs)
}
