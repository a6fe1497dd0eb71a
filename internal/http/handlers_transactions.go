package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gagyebu/internal/core"
	"gagyebu/internal/ledger"
	"gagyebu/internal/log"
)

const msgNotFound = "기록을 찾을 수 없어요."

// editorData drives the "editor" partial.
type editorData struct {
	Draft          core.Draft
	Categories     []string
	Methods        []core.Method
	MethodRequired bool
	Error          *core.ValidationError
}

func (d editorData) Heading() string {
	if d.Draft.Type == core.Income {
		return "얼마나 들어왔나요?"
	}
	return "어디에 쓰셨나요?"
}

func (d editorData) SubmitLabel() string {
	switch {
	case d.Draft.Editing():
		return "수정 완료하기"
	case d.Draft.Type == core.Income:
		return "수입 저장하기"
	default:
		return "지출 기록하기"
	}
}

// Action is the form target: create, or update of the record being edited.
func (d editorData) Action() string {
	if d.Draft.Editing() {
		return "/transactions/" + d.Draft.ID
	}
	return "/transactions"
}

// Invalid reports whether field is the one that failed validation.
func (d editorData) Invalid(field string) bool {
	return d.Error != nil && d.Error.Field == field
}

func (s *Server) editorFor(d core.Draft, verr *core.ValidationError) editorData {
	tax := s.tx.Taxonomy()
	return editorData{
		Draft:          d,
		Categories:     tax.Categories(d.Type),
		Methods:        core.Methods(),
		MethodRequired: core.IsMethodRequired(d.Type),
		Error:          verr,
	}
}

func (s *Server) writeEditor(w http.ResponseWriter, r *http.Request, status int, d core.Draft, verr *core.ValidationError) {
	body, err := s.renderHTML(r.Context(), "editor", s.editorFor(d, verr))
	if err != nil {
		InternalServerError(core.MsgSaveFailed).Write(w)
		return
	}
	b := NewHTMXResponse().Status(status).BodyHTML(body)
	if verr != nil {
		b.TriggerErrorNotification(verr.Message, "")
	}
	b.Write(w)
}

// handleEditor renders a new-record editor. Query values carry the current
// form state so switching the type keeps what was typed.
func (s *Server) handleEditor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d := core.NewDraft(s.now())
	if len(q) > 0 {
		parsed := ParseDraft(q)
		if parsed.Date == "" {
			parsed.Date = d.Date
		}
		d = parsed
	}
	d = d.SetType(d.Type, s.tx.Taxonomy())
	s.writeEditor(w, r, http.StatusOK, d, nil)
}

func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.tx.Get(ctx, sessionFrom(ctx).UserID(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	s.writeEditor(w, r, http.StatusOK, core.DraftFrom(t), nil)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if fail := ParseFormOrFail(r); fail != nil {
		fail.Write(w)
		return
	}
	d := ParseDraft(r.PostForm)
	d.ID = ""
	s.saveTransaction(w, r, d)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	if fail := ParseFormOrFail(r); fail != nil {
		fail.Write(w)
		return
	}
	d := ParseDraft(r.PostForm)
	d.ID = chi.URLParam(r, "id")
	s.saveTransaction(w, r, d)
}

func (s *Server) saveTransaction(w http.ResponseWriter, r *http.Request, d core.Draft) {
	ctx := r.Context()
	uid := sessionFrom(ctx).UserID()
	edited := d.Editing()

	var (
		t   core.Transaction
		err error
	)
	if edited {
		t, err = s.tx.Update(ctx, uid, d)
	} else {
		t, err = s.tx.Create(ctx, uid, d)
	}

	var verr *core.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		s.writeEditor(w, r, http.StatusUnprocessableEntity, d, verr)
		return
	case errors.Is(err, core.ErrNoOwner):
		NewHTMXResponse().
			Status(http.StatusUnauthorized).
			TriggerErrorNotification(core.MsgLoginRequired, core.MsgLoginRequiredSub).
			Write(w)
		return
	case errors.Is(err, ledger.ErrNotFound):
		NotFoundError(msgNotFound).TriggerErrorNotification(core.MsgSaveFailed, "").Write(w)
		return
	default:
		log.FromContext(ctx).ErrorContext(ctx, "Save failed",
			log.FieldError, err,
			log.FieldTxID, d.ID)
		NewHTMXResponse().
			Status(http.StatusInternalServerError).
			TriggerErrorNotification(core.MsgSaveFailed, "").
			Write(w)
		return
	}

	s.saved.Add(1)
	m := monthOfDate(t.Date, s.now())
	NewHTMXResponse().
		TriggerTransactionSaved(m).
		TriggerModalClose().
		TriggerSuccessNotification(core.SuccessTitle(t, edited), core.SuccessDescription(t)).
		Write(w)
}

// deleteData drives the "delete_dialog" partial.
type deleteData struct {
	Transaction core.Transaction
	Message     string
}

func (s *Server) handleDeleteDialog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.tx.Get(ctx, sessionFrom(ctx).UserID(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	s.writeDeleteDialog(w, r, t)
}

func (s *Server) writeDeleteDialog(w http.ResponseWriter, r *http.Request, t core.Transaction) {
	body, err := s.renderHTML(r.Context(), "delete_dialog", deleteData{Transaction: t, Message: core.MsgDeleteConfirm})
	if err != nil {
		InternalServerError(core.MsgDeleteFailed).Write(w)
		return
	}
	NewHTMXResponse().BodyHTML(body).Write(w)
}

// handleDeleteTransaction deletes only with confirm=yes; anything else
// re-renders the confirmation dialog.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if fail := ParseFormOrFail(r); fail != nil {
		fail.Write(w)
		return
	}
	ctx := r.Context()
	uid := sessionFrom(ctx).UserID()
	id := chi.URLParam(r, "id")

	t, err := s.tx.Get(ctx, uid, id)
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	if r.PostForm.Get("confirm") != "yes" {
		s.writeDeleteDialog(w, r, t)
		return
	}

	if err := s.tx.Delete(ctx, uid, id); err != nil {
		log.FromContext(ctx).ErrorContext(ctx, "Delete failed",
			log.FieldError, err,
			log.FieldTxID, id)
		NewHTMXResponse().
			Status(http.StatusInternalServerError).
			TriggerErrorNotification(core.MsgDeleteFailed, "").
			Write(w)
		return
	}

	s.deleted.Add(1)
	m := monthOfDate(t.Date, s.now())
	NewHTMXResponse().
		TriggerTransactionDeleted(m).
		TriggerModalClose().
		TriggerSuccessNotification(core.MsgDeleted, "").
		Write(w)
}

func (s *Server) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		NotFoundError(msgNotFound).Write(w)
		return
	}
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Transaction lookup failed", log.FieldError, err)
	InternalServerError(msgLoadFailed).Write(w)
}

// monthOfDate is the month a stored date belongs to, or fallback's month.
func monthOfDate(date string, fallback time.Time) core.Month {
	d, err := core.ParseDate(date)
	if err != nil {
		return core.MonthOf(fallback)
	}
	return core.MonthOf(d)
}
