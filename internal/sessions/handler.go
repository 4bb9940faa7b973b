package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/kavlartius217/meditrust/internal/conversation"
	"github.com/kavlartius217/meditrust/internal/documents"
	"github.com/kavlartius217/meditrust/internal/workflow"
	"github.com/kavlartius217/meditrust/pkg/handlers"
	"github.com/kavlartius217/meditrust/pkg/routes"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
}

// View is the JSON form of a session.
type View struct {
	*Session
	Turns int `json:"turns"`
}

// CreateRequest is the JSON body of POST /sessions when no file is uploaded.
type CreateRequest struct {
	Report string `json:"report"`
}

// DecisionRequest accepts "proceed", "stop", "yes" or "no".
type DecisionRequest struct {
	Decision string            `json:"decision"`
	Params   map[string]string `json:"params,omitempty"`
}

type AnalyzeRequest struct {
	Retry []workflow.StageID `json:"retry,omitempty"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type AskResponse struct {
	Turn   *conversation.Turn `json:"turn"`
	Answer string             `json:"answer"`
}

func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "sessions"),
		maxUploadSize: maxUploadSize,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/sessions",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Create},
			{Method: "GET", Pattern: "/{id}", Handler: h.Get},
			{Method: "POST", Pattern: "/{id}/analyze", Handler: h.Analyze},
			{Method: "POST", Pattern: "/{id}/decision", Handler: h.Decision},
			{Method: "POST", Pattern: "/{id}/advance", Handler: h.Advance},
			{Method: "POST", Pattern: "/{id}/ingest", Handler: h.Ingest},
			{Method: "POST", Pattern: "/{id}/ask", Handler: h.Ask},
			{Method: "GET", Pattern: "/{id}/turns", Handler: h.Turns},
			{Method: "DELETE", Pattern: "/{id}", Handler: h.Reset},
		},
	}
}

// Create starts a session from a multipart "file" upload or a JSON
// {"report": "..."} body.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var (
		sess *Session
		err  error
	)

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt == "multipart/form-data" {
		var up *documents.Upload
		up, err = documents.ReadUpload(w, r, h.maxUploadSize)
		if err == nil {
			sess, err = h.sys.Upload(r.Context(), *up)
		}
	} else {
		var req CreateRequest
		if !h.decode(w, r, &req) {
			return
		}
		sess, err = h.sys.Create(r.Context(), CreateCommand{Report: req.Report})
	}

	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	h.respond(w, http.StatusCreated, sess)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	sess, err := h.sys.Get(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

// Analyze runs the stages ahead of the decision, retrying any named
// failed stages first.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	h.advance(w, r, workflow.Trigger{Retry: req.Retry})
}

func (h *Handler) Decision(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := workflow.ParseDecision(req.Decision)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	h.advance(w, r, workflow.Trigger{Decision: d, Params: req.Params})
}

// Advance accepts a raw workflow trigger.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	var t workflow.Trigger
	if r.ContentLength != 0 && !h.decode(w, r, &t) {
		return
	}
	h.advance(w, r, t)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	sess, err := h.sys.IngestAll(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if !h.decode(w, r, &req) {
		return
	}

	turn, err := h.sys.Ask(r.Context(), id, req.Question)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, AskResponse{Turn: turn, Answer: turn.BotText})
}

func (h *Handler) Turns(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	turns, err := h.sys.Turns(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, turns)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.sys.Reset(r.Context(), id); err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request, t workflow.Trigger) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	sess, err := h.sys.Advance(r.Context(), id, t)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	h.respond(w, http.StatusOK, sess)
}

func (h *Handler) respond(w http.ResponseWriter, status int, sess *Session) {
	turns := 0
	if sess.History != nil {
		turns = sess.History.Len()
	}
	handlers.RespondJSON(w, status, View{Session: sess, Turns: turns})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid session id: %w", err))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}
