package forum

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/Azuko9/forum-app/cmd/identity"
	"github.com/Azuko9/forum-app/cmd/internal/auth/session"
	"github.com/Azuko9/forum-app/cmd/internal/httpx"
)

// Authenticator wraps handlers that require a principal.
type Authenticator interface {
	Require(next http.Handler) http.Handler
}

// Handler exposes topics and comments over HTTP.
type Handler struct {
	log          *slog.Logger
	svc          *Service
	guard        Authenticator
	maxBodyBytes int64
}

// NewHandler constructs a Handler. guard protects every mutating route.
func NewHandler(log *slog.Logger, svc *Service, guard Authenticator, maxBodyBytes int64) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("forum: nil service")
	}
	if guard == nil {
		return nil, errors.New("forum: nil guard")
	}
	if log == nil {
		log = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return &Handler{log: log, svc: svc, guard: guard, maxBodyBytes: maxBodyBytes}, nil
}

// Register wires forum routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.Handle("POST /api/topics", h.guard.Require(http.HandlerFunc(h.handleCreateTopic)))
	mux.HandleFunc("GET /api/topics", h.handleListTopics)
	mux.HandleFunc("GET /api/topics/{id}", h.handleGetTopic)
	mux.Handle("PUT /api/topics/{id}", h.guard.Require(http.HandlerFunc(h.handleUpdateTopic)))
	mux.Handle("DELETE /api/topics/{id}", h.guard.Require(http.HandlerFunc(h.handleDeleteTopic)))

	mux.Handle("POST /api/comments", h.guard.Require(http.HandlerFunc(h.handleCreateComment)))
	mux.HandleFunc("GET /api/comments", h.handleListComments)
	mux.Handle("DELETE /api/comments/{id}", h.guard.Require(http.HandlerFunc(h.handleDeleteComment)))
}

type topicResponse struct {
	Message string `json:"message"`
	Topic   Topic  `json:"topic"`
}

type commentResponse struct {
	Message string  `json:"message"`
	Comment Comment `json:"comment"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req TopicInput
	if !h.decode(w, r, &req) {
		return
	}

	t, err := h.svc.CreateTopic(r.Context(), p, req)
	if err != nil {
		h.writeServiceError(w, "forum.topic.create.fail", err)
		return
	}

	h.log.Info("forum.topic.created", "topic_id", t.ID, "user_id", p.ID)
	httpx.WriteJSON(w, http.StatusCreated, topicResponse{Message: "Topic created successfully", Topic: t})
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	q, err := parseListTopicsQuery(r)
	if err != nil {
		httpx.WriteValidationError(w, "invalid query", map[string]string{"sort": err.Error()})
		return
	}

	page, err := h.svc.ListTopics(r.Context(), q)
	if err != nil {
		h.writeServiceError(w, "forum.topic.list.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGetTopic(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTopic(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "forum.topic.get.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req TopicUpdate
	if !h.decode(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	t, err := h.svc.UpdateTopic(r.Context(), p, id, req)
	if err != nil {
		h.writeServiceError(w, "forum.topic.update.fail", err)
		return
	}

	h.log.Info("forum.topic.updated", "topic_id", id, "user_id", p.ID)
	httpx.WriteJSON(w, http.StatusOK, topicResponse{Message: "Topic updated", Topic: t})
}

func (h *Handler) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.svc.DeleteTopic(r.Context(), p, id); err != nil {
		h.writeServiceError(w, "forum.topic.delete.fail", err)
		return
	}

	h.log.Info("forum.topic.deleted", "topic_id", id, "user_id", p.ID)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "Topic deleted successfully"})
}

func (h *Handler) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req CommentInput
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.svc.CreateComment(r.Context(), p, req)
	if err != nil {
		h.writeServiceError(w, "forum.comment.create.fail", err)
		return
	}

	h.log.Info("forum.comment.created", "comment_id", c.ID, "topic_id", c.TopicID, "user_id", p.ID)
	httpx.WriteJSON(w, http.StatusCreated, commentResponse{Message: "Comment created successfully", Comment: c})
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	topicID := strings.TrimSpace(r.URL.Query().Get("topic"))
	if topicID == "" {
		httpx.WriteValidationError(w, `topic id is required in query param "topic"`, map[string]string{"topic": "cannot be blank"})
		return
	}

	comments, err := h.svc.ListComments(r.Context(), topicID)
	if err != nil {
		h.writeServiceError(w, "forum.comment.list.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, comments)
}

func (h *Handler) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := h.svc.DeleteComment(r.Context(), p, id); err != nil {
		h.writeServiceError(w, "forum.comment.delete.fail", err)
		return
	}

	h.log.Info("forum.comment.deleted", "comment_id", id, "user_id", p.ID)
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "Comment deleted successfully"})
}

// ---- helpers ----

// principal reads the Guard's principal. Its absence behind the Guard is a
// wiring bug and answers 401 rather than proceeding anonymously.
func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := session.PrincipalFrom(r.Context())
	if !ok || p.ID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "no token provided")
		return identity.Principal{}, false
	}
	return p, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(w, r, h.maxBodyBytes, dst); err != nil {
		if httpx.IsBodyTooLarge(err) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, event string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteValidationError(w, "invalid input", fieldErrors(err))
	case IsNotFound(err):
		switch NotFoundResource(err) {
		case "comment":
			httpx.WriteError(w, http.StatusNotFound, "not_found", "comment not found")
		default:
			httpx.WriteError(w, http.StatusNotFound, "not_found", "topic not found")
		}
	case errors.Is(err, ErrForbidden):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "not allowed to modify this resource")
	default:
		h.log.Error(event, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func fieldErrors(err error) map[string]string {
	var ve validation.Errors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for k, v := range ve {
		if v != nil {
			out[k] = v.Error()
		}
	}
	return out
}

// parseListTopicsQuery reads page, limit and sort. Non-numeric or
// non-positive paging values fall back to defaults; an unknown sort is an error.
func parseListTopicsQuery(r *http.Request) (ListTopicsQuery, error) {
	v := r.URL.Query()

	q := ListTopicsQuery{
		Page:  positiveIntOr(v.Get("page"), DefaultPage),
		Limit: positiveIntOr(v.Get("limit"), DefaultLimit),
	}
	s, err := ParseSort(v.Get("sort"))
	if err != nil {
		return ListTopicsQuery{}, err
	}
	q.Sort = s
	return q.Normalize(), nil
}

func positiveIntOr(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return def
	}
	return n
}
