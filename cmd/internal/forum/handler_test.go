package forum

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Azuko9/forum-app/cmd/identity"
	"github.com/Azuko9/forum-app/cmd/internal/auth/session"
	"github.com/Azuko9/forum-app/cmd/internal/httpx"
	"github.com/Azuko9/forum-app/cmd/security/token"
)

type testServer struct {
	mux    *http.ServeMux
	tokens *token.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tokens, err := token.NewService(token.Config{Secret: []byte("forum-handler-test-secret")})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	log := slog.New(slog.DiscardHandler)
	svc, _ := newTestService(t)

	h, err := NewHandler(log, svc, session.NewGuard(tokens, log), 0)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return &testServer{mux: mux, tokens: tokens}
}

func (s *testServer) bearer(t *testing.T, p identity.Principal) string {
	t.Helper()

	raw, err := s.tokens.Issue(token.Subject{ID: p.ID, Username: p.Username, Role: string(p.Role)})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return "Bearer " + raw
}

func (s *testServer) do(t *testing.T, method, target, auth, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func (s *testServer) createTopic(t *testing.T, p identity.Principal, title string) Topic {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/topics", s.bearer(t, p), `{"title":"`+title+`","content":"body"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create topic status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decodeBody[topicResponse](t, rec).Topic
}

func TestHandler_CreateTopic_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/topics", "", `{"title":"x","content":"y"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status=%d want 401", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/topics", "Bearer not-a-jwt", `{"title":"x","content":"y"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("invalid token: status=%d want 403", rec.Code)
	}
}

func TestHandler_TopicLifecycle(t *testing.T) {
	s := newTestServer(t)

	created := s.createTopic(t, alice, "first")
	if created.Author == nil || created.Author.Username != "alice" {
		t.Fatalf("expected author in create response: %+v", created)
	}

	rec := s.do(t, http.MethodGet, "/api/topics/"+created.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d", rec.Code)
	}
	if got := decodeBody[Topic](t, rec); got.ID != created.ID {
		t.Fatalf("unexpected topic: %+v", got)
	}

	rec = s.do(t, http.MethodPut, "/api/topics/"+created.ID, s.bearer(t, bob), `{"title":"hijack"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner update status=%d want 403", rec.Code)
	}

	rec = s.do(t, http.MethodPut, "/api/topics/"+created.ID, s.bearer(t, alice), `{"title":"renamed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner update status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[topicResponse](t, rec); got.Topic.Title != "renamed" || got.Message == "" {
		t.Fatalf("unexpected update response: %+v", got)
	}

	rec = s.do(t, http.MethodDelete, "/api/topics/"+created.ID, s.bearer(t, bob), "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner delete status=%d want 403", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/topics/"+created.ID, s.bearer(t, alice), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete status=%d", rec.Code)
	}

	rec = s.do(t, http.MethodDelete, "/api/topics/"+created.ID, s.bearer(t, alice), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status=%d want 404", rec.Code)
	}
	if env := decodeBody[httpx.ErrorResponse](t, rec); env.Error.Code != "not_found" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestHandler_DeleteMissingTopicAsAdmin(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodDelete, "/api/topics/nonexistent", s.bearer(t, admin), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rec.Code)
	}
}

func TestHandler_ListTopics(t *testing.T) {
	s := newTestServer(t)

	for _, title := range []string{"a", "b", "c"} {
		s.createTopic(t, bob, title)
	}

	rec := s.do(t, http.MethodGet, "/api/topics?page=2&limit=2&sort=title", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	page := decodeBody[TopicPage](t, rec)
	if page.Total != 3 || page.Pages != 2 || page.Page != 2 || len(page.Topics) != 1 || page.Topics[0].Title != "c" {
		t.Fatalf("unexpected page: %+v", page)
	}

	rec = s.do(t, http.MethodGet, "/api/topics?page=abc&limit=-4", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("lenient paging status=%d", rec.Code)
	}
	if page := decodeBody[TopicPage](t, rec); page.Page != 1 || len(page.Topics) != 3 {
		t.Fatalf("expected defaults, got %+v", page)
	}

	rec = s.do(t, http.MethodGet, "/api/topics?page=922337203685477582&limit=10", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("huge page status=%d body=%s", rec.Code, rec.Body.String())
	}
	if page := decodeBody[TopicPage](t, rec); page.Total != 3 || len(page.Topics) != 0 {
		t.Fatalf("huge page must be empty, got %+v", page)
	}

	rec = s.do(t, http.MethodGet, "/api/topics?sort=password", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad sort status=%d want 400", rec.Code)
	}
}

func TestHandler_CreateTopic_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/topics", s.bearer(t, alice), `{"title":"","content":"y"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", rec.Code)
	}
	env := decodeBody[httpx.ErrorResponse](t, rec)
	if env.Error.Code != "validation_failed" || env.Error.Fields["title"] == "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	rec = s.do(t, http.MethodPost, "/api/topics", s.bearer(t, alice), `{"title":"x","content":"y","extra":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status=%d want 400", rec.Code)
	}
}

func TestHandler_Comments(t *testing.T) {
	s := newTestServer(t)
	tp := s.createTopic(t, alice, "thread")

	rec := s.do(t, http.MethodPost, "/api/comments", s.bearer(t, bob), `{"content":"hi","topic":"missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing topic status=%d want 404", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/comments", s.bearer(t, bob), `{"content":"hi","topic":"`+tp.ID+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create comment status=%d body=%s", rec.Code, rec.Body.String())
	}
	c := decodeBody[commentResponse](t, rec).Comment
	if c.TopicID != tp.ID || c.CreatedBy != bob.ID {
		t.Fatalf("unexpected comment: %+v", c)
	}

	rec = s.do(t, http.MethodGet, "/api/comments", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("list without topic status=%d want 400", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/comments?topic="+tp.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	if list := decodeBody[[]Comment](t, rec); len(list) != 1 || list[0].ID != c.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	rec = s.do(t, http.MethodDelete, "/api/comments/"+c.ID, s.bearer(t, alice), "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner comment delete status=%d want 403", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, "/api/comments/"+c.ID, s.bearer(t, admin), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin comment delete status=%d", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, "/api/comments/"+c.ID, s.bearer(t, admin), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status=%d want 404", rec.Code)
	}
}

func TestNewHandler_RequiresDependencies(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := NewHandler(nil, nil, nil, 0); err == nil {
		t.Fatalf("expected nil service error")
	}
	if _, err := NewHandler(nil, svc, nil, 0); err == nil {
		t.Fatalf("expected nil guard error")
	}
}
