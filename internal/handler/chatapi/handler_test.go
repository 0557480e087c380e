package chatapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/jmcpheron/jcn-bot/internal/convlog"
	"github.com/jmcpheron/jcn-bot/internal/handler/chatapi"
	"github.com/jmcpheron/jcn-bot/internal/model/chat"
	"github.com/jmcpheron/jcn-bot/internal/service/turn"
)

type stubRunner struct {
	replies  []chat.Reply
	requests []turn.Request
	cleared  []chat.Principal
}

func (s *stubRunner) Run(_ context.Context, req turn.Request) []chat.Reply {
	s.requests = append(s.requests, req)
	return s.replies
}

func (s *stubRunner) EndSession(p chat.Principal) {
	s.cleared = append(s.cleared, p)
}

type stubGate struct {
	respond  bool
	decided  []chat.Message
	recorded []chat.Message
}

func (s *stubGate) ShouldRespond(msg chat.Message) bool {
	s.decided = append(s.decided, msg)
	return s.respond
}

func (s *stubGate) RecordMessage(msg chat.Message) {
	s.recorded = append(s.recorded, msg)
}

type stubLogReader struct {
	entries []convlog.Entry
	err     error
	gotID   int64
	gotLim  int
}

func (s *stubLogReader) ReadHistory(principalID int64, limit int) ([]convlog.Entry, error) {
	s.gotID = principalID
	s.gotLim = limit
	return s.entries, s.err
}

func newRouter(h *chatapi.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(api chi.Router) {
		h.RegisterRoutes(api)
	})
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeReplies(t *testing.T, rec *httptest.ResponseRecorder) []chat.Reply {
	t.Helper()
	var payload struct {
		Replies []chat.Reply `json:"replies"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload.Replies
}

func TestDirectChatRunsTurn(t *testing.T) {
	runner := &stubRunner{replies: []chat.Reply{{Text: "hello"}}}
	router := newRouter(chatapi.New(runner, nil, nil))

	rec := doJSON(t, router, http.MethodPost, "/api/chat/direct",
		`{"userId": 7, "userName": "alice", "text": "hi"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	replies := decodeReplies(t, rec)
	if len(replies) != 1 || replies[0].Text != "hello" {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	if len(runner.requests) != 1 {
		t.Fatalf("runner called %d times", len(runner.requests))
	}
	req := runner.requests[0]
	if req.Principal.ID != 7 || req.Principal.Kind != chat.KindUser || req.Text != "hi" {
		t.Fatalf("unexpected turn request: %+v", req)
	}
}

func TestDirectChatValidation(t *testing.T) {
	runner := &stubRunner{}
	router := newRouter(chatapi.New(runner, nil, nil))

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing user", `{"text": "hi"}`},
		{"missing text", `{"userId": 7}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/chat/direct", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
	if len(runner.requests) != 0 {
		t.Fatalf("runner called on invalid input")
	}
}

func TestEndSessionClearsPrincipal(t *testing.T) {
	runner := &stubRunner{}
	router := newRouter(chatapi.New(runner, nil, nil))

	rec := doJSON(t, router, http.MethodDelete, "/api/chat/direct/7", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(runner.cleared) != 1 || runner.cleared[0].ID != 7 || runner.cleared[0].Kind != chat.KindUser {
		t.Fatalf("unexpected cleared principals: %+v", runner.cleared)
	}
}

func TestReadLogPassesLimit(t *testing.T) {
	logs := &stubLogReader{entries: []convlog.Entry{{Type: "message", Content: "hi"}}}
	router := newRouter(chatapi.New(&stubRunner{}, nil, logs))

	rec := doJSON(t, router, http.MethodGet, "/api/chat/direct/7/log?limit=5", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if logs.gotID != 7 || logs.gotLim != 5 {
		t.Fatalf("log read with id=%d limit=%d", logs.gotID, logs.gotLim)
	}
}

func TestReadLogWithoutLoggerUnavailable(t *testing.T) {
	router := newRouter(chatapi.New(&stubRunner{}, nil, nil))

	rec := doJSON(t, router, http.MethodGet, "/api/chat/direct/7/log", "")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestReadLogFailure(t *testing.T) {
	logs := &stubLogReader{err: errors.New("disk gone")}
	router := newRouter(chatapi.New(&stubRunner{}, nil, logs))

	rec := doJSON(t, router, http.MethodGet, "/api/chat/direct/7/log", "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestGroupChatRespondPath(t *testing.T) {
	runner := &stubRunner{replies: []chat.Reply{{Text: "sure"}}}
	gate := &stubGate{respond: true}
	router := newRouter(chatapi.New(runner, gate, nil))

	rec := doJSON(t, router, http.MethodPost, "/api/chat/group",
		`{"groupId": 42, "groupName": "dev", "senderId": 7, "senderName": "bob", "text": "weather?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	replies := decodeReplies(t, rec)
	if len(replies) != 1 || replies[0].Text != "sure" {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	req := runner.requests[0]
	if req.Principal.ID != 42 || req.Principal.Kind != chat.KindGroup || req.SenderName != "bob" {
		t.Fatalf("unexpected turn request: %+v", req)
	}
	// The message is always recorded, and the decision is made before the
	// record so the current message is not in its own activity window.
	if len(gate.decided) != 1 || len(gate.recorded) != 1 {
		t.Fatalf("gate calls: decided=%d recorded=%d", len(gate.decided), len(gate.recorded))
	}
}

func TestGroupChatStaysQuiet(t *testing.T) {
	runner := &stubRunner{replies: []chat.Reply{{Text: "should not appear"}}}
	gate := &stubGate{respond: false}
	router := newRouter(chatapi.New(runner, gate, nil))

	rec := doJSON(t, router, http.MethodPost, "/api/chat/group",
		`{"groupId": 42, "senderId": 7, "senderName": "bob", "text": "random chatter"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if replies := decodeReplies(t, rec); len(replies) != 0 {
		t.Fatalf("quiet turn returned replies: %+v", replies)
	}
	if len(runner.requests) != 0 {
		t.Fatal("runner invoked despite negative gate decision")
	}
	if len(gate.recorded) != 1 {
		t.Fatal("ignored message not recorded for the activity window")
	}
}

func TestGroupChatForwardsAddressingFlags(t *testing.T) {
	gate := &stubGate{respond: true}
	router := newRouter(chatapi.New(&stubRunner{}, gate, nil))

	doJSON(t, router, http.MethodPost, "/api/chat/group",
		`{"groupId": 42, "senderId": 7, "senderName": "bob", "text": "hey", "replyToBot": true, "mentionsBot": true}`)

	msg := gate.decided[0]
	if !msg.ReplyToBot || !msg.MentionsBot {
		t.Fatalf("addressing flags dropped: %+v", msg)
	}
}

func TestGroupChatWithoutGateUnavailable(t *testing.T) {
	router := newRouter(chatapi.New(&stubRunner{}, nil, nil))

	rec := doJSON(t, router, http.MethodPost, "/api/chat/group",
		`{"groupId": 42, "text": "hi"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
