package turn_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/jmcpheron/jcn-bot/internal/model/chat"
	"github.com/jmcpheron/jcn-bot/internal/service/conversation"
	"github.com/jmcpheron/jcn-bot/internal/service/function"
	"github.com/jmcpheron/jcn-bot/internal/service/turn"
)

var (
	alice   = chat.Principal{ID: 1, Name: "alice", Kind: chat.KindUser}
	devChat = chat.Principal{ID: 42, Name: "dev-chat", Kind: chat.KindGroup}
)

type fakeModel struct {
	response *schema.Message
	err      error
	received []*schema.Message
}

func (f *fakeModel) Complete(_ context.Context, messages []*schema.Message) (*schema.Message, error) {
	f.received = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

type fakeRecorder struct {
	groupIDs []int64
}

func (f *fakeRecorder) RecordResponse(groupID int64) {
	f.groupIDs = append(f.groupIDs, groupID)
}

func balanceRegistry(t *testing.T) *function.Registry {
	t.Helper()
	registry, err := function.NewRegistry(function.Registration{
		Name:        "get_balance",
		Description: "returns the wallet balance",
		Call: func(context.Context, map[string]any) function.Result {
			return function.Result{Success: true, Message: "12.50 USDC"}
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry err: %v", err)
	}
	return registry
}

func newOrchestrator(t *testing.T, model turn.ModelClient, store *conversation.Store, opts ...turn.Option) *turn.Orchestrator {
	t.Helper()
	contexts := &turn.ContextSet{
		Persona: turn.StaticSource("You are JCN, a helpful assistant."),
		General: turn.StaticSource("I help with weather and crypto payments."),
	}
	return turn.NewOrchestrator(model, store, balanceRegistry(t), contexts, opts...)
}

func toolCallResponse(name, args, content string) *schema.Message {
	return schema.AssistantMessage(content, []schema.ToolCall{{
		ID:       "call-1",
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func TestPlainReplyPrivateAppendsAssistantTurn(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: schema.AssistantMessage("hello back", nil)}
	orch := newOrchestrator(t, model, store)

	replies := orch.Run(context.Background(), turn.Request{Principal: alice, SenderName: "alice", Text: "hi"})

	if len(replies) != 1 || replies[0].Text != "hello back" {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	history := store.History(alice)
	if len(history) != 1 || history[0].Role != chat.RoleAssistant || history[0].Content != "hello back" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestFunctionCallReplyAndHistory(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: toolCallResponse("get_balance", "{}", "")}
	orch := newOrchestrator(t, model, store)

	replies := orch.Run(context.Background(), turn.Request{Principal: alice, SenderName: "alice", Text: "balance?"})

	if len(replies) != 1 {
		t.Fatalf("got %d replies, want 1", len(replies))
	}
	if !strings.Contains(replies[0].Text, "12.50 USDC") || !strings.Contains(replies[0].Text, "Success") {
		t.Fatalf("reply missing result or label: %q", replies[0].Text)
	}

	history := store.History(alice)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != chat.RoleAssistant || history[0].ToolName != "get_balance" {
		t.Fatalf("unexpected intent turn: %+v", history[0])
	}
	if history[1].Role != chat.RoleFunction || !strings.Contains(history[1].Content, "12.50 USDC") {
		t.Fatalf("unexpected result turn: %+v", history[1])
	}
}

func TestFunctionCallWithTrailingTextAppendsThreeTurns(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: toolCallResponse("get_balance", "{}", "That's your balance!")}
	orch := newOrchestrator(t, model, store)

	replies := orch.Run(context.Background(), turn.Request{Principal: alice, SenderName: "alice", Text: "balance?"})

	if len(replies) != 2 {
		t.Fatalf("got %d replies, want function report + text", len(replies))
	}
	history := store.History(alice)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	wantRoles := []chat.Role{chat.RoleAssistant, chat.RoleFunction, chat.RoleAssistant}
	for i, role := range wantRoles {
		if history[i].Role != role {
			t.Fatalf("turn %d role = %s, want %s", i, history[i].Role, role)
		}
	}
	if history[2].Content != "That's your balance!" {
		t.Fatalf("trailing text turn = %+v", history[2])
	}
}

func TestGroupTurnPersistsNothing(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: toolCallResponse("get_balance", "{}", "That's your balance!")}
	recorder := &fakeRecorder{}
	orch := newOrchestrator(t, model, store, turn.WithResponseRecorder(recorder))

	replies := orch.Run(context.Background(), turn.Request{Principal: devChat, SenderName: "bob", Text: "balance?"})

	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	if got := store.History(devChat); len(got) != 0 {
		t.Fatalf("group turn persisted %d turns", len(got))
	}
	if len(recorder.groupIDs) != 1 || recorder.groupIDs[0] != devChat.ID {
		t.Fatalf("RecordResponse calls = %v, want one for group %d", recorder.groupIDs, devChat.ID)
	}
}

func TestGroupTurnUsesEtiquetteDirective(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: schema.AssistantMessage("ok", nil)}
	orch := newOrchestrator(t, model, store)

	orch.Run(context.Background(), turn.Request{Principal: devChat, SenderName: "bob", Text: "hi"})

	foundDirective := false
	for _, msg := range model.received {
		if msg.Role == schema.System && strings.Contains(msg.Content, "group chat") {
			foundDirective = true
		}
	}
	if !foundDirective {
		t.Fatal("group turn missing etiquette directive")
	}
}

func TestPrivateTurnSendsHistoryToModel(t *testing.T) {
	store := conversation.NewStore()
	store.Append(alice, chat.Turn{Role: chat.RoleAssistant, Content: "earlier reply"})
	model := &fakeModel{response: schema.AssistantMessage("ok", nil)}
	orch := newOrchestrator(t, model, store)

	orch.Run(context.Background(), turn.Request{Principal: alice, SenderName: "alice", Text: "hi"})

	foundHistory := false
	for _, msg := range model.received {
		if msg.Role == schema.Assistant && msg.Content == "earlier reply" {
			foundHistory = true
		}
	}
	if !foundHistory {
		t.Fatal("prior turn not sent to the model")
	}
	last := model.received[len(model.received)-1]
	if last.Role != schema.User || last.Content != "hi" {
		t.Fatalf("last message = %+v, want current user message", last)
	}
}

func TestModelErrorYieldsApologyAndNoWrites(t *testing.T) {
	store := conversation.NewStore()
	store.Append(alice, chat.Turn{Role: chat.RoleAssistant, Content: "before"})
	model := &fakeModel{err: errors.New("transport down")}
	orch := newOrchestrator(t, model, store)

	replies := orch.Run(context.Background(), turn.Request{Principal: alice, SenderName: "alice", Text: "hi"})

	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Sorry") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	history := store.History(alice)
	if len(history) != 1 || history[0].Content != "before" {
		t.Fatalf("store changed after failed turn: %+v", history)
	}
}

func TestMalformedArgumentsSkipDispatch(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: toolCallResponse("get_balance", "{not json", "trailing text")}
	orch := newOrchestrator(t, model, store)

	replies := orch.Run(context.Background(), turn.Request{Principal: alice, SenderName: "alice", Text: "balance?"})

	// Turn terminates on the parse failure; the trailing text is dropped.
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Sorry") {
		t.Fatalf("unexpected replies: %+v", replies)
	}
	if got := store.History(alice); len(got) != 0 {
		t.Fatalf("store changed after aborted dispatch: %+v", got)
	}
}

func TestUnknownFunctionReportsFailure(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: toolCallResponse("not_registered", "{}", "and some text")}
	orch := newOrchestrator(t, model, store)

	replies := orch.Run(context.Background(), turn.Request{Principal: alice, SenderName: "alice", Text: "go"})

	if len(replies) != 2 {
		t.Fatalf("got %d replies, want failure report + text", len(replies))
	}
	if !strings.Contains(replies[0].Text, "Failed") {
		t.Fatalf("failure reply missing label: %q", replies[0].Text)
	}
	// The failed dispatch leaves no function exchange in history.
	history := store.History(alice)
	if len(history) != 1 || history[0].Content != "and some text" {
		t.Fatalf("unexpected history after unknown function: %+v", history)
	}
}

func TestEmptyModelResponseIsValidNoOp(t *testing.T) {
	store := conversation.NewStore()
	model := &fakeModel{response: schema.AssistantMessage("", nil)}
	recorder := &fakeRecorder{}
	orch := newOrchestrator(t, model, store, turn.WithResponseRecorder(recorder))

	replies := orch.Run(context.Background(), turn.Request{Principal: devChat, SenderName: "bob", Text: "hi"})

	if len(replies) != 0 {
		t.Fatalf("empty model output produced %d replies", len(replies))
	}
	if len(recorder.groupIDs) != 0 {
		t.Fatal("RecordResponse called without an actual reply")
	}
}

func TestEndSessionClearsHistory(t *testing.T) {
	store := conversation.NewStore()
	store.Append(alice, chat.Turn{Role: chat.RoleAssistant, Content: "before"})
	orch := newOrchestrator(t, &fakeModel{response: schema.AssistantMessage("ok", nil)}, store)

	orch.EndSession(alice)
	if got := store.History(alice); len(got) != 0 {
		t.Fatalf("history survived EndSession: %+v", got)
	}
}
