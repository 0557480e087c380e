package conversation_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/jmcpheron/jcn-bot/internal/model/chat"
	"github.com/jmcpheron/jcn-bot/internal/service/conversation"
)

var alice = chat.Principal{ID: 1, Name: "alice", Kind: chat.KindUser}

func TestHistoryEmptyByDefault(t *testing.T) {
	store := conversation.NewStore()
	if got := store.History(alice); len(got) != 0 {
		t.Fatalf("fresh store returned %d turns", len(got))
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	store := conversation.NewStore()

	store.Append(alice,
		chat.Turn{Role: chat.RoleAssistant, ToolName: "get_balance"},
		chat.Turn{Role: chat.RoleFunction, ToolName: "get_balance", Content: `{"success":true}`},
	)
	store.Append(alice, chat.Turn{Role: chat.RoleAssistant, Content: "done"})

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
}

func TestHistoryReturnsCopy(t *testing.T) {
	store := conversation.NewStore()
	store.Append(alice, chat.Turn{Role: chat.RoleAssistant, Content: "original"})

	history := store.History(alice)
	history[0].Content = "mutated"

	if got := store.History(alice)[0].Content; got != "original" {
		t.Fatalf("stored turn was mutated through the returned slice: %q", got)
	}
}

func TestClearDropsHistory(t *testing.T) {
	store := conversation.NewStore()
	store.Append(alice, chat.Turn{Role: chat.RoleAssistant, Content: "hello"})

	store.Clear(alice)
	if got := store.History(alice); len(got) != 0 {
		t.Fatalf("history after Clear has %d turns", len(got))
	}
}

func TestConcurrentAppendsAcrossPrincipals(t *testing.T) {
	store := conversation.NewStore()

	var wg sync.WaitGroup
	for id := int64(1); id <= 8; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			p := chat.Principal{ID: id, Kind: chat.KindUser}
			for i := 0; i < 50; i++ {
				store.Append(p, chat.Turn{Role: chat.RoleAssistant, Content: fmt.Sprintf("turn %d", i)})
			}
		}(id)
	}
	wg.Wait()

	for id := int64(1); id <= 8; id++ {
		p := chat.Principal{ID: id, Kind: chat.KindUser}
		if got := len(store.History(p)); got != 50 {
			t.Fatalf("principal %d history = %d turns, want 50", id, got)
		}
	}
}
