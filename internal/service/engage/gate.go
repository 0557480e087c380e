package engage

import (
	"strings"
	"sync"
	"time"

	"github.com/jmcpheron/jcn-bot/internal/analysis/relevance"
	"github.com/jmcpheron/jcn-bot/internal/model/chat"
)

// Config carries the gate's tunables. The defaults reproduce the thresholds
// the agent has always shipped with; they interact, so change them together
// or not at all.
type Config struct {
	// RelevanceThreshold is the bar a question must clear; unprompted
	// statements are held to 1.2x this value. Values above 1 make both
	// paths unreachable, which is the caller's responsibility.
	RelevanceThreshold float64
	// ContinuityThreshold is the similarity bar for treating a message as
	// part of an active conversation.
	ContinuityThreshold float64
	// Window bounds both message retention and how long a conversation
	// stays active after the bot's last reply.
	Window time.Duration
	// Capacity bounds how many recent messages are retained per group.
	Capacity int
	// ContinuityDepth is how many of the latest retained messages are
	// concatenated for the continuity comparison.
	ContinuityDepth int
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		RelevanceThreshold:  0.7,
		ContinuityThreshold: 0.6,
		Window:              5 * time.Minute,
		Capacity:            10,
		ContinuityDepth:     3,
	}
}

type recorded struct {
	senderID int64
	text     string
	seenAt   time.Time
}

// groupState tracks one group's recent activity. Each group carries its own
// lock so busy groups never serialize against each other.
type groupState struct {
	mu           sync.Mutex
	recent       []recorded
	lastResponse time.Time
}

// Gate decides whether an unaddressed group message deserves a reply. Direct
// replies to the bot bypass every other rule; questions and unprompted
// messages are scored against the static context vocabulary; everything else
// rides on conversational continuity.
type Gate struct {
	cfg    Config
	scorer *relevance.Scorer
	now    func() time.Time

	mu     sync.Mutex
	groups map[int64]*groupState
}

// NewGate builds a gate over the supplied scorer.
func NewGate(scorer *relevance.Scorer, cfg Config) *Gate {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.ContinuityDepth <= 0 {
		cfg.ContinuityDepth = DefaultConfig().ContinuityDepth
	}
	return &Gate{
		cfg:    cfg,
		scorer: scorer,
		now:    time.Now,
		groups: make(map[int64]*groupState),
	}
}

func (g *Gate) group(id int64) *groupState {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.groups[id]
	if !ok {
		state = &groupState{}
		g.groups[id] = state
	}
	return state
}

// ShouldRespond runs the decision procedure for one inbound group message.
// It does not record the message; callers pair it with RecordMessage.
func (g *Gate) ShouldRespond(msg chat.Message) bool {
	// Direct replies and explicit mentions always get an answer.
	if msg.ReplyToBot || msg.MentionsBot {
		return true
	}

	if relevance.IsQuestion(msg.Text) {
		return g.scorer.ContextRelevance(msg.Text) >= g.cfg.RelevanceThreshold
	}

	if g.isActiveConversation(msg.Principal.ID, msg.Text) {
		return true
	}

	// Unprompted, non-question messages are held to a stricter bar.
	return g.scorer.ContextRelevance(msg.Text) >= g.cfg.RelevanceThreshold*1.2
}

// RecordMessage appends the message to its group's activity window and prunes
// to the configured capacity and age on every call. Messages are not
// deduplicated.
func (g *Gate) RecordMessage(msg chat.Message) {
	state := g.group(msg.Principal.ID)
	now := g.now()

	state.mu.Lock()
	defer state.mu.Unlock()

	seenAt := msg.SentAt
	if seenAt.IsZero() {
		seenAt = now
	}
	state.recent = append(state.recent, recorded{
		senderID: msg.SenderID,
		text:     msg.Text,
		seenAt:   seenAt,
	})
	state.recent = prune(state.recent, now, g.cfg.Window, g.cfg.Capacity)
}

// RecordResponse marks the bot as having just replied in the group. The
// orchestrator must call this after every actual group reply; skipping it
// silently disables the active-conversation rule for that group.
func (g *Gate) RecordResponse(groupID int64) {
	state := g.group(groupID)
	state.mu.Lock()
	state.lastResponse = g.now()
	state.mu.Unlock()
}

// RecentCount reports how many messages a group currently retains.
func (g *Gate) RecentCount(groupID int64) int {
	state := g.group(groupID)
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(prune(state.recent, g.now(), g.cfg.Window, g.cfg.Capacity))
}

func (g *Gate) isActiveConversation(groupID int64, message string) bool {
	state := g.group(groupID)
	now := g.now()

	state.mu.Lock()
	lastResponse := state.lastResponse
	recent := prune(state.recent, now, g.cfg.Window, g.cfg.Capacity)
	state.recent = recent
	state.mu.Unlock()

	// No prior bot reply means no conversation to continue.
	if lastResponse.IsZero() {
		return false
	}
	if now.Sub(lastResponse) > g.cfg.Window {
		return false
	}

	depth := g.cfg.ContinuityDepth
	if depth > len(recent) {
		depth = len(recent)
	}
	if depth == 0 {
		return false
	}

	parts := make([]string, 0, depth)
	for _, entry := range recent[len(recent)-depth:] {
		parts = append(parts, entry.text)
	}
	similarity := g.scorer.ContinuityRelevance(strings.Join(parts, " "), message)
	return similarity >= g.cfg.ContinuityThreshold
}

// prune drops entries older than the window, then trims to capacity keeping
// the newest. Both bounds hold after every update.
func prune(entries []recorded, now time.Time, window time.Duration, capacity int) []recorded {
	kept := entries[:0]
	for _, entry := range entries {
		if now.Sub(entry.seenAt) < window {
			kept = append(kept, entry)
		}
	}
	if len(kept) > capacity {
		kept = kept[len(kept)-capacity:]
	}
	return kept
}
