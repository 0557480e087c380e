// Package convlog appends one JSONL audit entry per message or function call,
// partitioned by principal. Appends are best-effort: a failed write is logged
// and swallowed so observability never fails a turn.
package convlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmcpheron/jcn-bot/internal/service/function"
)

// Entry is one logged event.
type Entry struct {
	ID          string           `json:"id"`
	Timestamp   time.Time        `json:"timestamp"`
	PrincipalID int64            `json:"principalId"`
	SenderName  string           `json:"senderName"`
	Type        string           `json:"type"` // role for messages, "function_call" for dispatches
	Content     string           `json:"content,omitempty"`
	Function    string           `json:"function,omitempty"`
	Arguments   map[string]any   `json:"arguments,omitempty"`
	Result      *function.Result `json:"result,omitempty"`
}

// Logger writes per-principal JSONL files under a single directory.
type Logger struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

// NewLogger creates the log directory if needed.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	return &Logger{dir: dir, now: time.Now}, nil
}

func (l *Logger) path(principalID int64) string {
	return filepath.Join(l.dir, fmt.Sprintf("conversation_%d.jsonl", principalID))
}

// AppendMessage records one chat message.
func (l *Logger) AppendMessage(principalID int64, senderName, role, content string) {
	l.append(Entry{
		PrincipalID: principalID,
		SenderName:  senderName,
		Type:        role,
		Content:     content,
	})
}

// AppendFunctionCall records one function dispatch with its arguments and
// uniform result.
func (l *Logger) AppendFunctionCall(principalID int64, senderName, name string, args map[string]any, result function.Result) {
	l.append(Entry{
		PrincipalID: principalID,
		SenderName:  senderName,
		Type:        "function_call",
		Function:    name,
		Arguments:   args,
		Result:      &result,
	})
}

func (l *Logger) append(entry Entry) {
	entry.ID = uuid.NewString()
	entry.Timestamp = l.now()

	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[convlog] marshal entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path(entry.PrincipalID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[convlog] open %s: %v", l.path(entry.PrincipalID), err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Printf("[convlog] append %s: %v", l.path(entry.PrincipalID), err)
	}
}

// ReadHistory returns the principal's logged entries in append order. A limit
// above zero keeps only the most recent entries. A principal with no log
// yields an empty slice.
func (l *Logger) ReadHistory(principalID int64, limit int) ([]Entry, error) {
	f, err := os.Open(l.path(principalID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log for principal %d: %w", principalID, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// A torn final line from a crashed append is skipped, not fatal.
			log.Printf("[convlog] skip malformed entry for principal %d: %v", principalID, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log for principal %d: %w", principalID, err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
