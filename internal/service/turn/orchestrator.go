// Package turn drives a single conversational turn: context assembly, model
// invocation, optional function dispatch, then history and reply emission.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/jmcpheron/jcn-bot/internal/model/chat"
	"github.com/jmcpheron/jcn-bot/internal/service/conversation"
	"github.com/jmcpheron/jcn-bot/internal/service/function"
)

// apologyText is the single user-visible message for any internal turn
// failure. Nothing more specific leaks to the chat.
const apologyText = "Sorry, I encountered an error while processing your message."

// malformedArgsText is sent when the model's function arguments do not parse;
// the function is never dispatched in that case.
const malformedArgsText = "Sorry, I couldn't make sense of that request. Please try again."

// groupDirective replaces role history for group turns, which are stateless
// across calls.
const groupDirective = "You are in a group chat. Keep responses concise and natural."

// ModelClient is the single suspension point of a turn.
type ModelClient interface {
	Complete(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

// Logger receives best-effort audit events; implementations must never fail
// the turn.
type Logger interface {
	AppendMessage(principalID int64, senderName, role, content string)
	AppendFunctionCall(principalID int64, senderName, name string, args map[string]any, result function.Result)
}

// ResponseRecorder is notified after every actual group reply so the
// engagement gate can track conversational activity.
type ResponseRecorder interface {
	RecordResponse(groupID int64)
}

// Request describes one inbound message to run a turn for.
type Request struct {
	Principal  chat.Principal
	SenderID   int64
	SenderName string
	Text       string
}

// Orchestrator executes turns. Private principals get role history from the
// store; group principals get the etiquette directive and never persist
// turns.
type Orchestrator struct {
	model    ModelClient
	store    *conversation.Store
	registry *function.Registry
	contexts *ContextSet
	logger   Logger
	recorder ResponseRecorder
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithLogger attaches the conversation audit logger.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithResponseRecorder attaches the engagement gate's response recorder.
func WithResponseRecorder(recorder ResponseRecorder) Option {
	return func(o *Orchestrator) { o.recorder = recorder }
}

// NewOrchestrator wires the turn driver.
func NewOrchestrator(model ModelClient, store *conversation.Store, registry *function.Registry, contexts *ContextSet, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:    model,
		store:    store,
		registry: registry,
		contexts: contexts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// EndSession drops the principal's conversation history.
func (o *Orchestrator) EndSession(p chat.Principal) {
	o.store.Clear(p)
}

// Run executes one turn and returns its user-visible replies. Errors never
// escape to the transport layer: every failure collapses into a single
// generic reply, and the store is only written after the model call and any
// dispatch have fully completed.
func (o *Orchestrator) Run(ctx context.Context, req Request) []chat.Reply {
	isGroup := req.Principal.IsGroup()
	o.logMessage(req, "user", req.Text)

	response, err := o.model.Complete(ctx, o.buildMessages(req, isGroup))
	if err != nil {
		log.Printf("[turn] principal=%d model invocation: %v", req.Principal.ID, err)
		return []chat.Reply{{Text: apologyText}}
	}

	var replies []chat.Reply
	var turns []chat.Turn

	// At most one function call is honored per turn.
	if len(response.ToolCalls) > 0 {
		call := response.ToolCalls[0]
		args, err := parseArguments(call.Function.Arguments)
		if err != nil {
			log.Printf("[turn] principal=%d function %s: malformed arguments: %v",
				req.Principal.ID, call.Function.Name, err)
			return []chat.Reply{{Text: malformedArgsText}}
		}

		result, err := o.registry.Invoke(ctx, call.Function.Name, args)
		if err != nil {
			log.Printf("[turn] principal=%d function %s: %v", req.Principal.ID, call.Function.Name, err)
			replies = append(replies, chat.Reply{
				Text: fmt.Sprintf("Function call result:\n%v\n\nFailed", err),
			})
		} else {
			label := "Success"
			if !result.Success {
				label = "Failed"
			}
			replies = append(replies, chat.Reply{
				Text: fmt.Sprintf("Function call result:\n%s\n\n%s", result.Message, label),
			})
			if o.logger != nil {
				o.logger.AppendFunctionCall(req.Principal.ID, req.SenderName, call.Function.Name, args, result)
			}
			if !isGroup {
				payload, marshalErr := json.Marshal(result)
				if marshalErr != nil {
					payload = []byte(`{}`)
				}
				turns = append(turns,
					chat.Turn{
						Role:       chat.RoleAssistant,
						ToolCallID: call.ID,
						ToolName:   call.Function.Name,
						ToolArgs:   call.Function.Arguments,
					},
					chat.Turn{
						Role:       chat.RoleFunction,
						ToolCallID: call.ID,
						ToolName:   call.Function.Name,
						Content:    string(payload),
					},
				)
			}
		}
	}

	// Natural-language content may accompany a function call or stand alone.
	if response.Content != "" {
		replies = append(replies, chat.Reply{Text: response.Content})
		o.logMessage(req, "assistant", response.Content)
		if !isGroup {
			turns = append(turns, chat.Turn{Role: chat.RoleAssistant, Content: response.Content})
		}
	}

	// Single atomic append: partial turns are never visible.
	if len(turns) > 0 {
		o.store.Append(req.Principal, turns...)
	}
	if isGroup && len(replies) > 0 && o.recorder != nil {
		o.recorder.RecordResponse(req.Principal.ID)
	}
	return replies
}

func (o *Orchestrator) buildMessages(req Request, isGroup bool) []*schema.Message {
	var messages []*schema.Message
	if prompt := o.contexts.SystemPrompt(); prompt != "" {
		messages = append(messages, schema.SystemMessage(prompt))
	}

	if isGroup {
		messages = append(messages, schema.SystemMessage(groupDirective))
	} else {
		for _, t := range o.store.History(req.Principal) {
			messages = append(messages, turnToMessage(t))
		}
	}

	return append(messages, schema.UserMessage(req.Text))
}

func (o *Orchestrator) logMessage(req Request, role, content string) {
	if o.logger == nil {
		return
	}
	o.logger.AppendMessage(req.Principal.ID, req.SenderName, role, content)
}

func turnToMessage(t chat.Turn) *schema.Message {
	switch t.Role {
	case chat.RoleSystem:
		return schema.SystemMessage(t.Content)
	case chat.RoleAssistant:
		if t.ToolName != "" {
			return schema.AssistantMessage(t.Content, []schema.ToolCall{{
				ID:   t.ToolCallID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      t.ToolName,
					Arguments: t.ToolArgs,
				},
			}})
		}
		return schema.AssistantMessage(t.Content, nil)
	case chat.RoleFunction:
		return schema.ToolMessage(t.Content, t.ToolCallID)
	default:
		return schema.UserMessage(t.Content)
	}
}

func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
