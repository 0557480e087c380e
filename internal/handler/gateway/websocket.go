// Package gateway bridges chat platform connectors to the agent over a
// WebSocket connection, so a connector can push messages and receive replies
// without polling.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/jmcpheron/jcn-bot/internal/model/chat"
	"github.com/jmcpheron/jcn-bot/internal/service/turn"
)

// TurnRunner executes one conversational turn.
type TurnRunner interface {
	Run(ctx context.Context, req turn.Request) []chat.Reply
}

// Gate decides whether the agent joins a group exchange.
type Gate interface {
	ShouldRespond(msg chat.Message) bool
	RecordMessage(msg chat.Message)
}

// Handler upgrades connector sockets and relays turns.
type Handler struct {
	runner   TurnRunner
	gate     Gate
	upgrader websocket.Upgrader
}

// New creates the gateway handler. gate may be nil, which rejects group
// frames.
func New(runner TurnRunner, gate Gate) *Handler {
	return &Handler{
		runner: runner,
		gate:   gate,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the gateway socket.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleSocket)
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type directFrame struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

type groupFrame struct {
	GroupID     int64  `json:"groupId"`
	GroupName   string `json:"groupName"`
	SenderID    int64  `json:"senderId"`
	SenderName  string `json:"senderName"`
	Text        string `json:"text"`
	ReplyToBot  bool   `json:"replyToBot"`
	MentionsBot bool   `json:"mentionsBot"`
}

type outgoingFrame struct {
	Type      string       `json:"type"`
	Principal int64        `json:"principal,omitempty"`
	Replies   []chat.Reply `json:"replies,omitempty"`
	Error     string       `json:"error,omitempty"`
	Timestamp int64        `json:"timestamp"`
}

func (h *Handler) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[gateway] connector attached from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, conn)

	send(conn, outgoingFrame{Type: "connected", Timestamp: time.Now().UnixMilli()})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var frame inboundFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[gateway] read error: %v", err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			h.handleFrame(ctx, conn, &frame)
		}
	}
}

func (h *Handler) handleFrame(ctx context.Context, conn *websocket.Conn, frame *inboundFrame) {
	switch frame.Type {
	case "direct":
		h.handleDirect(ctx, conn, frame.Data)
	case "group":
		h.handleGroup(ctx, conn, frame.Data)
	default:
		sendError(conn, "unsupported frame type: "+frame.Type)
	}
}

func (h *Handler) handleDirect(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) {
	var payload directFrame
	if err := json.Unmarshal(raw, &payload); err != nil {
		sendError(conn, "invalid direct payload")
		return
	}
	if payload.UserID == 0 || payload.Text == "" {
		sendError(conn, "userId and text are required")
		return
	}

	replies := h.runner.Run(ctx, turn.Request{
		Principal:  chat.Principal{ID: payload.UserID, Name: payload.UserName, Kind: chat.KindUser},
		SenderID:   payload.UserID,
		SenderName: payload.UserName,
		Text:       payload.Text,
	})

	send(conn, outgoingFrame{
		Type:      "replies",
		Principal: payload.UserID,
		Replies:   replies,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Handler) handleGroup(ctx context.Context, conn *websocket.Conn, raw json.RawMessage) {
	if h.gate == nil {
		sendError(conn, "group chat disabled")
		return
	}

	var payload groupFrame
	if err := json.Unmarshal(raw, &payload); err != nil {
		sendError(conn, "invalid group payload")
		return
	}
	if payload.GroupID == 0 || payload.Text == "" {
		sendError(conn, "groupId and text are required")
		return
	}

	msg := chat.Message{
		Principal:   chat.Principal{ID: payload.GroupID, Name: payload.GroupName, Kind: chat.KindGroup},
		SenderID:    payload.SenderID,
		SenderName:  payload.SenderName,
		Text:        payload.Text,
		ReplyToBot:  payload.ReplyToBot,
		MentionsBot: payload.MentionsBot,
		SentAt:      time.Now(),
	}

	respond := h.gate.ShouldRespond(msg)
	h.gate.RecordMessage(msg)

	var replies []chat.Reply
	if respond {
		replies = h.runner.Run(ctx, turn.Request{
			Principal:  msg.Principal,
			SenderID:   msg.SenderID,
			SenderName: msg.SenderName,
			Text:       msg.Text,
		})
	}

	send(conn, outgoingFrame{
		Type:      "replies",
		Principal: payload.GroupID,
		Replies:   replies,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func send(conn *websocket.Conn, frame outgoingFrame) {
	if err := conn.WriteJSON(frame); err != nil {
		log.Printf("[gateway] write failed: %v", err)
	}
}

func sendError(conn *websocket.Conn, message string) {
	send(conn, outgoingFrame{Type: "error", Error: message, Timestamp: time.Now().UnixMilli()})
}
