// Package chatapi exposes the direct and group chat endpoints.
package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmcpheron/jcn-bot/internal/convlog"
	"github.com/jmcpheron/jcn-bot/internal/model/chat"
	"github.com/jmcpheron/jcn-bot/internal/service/turn"
	"github.com/jmcpheron/jcn-bot/pkg/utils"
)

// TurnRunner executes one conversational turn.
type TurnRunner interface {
	Run(ctx context.Context, req turn.Request) []chat.Reply
	EndSession(p chat.Principal)
}

// Gate decides whether the agent joins a group exchange.
type Gate interface {
	ShouldRespond(msg chat.Message) bool
	RecordMessage(msg chat.Message)
}

// LogReader serves the audit trail for a principal.
type LogReader interface {
	ReadHistory(principalID int64, limit int) ([]convlog.Entry, error)
}

// Handler serves the chat routes.
type Handler struct {
	runner TurnRunner
	gate   Gate
	logs   LogReader
}

// New creates the chat handler. gate and logs may be nil; the matching
// endpoints then degrade gracefully.
func New(runner TurnRunner, gate Gate, logs LogReader) *Handler {
	return &Handler{runner: runner, gate: gate, logs: logs}
}

// RegisterRoutes mounts the chat routes on the given router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/direct", h.handleDirect)
	r.Delete("/chat/direct/{userID}", h.handleEndSession)
	r.Get("/chat/direct/{userID}/log", h.handleReadLog)
	r.Post("/chat/group", h.handleGroup)
}

type directRequest struct {
	UserID   int64  `json:"userId"`
	UserName string `json:"userName"`
	Text     string `json:"text"`
}

type groupRequest struct {
	GroupID     int64  `json:"groupId"`
	GroupName   string `json:"groupName"`
	SenderID    int64  `json:"senderId"`
	SenderName  string `json:"senderName"`
	Text        string `json:"text"`
	ReplyToBot  bool   `json:"replyToBot"`
	MentionsBot bool   `json:"mentionsBot"`
}

type turnResponse struct {
	Replies []chat.Reply `json:"replies"`
}

func (h *Handler) handleDirect(w http.ResponseWriter, r *http.Request) {
	var payload directRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID == 0 {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	replies := h.runner.Run(r.Context(), turn.Request{
		Principal:  chat.Principal{ID: payload.UserID, Name: payload.UserName, Kind: chat.KindUser},
		SenderID:   payload.UserID,
		SenderName: payload.UserName,
		Text:       payload.Text,
	})
	if replies == nil {
		replies = []chat.Reply{}
	}

	utils.RespondJSON(w, http.StatusOK, turnResponse{Replies: replies})
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	h.runner.EndSession(chat.Principal{ID: userID, Kind: chat.KindUser})
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) handleReadLog(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "conversation logging disabled")
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	entries, err := h.logs.ReadHistory(userID, limit)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to read log")
		return
	}
	if entries == nil {
		entries = []convlog.Entry{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleGroup(w http.ResponseWriter, r *http.Request) {
	if h.gate == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "group chat disabled")
		return
	}

	var payload groupRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.GroupID == 0 {
		utils.RespondError(w, http.StatusBadRequest, "groupId is required")
		return
	}
	if payload.Text == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
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

	// Decide on the window as it stood before this message, then record it.
	respond := h.gate.ShouldRespond(msg)
	h.gate.RecordMessage(msg)

	if !respond {
		utils.RespondJSON(w, http.StatusOK, turnResponse{Replies: []chat.Reply{}})
		return
	}

	replies := h.runner.Run(r.Context(), turn.Request{
		Principal:  msg.Principal,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
	})
	if replies == nil {
		replies = []chat.Reply{}
	}

	utils.RespondJSON(w, http.StatusOK, turnResponse{Replies: replies})
}
