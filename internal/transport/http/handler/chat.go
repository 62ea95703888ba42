package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"supportchat/internal/app"
	"supportchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type SessionItem struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.MsgMissingData)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Message) == "" {
		response.Error(c, http.StatusBadRequest, response.MsgMissingData)
		return
	}

	result, err := h.chatService.Chat(c.Request.Context(), app.ChatInput{
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrValidation):
			response.Error(c, http.StatusBadRequest, response.MsgMissingData)
		default:
			_ = c.Error(err)
			response.Error(c, http.StatusInternalServerError, response.MsgServerError)
		}
		return
	}

	response.JSON(c, http.StatusOK, ChatResponse{Reply: result.Reply})
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	turns, err := h.chatService.GetConversation(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.MsgServerError)
		return
	}
	response.JSON(c, http.StatusOK, turns)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.chatService.ListSessions(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.MsgServerError)
		return
	}

	items := make([]SessionItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, SessionItem{ID: s.ID, UpdatedAt: s.UpdatedAt})
	}
	response.JSON(c, http.StatusOK, items)
}
