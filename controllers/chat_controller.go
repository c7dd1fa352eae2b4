package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatserver/models"
	"chatserver/services"
)

// ChatService is what the handlers need from the orchestrator.
type ChatService interface {
	Send(ctx context.Context, conversationID *int64, message string) (*models.Exchange, error)
	View(ctx context.Context, conversationID *int64) (*models.ConversationView, error)
}

type ChatController struct {
	chat ChatService
	log  zerolog.Logger
}

func NewChatController(chat ChatService, log zerolog.Logger) *ChatController {
	return &ChatController{
		chat: chat,
		log:  log.With().Str("component", "chat-controller").Logger(),
	}
}

type sendRequest struct {
	ConversationID *int64 `json:"conversation_id" form:"conversation_id"`
	Message        string `json:"message" form:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetBlankConversation lists conversations with nothing selected.
func (h *ChatController) GetBlankConversation(c *gin.Context) {
	h.renderView(c, nil)
}

// GetConversation shows one conversation. Unknown ids render an empty view.
func (h *ChatController) GetConversation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	h.renderView(c, &id)
}

// SendMessage runs one orchestration step. The path id, when present, wins
// over conversation_id in the body.
func (h *ChatController) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBind(&req); err != nil {
		h.log.Debug().Err(err).Msg("bind send request")
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if c.Param("id") != "" {
		id, ok := pathID(c)
		if !ok {
			return
		}
		req.ConversationID = &id
	}

	exchange, err := h.chat.Send(c.Request.Context(), req.ConversationID, req.Message)
	var completionErr *services.CompletionError
	switch {
	case err == nil:
		h.renderView(c, &exchange.Conversation.ID)
	case errors.Is(err, services.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "message must not be empty"})
	case errors.As(err, &completionErr) && exchange != nil:
		h.log.Error().Err(err).Int64("conversation_id", exchange.Conversation.ID).Msg("completion failed")
		view, viewErr := h.chat.View(c.Request.Context(), &exchange.Conversation.ID)
		if viewErr != nil {
			h.log.Error().Err(viewErr).Msg("load view after failed completion")
			c.JSON(http.StatusBadGateway, errorResponse{Error: "failed to get a reply"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "failed to get a reply",
			"view":  view,
		})
	default:
		h.log.Error().Err(err).Msg("send message")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to send message"})
	}
}

func (h *ChatController) renderView(c *gin.Context, id *int64) {
	view, err := h.chat.View(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Msg("load conversation view")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid conversation id"})
		return 0, false
	}
	return id, true
}
