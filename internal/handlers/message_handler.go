package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/amiko-app/backend/internal/models"
	"github.com/amiko-app/backend/internal/repositories"
	"github.com/amiko-app/backend/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ConversationResolver is the directory slice the messaging endpoints need.
type ConversationResolver interface {
	FindOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error)
	GetParticipants(ctx context.Context, conversationID string) ([]string, error)
}

// SendGate decides whether a message may be delivered.
type SendGate interface {
	CanSend(ctx context.Context, senderID, conversationID string) (services.Decision, error)
}

// MessageHandler handles conversation and message HTTP requests
type MessageHandler struct {
	conversations     ConversationResolver
	gate              SendGate
	messageRepository repositories.MessageRepository
	logger            *zap.Logger
}

// NewMessageHandler creates a new MessageHandler
func NewMessageHandler(conversations ConversationResolver, gate SendGate, messageRepo repositories.MessageRepository, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		conversations:     conversations,
		gate:              gate,
		messageRepository: messageRepo,
		logger:            logger,
	}
}

// RegisterMessageRoutes registers conversation and message routes
func (h *MessageHandler) RegisterMessageRoutes(g *echo.Group) {
	g.POST("/conversations", h.OpenConversation)
	g.POST("/conversations/:id/messages", h.SendMessage)
	g.GET("/conversations/:id/messages", h.GetMessages)
}

// OpenConversation finds or creates the two-party conversation between the
// caller and a peer
func (h *MessageHandler) OpenConversation(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conv, err := h.conversations.FindOrCreate(c.Request().Context(), actorID, req.PeerID)
	if err != nil {
		return relationshipHTTPError(err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// SendMessage delivers a message into a conversation, subject to the gate
func (h *MessageHandler) SendMessage(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	conversationID := c.Param("id")

	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.requireParticipant(c, actorID, conversationID); err != nil {
		return err
	}

	decision, err := h.gate.CanSend(c.Request().Context(), actorID, conversationID)
	if err != nil {
		return relationshipHTTPError(err)
	}
	if !decision.Allowed {
		return echo.NewHTTPError(http.StatusForbidden, decision.Reason)
	}

	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid conversation ID")
	}

	msg := &models.Message{
		ConversationID: convID,
		SenderID:       actorID,
		Content:        req.Content,
	}
	if err := h.messageRepository.Insert(c.Request().Context(), msg); err != nil {
		h.logger.Error("failed to store message", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store message")
	}
	return c.JSON(http.StatusCreated, msg)
}

// GetMessages returns the messages of a conversation with pagination
func (h *MessageHandler) GetMessages(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	conversationID := c.Param("id")

	if err := h.requireParticipant(c, actorID, conversationID); err != nil {
		return err
	}

	skip, _ := strconv.ParseInt(c.QueryParam("skip"), 10, 64)
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if limit < 1 || limit > 100 {
		limit = 50
	}

	msgs, err := h.messageRepository.ListByConversation(c.Request().Context(), conversationID, skip, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"messages": msgs})
}

// requireParticipant ensures the caller belongs to the conversation.
func (h *MessageHandler) requireParticipant(c echo.Context, actorID, conversationID string) error {
	participants, err := h.conversations.GetParticipants(c.Request().Context(), conversationID)
	if err != nil {
		return relationshipHTTPError(err)
	}
	for _, p := range participants {
		if p == actorID {
			return nil
		}
	}
	return echo.NewHTTPError(http.StatusForbidden, "Not a participant of this conversation")
}
