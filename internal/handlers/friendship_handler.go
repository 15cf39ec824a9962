package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/amiko-app/backend/internal/models"
	"github.com/amiko-app/backend/internal/repositories"
	"github.com/amiko-app/backend/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RelationshipCommands is the slice of the relationship service the
// friendship endpoints need.
type RelationshipCommands interface {
	Request(ctx context.Context, requester, target string) (*models.Relationship, error)
	Accept(ctx context.Context, actor, relationshipID string) (*models.Relationship, error)
	Reject(ctx context.Context, actor, relationshipID string) (*models.Relationship, error)
	Verify(ctx context.Context, actor, relationshipID string) (*models.Relationship, error)
	Block(ctx context.Context, actor, relationshipID string) (*models.Relationship, error)
	Unblock(ctx context.Context, actor, relationshipID string) (*models.Relationship, error)
	Remove(ctx context.Context, actor, relationshipID string) error
}

// RelationshipQueries is the read side consumed by the listing endpoint.
type RelationshipQueries interface {
	List(ctx context.Context, userID string, filter models.RelationshipFilter) ([]models.RelationshipView, error)
}

// FriendshipHandler handles HTTP requests related to friendships
type FriendshipHandler struct {
	relationships          RelationshipCommands
	queries                RelationshipQueries
	notificationRepository repositories.NotificationRepository
	logger                 *zap.Logger
}

// NewFriendshipHandler creates a new FriendshipHandler
func NewFriendshipHandler(relationships RelationshipCommands, queries RelationshipQueries, notifRepo repositories.NotificationRepository, logger *zap.Logger) *FriendshipHandler {
	return &FriendshipHandler{
		relationships:          relationships,
		queries:                queries,
		notificationRepository: notifRepo,
		logger:                 logger,
	}
}

// RegisterFriendshipRoutes registers friendship-related routes
func (h *FriendshipHandler) RegisterFriendshipRoutes(g *echo.Group) {
	g.POST("/friends/request", h.SendFriendRequest)
	g.PUT("/friends/:id/status", h.RespondToFriendRequest)
	g.POST("/friends/:id/verify", h.VerifyFriendship)
	g.POST("/friends/:id/block", h.BlockFriendship)
	g.POST("/friends/:id/unblock", h.UnblockFriendship)
	g.DELETE("/friends/:id", h.RemoveFriendship)
	g.GET("/friends", h.ListFriendships)
}

// SendFriendRequest handles sending a friend request
func (h *FriendshipHandler) SendFriendRequest(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.SendFriendRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rel, err := h.relationships.Request(c.Request().Context(), actorID, req.TargetID)
	if err != nil {
		return relationshipHTTPError(err)
	}

	h.notifyFriendEvent(models.NotificationFriendRequest, actorID, req.TargetID, rel.ID.Hex(), "sent you a friend request")

	return c.JSON(http.StatusCreated, rel)
}

// RespondToFriendRequest accepts or rejects a pending friend request
func (h *FriendshipHandler) RespondToFriendRequest(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	relationshipID := c.Param("id")

	var req models.RespondFriendRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var rel *models.Relationship
	var err error
	if req.Status == "accepted" {
		rel, err = h.relationships.Accept(c.Request().Context(), actorID, relationshipID)
	} else {
		rel, err = h.relationships.Reject(c.Request().Context(), actorID, relationshipID)
	}
	if err != nil {
		return relationshipHTTPError(err)
	}

	if req.Status == "accepted" {
		h.notifyFriendEvent(models.NotificationFriendAccepted, actorID, rel.InitiatedBy, rel.ID.Hex(), "accepted your friend request")
	}

	return c.JSON(http.StatusOK, rel)
}

// VerifyFriendship upgrades an accepted friendship to verified
func (h *FriendshipHandler) VerifyFriendship(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	rel, err := h.relationships.Verify(c.Request().Context(), actorID, c.Param("id"))
	if err != nil {
		return relationshipHTTPError(err)
	}
	return c.JSON(http.StatusOK, rel)
}

// BlockFriendship blocks an accepted friendship
func (h *FriendshipHandler) BlockFriendship(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	rel, err := h.relationships.Block(c.Request().Context(), actorID, c.Param("id"))
	if err != nil {
		return relationshipHTTPError(err)
	}
	return c.JSON(http.StatusOK, rel)
}

// UnblockFriendship lifts a block previously imposed by the caller
func (h *FriendshipHandler) UnblockFriendship(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	rel, err := h.relationships.Unblock(c.Request().Context(), actorID, c.Param("id"))
	if err != nil {
		return relationshipHTTPError(err)
	}
	return c.JSON(http.StatusOK, rel)
}

// RemoveFriendship deletes a friendship (unfriend) or cancels an own pending request
func (h *FriendshipHandler) RemoveFriendship(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	if err := h.relationships.Remove(c.Request().Context(), actorID, c.Param("id")); err != nil {
		return relationshipHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListFriendships returns the caller's relationships, filtered by the
// optional status, kind, and direction query parameters.
func (h *FriendshipHandler) ListFriendships(c echo.Context) error {
	actorID := getAccountIDFromContext(c)
	if actorID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	filter := models.RelationshipFilter{
		Status:    models.RelationshipStatus(c.QueryParam("status")),
		Kind:      models.RelationshipKind(c.QueryParam("kind")),
		Direction: models.RelationshipDirection(c.QueryParam("direction")),
	}

	views, err := h.queries.List(c.Request().Context(), actorID, filter)
	if err != nil {
		return relationshipHTTPError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"friends": views})
}

// notifyFriendEvent records a notification for the counterpart. Best-effort:
// a failed notification never fails the relationship operation.
func (h *FriendshipHandler) notifyFriendEvent(notifType, actorID, recipientID, relationshipID, message string) {
	actor, err1 := strconv.ParseUint(actorID, 10, 32)
	recipient, err2 := strconv.ParseUint(recipientID, 10, 32)
	if err1 != nil || err2 != nil {
		return
	}

	notification := &models.Notification{
		Type:        notifType,
		ActorID:     uint(actor),
		RecipientID: uint(recipient),
		TargetID:    relationshipID,
		Message:     message,
	}
	if err := h.notificationRepository.CreateNotification(notification); err != nil {
		h.logger.Warn("failed to create friend notification", zap.Error(err))
	}
}

// relationshipHTTPError maps domain errors to HTTP status codes.
func relationshipHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrNotAuthorized),
		errors.Is(err, services.ErrBlocked):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrAlreadyPending),
		errors.Is(err, services.ErrPendingFromOther),
		errors.Is(err, services.ErrAlreadyAccepted),
		errors.Is(err, services.ErrRecentlyRejected),
		errors.Is(err, services.ErrAlreadyVerified),
		errors.Is(err, services.ErrAlreadyBlockedBySelf),
		errors.Is(err, services.ErrConflictAlreadyExists),
		errors.Is(err, services.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, services.ErrSelfReference),
		errors.Is(err, services.ErrNotPending),
		errors.Is(err, services.ErrNotAccepted),
		errors.Is(err, services.ErrNotBlocked),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrUseRejectInstead):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
