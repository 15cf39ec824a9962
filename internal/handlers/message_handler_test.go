package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amiko-app/backend/internal/models"
	"github.com/amiko-app/backend/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type stubResolver struct {
	conv         *models.Conversation
	participants []string
	err          error
}

func (s *stubResolver) FindOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	return s.conv, s.err
}

func (s *stubResolver) GetParticipants(ctx context.Context, conversationID string) ([]string, error) {
	return s.participants, s.err
}

type stubGate struct {
	decision services.Decision
	err      error
}

func (s *stubGate) CanSend(ctx context.Context, senderID, conversationID string) (services.Decision, error) {
	return s.decision, s.err
}

type stubMessageRepo struct {
	inserted []*models.Message
	messages []models.Message
}

func (s *stubMessageRepo) Insert(ctx context.Context, msg *models.Message) error {
	msg.ID = primitive.NewObjectID()
	s.inserted = append(s.inserted, msg)
	return nil
}

func (s *stubMessageRepo) ListByConversation(ctx context.Context, conversationID string, skip, limit int64) ([]models.Message, error) {
	return s.messages, nil
}

func newMessageContext(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user", &models.JwtCustomClaims{UserID: 7, Email: "seven@example.com"})
	return c, rec
}

func TestOpenConversation(t *testing.T) {
	conv := &models.Conversation{
		ID:           primitive.NewObjectID(),
		Participants: []string{"3", "7"},
	}
	h := NewMessageHandler(&stubResolver{conv: conv}, &stubGate{}, &stubMessageRepo{}, zap.NewNop())

	c, rec := newMessageContext(http.MethodPost, "/conversations", `{"peer_id":"3"}`)
	require.NoError(t, h.OpenConversation(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestOpenConversationWithSelf(t *testing.T) {
	h := NewMessageHandler(&stubResolver{err: services.ErrSelfReference}, &stubGate{}, &stubMessageRepo{}, zap.NewNop())

	c, _ := newMessageContext(http.MethodPost, "/conversations", `{"peer_id":"7"}`)
	err := h.OpenConversation(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestSendMessageAllowed(t *testing.T) {
	convID := primitive.NewObjectID()
	repo := &stubMessageRepo{}
	h := NewMessageHandler(
		&stubResolver{participants: []string{"3", "7"}},
		&stubGate{decision: services.Decision{Allowed: true}},
		repo,
		zap.NewNop(),
	)

	c, rec := newMessageContext(http.MethodPost, "/conversations/"+convID.Hex()+"/messages", `{"content":"hello"}`)
	c.SetParamNames("id")
	c.SetParamValues(convID.Hex())
	require.NoError(t, h.SendMessage(c))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "7", repo.inserted[0].SenderID)
	assert.Equal(t, "hello", repo.inserted[0].Content)
	assert.Equal(t, convID, repo.inserted[0].ConversationID)
}

func TestSendMessageDeniedByBlock(t *testing.T) {
	convID := primitive.NewObjectID()
	repo := &stubMessageRepo{}
	h := NewMessageHandler(
		&stubResolver{participants: []string{"3", "7"}},
		&stubGate{decision: services.Decision{Allowed: false, Reason: services.ReasonBlocked}},
		repo,
		zap.NewNop(),
	)

	c, _ := newMessageContext(http.MethodPost, "/conversations/"+convID.Hex()+"/messages", `{"content":"hello"}`)
	c.SetParamNames("id")
	c.SetParamValues(convID.Hex())

	err := h.SendMessage(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
	assert.Equal(t, services.ReasonBlocked, httpErr.Message)
	// Nothing is persisted for a denied send.
	assert.Empty(t, repo.inserted)
}

func TestSendMessageByNonParticipant(t *testing.T) {
	convID := primitive.NewObjectID()
	h := NewMessageHandler(
		&stubResolver{participants: []string{"3", "5"}},
		&stubGate{decision: services.Decision{Allowed: true}},
		&stubMessageRepo{},
		zap.NewNop(),
	)

	c, _ := newMessageContext(http.MethodPost, "/conversations/"+convID.Hex()+"/messages", `{"content":"hello"}`)
	c.SetParamNames("id")
	c.SetParamValues(convID.Hex())

	err := h.SendMessage(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.Code)
}

func TestSendMessageEmptyContent(t *testing.T) {
	h := NewMessageHandler(&stubResolver{}, &stubGate{}, &stubMessageRepo{}, zap.NewNop())

	c, _ := newMessageContext(http.MethodPost, "/conversations/abc/messages", `{"content":""}`)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.SendMessage(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestGetMessages(t *testing.T) {
	convID := primitive.NewObjectID()
	repo := &stubMessageRepo{messages: []models.Message{
		{ID: primitive.NewObjectID(), ConversationID: convID, SenderID: "3", Content: "hi"},
	}}
	h := NewMessageHandler(
		&stubResolver{participants: []string{"3", "7"}},
		&stubGate{},
		repo,
		zap.NewNop(),
	)

	c, rec := newMessageContext(http.MethodGet, "/conversations/"+convID.Hex()+"/messages", "")
	c.SetParamNames("id")
	c.SetParamValues(convID.Hex())
	require.NoError(t, h.GetMessages(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hi"`)
}

func TestGetMessagesUnknownConversation(t *testing.T) {
	h := NewMessageHandler(&stubResolver{err: services.ErrNotFound}, &stubGate{}, &stubMessageRepo{}, zap.NewNop())

	c, _ := newMessageContext(http.MethodGet, "/conversations/abc/messages", "")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	err := h.GetMessages(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}
