package services

import (
	"context"
	"errors"

	"github.com/amiko-app/backend/internal/models"
	"github.com/amiko-app/backend/internal/repositories"
)

// ConversationDirectory maps two-party conversations to their participants.
// It owns no further conversation lifecycle logic.
type ConversationDirectory struct {
	conversations repositories.ConversationRepository
}

// NewConversationDirectory creates a new ConversationDirectory
func NewConversationDirectory(conversationRepo repositories.ConversationRepository) *ConversationDirectory {
	return &ConversationDirectory{conversations: conversationRepo}
}

// FindOrCreate returns the conversation linking exactly the two given
// accounts, creating it if none exists yet. Idempotent: the participants
// are stored in canonical order, so both call directions hit one document.
func (d *ConversationDirectory) FindOrCreate(ctx context.Context, userA, userB string) (*models.Conversation, error) {
	if userA == userB {
		return nil, ErrSelfReference
	}
	idA, idB := models.CanonicalPair(userA, userB)
	conv, err := d.conversations.FindOrCreate(ctx, []string{idA, idB})
	if err != nil {
		return nil, unavailable(err)
	}
	return conv, nil
}

// GetParticipants resolves the participant account IDs of a conversation.
func (d *ConversationDirectory) GetParticipants(ctx context.Context, conversationID string) ([]string, error) {
	conv, err := d.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return conv.Participants, nil
}
