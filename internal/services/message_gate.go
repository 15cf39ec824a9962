package services

import (
	"context"
	"errors"

	"github.com/amiko-app/backend/internal/repositories"
	"go.uber.org/zap"
)

// Deny reasons returned by the gate.
const ReasonBlocked = "blocked"

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// ParticipantResolver supplies the identity the gate needs from the
// conversation directory.
type ParticipantResolver interface {
	GetParticipants(ctx context.Context, conversationID string) ([]string, error)
}

// MessageGate decides whether a message between two users may be delivered.
// Only an active block suppresses messaging; a rejected, pending, or
// nonexistent friendship does not.
type MessageGate struct {
	relationships repositories.RelationshipRepository
	directory     ParticipantResolver
	logger        *zap.Logger
}

// NewMessageGate creates a new MessageGate
func NewMessageGate(relationshipRepo repositories.RelationshipRepository, directory ParticipantResolver, logger *zap.Logger) *MessageGate {
	return &MessageGate{
		relationships: relationshipRepo,
		directory:     directory,
		logger:        logger,
	}
}

// CanSend reports whether senderID may deliver a message in the given
// conversation. Gating applies only to exactly-two-party conversations;
// anything else passes through.
func (g *MessageGate) CanSend(ctx context.Context, senderID, conversationID string) (Decision, error) {
	participants, err := g.directory.GetParticipants(ctx, conversationID)
	if err != nil {
		return Decision{}, err
	}
	if len(participants) != 2 {
		return Decision{Allowed: true}, nil
	}

	counterpart := participants[0]
	if counterpart == senderID {
		counterpart = participants[1]
	}

	rel, err := g.relationships.FindByPair(ctx, senderID, counterpart)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			// No relationship is not a block; strangers may message.
			return Decision{Allowed: true}, nil
		}
		return Decision{}, unavailable(err)
	}

	if rel.IsBlocked() {
		g.logger.Debug("message denied by block",
			zap.String("sender", senderID),
			zap.String("conversation", conversationID))
		return Decision{Allowed: false, Reason: ReasonBlocked}, nil
	}
	return Decision{Allowed: true}, nil
}
