package services

import (
	"context"
	"errors"

	"github.com/amiko-app/backend/internal/models"
	"github.com/amiko-app/backend/internal/repositories"
	"go.uber.org/zap"
)

// AccountChecker reports whether an account may be the target of a friend
// request. Deleted and banned accounts do not exist for this purpose.
type AccountChecker interface {
	AccountExists(ctx context.Context, accountID string) (bool, error)
}

// RelationshipService owns the canonical relationship record and its
// transition rules. Every transition validates preconditions against the
// freshly read state and commits atomically; creation races resolve via
// the unique pair index, all later transitions via compare-and-set.
type RelationshipService struct {
	relationships repositories.RelationshipRepository
	accounts      AccountChecker
	logger        *zap.Logger
}

// NewRelationshipService creates a new RelationshipService
func NewRelationshipService(relationshipRepo repositories.RelationshipRepository, accounts AccountChecker, logger *zap.Logger) *RelationshipService {
	return &RelationshipService{
		relationships: relationshipRepo,
		accounts:      accounts,
		logger:        logger,
	}
}

// Request creates a pending relationship from requester toward target.
func (s *RelationshipService) Request(ctx context.Context, requester, target string) (*models.Relationship, error) {
	if requester == target {
		return nil, ErrSelfReference
	}

	exists, err := s.accounts.AccountExists(ctx, target)
	if err != nil {
		return nil, unavailable(err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	existing, err := s.relationships.FindByPair(ctx, requester, target)
	if err != nil && !errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, unavailable(err)
	}
	if existing != nil {
		switch existing.Status {
		case models.RelationshipPending:
			if existing.InitiatedBy == requester {
				return nil, ErrAlreadyPending
			}
			return nil, ErrPendingFromOther
		case models.RelationshipAccepted:
			return nil, ErrAlreadyAccepted
		case models.RelationshipBlocked:
			return nil, ErrBlocked
		case models.RelationshipRejected:
			return nil, ErrRecentlyRejected
		}
	}

	idA, idB := models.CanonicalPair(requester, target)
	rel := &models.Relationship{
		IDA:         idA,
		IDB:         idB,
		Status:      models.RelationshipPending,
		Kind:        models.KindUnverified,
		InitiatedBy: requester,
	}
	if err := s.relationships.Insert(ctx, rel); err != nil {
		if errors.Is(err, repositories.ErrDuplicatePair) {
			// Lost a creation race for this pair.
			return nil, ErrConflictAlreadyExists
		}
		s.logger.Error("relationship insert failed", zap.Error(err))
		return nil, unavailable(err)
	}
	return rel, nil
}

// Accept transitions pending → accepted. Only the recipient (the
// non-initiating participant) may accept.
func (s *RelationshipService) Accept(ctx context.Context, actor, relationshipID string) (*models.Relationship, error) {
	return s.transition(ctx, relationshipID, func(rel *models.Relationship) error {
		if !rel.HasParticipant(actor) || rel.InitiatedBy == actor {
			return ErrNotAuthorized
		}
		if rel.Status != models.RelationshipPending {
			return ErrNotPending
		}
		rel.Status = models.RelationshipAccepted
		rel.Kind = models.KindUnverified
		return nil
	})
}

// Reject transitions pending → rejected. Same authorization rule as Accept.
func (s *RelationshipService) Reject(ctx context.Context, actor, relationshipID string) (*models.Relationship, error) {
	return s.transition(ctx, relationshipID, func(rel *models.Relationship) error {
		if !rel.HasParticipant(actor) || rel.InitiatedBy == actor {
			return ErrNotAuthorized
		}
		if rel.Status != models.RelationshipPending {
			return ErrNotPending
		}
		rel.Status = models.RelationshipRejected
		return nil
	})
}

// Verify upgrades accepted(unverified) → accepted(verified). Either
// participant may verify. Once verified, the kind never silently reverts.
func (s *RelationshipService) Verify(ctx context.Context, actor, relationshipID string) (*models.Relationship, error) {
	return s.transition(ctx, relationshipID, func(rel *models.Relationship) error {
		if !rel.HasParticipant(actor) {
			return ErrNotAuthorized
		}
		if rel.IsBlocked() {
			return ErrBlocked
		}
		if rel.Status != models.RelationshipAccepted {
			return ErrNotAccepted
		}
		if rel.Kind == models.KindVerified {
			return ErrAlreadyVerified
		}
		rel.Kind = models.KindVerified
		return nil
	})
}

// Block moves an accepted relationship to blocked, recording who imposed
// the block. Pending and rejected relationships cannot be blocked directly.
// The kind is left untouched so an unblock restores it.
func (s *RelationshipService) Block(ctx context.Context, actor, relationshipID string) (*models.Relationship, error) {
	return s.transition(ctx, relationshipID, func(rel *models.Relationship) error {
		if !rel.HasParticipant(actor) {
			return ErrNotAuthorized
		}
		if rel.IsBlocked() && rel.BlockedBy == actor {
			return ErrAlreadyBlockedBySelf
		}
		if rel.Status != models.RelationshipAccepted {
			return ErrInvalidState
		}
		rel.Status = models.RelationshipBlocked
		rel.BlockedBy = actor
		return nil
	})
}

// Unblock restores blocked → accepted with the kind unchanged. Only the
// account that imposed the block may lift it.
func (s *RelationshipService) Unblock(ctx context.Context, actor, relationshipID string) (*models.Relationship, error) {
	return s.transition(ctx, relationshipID, func(rel *models.Relationship) error {
		if !rel.HasParticipant(actor) {
			return ErrNotAuthorized
		}
		if !rel.IsBlocked() {
			return ErrNotBlocked
		}
		if rel.BlockedBy != actor {
			return ErrNotAuthorized
		}
		rel.Status = models.RelationshipAccepted
		rel.BlockedBy = ""
		return nil
	})
}

// Remove hard-deletes the relationship document. Accepted and rejected
// records may be removed by either participant; a pending record only by
// its initiator (cancel). Blocked records cannot be removed.
func (s *RelationshipService) Remove(ctx context.Context, actor, relationshipID string) error {
	rel, err := s.findByID(ctx, relationshipID)
	if err != nil {
		return err
	}
	if !rel.HasParticipant(actor) {
		return ErrNotAuthorized
	}

	switch rel.Status {
	case models.RelationshipAccepted, models.RelationshipRejected:
		// either participant
	case models.RelationshipPending:
		if rel.InitiatedBy != actor {
			return ErrUseRejectInstead
		}
	default:
		return ErrInvalidState
	}

	if err := s.relationships.Delete(ctx, relationshipID); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return ErrNotFound
		}
		s.logger.Error("relationship delete failed", zap.Error(err))
		return unavailable(err)
	}
	return nil
}

// transition runs one read-validate-write cycle and retries it once if the
// compare-and-set loses to a concurrent writer.
func (s *RelationshipService) transition(ctx context.Context, relationshipID string, mutate func(*models.Relationship) error) (*models.Relationship, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rel, err := s.findByID(ctx, relationshipID)
		if err != nil {
			return nil, err
		}
		if err := mutate(rel); err != nil {
			return nil, err
		}

		applied, err := s.relationships.Apply(ctx, rel)
		if err != nil {
			s.logger.Error("relationship update failed", zap.Error(err))
			return nil, unavailable(err)
		}
		if applied {
			return rel, nil
		}
		s.logger.Debug("relationship transition lost optimistic check, retrying",
			zap.String("relationship_id", relationshipID))
	}
	return nil, ErrConflict
}

func (s *RelationshipService) findByID(ctx context.Context, relationshipID string) (*models.Relationship, error) {
	rel, err := s.relationships.FindByID(ctx, relationshipID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, unavailable(err)
	}
	return rel, nil
}
