package services

import (
	"context"

	"github.com/amiko-app/backend/internal/models"
	"github.com/amiko-app/backend/internal/repositories"
)

// RelationshipQueryService derives user-facing relationship listings from
// committed records. It never raises domain errors for empty results:
// absence is a valid state.
type RelationshipQueryService struct {
	relationships repositories.RelationshipRepository
}

// NewRelationshipQueryService creates a new RelationshipQueryService
func NewRelationshipQueryService(relationshipRepo repositories.RelationshipRepository) *RelationshipQueryService {
	return &RelationshipQueryService{relationships: relationshipRepo}
}

// List returns the caller's relationships shaped per filter, newest-updated
// first. Filter semantics:
//
//   - no status: accepted and pending records, blocked excluded
//   - status=accepted, no kind: verified friends only; unverified friendships
//     need an explicit kind filter
//   - status=pending with direction: outgoing = initiated by the caller,
//     incoming = initiated by the counterpart
//   - status=pending without direction: every incoming entry plus at most
//     ONE outgoing entry, first by sort order. The one-sided cap is
//     deliberate, not a bug.
//   - status=blocked with direction: outgoing = blocked by the caller;
//     anything else, including a record missing its blocker, counts as
//     incoming for safety
//
// Each entry resolves to exactly one counterpart, deduplicated by
// counterpart account.
func (s *RelationshipQueryService) List(ctx context.Context, userID string, filter models.RelationshipFilter) ([]models.RelationshipView, error) {
	rels, err := s.relationships.FindByUser(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}

	keptOutgoingPending := false
	seen := make(map[string]bool)
	views := make([]models.RelationshipView, 0, len(rels))

	for i := range rels {
		rel := &rels[i]

		switch filter.Status {
		case "":
			if rel.Status != models.RelationshipAccepted && rel.Status != models.RelationshipPending {
				continue
			}
		case models.RelationshipAccepted:
			if rel.Status != models.RelationshipAccepted {
				continue
			}
			kind := filter.Kind
			if kind == "" {
				kind = models.KindVerified
			}
			if rel.Kind != kind {
				continue
			}
		case models.RelationshipPending:
			if rel.Status != models.RelationshipPending {
				continue
			}
			outgoing := rel.InitiatedBy == userID
			switch filter.Direction {
			case models.DirectionOutgoing:
				if !outgoing {
					continue
				}
			case models.DirectionIncoming:
				if outgoing {
					continue
				}
			default:
				if outgoing {
					if keptOutgoingPending {
						continue
					}
					keptOutgoingPending = true
				}
			}
		case models.RelationshipBlocked:
			if !rel.IsBlocked() {
				continue
			}
			outgoing := rel.BlockedBy == userID
			switch filter.Direction {
			case models.DirectionOutgoing:
				if !outgoing {
					continue
				}
			case models.DirectionIncoming:
				if outgoing {
					continue
				}
			}
		default:
			if rel.Status != filter.Status {
				continue
			}
		}

		counterpart := rel.Counterpart(userID)
		if seen[counterpart] {
			continue
		}
		seen[counterpart] = true
		views = append(views, newRelationshipView(rel, userID))
	}
	return views, nil
}

func newRelationshipView(rel *models.Relationship, userID string) models.RelationshipView {
	return models.RelationshipView{
		RelationshipID: rel.ID.Hex(),
		CounterpartID:  rel.Counterpart(userID),
		Status:         rel.Status,
		Kind:           rel.Kind,
		IsPendingOnMe:  rel.Status == models.RelationshipPending && rel.InitiatedBy != userID,
		IsBlocked:      rel.IsBlocked(),
		BlockedBy:      rel.BlockedBy,
		CreatedAt:      rel.CreatedAt,
		UpdatedAt:      rel.UpdatedAt,
	}
}
