package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RelationshipStatus is the lifecycle state of a pairwise relationship.
type RelationshipStatus string

const (
	RelationshipPending  RelationshipStatus = "pending"
	RelationshipAccepted RelationshipStatus = "accepted"
	RelationshipRejected RelationshipStatus = "rejected"
	RelationshipBlocked  RelationshipStatus = "blocked"
)

// RelationshipKind distinguishes plain friendships from verified ones.
// It is only meaningful while the relationship is accepted.
type RelationshipKind string

const (
	KindUnverified RelationshipKind = "unverified"
	KindVerified   RelationshipKind = "verified"
)

// RelationshipDirection selects one side of a directional listing.
type RelationshipDirection string

const (
	DirectionIncoming RelationshipDirection = "incoming"
	DirectionOutgoing RelationshipDirection = "outgoing"
)

// Relationship is the single document stored per unordered pair of accounts (MongoDB).
// IDA and IDB are held in canonical order: the lexicographically smaller account
// ID is always IDA, no matter which side initiated. A unique index on (id_a, id_b)
// guarantees at most one document per pair.
//
// Status is the sole source of truth for blocking; there is no separate
// blocked flag to drift out of sync. Version backs the compare-and-set
// updates used for every transition after creation.
type Relationship struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	IDA         string             `bson:"id_a" json:"id_a"`
	IDB         string             `bson:"id_b" json:"id_b"`
	Status      RelationshipStatus `bson:"status" json:"status"`
	Kind        RelationshipKind   `bson:"kind" json:"kind"`
	InitiatedBy string             `bson:"initiated_by" json:"initiated_by"`
	BlockedBy   string             `bson:"blocked_by,omitempty" json:"blocked_by,omitempty"`
	Version     int64              `bson:"version" json:"-"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsBlocked reports whether an active block is in place.
func (r *Relationship) IsBlocked() bool {
	return r.Status == RelationshipBlocked
}

// HasParticipant reports whether accountID is one of the two parties.
func (r *Relationship) HasParticipant(accountID string) bool {
	return r.IDA == accountID || r.IDB == accountID
}

// Counterpart returns the other party relative to accountID.
func (r *Relationship) Counterpart(accountID string) string {
	if r.IDA == accountID {
		return r.IDB
	}
	return r.IDA
}

// CanonicalPair orders two account IDs deterministically (smaller first).
// The same unordered pair always maps to the same (id_a, id_b) regardless
// of call direction.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// RelationshipFilter narrows a relationship listing. Zero values mean "no filter".
type RelationshipFilter struct {
	Status    RelationshipStatus
	Kind      RelationshipKind
	Direction RelationshipDirection
}

// RelationshipView is the per-counterpart projection returned by listings.
// Exactly one counterpart per entry, never the calling user.
type RelationshipView struct {
	RelationshipID string             `json:"relationship_id"`
	CounterpartID  string             `json:"counterpart_id"`
	Status         RelationshipStatus `json:"status"`
	Kind           RelationshipKind   `json:"kind"`
	IsPendingOnMe  bool               `json:"is_pending_on_me"`
	IsBlocked      bool               `json:"is_blocked"`
	BlockedBy      string             `json:"blocked_by,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// SendFriendRequestBody defines the request body for sending a friend request
type SendFriendRequestBody struct {
	TargetID string `json:"target_id" validate:"required"`
}

// RespondFriendRequestBody defines the request body for accepting/rejecting a friend request
type RespondFriendRequestBody struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}
