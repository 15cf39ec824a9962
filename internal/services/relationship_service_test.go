package services_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/amiko-app/backend/internal/models"
	"github.com/amiko-app/backend/internal/repositories"
	"github.com/amiko-app/backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// fakeRelationshipRepo is an in-memory RelationshipRepository with the same
// contract as the Mongo implementation: unique canonical pair on insert,
// version-guarded Apply, copies returned on reads.
type fakeRelationshipRepo struct {
	mu   sync.Mutex
	docs map[string]*models.Relationship

	// applyFailures makes the next N Apply calls lose the optimistic check,
	// as if a concurrent writer bumped the version in between.
	applyFailures int
	now           time.Time
}

func newFakeRelationshipRepo() *fakeRelationshipRepo {
	return &fakeRelationshipRepo{
		docs: make(map[string]*models.Relationship),
		now:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeRelationshipRepo) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

func (f *fakeRelationshipRepo) EnsureIndexes(ctx context.Context) error { return nil }

func (f *fakeRelationshipRepo) Insert(ctx context.Context, rel *models.Relationship) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, doc := range f.docs {
		if doc.IDA == rel.IDA && doc.IDB == rel.IDB {
			return repositories.ErrDuplicatePair
		}
	}
	rel.ID = primitive.NewObjectID()
	rel.CreatedAt = f.tick()
	rel.UpdatedAt = rel.CreatedAt
	rel.Version = 1
	cp := *rel
	f.docs[rel.ID.Hex()] = &cp
	return nil
}

func (f *fakeRelationshipRepo) FindByID(ctx context.Context, id string) (*models.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeRelationshipRepo) FindByPair(ctx context.Context, a, b string) (*models.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idA, idB := models.CanonicalPair(a, b)
	for _, doc := range f.docs {
		if doc.IDA == idA && doc.IDB == idB {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, repositories.ErrRecordNotFound
}

func (f *fakeRelationshipRepo) FindByUser(ctx context.Context, accountID string) ([]models.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rels []models.Relationship
	for _, doc := range f.docs {
		if doc.IDA == accountID || doc.IDB == accountID {
			rels = append(rels, *doc)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].UpdatedAt.After(rels[j].UpdatedAt) })
	return rels, nil
}

func (f *fakeRelationshipRepo) Apply(ctx context.Context, rel *models.Relationship) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[rel.ID.Hex()]
	if f.applyFailures > 0 {
		f.applyFailures--
		if ok {
			doc.Version++
		}
		return false, nil
	}
	if !ok || doc.Version != rel.Version {
		return false, nil
	}
	rel.UpdatedAt = f.tick()
	doc.Status = rel.Status
	doc.Kind = rel.Kind
	doc.BlockedBy = rel.BlockedBy
	doc.UpdatedAt = rel.UpdatedAt
	doc.Version++
	rel.Version++
	return true, nil
}

func (f *fakeRelationshipRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return repositories.ErrRecordNotFound
	}
	delete(f.docs, id)
	return nil
}

// fakeAccounts treats every listed account as active.
type fakeAccounts struct {
	active map[string]bool
}

func (f *fakeAccounts) AccountExists(ctx context.Context, accountID string) (bool, error) {
	return f.active[accountID], nil
}

func newTestRelationshipService(accountIDs ...string) (*services.RelationshipService, *fakeRelationshipRepo) {
	repo := newFakeRelationshipRepo()
	accounts := &fakeAccounts{active: make(map[string]bool)}
	for _, id := range accountIDs {
		accounts.active[id] = true
	}
	return services.NewRelationshipService(repo, accounts, zap.NewNop()), repo
}

func TestRequestCreatesPendingRelationship(t *testing.T) {
	svc, _ := newTestRelationshipService("9", "10")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "9", "10")
	require.NoError(t, err)

	// "10" sorts before "9" lexicographically, so it must land in id_a.
	assert.Equal(t, "10", rel.IDA)
	assert.Equal(t, "9", rel.IDB)
	assert.Equal(t, models.RelationshipPending, rel.Status)
	assert.Equal(t, models.KindUnverified, rel.Kind)
	assert.Equal(t, "9", rel.InitiatedBy)
	assert.False(t, rel.ID.IsZero())
}

func TestRequestToSelf(t *testing.T) {
	svc, _ := newTestRelationshipService("1")

	_, err := svc.Request(context.Background(), "1", "1")
	assert.ErrorIs(t, err, services.ErrSelfReference)
}

func TestRequestToUnknownAccount(t *testing.T) {
	svc, _ := newTestRelationshipService("1")

	_, err := svc.Request(context.Background(), "1", "404")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestRequestWhilePending(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	_, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	_, err = svc.Request(ctx, "1", "2")
	assert.ErrorIs(t, err, services.ErrAlreadyPending)

	// Opposite direction hits the same canonical document.
	_, err = svc.Request(ctx, "2", "1")
	assert.ErrorIs(t, err, services.ErrPendingFromOther)
}

func TestRequestWhileAccepted(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)

	_, err = svc.Request(ctx, "1", "2")
	assert.ErrorIs(t, err, services.ErrAlreadyAccepted)
	_, err = svc.Request(ctx, "2", "1")
	assert.ErrorIs(t, err, services.ErrAlreadyAccepted)
}

func TestRequestWhileRejected(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)

	_, err = svc.Request(ctx, "1", "2")
	assert.ErrorIs(t, err, services.ErrRecentlyRejected)
}

func TestRequestWhileBlocked(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")
	_, err := svc.Block(ctx, "1", rel.ID.Hex())
	require.NoError(t, err)

	_, err = svc.Request(ctx, "2", "1")
	assert.ErrorIs(t, err, services.ErrBlocked)
}

func TestAcceptByRecipient(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	accepted, err := svc.Accept(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipAccepted, accepted.Status)
	assert.Equal(t, models.KindUnverified, accepted.Kind)
}

func TestAcceptAuthorization(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2", "3")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	// The initiator cannot accept their own request.
	_, err = svc.Accept(ctx, "1", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotAuthorized)

	// Nor can a third party.
	_, err = svc.Accept(ctx, "3", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotAuthorized)
}

func TestAcceptNonPending(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")

	_, err := svc.Accept(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotPending)
}

func TestAcceptUnknownRelationship(t *testing.T) {
	svc, _ := newTestRelationshipService("1")

	_, err := svc.Accept(context.Background(), "1", primitive.NewObjectID().Hex())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestRejectByRecipient(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	_, err = svc.Reject(ctx, "1", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotAuthorized)

	rejected, err := svc.Reject(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipRejected, rejected.Status)
}

func TestVerifyAcceptedFriendship(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")

	// Either participant may verify, including the initiator.
	verified, err := svc.Verify(ctx, "1", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.KindVerified, verified.Kind)
	assert.Equal(t, models.RelationshipAccepted, verified.Status)

	_, err = svc.Verify(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrAlreadyVerified)
}

func TestVerifyPreconditions(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2", "3")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "1", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotAccepted)

	_, err = svc.Verify(ctx, "3", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotAuthorized)
}

func TestVerifyBlockedFriendship(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")
	_, err := svc.Block(ctx, "1", rel.ID.Hex())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrBlocked)
}

func TestBlockAcceptedFriendship(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")
	_, err := svc.Verify(ctx, "1", rel.ID.Hex())
	require.NoError(t, err)

	blocked, err := svc.Block(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipBlocked, blocked.Status)
	assert.Equal(t, "2", blocked.BlockedBy)
	// Kind survives the block so an unblock restores verified status.
	assert.Equal(t, models.KindVerified, blocked.Kind)

	_, err = svc.Block(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrAlreadyBlockedBySelf)

	_, err = svc.Block(ctx, "1", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrInvalidState)
}

func TestBlockPendingRelationship(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	_, err = svc.Block(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrInvalidState)
}

func TestUnblockRestoresFriendship(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")
	_, err := svc.Verify(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)
	_, err = svc.Block(ctx, "1", rel.ID.Hex())
	require.NoError(t, err)

	// Only the blocker may lift the block.
	_, err = svc.Unblock(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotAuthorized)

	restored, err := svc.Unblock(ctx, "1", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipAccepted, restored.Status)
	assert.Equal(t, models.KindVerified, restored.Kind)
	assert.Empty(t, restored.BlockedBy)
}

func TestUnblockWithoutBlock(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")

	_, err := svc.Unblock(ctx, "1", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrNotBlocked)
}

func TestRemoveAcceptedFriendship(t *testing.T) {
	svc, repo := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")

	require.NoError(t, svc.Remove(ctx, "2", rel.ID.Hex()))

	_, err := repo.FindByID(ctx, rel.ID.Hex())
	assert.ErrorIs(t, err, repositories.ErrRecordNotFound)
}

func TestRemoveRejectedRelationship(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)
	_, err = svc.Reject(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)

	// Either side may clear a rejected record.
	require.NoError(t, svc.Remove(ctx, "1", rel.ID.Hex()))
}

func TestRemovePendingRequest(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	// The recipient declines via Reject, not Remove.
	err = svc.Remove(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrUseRejectInstead)

	// The initiator cancels their own request.
	require.NoError(t, svc.Remove(ctx, "1", rel.ID.Hex()))
}

func TestRemoveBlockedRelationship(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")
	_, err := svc.Block(ctx, "1", rel.ID.Hex())
	require.NoError(t, err)

	err = svc.Remove(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrInvalidState)
}

func TestRemoveThenRequestAgain(t *testing.T) {
	svc, _ := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel := acceptedRelationship(t, svc, "1", "2")
	require.NoError(t, svc.Remove(ctx, "1", rel.ID.Hex()))

	// A fresh request starts the lifecycle over.
	fresh, err := svc.Request(ctx, "2", "1")
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipPending, fresh.Status)
	assert.Equal(t, "2", fresh.InitiatedBy)
	assert.NotEqual(t, rel.ID, fresh.ID)
}

func TestTransitionRetriesAfterLostRace(t *testing.T) {
	svc, repo := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	// First Apply loses the optimistic check; the retry re-reads and wins.
	repo.applyFailures = 1
	accepted, err := svc.Accept(ctx, "2", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipAccepted, accepted.Status)
}

func TestTransitionGivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, repo := newTestRelationshipService("1", "2")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "1", "2")
	require.NoError(t, err)

	repo.applyFailures = 2
	_, err = svc.Accept(ctx, "2", rel.ID.Hex())
	assert.ErrorIs(t, err, services.ErrConflict)
}

func TestFullLifecycle(t *testing.T) {
	svc, _ := newTestRelationshipService("alice", "bob")
	ctx := context.Background()

	rel, err := svc.Request(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipPending, rel.Status)

	rel, err = svc.Accept(ctx, "bob", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipAccepted, rel.Status)

	rel, err = svc.Verify(ctx, "alice", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.KindVerified, rel.Kind)

	rel, err = svc.Block(ctx, "bob", rel.ID.Hex())
	require.NoError(t, err)
	assert.True(t, rel.IsBlocked())

	rel, err = svc.Unblock(ctx, "bob", rel.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.RelationshipAccepted, rel.Status)
	assert.Equal(t, models.KindVerified, rel.Kind)

	require.NoError(t, svc.Remove(ctx, "alice", rel.ID.Hex()))
}

// acceptedRelationship seeds an accepted friendship between a and b,
// initiated by a.
func acceptedRelationship(t *testing.T, svc *services.RelationshipService, a, b string) *models.Relationship {
	t.Helper()
	ctx := context.Background()
	rel, err := svc.Request(ctx, a, b)
	require.NoError(t, err)
	rel, err = svc.Accept(ctx, b, rel.ID.Hex())
	require.NoError(t, err)
	return rel
}
