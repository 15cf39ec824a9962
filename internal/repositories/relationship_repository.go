package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amiko-app/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Storage-level sentinel errors. The service layer translates these into
// its own domain errors.
var (
	// ErrRecordNotFound is returned when no document matches a lookup.
	ErrRecordNotFound = errors.New("record not found")
	// ErrDuplicatePair is returned when an insert collides with the unique
	// canonical-pair index, i.e. a racing create already won.
	ErrDuplicatePair = errors.New("relationship already exists for pair")
)

// RelationshipRepository defines the interface for relationship data operations
type RelationshipRepository interface {
	EnsureIndexes(ctx context.Context) error
	Insert(ctx context.Context, rel *models.Relationship) error
	FindByID(ctx context.Context, id string) (*models.Relationship, error)
	FindByPair(ctx context.Context, a, b string) (*models.Relationship, error)
	FindByUser(ctx context.Context, accountID string) ([]models.Relationship, error)
	// Apply writes the mutable fields of rel, guarded by the version the
	// caller read. It reports false (and no error) when no document matched,
	// meaning a concurrent transition moved the record first.
	Apply(ctx context.Context, rel *models.Relationship) (bool, error)
	Delete(ctx context.Context, id string) error
}

// MongoRelationshipRepository implements RelationshipRepository for MongoDB
type MongoRelationshipRepository struct {
	collection *mongo.Collection
}

// NewMongoRelationshipRepository creates a new MongoRelationshipRepository
func NewMongoRelationshipRepository(db *mongo.Database) *MongoRelationshipRepository {
	return &MongoRelationshipRepository{collection: db.Collection("relationships")}
}

// EnsureIndexes creates the unique canonical-pair index. Racing creates for
// the same unordered pair resolve through this constraint: exactly one
// insert succeeds, the loser gets a duplicate-key error.
func (r *MongoRelationshipRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id_a", Value: 1}, {Key: "id_b", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Insert creates a new relationship document in MongoDB
func (r *MongoRelationshipRepository) Insert(ctx context.Context, rel *models.Relationship) error {
	rel.ID = primitive.NewObjectID()
	rel.CreatedAt = time.Now()
	rel.UpdatedAt = rel.CreatedAt
	rel.Version = 1
	_, err := r.collection.InsertOne(ctx, rel)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicatePair
	}
	return err
}

// FindByID retrieves a relationship by its document ID from MongoDB
func (r *MongoRelationshipRepository) FindByID(ctx context.Context, id string) (*models.Relationship, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Malformed IDs cannot name any document.
		return nil, fmt.Errorf("%w: invalid relationship ID %q", ErrRecordNotFound, id)
	}

	var rel models.Relationship
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&rel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rel, nil
}

// FindByPair retrieves the relationship for an unordered pair of accounts.
// The pair is canonicalized before lookup, so call direction does not matter.
func (r *MongoRelationshipRepository) FindByPair(ctx context.Context, a, b string) (*models.Relationship, error) {
	idA, idB := models.CanonicalPair(a, b)

	var rel models.Relationship
	err := r.collection.FindOne(ctx, bson.M{"id_a": idA, "id_b": idB}).Decode(&rel)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &rel, nil
}

// FindByUser retrieves every relationship touching an account, newest-updated first.
func (r *MongoRelationshipRepository) FindByUser(ctx context.Context, accountID string) ([]models.Relationship, error) {
	var rels []models.Relationship
	findOptions := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	filter := bson.M{"$or": bson.A{bson.M{"id_a": accountID}, bson.M{"id_b": accountID}}}
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &rels); err != nil {
		return nil, err
	}
	return rels, nil
}

// Apply commits a transition with a compare-and-set on the version the
// caller read. MatchedCount is the optimistic check: zero means another
// writer got there first and the caller must re-read.
func (r *MongoRelationshipRepository) Apply(ctx context.Context, rel *models.Relationship) (bool, error) {
	rel.UpdatedAt = time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":     rel.Status,
			"kind":       rel.Kind,
			"blocked_by": rel.BlockedBy,
			"updated_at": rel.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": rel.ID, "version": rel.Version}, update)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, nil
	}
	rel.Version++
	return true, nil
}

// Delete hard-deletes a relationship document by ID from MongoDB
func (r *MongoRelationshipRepository) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid relationship ID %q", ErrRecordNotFound, id)
	}

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}
