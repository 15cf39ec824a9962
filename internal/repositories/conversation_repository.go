package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/amiko-app/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationRepository defines the interface for conversation data operations
type ConversationRepository interface {
	EnsureIndexes(ctx context.Context) error
	// FindOrCreate returns the conversation linking exactly the two given
	// accounts, creating it if absent. Participants must already be in
	// canonical order. Idempotent under concurrent calls.
	FindOrCreate(ctx context.Context, participants []string) (*models.Conversation, error)
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
}

// MongoConversationRepository implements ConversationRepository for MongoDB
type MongoConversationRepository struct {
	collection *mongo.Collection
}

// NewMongoConversationRepository creates a new MongoConversationRepository
func NewMongoConversationRepository(db *mongo.Database) *MongoConversationRepository {
	return &MongoConversationRepository{collection: db.Collection("conversations")}
}

// EnsureIndexes creates the unique participants index so two racing
// find-or-create calls for the same pair converge on one document.
func (r *MongoConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "participants", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// FindOrCreate upserts the conversation for a canonically ordered pair.
func (r *MongoConversationRepository) FindOrCreate(ctx context.Context, participants []string) (*models.Conversation, error) {
	now := time.Now()
	filter := bson.M{"participants": participants}
	update := bson.M{
		"$setOnInsert": bson.M{
			"participants": participants,
			"created_at":   now,
			"updated_at":   now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var conv models.Conversation
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindByID retrieves a conversation by ID from MongoDB
func (r *MongoConversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid conversation ID %q", ErrRecordNotFound, id)
	}

	var conv models.Conversation
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&conv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &conv, nil
}
