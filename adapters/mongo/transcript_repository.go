package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var _ repositories.TranscriptStore = (*TranscriptRepository)(nil)

type transcriptDocument struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	Transcript string             `bson:"transcript"`

	entities.TranscriptEntry `bson:",inline"`
}

// TranscriptRepository stores transcript entries as documents, one per entry.
// Entries belong to a named transcript so several deployments can share a collection.
type TranscriptRepository struct {
	collection *mongo.Collection
	name       string
	logger     *zap.Logger
}

// NewTranscriptRepository creates a new MongoDB transcript repository
func NewTranscriptRepository(db *mongo.Database, collection, name string, logger *zap.Logger) (*TranscriptRepository, error) {
	if name == "" {
		return nil, errors.New("transcript name cannot be empty")
	}
	if collection == "" {
		collection = "transcripts"
	}
	return &TranscriptRepository{
		collection: db.Collection(collection),
		name:       name,
		logger:     logger,
	}, nil
}

func (r *TranscriptRepository) filter() bson.M {
	return bson.M{"transcript": r.name}
}

// Initialize ensures the lookup index and records the session start
func (r *TranscriptRepository) Initialize(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "transcript", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create transcript index: %w", err)
	}
	return r.AppendSystemMessage(ctx, "Session started")
}

// Append implements repositories.TranscriptStore
func (r *TranscriptRepository) Append(ctx context.Context, entry entities.TranscriptEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	doc := transcriptDocument{
		Transcript:      r.name,
		TranscriptEntry: entry,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert transcript entry: %w", err)
	}
	return nil
}

// AppendSystemMessage implements repositories.TranscriptStore
func (r *TranscriptRepository) AppendSystemMessage(ctx context.Context, message string) error {
	return r.Append(ctx, entities.TranscriptEntry{
		Timestamp: time.Now(),
		Text:      message,
		System:    true,
	})
}

// Entries returns the stored entries in insertion order
func (r *TranscriptRepository) Entries(ctx context.Context) ([]entities.TranscriptEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, r.filter(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []transcriptDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transcript: %w", err)
	}

	entries := make([]entities.TranscriptEntry, len(docs))
	for i, d := range docs {
		entries[i] = d.TranscriptEntry
	}
	return entries, nil
}

// Content renders the transcript as text
func (r *TranscriptRepository) Content(ctx context.Context) (string, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Line())
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// Clear removes every entry of this transcript
func (r *TranscriptRepository) Clear(ctx context.Context) error {
	result, err := r.collection.DeleteMany(ctx, r.filter())
	if err != nil {
		return fmt.Errorf("failed to clear transcript: %w", err)
	}
	r.logger.Info("Transcript cleared",
		zap.String("transcript", r.name),
		zap.Int64("deleted", result.DeletedCount))
	return nil
}

// Delete removes the transcript; documents are the only state, so this equals Clear
func (r *TranscriptRepository) Delete(ctx context.Context) error {
	return r.Clear(ctx)
}

// Path identifies the transcript location
func (r *TranscriptRepository) Path() string {
	return fmt.Sprintf("mongodb://%s/%s?transcript=%s", r.collection.Database().Name(), r.collection.Name(), r.name)
}
