package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vivaroom/internal/model"
)

type RecordingRepo interface {
	// SaveIfNewer stores the artifact unless a newer one already exists for
	// the session. Returns false when the existing artifact was kept.
	SaveIfNewer(ctx context.Context, artifact *model.RecordingArtifact) (bool, error)
	GetBySession(ctx context.Context, sessionID string) (*model.RecordingArtifact, error)
}

type recordingRepo struct {
	collection *mongo.Collection
}

func NewRecordingRepo(db *mongo.Database) RecordingRepo {
	return &recordingRepo{
		collection: db.Collection("viva_recordings"),
	}
}

func (r *recordingRepo) SaveIfNewer(ctx context.Context, artifact *model.RecordingArtifact) (bool, error) {
	// One document per session, keyed by session id. The uploadedAt guard
	// makes a duplicate upload replace-if-newer rather than merge.
	filter := bson.M{
		"_id":        artifact.SessionID,
		"uploadedAt": bson.M{"$lt": artifact.UploadedAt},
	}
	opts := options.Replace().SetUpsert(true)
	res, err := r.collection.ReplaceOne(ctx, filter, artifact, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Raced with a newer upload; the existing artifact wins.
			return false, nil
		}
		return false, err
	}
	return res.ModifiedCount == 1 || res.UpsertedCount == 1, nil
}

func (r *recordingRepo) GetBySession(ctx context.Context, sessionID string) (*model.RecordingArtifact, error) {
	var artifact model.RecordingArtifact
	err := r.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&artifact)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &artifact, nil
}
