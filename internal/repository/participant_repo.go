package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vivaroom/internal/model"
)

type ParticipantRepo interface {
	Create(ctx context.Context, p *model.Participant) error
	GetByID(ctx context.Context, id string) (*model.Participant, error)
	// LatestForUser returns the most recent join attempt of a user on a
	// session, or nil when the user never requested to join.
	LatestForUser(ctx context.Context, sessionID, userID string) (*model.Participant, error)
	ListBySession(ctx context.Context, sessionID string) ([]*model.Participant, error)
	ListByStatus(ctx context.Context, sessionID string, status model.ParticipantStatus) ([]*model.Participant, error)
	// Decide moves a pending participant to admitted or rejected. Returns
	// false when the participant was not pending.
	Decide(ctx context.Context, id string, to model.ParticipantStatus) (bool, error)
}

type participantRepo struct {
	collection *mongo.Collection
}

func NewParticipantRepo(db *mongo.Database) ParticipantRepo {
	return &participantRepo{
		collection: db.Collection("viva_participants"),
	}
}

func (r *participantRepo) Create(ctx context.Context, p *model.Participant) error {
	_, err := r.collection.InsertOne(ctx, p)
	return err
}

func (r *participantRepo) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	var p model.Participant
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *participantRepo) LatestForUser(ctx context.Context, sessionID, userID string) (*model.Participant, error) {
	opts := options.FindOne().SetSort(bson.M{"requestedAt": -1})
	var p model.Participant
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID, "userId": userID}, opts).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *participantRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	return r.list(ctx, bson.M{"sessionId": sessionID})
}

func (r *participantRepo) ListByStatus(ctx context.Context, sessionID string, status model.ParticipantStatus) ([]*model.Participant, error) {
	return r.list(ctx, bson.M{"sessionId": sessionID, "status": status})
}

func (r *participantRepo) list(ctx context.Context, filter bson.M) ([]*model.Participant, error) {
	cur, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.Participant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *participantRepo) Decide(ctx context.Context, id string, to model.ParticipantStatus) (bool, error) {
	now := time.Now()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": model.ParticipantPending},
		bson.M{"$set": bson.M{"status": to, "decidedAt": now}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
