package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"vivaroom/internal/model"
)

type SessionRepo interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	List(ctx context.Context, examinerID string) ([]*model.Session, error)
	// Transition moves the session from one status to another and applies
	// extra field updates in the same write. Returns false when the session
	// was not in the expected status, which callers must treat as a stale
	// state, not an error.
	Transition(ctx context.Context, id string, from, to model.SessionStatus, set bson.M) (bool, error)
}

type sessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepo {
	return &sessionRepo{
		collection: db.Collection("viva_sessions"),
	}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	session.CreatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, session)
	return err
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // Session not found
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) List(ctx context.Context, examinerID string) ([]*model.Session, error) {
	filter := bson.M{}
	if examinerID != "" {
		filter["examinerId"] = examinerID
	}
	cur, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var sessions []*model.Session
	if err := cur.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepo) Transition(ctx context.Context, id string, from, to model.SessionStatus, set bson.M) (bool, error) {
	if set == nil {
		set = bson.M{}
	}
	set["status"] = to

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}
