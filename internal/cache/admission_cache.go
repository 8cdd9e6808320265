package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vivaroom/internal/model"
)

// AdmissionCache mirrors waiting-room state in Redis. Guests poll their own
// status every 2s and the host polls the roster every 3s, so both reads must
// stay cheap and MongoDB-free.
type AdmissionCache interface {
	PutWaiting(ctx context.Context, sessionID string, p *model.Participant) error
	PutAdmitted(ctx context.Context, sessionID string, p *model.Participant) error
	// MarkDecided moves a participant out of the waiting hash and records
	// the terminal status. Admitted participants land in the admitted hash.
	MarkDecided(ctx context.Context, sessionID string, p *model.Participant) error
	GetStatus(ctx context.Context, sessionID, participantID string) (model.ParticipantStatus, bool, error)
	Roster(ctx context.Context, sessionID string) (*model.Roster, error)
}

type admissionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAdmissionCache creates a new admission cache
func NewAdmissionCache(client *redis.Client) AdmissionCache {
	return &admissionCache{
		client: client,
		ttl:    24 * time.Hour,
	}
}

// Key helpers
func (c *admissionCache) waitingKey(sessionID string) string {
	return fmt.Sprintf("viva:%s:waiting", sessionID)
}

func (c *admissionCache) admittedKey(sessionID string) string {
	return fmt.Sprintf("viva:%s:admitted", sessionID)
}

func (c *admissionCache) statusKey(sessionID string) string {
	return fmt.Sprintf("viva:%s:status", sessionID)
}

func (c *admissionCache) PutWaiting(ctx context.Context, sessionID string, p *model.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.waitingKey(sessionID), p.ID, data)
	pipe.HSet(ctx, c.statusKey(sessionID), p.ID, string(p.Status))
	pipe.Expire(ctx, c.waitingKey(sessionID), c.ttl)
	pipe.Expire(ctx, c.statusKey(sessionID), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *admissionCache) PutAdmitted(ctx context.Context, sessionID string, p *model.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.admittedKey(sessionID), p.ID, data)
	pipe.HSet(ctx, c.statusKey(sessionID), p.ID, string(p.Status))
	pipe.Expire(ctx, c.admittedKey(sessionID), c.ttl)
	pipe.Expire(ctx, c.statusKey(sessionID), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *admissionCache) MarkDecided(ctx context.Context, sessionID string, p *model.Participant) error {
	pipe := c.client.TxPipeline()
	pipe.HDel(ctx, c.waitingKey(sessionID), p.ID)
	pipe.HSet(ctx, c.statusKey(sessionID), p.ID, string(p.Status))
	if p.Status == model.ParticipantAdmitted {
		data, err := json.Marshal(p)
		if err != nil {
			return err
		}
		pipe.HSet(ctx, c.admittedKey(sessionID), p.ID, data)
		pipe.Expire(ctx, c.admittedKey(sessionID), c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *admissionCache) GetStatus(ctx context.Context, sessionID, participantID string) (model.ParticipantStatus, bool, error) {
	s, err := c.client.HGet(ctx, c.statusKey(sessionID), participantID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.ParticipantStatus(s), true, nil
}

func (c *admissionCache) Roster(ctx context.Context, sessionID string) (*model.Roster, error) {
	roster := &model.Roster{
		Waiting:  []*model.Participant{},
		Admitted: []*model.Participant{},
	}

	waiting, err := c.client.HGetAll(ctx, c.waitingKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range waiting {
		var p model.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		roster.Waiting = append(roster.Waiting, &p)
	}

	admitted, err := c.client.HGetAll(ctx, c.admittedKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range admitted {
		var p model.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		roster.Admitted = append(roster.Admitted, &p)
	}

	return roster, nil
}
