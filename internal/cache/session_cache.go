package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vivaroom/internal/model"
)

// SessionMeta is the hot subset of a session kept in Redis so that the
// polling loops never touch MongoDB on the fast path.
type SessionMeta struct {
	ExaminerID      string              `json:"examinerId"`
	Status          model.SessionStatus `json:"status"`
	DurationMinutes int                 `json:"durationMinutes"`
	ActualStartTime *time.Time          `json:"actualStartTime,omitempty"`
}

// SessionCache handles Redis operations for session state
type SessionCache interface {
	SetMeta(ctx context.Context, sessionID string, meta *SessionMeta) error
	GetMeta(ctx context.Context, sessionID string) (*SessionMeta, error)
	SetStatus(ctx context.Context, sessionID string, status model.SessionStatus, startedAt *time.Time) error
	Delete(ctx context.Context, sessionID string) error
}

type sessionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionCache creates a new session cache
func NewSessionCache(client *redis.Client) SessionCache {
	return &sessionCache{
		client: client,
		ttl:    24 * time.Hour, // viva rooms expire after 24h
	}
}

func (c *sessionCache) key(sessionID string) string {
	return fmt.Sprintf("viva:%s", sessionID)
}

func (c *sessionCache) SetMeta(ctx context.Context, sessionID string, meta *SessionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sessionID), data, c.ttl).Err()
}

func (c *sessionCache) GetMeta(ctx context.Context, sessionID string) (*SessionMeta, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta SessionMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *sessionCache) SetStatus(ctx context.Context, sessionID string, status model.SessionStatus, startedAt *time.Time) error {
	meta, err := c.GetMeta(ctx, sessionID)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("session %s not cached", sessionID)
	}
	meta.Status = status
	if startedAt != nil {
		meta.ActualStartTime = startedAt
	}
	return c.SetMeta(ctx, sessionID, meta)
}

func (c *sessionCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
