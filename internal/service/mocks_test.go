package service

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"vivaroom/internal/cache"
	"vivaroom/internal/model"
)

// In-memory doubles of the Mongo repositories and Redis caches. The
// Transition and Decide implementations mirror the conditional-write
// semantics of the real ones: the update applies only when the stored
// status still matches, so the race-losing path is testable.

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*model.Session{}}
}

func (r *memSessionRepo) Create(ctx context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.CreatedAt = time.Now()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) List(ctx context.Context, examinerID string) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for _, s := range r.sessions {
		if examinerID == "" || s.ExaminerID == examinerID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) Transition(ctx context.Context, id string, from, to model.SessionStatus, set bson.M) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	for k, v := range set {
		switch k {
		case "actualStartTime":
			t := v.(time.Time)
			s.ActualStartTime = &t
		case "marksObtained":
			n := v.(int)
			s.MarksObtained = &n
		case "maxMarks":
			n := v.(int)
			s.MaxMarks = &n
		case "remarks":
			s.Remarks = v.(string)
		case "missReason":
			s.MissReason = v.(string)
		case "endedAt":
			t := v.(time.Time)
			s.EndedAt = &t
		}
	}
	return true, nil
}

// forceStatus flips the stored status behind the service's back, simulating
// a concurrent writer that won the conditional update first.
func (r *memSessionRepo) forceStatus(id string, status model.SessionStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id].Status = status
}

type memParticipantRepo struct {
	mu           sync.Mutex
	participants map[string]*model.Participant
	order        []string
}

func newMemParticipantRepo() *memParticipantRepo {
	return &memParticipantRepo{participants: map[string]*model.Participant{}}
}

func (r *memParticipantRepo) Create(ctx context.Context, p *model.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.participants[p.ID] = &cp
	r.order = append(r.order, p.ID)
	return nil
}

func (r *memParticipantRepo) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memParticipantRepo) LatestForUser(ctx context.Context, sessionID, userID string) (*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		p := r.participants[r.order[i]]
		if p.SessionID == sessionID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memParticipantRepo) ListBySession(ctx context.Context, sessionID string) ([]*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Participant
	for _, id := range r.order {
		if p := r.participants[id]; p.SessionID == sessionID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memParticipantRepo) ListByStatus(ctx context.Context, sessionID string, status model.ParticipantStatus) ([]*model.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Participant
	for _, id := range r.order {
		if p := r.participants[id]; p.SessionID == sessionID && p.Status == status {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memParticipantRepo) Decide(ctx context.Context, id string, to model.ParticipantStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok || p.Status != model.ParticipantPending {
		return false, nil
	}
	now := time.Now()
	p.Status = to
	p.DecidedAt = &now
	return true, nil
}

type memSessionCache struct {
	mu   sync.Mutex
	meta map[string]*cache.SessionMeta
}

func newMemSessionCache() *memSessionCache {
	return &memSessionCache{meta: map[string]*cache.SessionMeta{}}
}

func (c *memSessionCache) SetMeta(ctx context.Context, sessionID string, meta *cache.SessionMeta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *meta
	c.meta[sessionID] = &cp
	return nil
}

func (c *memSessionCache) GetMeta(ctx context.Context, sessionID string) (*cache.SessionMeta, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.meta[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (c *memSessionCache) SetStatus(ctx context.Context, sessionID string, status model.SessionStatus, startedAt *time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.meta[sessionID]
	if !ok {
		m = &cache.SessionMeta{}
		c.meta[sessionID] = m
	}
	m.Status = status
	if startedAt != nil {
		m.ActualStartTime = startedAt
	}
	return nil
}

func (c *memSessionCache) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.meta, sessionID)
	return nil
}

type memAdmissionCache struct {
	mu       sync.Mutex
	waiting  map[string]map[string]*model.Participant
	admitted map[string]map[string]*model.Participant
	status   map[string]map[string]model.ParticipantStatus
}

func newMemAdmissionCache() *memAdmissionCache {
	return &memAdmissionCache{
		waiting:  map[string]map[string]*model.Participant{},
		admitted: map[string]map[string]*model.Participant{},
		status:   map[string]map[string]model.ParticipantStatus{},
	}
}

func (c *memAdmissionCache) put(m map[string]map[string]*model.Participant, sessionID string, p *model.Participant) {
	if m[sessionID] == nil {
		m[sessionID] = map[string]*model.Participant{}
	}
	cp := *p
	m[sessionID][p.ID] = &cp
}

func (c *memAdmissionCache) setStatus(sessionID, participantID string, s model.ParticipantStatus) {
	if c.status[sessionID] == nil {
		c.status[sessionID] = map[string]model.ParticipantStatus{}
	}
	c.status[sessionID][participantID] = s
}

func (c *memAdmissionCache) PutWaiting(ctx context.Context, sessionID string, p *model.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(c.waiting, sessionID, p)
	c.setStatus(sessionID, p.ID, p.Status)
	return nil
}

func (c *memAdmissionCache) PutAdmitted(ctx context.Context, sessionID string, p *model.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(c.admitted, sessionID, p)
	c.setStatus(sessionID, p.ID, p.Status)
	return nil
}

func (c *memAdmissionCache) MarkDecided(ctx context.Context, sessionID string, p *model.Participant) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w := c.waiting[sessionID]; w != nil {
		delete(w, p.ID)
	}
	if p.Status == model.ParticipantAdmitted {
		c.put(c.admitted, sessionID, p)
	}
	c.setStatus(sessionID, p.ID, p.Status)
	return nil
}

func (c *memAdmissionCache) GetStatus(ctx context.Context, sessionID, participantID string) (model.ParticipantStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.status[sessionID][participantID]
	return s, ok, nil
}

func (c *memAdmissionCache) Roster(ctx context.Context, sessionID string) (*model.Roster, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roster := &model.Roster{}
	for _, p := range c.waiting[sessionID] {
		cp := *p
		roster.Waiting = append(roster.Waiting, &cp)
	}
	for _, p := range c.admitted[sessionID] {
		cp := *p
		roster.Admitted = append(roster.Admitted, &cp)
	}
	return roster, nil
}

type recordedBroadcast struct {
	SessionID string
	Kind      string
	Payload   interface{}
}

type memBroadcaster struct {
	mu    sync.Mutex
	calls []recordedBroadcast
}

func (b *memBroadcaster) BroadcastToRoom(sessionID, kind string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, recordedBroadcast{sessionID, kind, payload})
}

func (b *memBroadcaster) kinds() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.Kind
	}
	return out
}
