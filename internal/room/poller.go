package room

import (
	"context"
	"log"
	"sync"
	"time"

	"vivaroom/internal/apiclient"
	"vivaroom/internal/model"
)

// Polling intervals. Admission is polled, not pushed, so a guest with an
// unreliable socket can still discover admission over plain request/response.
const (
	statusPollInterval = 2 * time.Second
	rosterPollInterval = 3 * time.Second
)

// StatusPoller watches a guest's own admission status until it is decided.
type StatusPoller struct {
	api       *apiclient.Client
	sessionID string
	interval  time.Duration

	// C delivers the terminal status (admitted or rejected) exactly once.
	C chan model.ParticipantStatus

	stop     chan struct{}
	stopOnce sync.Once
}

// NewStatusPoller creates a poller at the reference 2s interval.
func NewStatusPoller(api *apiclient.Client, sessionID string) *StatusPoller {
	return &StatusPoller{
		api:       api,
		sessionID: sessionID,
		interval:  statusPollInterval,
		C:         make(chan model.ParticipantStatus, 1),
		stop:      make(chan struct{}),
	}
}

// Run polls until the status is decided or Stop is called. Call from its
// own goroutine.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := p.api.MyStatus(ctx, p.sessionID)
			if err != nil {
				log.Printf("Status poll: %v", err)
				continue
			}
			if status.Decided() {
				p.C <- status
				return
			}
		}
	}
}

// Stop halts the poller. Idempotent; safe to call after the poller finished
// on its own.
func (p *StatusPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// RosterPoller refreshes the host's waiting-room panel.
type RosterPoller struct {
	api       *apiclient.Client
	sessionID string
	interval  time.Duration

	// C delivers each refreshed roster; stale snapshots are dropped when
	// the consumer lags.
	C chan *model.Roster

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRosterPoller creates a poller at the reference 3s interval.
func NewRosterPoller(api *apiclient.Client, sessionID string) *RosterPoller {
	return &RosterPoller{
		api:       api,
		sessionID: sessionID,
		interval:  rosterPollInterval,
		C:         make(chan *model.Roster, 1),
		stop:      make(chan struct{}),
	}
}

// Run polls until Stop. Call from its own goroutine.
func (p *RosterPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			roster, err := p.api.Participants(ctx, p.sessionID)
			if err != nil {
				log.Printf("Roster poll: %v", err)
				continue
			}
			select {
			case p.C <- roster:
			default:
				select {
				case <-p.C:
				default:
				}
				p.C <- roster
			}
		}
	}
}

// Stop halts the poller. Idempotent.
func (p *RosterPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}
