package hal

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/sweeney/lockbox/internal/mqtt"
	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/store"
)

// transition records a state change carried by snap: it opens and closes
// session history rows and queues an MQTT event. Same-state saves are
// ignored.
func (d *Device) transition(ctx context.Context, snap session.Snapshot) {
	now := d.now()

	d.mu.Lock()
	from := d.lastState
	if from == snap.State {
		d.mu.Unlock()
		return
	}
	d.lastState = snap.State

	var (
		begin   *store.SessionRecord
		endID   string
		outcome session.Outcome
	)
	switch {
	case snap.State == session.StateArmed && from == session.StateReady:
		d.sessionID = uuid.NewString()
		begin = &store.SessionRecord{ID: d.sessionID, StartedAt: now, LockDuration: snap.Timers.LockDuration}
	case snap.State == session.StateCompleted:
		endID, outcome = d.sessionID, session.OutcomeSuccess
	case snap.State == session.StateAborted:
		endID, outcome = d.sessionID, session.OutcomeAborted
	case snap.State == session.StateReady && from == session.StateArmed:
		// Armed timeout: the session never locked.
		endID, outcome = d.sessionID, session.OutcomeAborted
	}
	id := d.sessionID
	if snap.State == session.StateReady || snap.State == session.StateTesting {
		d.sessionID = ""
	}
	d.events = append(d.events, mqtt.SessionEvent{
		Timestamp: now,
		SessionID: id,
		From:      from,
		To:        snap.State,
		Outcome:   outcome,
		Timers:    snap.Timers,
		Stats:     snap.Stats,
		HideTimer: snap.Config.HideTimer,
	})
	d.mu.Unlock()

	if begin != nil {
		if err := d.store.BeginSession(ctx, *begin); err != nil {
			log.Printf("hal: failed to record session start: %v", err)
		}
	}
	if endID != "" {
		err := d.store.EndSession(ctx, endID, outcome, now, snap.Timers.PenaltyDuration, snap.Stats.PaybackAccumulated)
		if err != nil {
			log.Printf("hal: failed to record session end: %v", err)
		}
	}
}

// PublishPending sends queued session events, oldest first. Publish errors
// are logged and the event dropped; the publisher buffers while offline.
func (d *Device) PublishPending() {
	d.mu.Lock()
	events := d.events
	d.events = nil
	d.mu.Unlock()

	for _, ev := range events {
		if err := d.pub.PublishSession(ev); err != nil {
			log.Printf("hal: failed to publish %s -> %s: %v", ev.From, ev.To, err)
		}
	}
}
