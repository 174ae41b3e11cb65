package main

import (
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/lockbox/internal/hal"
	"github.com/sweeney/lockbox/internal/mqtt"
	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/status"
)

// controller is everything the tick loop drives.
type controller struct {
	engine    *session.Engine
	device    *hal.Device
	publisher mqtt.Publisher
	conn      mqtt.ConnectionStatus
	tracker   *status.Tracker
	heartbeat time.Duration
	now       func() time.Time
}

// refresh copies engine and device state into the tracker.
func (c *controller) refresh() {
	e := status.Engine{
		Session:          c.engine.Snapshot(),
		SessionID:        c.device.SessionID(),
		KeepAliveStrikes: c.engine.KeepAliveStrikes(),
	}
	if f, ok := c.engine.LastFault(); ok {
		e.LastFault = &f
	}
	deadline, armed := c.device.FailsafeDeadline()
	hw := status.Hardware{
		InterlockEngaged: c.device.IsSafetyInterlockEngaged(),
		InterlockValid:   c.device.IsSafetyInterlockValid(),
		Outputs:          c.device.Outputs(),
		FailsafeArmed:    armed,
		FailsafeDeadline: deadline,
		WatchdogTimeout:  c.device.WatchdogTimeout(),
	}
	c.tracker.Update(e, hw)
	if c.conn != nil {
		c.tracker.SetMQTTConnected(c.conn.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func runLoop(c *controller, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := c.now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			name := signalName(s)
			c.refresh()
			snap := c.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  c.now(),
				Event:      mqtt.EventShutdown,
				Reason:     name,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, name),
			}
			if err := c.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := c.now()
			c.engine.Tick()
			c.device.Feed()
			c.device.PublishPending()
			c.refresh()

			if c.heartbeat > 0 && t.Sub(lastHeartbeat) >= c.heartbeat {
				lastHeartbeat = t
				snap := c.tracker.Snapshot()
				log.Printf("heartbeat: state=%s uptime=%v", snap.Session.State, snap.Uptime().Truncate(time.Second))
				hb := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      mqtt.EventHeartbeat,
					RawPayload: status.FormatStatusEvent(snap, mqtt.EventHeartbeat, ""),
				}
				if err := c.publisher.PublishSystem(hb); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}
