package mqtt

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
)

// StatusEvent builds a system event carrying a full status snapshot.
func StatusEvent(snap status.Snapshot, event, reason string, retained bool) SystemEvent {
	return SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
		Retained:   retained,
	}
}

// SignalName maps a shutdown signal to the reason published with SHUTDOWN.
func SignalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// PublishLifecycle publishes a retained STARTUP or SHUTDOWN event with the
// current snapshot. Failures are logged only.
func PublishLifecycle(pub Telemetry, tracker *status.Tracker, event, reason string, now time.Time, log *logger.Logger) {
	tracker.SetMQTTConnected(pub.IsConnected())
	snap := tracker.Snapshot()
	snap.Now = now
	if err := pub.PublishSystem(StatusEvent(snap, event, reason, true)); err != nil {
		log.Warnw("system_publish_failed", "event", event, "err", err)
		return
	}
	log.Infow("system_published", "event", event, "reason", reason)
}

// RunHeartbeat publishes a HEARTBEAT status event whenever interval has
// elapsed, checked on every tick. It returns when ctx is done.
func RunHeartbeat(ctx context.Context, pub Publisher, tracker *status.Tracker, hb *logic.Heartbeat,
	interval time.Duration, tick <-chan time.Time, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick:
			snap := tracker.Snapshot()
			if hb.Check(now, interval, snap.Counts) == nil {
				continue
			}
			snap.Now = now
			if err := pub.PublishSystem(StatusEvent(snap, EventHeartbeat, "", false)); err != nil {
				log.Warnw("heartbeat_publish_failed", "err", err)
			}
		}
	}
}
