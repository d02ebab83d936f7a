package main

import (
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/indicator"
	"github.com/vpetryaev/GateRTO-1000/internal/linkwatch"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/metrics"
	"github.com/vpetryaev/GateRTO-1000/internal/mqtt"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

// gateObserver fans gate activity out to the tracker, indicator, metrics
// and MQTT.
type gateObserver struct {
	tracker   *status.Tracker
	indicator *indicator.Indicator
	metrics   *metrics.Actuator
	pub       mqtt.Publisher
	log       *logger.Logger
	now       func() time.Time

	sessions int
}

func (o *gateObserver) PulseStarted(target logic.Target) {
	o.log.Debugw("pulse_started", "target", target)
	o.indicator.SetBusy(true)
}

func (o *gateObserver) PulseFinished(target logic.Target, elapsed time.Duration, err error) {
	o.indicator.SetBusy(false)
	o.metrics.ObservePulse(target, elapsed, err)

	event := logic.Event{Timestamp: o.now(), Type: logic.EventPulse, Target: target}
	o.tracker.Count(func(c *logic.EventCounts) {
		switch {
		case err != nil:
			c.PulseFaults++
		case target == logic.TargetStep:
			c.PulsesStep++
		default:
			c.PulsesFullCycle++
		}
	})
	if err != nil {
		event.Type = logic.EventPulseFault
		event.Detail = err.Error()
	}
	o.publish(event)
}

// PositionRead publishes POSITION only when the reading differs from the
// previous one.
func (o *gateObserver) PositionRead(pos logic.GatePosition) {
	o.metrics.Position.Set(float64(pos))
	if !o.tracker.SetPosition(pos) {
		return
	}
	o.log.Infow("position_changed", "position", pos.String())
	o.publish(logic.Event{Timestamp: o.now(), Type: logic.EventPosition, Position: &pos})
}

// sessionStarted runs on the supervisor goroutine after each connect.
func (o *gateObserver) sessionStarted(s *wifi.Session) {
	o.tracker.SetNetwork(linkwatch.NetworkInfo(s))
	o.metrics.Reconnects.Inc()
	o.metrics.BaselineRSSI.Set(float64(s.BaselineRSSI))
	if o.sessions > 0 {
		o.tracker.Count(func(c *logic.EventCounts) { c.Reconnects++ })
	}
	o.sessions++
}

func (o *gateObserver) publish(event logic.Event) {
	if err := o.pub.Publish(event); err != nil {
		o.log.Warnw("publish_failed", "event", event.Type, "err", err)
	}
}
