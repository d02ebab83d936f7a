package main

import (
	"strconv"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/dispatch"
	"github.com/vpetryaev/GateRTO-1000/internal/linkwatch"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/metrics"
	"github.com/vpetryaev/GateRTO-1000/internal/mqtt"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

// nodeObserver fans trigger loop activity out to the tracker, metrics and
// MQTT. All calls come from the loop goroutine.
type nodeObserver struct {
	tracker *status.Tracker
	metrics *metrics.Trigger
	pub     mqtt.Publisher
	log     *logger.Logger
	now     func() time.Time

	sessions int
}

func (o *nodeObserver) SessionStarted(s *wifi.Session) {
	o.tracker.SetNetwork(linkwatch.NetworkInfo(s))
	o.metrics.Reconnects.Inc()
	o.metrics.BaselineRSSI.Set(float64(s.BaselineRSSI))
	if o.sessions > 0 {
		o.tracker.Count(func(c *logic.EventCounts) { c.Reconnects++ })
	}
	o.sessions++
}

func (o *nodeObserver) LinkLost() {
	o.tracker.SetButton(logic.EdgeReleased)
}

func (o *nodeObserver) Button(edge logic.ButtonEdge) {
	o.tracker.SetButton(edge)
	if edge != logic.EdgePressed {
		return
	}
	o.metrics.Presses.Inc()
	o.tracker.Count(func(c *logic.EventCounts) { c.Presses++ })
	o.publish(logic.Event{Timestamp: o.now(), Type: logic.EventButton, Edge: edge})
}

func (o *nodeObserver) Dispatched(cmd dispatch.Command, reply *dispatch.Reply, err error) {
	event := logic.Event{Timestamp: o.now(), Type: logic.EventDispatch, Command: string(cmd)}
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
		event.Type = logic.EventDispatchFail
		event.Detail = err.Error()
	} else if reply != nil {
		event.Detail = strconv.Itoa(reply.StatusCode)
		event.Position = reply.Position
	}

	o.metrics.Dispatches.WithLabelValues(string(cmd), result).Inc()
	if cmd == dispatch.CommandOpen {
		o.metrics.WeakOpens.Inc()
	}
	o.tracker.Count(func(c *logic.EventCounts) {
		c.Dispatches++
		if err != nil {
			c.DispatchErrors++
		}
	})
	if event.Position != nil {
		o.tracker.SetPosition(*event.Position)
	}
	o.publish(event)
}

func (o *nodeObserver) SignalSampled(rssi int8) {
	o.metrics.RSSI.Set(float64(rssi))
}

func (o *nodeObserver) publish(event logic.Event) {
	if err := o.pub.Publish(event); err != nil {
		o.log.Warnw("publish_failed", "event", event.Type, "err", err)
	}
}
