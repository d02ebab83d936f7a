// Package trigger runs the Trigger Node control loop: keep the link up,
// request an automatic open when arriving on a weak signal, and turn button
// presses into step commands.
package trigger

import (
	"context"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/dispatch"
	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

// Link is the connectivity manager as used by the loop.
type Link interface {
	Connect(ctx context.Context) (*wifi.Session, error)
	IsConnected(ctx context.Context) bool
	CurrentRSSI(ctx context.Context) (int8, error)
}

// Dispatcher sends commands to the actuator.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dispatch.Command) (*dispatch.Reply, error)
}

// Indicator receives control-state flags.
type Indicator interface {
	SetCooldown(on bool)
	SetWeakSignalOpen(on bool)
	SetBusy(on bool)
}

// Observer is told about loop activity (status, metrics, telemetry).
type Observer interface {
	SessionStarted(s *wifi.Session)
	LinkLost()
	Button(edge logic.ButtonEdge)
	Dispatched(cmd dispatch.Command, reply *dispatch.Reply, err error)
	SignalSampled(rssi int8)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) SessionStarted(*wifi.Session)                        {}
func (NopObserver) LinkLost()                                           {}
func (NopObserver) Button(logic.ButtonEdge)                             {}
func (NopObserver) Dispatched(dispatch.Command, *dispatch.Reply, error) {}
func (NopObserver) SignalSampled(int8)                                  {}

// Config holds the loop timing and threshold.
type Config struct {
	MinRSSI          int8
	Poll             time.Duration
	Debounce         time.Duration
	WeakSignalHold   time.Duration
	LinkLossCooldown time.Duration
	RSSIInterval     time.Duration
}

// Option configures a Node.
type Option func(*Node)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(n *Node) { n.now = now }
}

// WithSleep replaces the cancellable sleep used for holds and cooldowns.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(n *Node) { n.sleep = sleep }
}

// WithTicker replaces the poll ticker. The returned func stops it.
func WithTicker(newTicker func(d time.Duration) (<-chan time.Time, func())) Option {
	return func(n *Node) { n.newTicker = newTicker }
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(n *Node) { n.obs = o }
}

// Node is the Trigger Node control loop.
type Node struct {
	cfg        Config
	link       Link
	button     gpio.Input
	dispatcher Dispatcher
	ind        Indicator
	obs        Observer
	log        *logger.Logger

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	newTicker func(d time.Duration) (<-chan time.Time, func())
}

// New builds a Node. The button input is active-low.
func New(cfg Config, link Link, button gpio.Input, d Dispatcher, ind Indicator, log *logger.Logger, opts ...Option) *Node {
	n := &Node{
		cfg:        cfg,
		link:       link,
		button:     button,
		dispatcher: d,
		ind:        ind,
		obs:        NopObserver{},
		log:        log,
		now:        time.Now,
		sleep:      sleepCtx,
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run loops over sessions until ctx is done, then returns ctx.Err().
func (n *Node) Run(ctx context.Context) error {
	for {
		if err := n.runSession(ctx); err != nil {
			return err
		}
	}
}

// runSession connects, handles the weak-signal open, then polls the button
// until the link drops. It returns nil after the link-loss cooldown.
func (n *Node) runSession(ctx context.Context) error {
	sess, err := n.link.Connect(ctx)
	if err != nil {
		return err
	}
	n.obs.SessionStarted(sess)

	if sess.BaselineRSSI < n.cfg.MinRSSI {
		n.log.Infow("weak_signal_open", "baseline_rssi", sess.BaselineRSSI, "min_rssi", n.cfg.MinRSSI)
		n.ind.SetWeakSignalOpen(true)
		n.send(ctx, dispatch.CommandOpen)
		err := n.sleep(ctx, n.cfg.WeakSignalHold)
		n.ind.SetWeakSignalOpen(false)
		if err != nil {
			return err
		}
	}

	detector := logic.NewEdgeDetector(n.cfg.Debounce)
	tick, stop := n.newTicker(n.cfg.Poll)
	defer stop()
	lastRSSI := n.now()

	for {
		select {
		case <-ctx.Done():
			n.ind.SetBusy(false)
			return ctx.Err()
		case <-tick:
		}

		now := n.now()
		n.pollButton(ctx, detector, now)

		if n.cfg.RSSIInterval > 0 && now.Sub(lastRSSI) >= n.cfg.RSSIInterval {
			lastRSSI = now
			if rssi, err := n.link.CurrentRSSI(ctx); err != nil {
				n.log.Debugw("rssi_sample_failed", "err", err)
			} else {
				n.log.Debugw("rssi", "dbm", rssi)
				n.obs.SignalSampled(rssi)
			}
		}

		if !n.link.IsConnected(ctx) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return n.cooldown(ctx)
		}
	}
}

func (n *Node) pollButton(ctx context.Context, detector *logic.EdgeDetector, now time.Time) {
	high, err := n.button.Read()
	if err != nil {
		n.log.Warnw("button_read_failed", "err", err)
		return
	}
	for _, edge := range detector.Process(logic.Sample{Active: !high, Time: now}) {
		n.obs.Button(edge)
		switch edge {
		case logic.EdgePressed:
			n.log.Infow("button_pressed")
			n.ind.SetBusy(true)
			n.send(ctx, dispatch.CommandStep)
		case logic.EdgeReleased:
			n.log.Debugw("button_released")
			n.ind.SetBusy(false)
		}
	}
}

// send dispatches cmd. Failures are logged and otherwise ignored.
func (n *Node) send(ctx context.Context, cmd dispatch.Command) {
	reply, err := n.dispatcher.Dispatch(ctx, cmd)
	if err != nil {
		n.log.Warnw("dispatch_failed", "command", cmd, "err", err)
	}
	n.obs.Dispatched(cmd, reply, err)
}

func (n *Node) cooldown(ctx context.Context) error {
	n.log.Warnw("link_lost", "cooldown", n.cfg.LinkLossCooldown)
	n.obs.LinkLost()
	n.ind.SetBusy(false)
	n.ind.SetCooldown(true)
	err := n.sleep(ctx, n.cfg.LinkLossCooldown)
	n.ind.SetCooldown(false)
	return err
}
