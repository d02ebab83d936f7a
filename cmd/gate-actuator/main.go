// Command gate-actuator drives the gate relays, reads the position sensors
// and serves the HTTP command API while the WiFi link is up.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/vpetryaev/GateRTO-1000/internal/config"
	"github.com/vpetryaev/GateRTO-1000/internal/gate"
	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/indicator"
	"github.com/vpetryaev/GateRTO-1000/internal/linkwatch"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/metrics"
	"github.com/vpetryaev/GateRTO-1000/internal/mqtt"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
	"github.com/vpetryaev/GateRTO-1000/internal/web"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

const (
	nodeName          = "actuator"
	heartbeatInterval = 15 * time.Minute
	shutdownTimeout   = 5 * time.Second
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	httpAddr := flag.String("http", "", "Override actuator.http_addr")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	printState := flag.Bool("print-state", false, "Print the gate position and exit")

	flag.Parse()

	if err := run(*configPath, *httpAddr, *printConfig, *printState); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, httpAddr string, printConfig, printState bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.Actuator.HTTPAddr = httpAddr
	}
	if err := cfg.ValidateActuator(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if printConfig {
		return cfg.Dump(os.Stdout)
	}

	log := logger.New(cfg.Log.Level, nodeName)
	defer log.Sync()
	gin.SetMode(gin.ReleaseMode)

	// Initialize GPIO
	p := cfg.GPIO.Pins
	board, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip, gpio.ActuatorLines(p.GateOpen, p.GateSBS, p.GateOpened, p.GateClosed))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	opened, closed, fullCycle, step, err := takeLines(board)
	if err != nil {
		return err
	}
	estimator := gate.NewEstimator(opened, closed)

	if printState {
		pos, err := estimator.Estimate()
		if err != nil {
			return fmt.Errorf("read sensors: %w", err)
		}
		fmt.Printf("position: %s (%d)\n", pos, uint8(pos))
		return nil
	}

	reg := metrics.NewRegistry()
	m := metrics.NewActuator(reg)

	tracker := status.NewTracker(time.Now(), status.Config{
		Node:     nodeName,
		PulseMs:  cfg.Actuator.Pulse.Milliseconds(),
		Broker:   cfg.MQTT.Broker,
		HTTPAddr: cfg.Actuator.HTTPAddr,
	})

	pub, err := mqtt.Dial(mqtt.Options{
		Broker:             cfg.MQTT.Broker,
		ClientID:           cfg.MQTT.ClientID,
		Topics:             mqtt.NewTopics(cfg.MQTT.TopicPrefix, nodeName),
		OnConnectionChange: tracker.SetMQTTConnected,
	}, log.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer pub.Close()

	ind := indicator.New(indicator.LogDisplay{Log: log.Named("indicator")}, log.Named("indicator"), tracker.SetColor)
	obs := &gateObserver{tracker: tracker, indicator: ind, metrics: m, pub: pub, log: log, now: time.Now}
	pulser := gate.NewPulser(fullCycle, step, cfg.Actuator.Pulse, log.Named("pulser"))
	g := gate.New(estimator, pulser, obs)

	link := newLinkManager(cfg, log.Named("wifi"), linkwatch.New(tracker, ind, m.Link, pub))

	opts := []web.Option{web.WithGate(g), web.WithRequestMetrics(m)}
	if cfg.Metrics.Enabled {
		opts = append(opts, web.WithMetrics(reg))
	}
	handler := web.NewHandler(tracker, log.Named("http"), opts...)
	routes := handler.InitRoutes()

	mqtt.PublishLifecycle(pub, tracker, mqtt.EventStartup, "", time.Now(), log)
	log.Infow("started",
		"http", cfg.Actuator.HTTPAddr, "pulse", cfg.Actuator.Pulse,
		"link_check", cfg.Actuator.LinkCheck, "broker", cfg.MQTT.Broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	linkTicker := time.NewTicker(cfg.Actuator.LinkCheck)
	defer linkTicker.Stop()
	hbTicker := time.NewTicker(time.Minute)
	defer hbTicker.Stop()

	start := func() (stopper, error) {
		return startServer(cfg.Actuator.HTTPAddr, routes, handler.CloseStreams, log)
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return runSupervisor(ctx, link, start, linkTicker.C, obs.sessionStarted, log)
	})
	grp.Go(func() error {
		mqtt.RunHeartbeat(ctx, pub, tracker, logic.NewHeartbeat(time.Now()), heartbeatInterval, hbTicker.C, log)
		return nil
	})
	grp.Go(func() error {
		return awaitSignal(ctx, cancel, sigCh, pub, tracker, time.Now, log)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func takeLines(board *gpio.Board) (opened, closed gpio.Input, fullCycle, step gpio.Output, err error) {
	if opened, err = board.TakeInput(gpio.LineGateOpened); err != nil {
		return
	}
	if closed, err = board.TakeInput(gpio.LineGateClosed); err != nil {
		return
	}
	if fullCycle, err = board.TakeOutput(gpio.LineGateOpen); err != nil {
		return
	}
	step, err = board.TakeOutput(gpio.LineGateSBS)
	return
}

func newLinkManager(cfg *config.Config, log *logger.Logger, obs *linkwatch.Observer) *wifi.Manager {
	radio := wifi.NewWPARadio(cfg.WiFi.Interface, cfg.WiFi.AssociateTimeout, cfg.WiFi.LeaseTimeout)
	return wifi.NewManager(radio,
		wifi.Credentials{SSID: cfg.WiFi.SSID, PSK: cfg.WiFi.PSK},
		wifi.Policy{Initial: cfg.WiFi.RetryBackoff, Max: cfg.WiFi.MaxBackoff},
		log,
		obs.Hooks()...,
	)
}

// startServer binds addr before returning so bind errors surface to the
// supervisor, then serves in the background. onShutdown runs when the
// supervisor stops the server.
func startServer(addr string, routes http.Handler, onShutdown func(), log *logger.Logger) (stopper, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := web.New(addr, routes)
	srv.RegisterOnShutdown(onShutdown)
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorw("http_server_failed", "err", err)
		}
	}()
	log.Infow("http_listening", "addr", ln.Addr().String())
	return srv, nil
}

// awaitSignal publishes SHUTDOWN on SIGINT/SIGTERM and cancels the daemon.
func awaitSignal(ctx context.Context, cancel context.CancelFunc, sig <-chan os.Signal,
	pub mqtt.Telemetry, tracker *status.Tracker, now func() time.Time, log *logger.Logger) error {
	select {
	case <-ctx.Done():
		return nil
	case s := <-sig:
		log.Infow("shutting_down", "signal", s.String())
		mqtt.PublishLifecycle(pub, tracker, mqtt.EventShutdown, mqtt.SignalName(s), now(), log)
		cancel()
		return nil
	}
}
