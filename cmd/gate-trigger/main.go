// Command gate-trigger watches the remote button and sends gate commands to
// the actuator over WiFi.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/vpetryaev/GateRTO-1000/internal/config"
	"github.com/vpetryaev/GateRTO-1000/internal/dispatch"
	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/indicator"
	"github.com/vpetryaev/GateRTO-1000/internal/linkwatch"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/metrics"
	"github.com/vpetryaev/GateRTO-1000/internal/mqtt"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
	"github.com/vpetryaev/GateRTO-1000/internal/trigger"
	"github.com/vpetryaev/GateRTO-1000/internal/web"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

const (
	nodeName          = "trigger"
	heartbeatInterval = 15 * time.Minute
	dispatchRetryWait = time.Second
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	httpAddr := flag.String("http", "", `Override trigger.http_addr ("off" disables the status server)`)
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	printState := flag.Bool("print-state", false, "Print the button level and exit")

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
	switch httpAddr {
	case "":
	case "off":
		cfg.Trigger.HTTPAddr = ""
	default:
		cfg.Trigger.HTTPAddr = httpAddr
	}
	if err := cfg.ValidateTrigger(); err != nil {
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
	board, err := gpio.Open(cfg.GPIO.Backend, cfg.GPIO.Chip, gpio.TriggerLines(p.Button, p.LEDRed, p.LEDGreen, p.LEDBlue))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	button, red, green, blue, err := takeLines(board)
	if err != nil {
		return err
	}

	if printState {
		high, err := button.Read()
		if err != nil {
			return fmt.Errorf("read button: %w", err)
		}
		fmt.Printf("button: %s\n", buttonString(high))
		return nil
	}

	reg := metrics.NewRegistry()
	m := metrics.NewTrigger(reg)

	tracker := status.NewTracker(time.Now(), status.Config{
		Node:       nodeName,
		PollMs:     cfg.Trigger.Poll.Milliseconds(),
		DebounceMs: cfg.Trigger.Debounce.Milliseconds(),
		MinRSSI:    cfg.Trigger.MinRSSI,
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.Trigger.HTTPAddr,
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

	ind := indicator.New(indicator.NewRGBLED(red, green, blue), log.Named("indicator"), tracker.SetColor)
	lo := linkwatch.New(tracker, ind, m.Link, pub, linkwatch.WithWeakSignal(cfg.MinRSSI()))
	link := wifi.NewManager(
		wifi.NewWPARadio(cfg.WiFi.Interface, cfg.WiFi.AssociateTimeout, cfg.WiFi.LeaseTimeout),
		wifi.Credentials{SSID: cfg.WiFi.SSID, PSK: cfg.WiFi.PSK},
		wifi.Policy{Initial: cfg.WiFi.RetryBackoff, Max: cfg.WiFi.MaxBackoff},
		log.Named("wifi"),
		lo.Hooks()...,
	)

	dispatcher := dispatch.New(map[dispatch.Command]string{
		dispatch.CommandOpen: cfg.Trigger.GateOpenURL,
		dispatch.CommandStep: cfg.Trigger.GateSBSURL,
	}, cfg.Trigger.DispatchTimeout, log.Named("dispatch"),
		dispatch.WithRetries(cfg.Trigger.DispatchRetries, dispatchRetryWait))

	obs := &nodeObserver{tracker: tracker, metrics: m, pub: pub, log: log, now: time.Now}
	node := trigger.New(trigger.Config{
		MinRSSI:          cfg.MinRSSI(),
		Poll:             cfg.Trigger.Poll,
		Debounce:         cfg.Trigger.Debounce,
		WeakSignalHold:   cfg.Trigger.WeakSignalHold,
		LinkLossCooldown: cfg.Trigger.LinkLossCooldown,
		RSSIInterval:     cfg.Trigger.RSSIInterval,
	}, link, button, dispatcher, ind, log.Named("loop"), trigger.WithObserver(obs))

	mqtt.PublishLifecycle(pub, tracker, mqtt.EventStartup, "", time.Now(), log)
	log.Infow("started",
		"poll", cfg.Trigger.Poll, "debounce", cfg.Trigger.Debounce, "min_rssi", cfg.Trigger.MinRSSI,
		"sbs_url", cfg.Trigger.GateSBSURL, "open_url", cfg.Trigger.GateOpenURL, "broker", cfg.MQTT.Broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	hbTicker := time.NewTicker(time.Minute)
	defer hbTicker.Stop()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return node.Run(ctx)
	})
	grp.Go(func() error {
		mqtt.RunHeartbeat(ctx, pub, tracker, logic.NewHeartbeat(time.Now()), heartbeatInterval, hbTicker.C, log)
		return nil
	})
	grp.Go(func() error {
		return awaitSignal(ctx, cancel, sigCh, pub, tracker, time.Now, log)
	})

	// Start HTTP status server
	if cfg.Trigger.HTTPAddr != "" {
		var opts []web.Option
		if cfg.Metrics.Enabled {
			opts = append(opts, web.WithMetrics(reg))
		}
		srv := web.New(cfg.Trigger.HTTPAddr, web.NewHandler(tracker, log.Named("http"), opts...).InitRoutes())
		grp.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("http_server_failed", "err", err)
			}
			return nil
		})
		grp.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
		log.Infow("http_listening", "addr", cfg.Trigger.HTTPAddr)
	}

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func takeLines(board *gpio.Board) (button gpio.Input, red, green, blue gpio.Output, err error) {
	if button, err = board.TakeInput(gpio.LineButton); err != nil {
		return
	}
	if red, err = board.TakeOutput(gpio.LineLEDRed); err != nil {
		return
	}
	if green, err = board.TakeOutput(gpio.LineLEDGreen); err != nil {
		return
	}
	blue, err = board.TakeOutput(gpio.LineLEDBlue)
	return
}

// buttonString reports the pulled-up button level; low means pressed.
func buttonString(high bool) string {
	if high {
		return "RELEASED"
	}
	return "PRESSED"
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
