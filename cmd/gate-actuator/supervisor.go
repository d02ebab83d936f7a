package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/wifi"
)

// link is the part of wifi.Manager the supervisor needs.
type link interface {
	Connect(ctx context.Context) (*wifi.Session, error)
	IsConnected(ctx context.Context) bool
}

// stopper is a running command server.
type stopper interface {
	Shutdown(ctx context.Context) error
}

// runSupervisor keeps the command server running only while the link is
// up. The link is checked on every tick; on loss the server is shut down,
// which closes open websocket streams and waits for in-flight handlers (and
// so in-flight pulses), and a fresh server is started after reconnecting. It returns when ctx is done.
func runSupervisor(ctx context.Context, l link, start func() (stopper, error), tick <-chan time.Time,
	onSession func(*wifi.Session), log *logger.Logger) error {
	for {
		sess, err := l.Connect(ctx)
		if err != nil {
			return err
		}
		onSession(sess)

		srv, err := start()
		if err != nil {
			return fmt.Errorf("start command server: %w", err)
		}

		err = watchLink(ctx, l, tick)

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if serr := srv.Shutdown(stopCtx); serr != nil {
			log.Warnw("http_shutdown_failed", "err", serr)
		}
		cancel()

		if err != nil {
			return err
		}
		log.Warnw("link_lost", "action", "reconnect")
	}
}

// watchLink returns nil once the link is reported down, or ctx.Err().
func watchLink(ctx context.Context, l link, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			if l.IsConnected(ctx) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
	}
}
