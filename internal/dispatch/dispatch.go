// Package dispatch sends gate commands from the Trigger Node to the
// Actuator Node over HTTP.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// Command is an operator intent sent to the actuator.
type Command string

const (
	CommandOpen Command = "open"
	CommandStep Command = "step"
)

// maxBody caps how much of a reply body is read.
const maxBody = 64

// RequestIDHeader carries a per-request UUID for log correlation.
const RequestIDHeader = "X-Request-Id"

// NetworkError reports that a command could not be delivered (connect,
// write or read failure). It is never fatal to the trigger loop.
type NetworkError struct {
	Command Command
	URL     string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("dispatch %s to %s: %v", e.Command, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ErrUnknownCommand is returned for commands with no configured URL.
var ErrUnknownCommand = errors.New("dispatch: unknown command")

// Reply is what the actuator answered. Only transport success matters to
// callers; the body is informational.
type Reply struct {
	RequestID  string
	StatusCode int
	Body       string
	// Position is set when the body parses as {"s":N} with a valid N.
	Position *logic.GatePosition
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Client) { d.http = c }
}

// WithRetries sets how many extra attempts follow a transport failure and
// the wait between them. Zero (the default) means one attempt.
func WithRetries(n int, wait time.Duration) Option {
	return func(d *Client) {
		d.retries = n
		d.retryWait = wait
	}
}

// Client issues command requests.
type Client struct {
	http      *http.Client
	urls      map[Command]string
	retries   int
	retryWait time.Duration
	log       *logger.Logger
}

// New returns a client for the given command URLs. timeout bounds each
// request.
func New(urls map[Command]string, timeout time.Duration, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: timeout},
		urls: urls,
		log:  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch sends cmd and waits for the reply. Non-2xx replies are logged but
// are not errors.
func (c *Client) Dispatch(ctx context.Context, cmd Command) (*Reply, error) {
	url, ok := c.urls[cmd]
	if !ok || url == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	var reply *Reply
	attempt := func() error {
		r, err := c.send(ctx, cmd, url)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		reply = r
		return nil
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryWait), uint64(c.retries)), ctx)
	notify := func(err error, wait time.Duration) {
		c.log.Warnw("dispatch_retry", "command", cmd, "err", err, "wait", wait)
	}
	if err := backoff.RetryNotify(attempt, b, notify); err != nil {
		var ne *NetworkError
		if errors.As(err, &ne) {
			return nil, ne
		}
		return nil, &NetworkError{Command: cmd, URL: url, Err: err}
	}
	return reply, nil
}

func (c *Client) send(ctx context.Context, cmd Command, url string) (*Reply, error) {
	id := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{Command: cmd, URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, id)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Command: cmd, URL: url, Err: err}
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &NetworkError{Command: cmd, URL: url, Err: err}
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	reply := &Reply{RequestID: id, StatusCode: resp.StatusCode}
	if utf8.Valid(buf) {
		reply.Body = string(buf)
		reply.Position = parsePosition(buf)
	} else {
		c.log.Warnw("dispatch_reply_not_utf8", "command", cmd, "bytes", len(buf))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warnw("dispatch_rejected", "command", cmd, "status", resp.StatusCode, "body", reply.Body, "request_id", id)
	} else {
		c.log.Infow("dispatch_ok", "command", cmd, "status", resp.StatusCode, "body", reply.Body,
			"request_id", id, "latency", time.Since(start))
	}
	return reply, nil
}

func parsePosition(body []byte) *logic.GatePosition {
	var v struct {
		S *int `json:"s"`
	}
	if err := json.Unmarshal(body, &v); err != nil || v.S == nil {
		return nil
	}
	if *v.S < 0 || *v.S > 255 {
		return nil
	}
	pos := logic.GatePosition(*v.S)
	if !pos.Valid() {
		return nil
	}
	return &pos
}
