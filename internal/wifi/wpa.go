package wifi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// WPARadio drives wpa_supplicant through wpa_cli.
type WPARadio struct {
	iface            string
	run              Runner
	scanWait         time.Duration
	poll             time.Duration
	associateTimeout time.Duration
	leaseTimeout     time.Duration
}

// WPAOption configures a WPARadio.
type WPAOption func(*WPARadio)

// WithRunner replaces the command runner (tests).
func WithRunner(run Runner) WPAOption {
	return func(r *WPARadio) { r.run = run }
}

// WithPollInterval sets how often status is polled while waiting.
func WithPollInterval(d time.Duration) WPAOption {
	return func(r *WPARadio) { r.poll = d }
}

// WithScanWait sets the delay between triggering a scan and reading results.
func WithScanWait(d time.Duration) WPAOption {
	return func(r *WPARadio) { r.scanWait = d }
}

// NewWPARadio returns a radio bound to iface (e.g. wlan0).
func NewWPARadio(iface string, associateTimeout, leaseTimeout time.Duration, opts ...WPAOption) *WPARadio {
	r := &WPARadio{
		iface:            iface,
		run:              execRunner,
		scanWait:         3 * time.Second,
		poll:             250 * time.Millisecond,
		associateTimeout: associateTimeout,
		leaseTimeout:     leaseTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *WPARadio) cli(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-i", r.iface}, args...)
	out, err := r.run(ctx, "wpa_cli", full...)
	text := strings.TrimSpace(string(out))
	if err != nil {
		return "", fmt.Errorf("wpa_cli %s: %w (%s)", args[0], err, text)
	}
	if strings.HasPrefix(text, "FAIL") {
		return "", fmt.Errorf("wpa_cli %s: %s", args[0], text)
	}
	return text, nil
}

func (r *WPARadio) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scan triggers a scan and returns its results.
func (r *WPARadio) Scan(ctx context.Context) ([]AccessPoint, error) {
	if _, err := r.cli(ctx, "scan"); err != nil {
		return nil, err
	}
	if err := r.wait(ctx, r.scanWait); err != nil {
		return nil, err
	}
	out, err := r.cli(ctx, "scan_results")
	if err != nil {
		return nil, err
	}
	return parseScanResults(out), nil
}

// Associate replaces any configured network with ap, restricted to its
// frequency, and waits for wpa_state=COMPLETED.
func (r *WPARadio) Associate(ctx context.Context, creds Credentials, ap AccessPoint) error {
	if _, err := r.cli(ctx, "remove_network", "all"); err != nil {
		return err
	}
	id, err := r.cli(ctx, "add_network")
	if err != nil {
		return err
	}
	if _, err := strconv.Atoi(id); err != nil {
		return fmt.Errorf("wpa_cli add_network: unexpected reply %q", id)
	}

	settings := [][2]string{{"ssid", strconv.Quote(creds.SSID)}}
	if creds.Open() {
		settings = append(settings, [2]string{"key_mgmt", "NONE"})
	} else {
		settings = append(settings, [2]string{"psk", strconv.Quote(creds.PSK)})
	}
	if ap.Frequency > 0 {
		freq := strconv.Itoa(ap.Frequency)
		settings = append(settings, [2]string{"scan_freq", freq}, [2]string{"freq_list", freq})
	}
	if ap.BSSID != "" {
		settings = append(settings, [2]string{"bssid", ap.BSSID})
	}
	for _, kv := range settings {
		if _, err := r.cli(ctx, "set_network", id, kv[0], kv[1]); err != nil {
			return err
		}
	}
	if _, err := r.cli(ctx, "select_network", id); err != nil {
		return err
	}

	return r.waitStatus(ctx, r.associateTimeout, func(st map[string]string) bool {
		return st["wpa_state"] == "COMPLETED"
	})
}

// WaitLease waits for the interface to report an IPv4 address.
func (r *WPARadio) WaitLease(ctx context.Context) (string, error) {
	var addr string
	err := r.waitStatus(ctx, r.leaseTimeout, func(st map[string]string) bool {
		addr = st["ip_address"]
		return addr != ""
	})
	return addr, err
}

// Connected reports whether wpa_supplicant holds a completed association.
func (r *WPARadio) Connected(ctx context.Context) (bool, error) {
	st, err := r.status(ctx)
	if err != nil {
		return false, err
	}
	return st["wpa_state"] == "COMPLETED", nil
}

// SignalStrength returns the live RSSI of the current association.
func (r *WPARadio) SignalStrength(ctx context.Context) (int8, error) {
	out, err := r.cli(ctx, "signal_poll")
	if err != nil {
		return 0, err
	}
	v, ok := parseKeyValues(out)["RSSI"]
	if !ok {
		return 0, errors.New("signal_poll: no RSSI")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("signal_poll: %w", err)
	}
	return clampRSSI(n), nil
}

// Disconnect drops the current association.
func (r *WPARadio) Disconnect(ctx context.Context) error {
	_, err := r.cli(ctx, "disconnect")
	return err
}

func (r *WPARadio) status(ctx context.Context) (map[string]string, error) {
	out, err := r.cli(ctx, "status")
	if err != nil {
		return nil, err
	}
	return parseKeyValues(out), nil
}

func (r *WPARadio) waitStatus(ctx context.Context, timeout time.Duration, done func(map[string]string) bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		st, err := r.status(ctx)
		if err == nil && done(st) {
			return nil
		}
		if werr := r.wait(ctx, r.poll); werr != nil {
			if err != nil {
				return err
			}
			return fmt.Errorf("timed out after %s (wpa_state=%s)", timeout, st["wpa_state"])
		}
	}
}

// parseScanResults parses wpa_cli scan_results output:
// bssid / frequency / signal level / flags / ssid, tab separated.
func parseScanResults(out string) []AccessPoint {
	var aps []AccessPoint
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < 5 {
			continue
		}
		freq, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		signal, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		aps = append(aps, AccessPoint{
			SSID:      fields[4],
			BSSID:     fields[0],
			Frequency: freq,
			Channel:   ChannelFromFrequency(freq),
			RSSI:      clampRSSI(signal),
		})
	}
	return aps
}

func parseKeyValues(out string) map[string]string {
	kv := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if ok {
			kv[k] = v
		}
	}
	return kv
}

func clampRSSI(n int) int8 {
	switch {
	case n < -128:
		return -128
	case n > 127:
		return 127
	}
	return int8(n)
}
