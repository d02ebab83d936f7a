// Package wifi keeps a station associated with the gate access point.
package wifi

import (
	"context"
	"fmt"
	"time"
)

// AccessPoint is one scan result.
type AccessPoint struct {
	SSID      string
	BSSID     string
	Frequency int // MHz
	Channel   int
	RSSI      int8
}

// Credentials identify the network to join. An empty PSK means an open
// network.
type Credentials struct {
	SSID string
	PSK  string
}

// Open reports whether the network has no passphrase.
func (c Credentials) Open() bool {
	return c.PSK == ""
}

// Session describes an established association.
type Session struct {
	SSID    string
	BSSID   string
	Channel int
	// BaselineRSSI is the signal strength seen in the first scan that found
	// the access point during this connect attempt.
	BaselineRSSI int8
	Address      string
	Since        time.Time
}

// Radio is the station hardware. Implementations may block; all methods
// honor ctx.
type Radio interface {
	Scan(ctx context.Context) ([]AccessPoint, error)
	// Associate joins ap, pinned to its channel.
	Associate(ctx context.Context, creds Credentials, ap AccessPoint) error
	// WaitLease blocks until an address is assigned and returns it.
	WaitLease(ctx context.Context) (string, error)
	Connected(ctx context.Context) (bool, error)
	SignalStrength(ctx context.Context) (int8, error)
	Disconnect(ctx context.Context) error
}

// LinkError is a recoverable connectivity failure. The manager retries
// these internally; they are only surfaced through logs and hooks.
type LinkError struct {
	Op  string
	Err error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("wifi %s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Link operations reported in LinkError.Op.
const (
	OpScan      = "scan"
	OpNotFound  = "not_found"
	OpAssociate = "associate"
	OpLease     = "lease"
)

// ErrNotFound is wrapped when the configured SSID is absent from a scan.
var ErrNotFound = fmt.Errorf("access point not found")

// ChannelFromFrequency maps a center frequency in MHz to its channel number.
// Unknown frequencies map to 0.
func ChannelFromFrequency(mhz int) int {
	switch {
	case mhz == 2484:
		return 14
	case mhz >= 2412 && mhz <= 2472:
		return (mhz - 2407) / 5
	case mhz >= 5160 && mhz <= 5885:
		return (mhz - 5000) / 5
	case mhz >= 5955 && mhz <= 7115:
		return (mhz - 5950) / 5
	}
	return 0
}

// strongest returns the best-signal scan entry advertising ssid.
func strongest(aps []AccessPoint, ssid string) (AccessPoint, bool) {
	var best AccessPoint
	found := false
	for _, ap := range aps {
		if ap.SSID != ssid {
			continue
		}
		if !found || ap.RSSI > best.RSSI {
			best = ap
			found = true
		}
	}
	return best, found
}
