package wifi

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeRadio is a scripted Radio for tests. Each scripted slice is consumed
// one entry per call; when exhausted the last entry repeats (or nil/true
// when empty). It is safe for concurrent use.
type FakeRadio struct {
	mu sync.Mutex

	Scans           [][]AccessPoint
	ScanErrors      []error
	AssociateErrors []error
	LeaseErrors     []error
	ConnectedSeq    []bool

	Address   string
	RSSI      int8
	RSSIError error

	// Calls records every method invocation in order.
	Calls []string
	// Joined is the last access point passed to Associate.
	Joined AccessPoint

	scanIdx, scanErrIdx, assocIdx, leaseIdx, connIdx int
}

func next[T any](seq []T, idx *int) (T, bool) {
	var zero T
	if len(seq) == 0 {
		return zero, false
	}
	v := seq[*idx]
	if *idx < len(seq)-1 {
		*idx++
	}
	return v, true
}

func (f *FakeRadio) Scan(ctx context.Context) ([]AccessPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "scan")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, _ := next(f.ScanErrors, &f.scanErrIdx); err != nil {
		return nil, err
	}
	aps, _ := next(f.Scans, &f.scanIdx)
	return aps, nil
}

func (f *FakeRadio) Associate(ctx context.Context, creds Credentials, ap AccessPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, fmt.Sprintf("associate:%d", ap.Channel))
	f.Joined = ap
	err, _ := next(f.AssociateErrors, &f.assocIdx)
	return err
}

func (f *FakeRadio) WaitLease(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "lease")
	if err, _ := next(f.LeaseErrors, &f.leaseIdx); err != nil {
		return "", err
	}
	if f.Address == "" {
		return "192.168.4.2", nil
	}
	return f.Address, nil
}

func (f *FakeRadio) Connected(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "connected")
	ok, scripted := next(f.ConnectedSeq, &f.connIdx)
	if !scripted {
		return true, nil
	}
	return ok, nil
}

func (f *FakeRadio) SignalStrength(ctx context.Context) (int8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "rssi")
	return f.RSSI, f.RSSIError
}

func (f *FakeRadio) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "disconnect")
	return nil
}

// CallLog returns a copy of Calls.
func (f *FakeRadio) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	copy(out, f.Calls)
	return out
}

// SetConnected replaces the ConnectedSeq script with a constant answer.
func (f *FakeRadio) SetConnected(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectedSeq = []bool{ok}
	f.connIdx = 0
}

// InstantTimer is a backoff.Timer that fires immediately and records the
// requested delays.
type InstantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	c      chan time.Time
}

func (t *InstantTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *InstantTimer) Stop() {}

func (t *InstantTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

// Delays returns the delays requested so far.
func (t *InstantTimer) Delays() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.delays))
	copy(out, t.delays)
	return out
}
