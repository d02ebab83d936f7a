package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/vpetryaev/GateRTO-1000/internal/gate"
	"github.com/vpetryaev/GateRTO-1000/internal/gpio"
	"github.com/vpetryaev/GateRTO-1000/internal/logger"
	"github.com/vpetryaev/GateRTO-1000/internal/logic"
)

// fakeGate is a scripted Gate.
type fakeGate struct {
	mu       sync.Mutex
	pos      logic.GatePosition
	posErr   error
	pulseErr error
	pulses   []logic.Target
}

func (f *fakeGate) Position() (logic.GatePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos, f.posErr
}

func (f *fakeGate) Pulse(target logic.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulses = append(f.pulses, target)
	return f.pulseErr
}

func (f *fakeGate) set(pos logic.GatePosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
}

func TestGateStatusAndStepEndToEnd(t *testing.T) {
	opened, closed := gpio.NewFakeInput(false), gpio.NewFakeInput(true)
	open, sbs := gpio.NewFakeOutput(), gpio.NewFakeOutput()
	g := gate.New(
		gate.NewEstimator(opened, closed),
		gate.NewPulser(open, sbs, gate.DefaultPulse, logger.Nop()),
		nil,
	)
	ts, _ := newTestServer(t, WithGate(g))

	resp, body := get(t, ts.URL+"/gate_status")
	if resp.StatusCode != 200 || body != `{"s":1}` {
		t.Fatalf("/gate_status: got %d %s, want 200 {\"s\":1}", resp.StatusCode, body)
	}

	resp, body = get(t, ts.URL+"/gate_sbs")
	if resp.StatusCode != 200 || body != `{"s":2}` {
		t.Fatalf("/gate_sbs: got %d %s, want 200 {\"s\":2}", resp.StatusCode, body)
	}

	h := sbs.History()
	if len(h) != 2 || !h[0].High || h[1].High {
		t.Fatalf("expected one pulse on the step line, got %+v", h)
	}
	if width := h[1].Time.Sub(h[0].Time); width < gate.DefaultPulse || width > gate.DefaultPulse+150*time.Millisecond {
		t.Errorf("pulse width %v, want about %v", width, gate.DefaultPulse)
	}
	if len(open.History()) != 0 {
		t.Errorf("expected full-cycle line untouched, got %+v", open.History())
	}
}

func TestGateStatusIdempotent(t *testing.T) {
	fg := &fakeGate{pos: logic.PositionOpen}
	ts, _ := newTestServer(t, WithGate(fg))

	_, first := get(t, ts.URL+"/gate_status")
	for i := 0; i < 3; i++ {
		if _, body := get(t, ts.URL+"/gate_status"); body != first {
			t.Errorf("read %d: got %s, want %s", i, body, first)
		}
	}
}

func TestGateOpenPulsesFullCycle(t *testing.T) {
	fg := &fakeGate{}
	ts, _ := newTestServer(t, WithGate(fg))

	if _, body := get(t, ts.URL+"/gate_open"); body != `{"s":2}` {
		t.Errorf("got %s, want {\"s\":2}", body)
	}
	if len(fg.pulses) != 1 || fg.pulses[0] != logic.TargetFullCycle {
		t.Errorf("expected one FULL_CYCLE pulse, got %v", fg.pulses)
	}
}

func TestGateHardwareFault(t *testing.T) {
	fg := &fakeGate{
		posErr:   &gate.HardwareFault{Line: gpio.LineGateOpened, Err: errors.New("eio")},
		pulseErr: &gate.HardwareFault{Line: gpio.LineGateSBS, Err: errors.New("eio")},
	}
	ts, _ := newTestServer(t, WithGate(fg))

	resp, body := get(t, ts.URL+"/gate_status")
	if resp.StatusCode != http.StatusInternalServerError || !strings.Contains(body, "hardware fault") {
		t.Errorf("/gate_status: got %d %s", resp.StatusCode, body)
	}

	for _, path := range []string{"/gate_sbs", "/gate_open"} {
		resp, body = get(t, ts.URL+path)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, resp.StatusCode)
		}
		var reply struct {
			S     int    `json:"s"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(body), &reply); err != nil || reply.S != 2 || !strings.Contains(reply.Error, "hardware fault") {
			t.Errorf("%s body: got %s", path, body)
		}
	}
}

func TestHomePage(t *testing.T) {
	tests := []struct {
		pos  logic.GatePosition
		want string
	}{
		{logic.PositionOpen, "Gate is open"},
		{logic.PositionClosed, "Gate is closed"},
		{logic.PositionIntermediate, "disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.pos.String(), func(t *testing.T) {
			ts, _ := newTestServer(t, WithGate(&fakeGate{pos: tt.pos}))
			for _, path := range []string{"/", "/index.html"} {
				resp, body := get(t, ts.URL+path)
				if resp.StatusCode != 200 {
					t.Fatalf("%s: status %d", path, resp.StatusCode)
				}
				if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
					t.Errorf("Content-Type: got %q, want text/html", ct)
				}
				if !strings.Contains(body, tt.want) {
					t.Errorf("%s: expected %q in page", path, tt.want)
				}
			}
		})
	}
}

func TestParseInterval(t *testing.T) {
	cases := []struct {
		u    string
		want time.Duration
	}{
		{"/ws", time.Second},
		{"/ws?interval=200ms", 200 * time.Millisecond},
		{"/ws?interval=50ms", time.Second},
		{"/ws?interval=20s", time.Second},
		{"/ws?interval=bogus", time.Second},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, tc.u, nil)
		if got := parseInterval(c); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.u, got, tc.want)
		}
	}
}

func TestWebSocketStreamsPositionChanges(t *testing.T) {
	fg := &fakeGate{pos: logic.PositionClosed}
	ts, _ := newTestServer(t, WithGate(fg))

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = "interval=100ms"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg map[string]int
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if msg["s"] != 1 {
		t.Errorf("initial: got %v, want s=1", msg)
	}

	fg.set(logic.PositionOpen)
	msg = nil
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if s, ok := msg["s"]; !ok || s != 0 {
		t.Errorf("change: got %v, want s=0", msg)
	}
}
