package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/vpetryaev/GateRTO-1000/internal/logic"
	"github.com/vpetryaev/GateRTO-1000/internal/status"
)

var homeTmpl = template.Must(template.New("home").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(homeHTML))

const homeHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Gate</title>
<style>
body { font-family: sans-serif; max-width: 480px; margin: 2em auto; padding: 0 1em; text-align: center; }
#state { font-size: 2em; margin: 1em 0; }
button { font-size: 1.4em; padding: .6em 2em; }
table { border-collapse: collapse; width: 100%; margin: 2em 0 1em; font-family: monospace; text-align: left; }
td, th { padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
</style>
</head>
<body>
<div id="state">{{.Label}}</div>
<button id="action" onclick="step()"{{if .Disabled}} disabled{{end}}>{{.Action}}</button>

<table>
<tr><th>WiFi</th><td>{{.Snap.Link}}</td></tr>
{{if .Snap.Network}}<tr><th>Address</th><td>{{.Snap.Network.Address}} (ch {{.Snap.Network.Channel}})</td></tr>{{end}}
<tr><th>Pulses</th><td>{{.Snap.Counts.PulsesStep}} step / {{.Snap.Counts.PulsesFullCycle}} open</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
</table>
<p><a href="/index.json">JSON</a></p>

<script>
var labels = ["Gate is open", "Gate is closed", "Gate is moving"];
var actions = ["Close", "Open", "Open / Close / Stop"];
var timer = null;

function render(s) {
  document.getElementById("state").textContent = labels[s];
  var btn = document.getElementById("action");
  btn.textContent = actions[s];
  btn.disabled = s === 2;
}

function poll() {
  fetch("/gate_status").then(function(r) { return r.json(); }).then(function(j) {
    render(j.s);
    if (j.s !== 2 && timer) { clearInterval(timer); timer = null; }
  }).catch(function() {});
}

function step() {
  fetch("/gate_sbs").then(function(r) { return r.json(); }).then(function(j) {
    render(j.s);
    if (!timer) { timer = setInterval(poll, 1000); }
  }).catch(function() {});
}
</script>
</body>
</html>
`

type homeData struct {
	Snap     status.Snapshot
	Uptime   time.Duration
	Label    string
	Action   string
	Disabled bool
}

func homeFor(pos *logic.GatePosition) (label, action string, disabled bool) {
	if pos == nil {
		return "Gate state unknown", "Open / Close / Stop", false
	}
	switch *pos {
	case logic.PositionOpen:
		return "Gate is open", "Close", false
	case logic.PositionClosed:
		return "Gate is closed", "Open", false
	default:
		return "Gate is moving", "Open / Close / Stop", true
	}
}

func renderHome(w io.Writer, snap status.Snapshot, pos *logic.GatePosition) error {
	label, action, disabled := homeFor(pos)
	return homeTmpl.Execute(w, homeData{
		Snap:     snap,
		Uptime:   snap.Uptime(),
		Label:    label,
		Action:   action,
		Disabled: disabled,
	})
}
