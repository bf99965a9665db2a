package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
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
	"relayClass": func(r logic.RelayState) string {
		switch r {
		case logic.RelayOn:
			return "on"
		case logic.RelayOff:
			return "off"
		}
		return "unknown"
	},
	"temp": func(v float64) string {
		return fmt.Sprintf("%.1f°C", v)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Local().Format("2006-01-02 15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Thermostat</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Thermostat{{if .Live}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>State</h2>
<table>
<tr><th>Current</th><td id="current">{{if .Snapshot.HasTemperature}}{{temp .Snapshot.Temperature}}{{else}}unknown{{end}}</td></tr>
<tr><th>Reading at</th><td id="reading-at">{{stamp .Snapshot.TemperatureAt}}</td></tr>
<tr><th>Desired</th><td id="desired">{{temp .Snapshot.DesiredTemperature}}</td></tr>
<tr><th>Program</th><td id="program">{{if .Snapshot.ActiveProgram}}{{.Snapshot.ActiveProgram}}{{else}}none{{end}}</td></tr>
<tr><th>Heating</th><td id="heating" class="{{relayClass .Snapshot.Relay}}">{{.Snapshot.Relay}}</td></tr>
<tr><th>Occupied</th><td id="occupied">{{if .Snapshot.Occupied}}yes{{else}}no{{end}}</td></tr>
<tr><th>Last command</th><td id="command">{{.Snapshot.LastCommand}}</td></tr>
<tr><th>Ready</th><td>{{if .Snapshot.Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
{{if .MQTTUsed}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Info.Broker}}</td></tr>
{{if .MQTTBuffered}}<tr><th>Buffered</th><td>{{.MQTTBuffered}} waiting for broker</td></tr>{{end}}{{end}}
<tr><th>Sensor</th><td>{{.Info.Sensor}}</td></tr>
<tr><th>Relay</th><td>{{.Info.Relay}}</td></tr>
<tr><th>Occupancy</th><td>{{.Info.Occupancy}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Info.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Info.PollInterval}}</td></tr>
<tr><th>Evaluate</th><td>{{.Info.EvaluateInterval}}</td></tr>
<tr><th>Thresholds</th><td>-{{.Info.LowThreshold}} / +{{.Info.HighThreshold}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Live}}
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function text(id, v) {
    document.getElementById(id).textContent = v;
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).state;
        text("current", s.current_temperature === null ? "unknown" : s.current_temperature.toFixed(1) + "°C");
        text("desired", s.desired_temperature.toFixed(1) + "°C");
        text("program", s.program === null ? "none" : s.program);
        text("occupied", s.occupied ? "yes" : "no");
        text("command", s.command);
        var h = document.getElementById("heating");
        h.textContent = s.heating;
        h.className = s.heating === "ON" ? "on" : s.heating === "OFF" ? "off" : "unknown";
      } catch (e) {}
    };
  }
  connect();
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, v statusView, live bool) {
	data := struct {
		statusView
		Uptime time.Duration
		Live   bool
	}{
		statusView: v,
		Uptime:     v.Uptime(),
		Live:       live,
	}
	indexTmpl.Execute(w, data)
}
