package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/button-node/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"hex": func(width int, v any) string {
		return fmt.Sprintf("%0*x", width, v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Button Node</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.fatal { color: red; font-weight: bold; }
.asleep { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Button Node {{hex 2 .Config.LogicalID}}</h1>

<h2>Cycle</h2>
<table>
<tr><th>State</th><td id="state" class="{{if eq (printf "%s" .Cycle.State) "EXIT_FATAL"}}fatal{{else if .Asleep}}asleep{{end}}">{{stateOrUnknown (printf "%s" .Cycle.State)}}{{if .Asleep}} (asleep until {{.WakeAt.UTC.Format "15:04:05Z"}}){{end}}</td></tr>
<tr><th>Cycle</th><td>{{.Cycle.Cycle}}</td></tr>
<tr><th>Button</th><td>{{if .Cycle.Pressed}}pressed{{else}}released{{end}}</td></tr>
<tr><th>Last message</th><td>{{.Cycle.LastMessage}}</td></tr>
<tr><th>Last token</th><td>{{.Cycle.LastToken}}</td></tr>
<tr><th>Last sleep</th><td>{{.Cycle.LastSleepMs}}ms</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>App ID</th><td>{{hex 8 .Config.AppID}}</td></tr>
<tr><th>Channel</th><td>{{.Config.Channel}}</td></tr>
</table>

{{if .Gateway}}<h2>Gateway</h2>
<table id="heard">
<tr><th>Received</th><th>From</th><th>To</th><th>Message</th><th>Node ms</th></tr>
{{range .Heard}}<tr><td>{{.Received}}</td><td>{{.Source}}</td><td>{{.Dest}}</td><td>{{.Message}}</td><td>{{.TimestampMs}}</td></tr>
{{else}}<tr><td colspan="5">nothing heard yet</td></tr>
{{end}}</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Boots</th><td>{{.Boots}}</td></tr>
<tr><th>Resets</th><td>{{.Resets}}{{if .LastReset}} (last: {{.LastReset}}){{end}}</td></tr>
<tr><th>Sleep</th><td>{{.Config.SleepMs}}ms ±{{.Config.SleepToleranceMs}}ms</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a>{{if .Gateway}} | <a href="/heard.json">Heard</a>{{end}}</p>
</body>
</html>
`

// renderHTML writes the status page. heard is nil without a gateway.
func renderHTML(w io.Writer, snap status.Snapshot, heard []HeardJSON) {
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Gateway bool
		Heard   []HeardJSON
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Gateway:  heard != nil,
		Heard:    heard,
	}
	indexTmpl.Execute(w, data)
}
