package api

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"lower": strings.ToLower,
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sentinel</title>
<style>
body { font-family: monospace; max-width: 900px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.ramp { color: #b8860b; font-weight: bold; }
.stable { color: green; font-weight: bold; }
.idle { color: #888; }
.end { color: #444; }
.connected { color: green; }
.disconnected { color: red; }
.degraded { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>Sentinel Core</h1>
{{range .}}
<h2>{{.LineID}}{{if .Degraded}} <span class="degraded">DEGRADED</span>{{end}}</h2>
<table>
<tr><th>Zone</th><th>Stage</th><th>Setpoint (F)</th><th>Last Valid</th></tr>
{{range .Zones}}
<tr><td>{{.Zone}}</td><td class="{{lower .Stage}}">{{.Stage}}</td><td>{{.ActiveSetpoint}}</td><td>{{if .LastValid}}yes{{else}}no{{end}}</td></tr>
{{end}}
</table>
<table>
<tr><th>Current run</th><td>{{if .CurrentRunID}}{{.CurrentRunID}}{{else}}none{{end}}</td></tr>
<tr><th>Last run</th><td>{{if .LastRunID}}{{.LastRunID}} ({{.LastTermination}}){{else}}none{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
</table>
{{end}}
<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type dashboardZone struct {
	Zone           string
	Stage          string
	ActiveSetpoint float64
	LastValid      bool
}

type dashboardLine struct {
	status.Snapshot
	Zones  []dashboardZone
	Uptime time.Duration
}

func renderDashboard(w io.Writer, snaps []status.Snapshot) {
	lines := make([]dashboardLine, 0, len(snaps))
	for _, snap := range snaps {
		zones := make([]dashboardZone, 0, len(snap.Zones))
		for zone, zs := range snap.Zones {
			zones = append(zones, dashboardZone{
				Zone: string(zone), Stage: string(zs.Stage),
				ActiveSetpoint: zs.ActiveSetpoint, LastValid: zs.LastValid,
			})
		}
		lines = append(lines, dashboardLine{Snapshot: snap, Zones: zones, Uptime: snap.Uptime()})
	}
	indexTmpl.Execute(w, lines)
}
