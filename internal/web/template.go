package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/lockbox/internal/session"
	"github.com/sweeney/lockbox/internal/status"
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
	"secs":    session.FormatSeconds,
	"channel": func(mask uint8, i int) bool { return mask&(1<<i) != 0 },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Lockbox</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fault { color: red; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; margin: 0 4px 4px 0; }
</style>
</head>
<body>
<h1>Lockbox</h1>

<h2>Session</h2>
<table>
<tr><th>State</th><td id="state">{{.Session.State}}</td></tr>
{{if .SessionID}}<tr><th>Session</th><td>{{.SessionID}}</td></tr>{{end}}
{{if .Session.Config.HideTimer}}<tr><th>Lock Remaining</th><td>hidden</td></tr>
{{else}}<tr><th>Lock Duration</th><td>{{secs .Session.Timers.LockDuration}}</td></tr>
<tr><th>Lock Remaining</th><td>{{secs .Session.Timers.LockRemaining}}</td></tr>{{end}}
{{if .Session.Timers.PenaltyRemaining}}<tr><th>Penalty Remaining</th><td>{{secs .Session.Timers.PenaltyRemaining}}</td></tr>{{end}}
{{if .Session.Timers.TestRemaining}}<tr><th>Test Remaining</th><td>{{secs .Session.Timers.TestRemaining}}</td></tr>{{end}}
{{if .Session.Timers.TriggerTimeout}}<tr><th>Trigger Timeout</th><td>{{secs .Session.Timers.TriggerTimeout}}</td></tr>{{end}}
<tr><th>Keep-alive Strikes</th><td>{{.KeepAliveStrikes}}</td></tr>
{{if .LastFault}}<tr><th>Last Fault</th><td class="fault">{{.LastFault.Reason}} ({{.LastFault.State}})</td></tr>{{end}}
</table>

<h2>Hardware</h2>
<table>
<tr><th>Interlock</th><td class="{{if .Hardware.InterlockValid}}on{{else}}off{{end}}">{{if .Hardware.InterlockValid}}valid{{else if .Hardware.InterlockEngaged}}stabilising{{else}}open{{end}}</td></tr>
{{range $i := .Channels}}<tr><th>Channel {{$i}}</th><td class="{{if channel $.Hardware.Outputs $i}}on{{else}}off{{end}}">{{if channel $.Hardware.Outputs $i}}ON{{else}}OFF{{end}}</td></tr>
{{end}}{{if .Hardware.FailsafeArmed}}<tr><th>Failsafe</th><td>{{.Hardware.FailsafeDeadline.UTC.Format "2006-01-02 15:04:05"}} UTC</td></tr>{{end}}
</table>

<h2>Stats</h2>
<table>
<tr><th>Streak</th><td>{{.Session.Stats.Streaks}}</td></tr>
<tr><th>Completed</th><td>{{.Session.Stats.Completed}}</td></tr>
<tr><th>Aborted</th><td>{{.Session.Stats.Aborted}}</td></tr>
<tr><th>Payback Debt</th><td>{{secs .Session.Stats.PaybackAccumulated}}</td></tr>
<tr><th>Total Locked</th><td>{{secs .Session.Stats.TotalLockedTime}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Controls</h2>
<p>
<button onclick="post('/start-test')">Test</button>
<button onclick="post('/stop-test')">Stop Test</button>
<button onclick="post('/trigger')">Trigger</button>
<button onclick="post('/abort')">Abort</button>
<button onclick="post('/acknowledge')">Acknowledge</button>
</p>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02 15:04:05"}} UTC</td></tr>
<tr><th>Settings</th><td>{{if .Config.Fingerprint}}{{printf "%.12s" .Config.Fingerprint}}{{else}}-{{end}}</td></tr>
</table>

<p><a href="/status">JSON</a> | <a href="/log">Log</a> | <a href="/history">History</a></p>

<script>
function post(path) {
  fetch(path, {method: 'POST'}).then(function() { location.reload(); });
}
</script>
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Uptime   time.Duration
	Channels []int
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	data := pageData{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Channels: make([]int, session.MaxChannels),
	}
	for i := range data.Channels {
		data.Channels[i] = i
	}
	indexTmpl.Execute(w, data)
}
