package capture

import (
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/gaitlog/internal/httputil"
	"github.com/banshee-data/gaitlog/internal/telemetry"
)

type statsResponse struct {
	telemetry.StatsSnapshot
	State   string   `json:"state"`
	Layout  string   `json:"layout,omitempty"`
	Columns []string `json:"columns,omitempty"`
}

// AttachStatsRoute serves the decoder's live counters as JSON at
// /debug/stats.
func AttachStatsRoute(mux *http.ServeMux, stats *telemetry.Stats) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("stats", "Live decoding counters", func(w http.ResponseWriter, r *http.Request) {
		resp := statsResponse{StatsSnapshot: stats.Snapshot(), State: telemetry.AwaitingHeader.String()}
		if l, ok := stats.Layout(); ok {
			resp.State = telemetry.Streaming.String()
			resp.Layout = l.Variant.String()
			resp.Columns = l.Columns
		}
		httputil.WriteJSONOK(w, resp)
	})
}
