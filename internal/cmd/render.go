package cmd

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/adamwoolhether/quotaguard/config"
)

// renderResults renders probe rows as a rounded table.
func renderResults(cfg config.Config, results []probeResult) string {
	if len(results) == 0 {
		return ""
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("subscription %s (tenant %s)", cfg.SubscriptionID, cfg.TenantID))
	t.AppendHeader(table.Row{"#", "Status", "Items", "Remaining Reads", "Delay", "Sequence"})

	var ok int
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
		t.AppendRow(table.Row{
			r.N,
			statusLabel(r),
			r.Items,
			readsLabel(r),
			r.Delay.String(),
			r.Sequence,
		})
	}

	t.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d ok", ok, len(results)), "", "", "", ""})

	return t.Render() + "\n"
}

func statusLabel(r probeResult) string {
	switch {
	case r.Status == 0:
		return "error"
	case r.Status == http.StatusTooManyRequests:
		return "429 throttled"
	default:
		return strconv.Itoa(r.Status) + " " + http.StatusText(r.Status)
	}
}

func readsLabel(r probeResult) string {
	if !r.ReadsKnown {
		return "-"
	}
	return strconv.Itoa(r.Reads)
}
