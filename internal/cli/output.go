package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gzhole/migclean/internal/execution"
)

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

// progressPrinter reports execution progress on stderr.
type progressPrinter struct{}

func (progressPrinter) ActionStarting(a execution.Action, current, total int) {
	fmt.Fprintf(os.Stderr, "[%d/%d] %s ...\n", current, total, a.DisplayName)
}

func (progressPrinter) ActionCompleted(a execution.Action, current, total int) {
	mark := "\xe2\x9c\x85"
	switch a.Status {
	case execution.StatusFailed:
		mark = "\xe2\x9d\x8c"
	case execution.StatusDryRun:
		mark = "\xf0\x9f\x94\x8d"
	}
	fmt.Fprintf(os.Stderr, "[%d/%d] %s %s %s\n", current, total, mark, a.Status, a.TargetID)
	if a.ErrorMessage != "" {
		fmt.Fprintf(os.Stderr, "        %s\n", a.ErrorMessage)
	}
}

// dumpMetrics prints the migclean_* counters of this process.
func dumpMetrics(w io.Writer) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "warning: failed to gather metrics: %v\n", err)
		return
	}
	fmt.Fprintln(w, "─── Metrics ───────────────────────────────────────────")
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "migclean_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			fmt.Fprintf(w, "  %-70s %g\n", name, m.GetCounter().GetValue())
		}
	}
}
