package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const summaryRule = 60

// WriteSummary prints the headline numbers of a report. Colors are only
// used when w is a terminal.
func WriteSummary(w io.Writer, r *Report) error {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	title := color.New(color.Bold)
	section := color.New(color.FgCyan, color.Bold)
	warn := color.New(color.FgYellow)
	for _, c := range []*color.Color{title, section, warn} {
		if tty {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	perf := &r.Performance
	var b strings.Builder
	rule := strings.Repeat("=", summaryRule)

	fmt.Fprintln(&b, rule)
	title.Fprintf(&b, "Accelerator Simulation Summary: %s\n", r.AcceleratorName)
	fmt.Fprintln(&b, rule)

	section.Fprintln(&b, "Performance")
	fmt.Fprintf(&b, "  Total cycles:   %d\n", perf.TotalCycles)
	fmt.Fprintf(&b, "  Stall cycles:   %d (%s)\n", perf.StallCycles,
		percent(ratio(float64(perf.StallCycles), float64(perf.TotalCycles))))
	fmt.Fprintf(&b, "  Clock:          %s GHz\n", number(perf.SysClockGHz))
	if !perf.Finished {
		warn.Fprintln(&b, "  Run did not finish")
	}

	section.Fprintln(&b, "Bottleneck")
	fmt.Fprintf(&b, "  Dominant:       %s\n", r.StallBreakdown.DominantBottleneck)

	section.Fprintln(&b, "Memory")
	fmt.Fprintf(&b, "  Cache hit rate: %s\n", percent(r.MemoryAccess.Cache.HitRate))
	fmt.Fprintf(&b, "  Avg read lat:   %s cycles\n", number(r.MemoryAccess.Latency.AvgRead))
	if r.MemoryAccess.Failures > 0 {
		warn.Fprintf(&b, "  Failed requests: %d\n", r.MemoryAccess.Failures)
	}

	section.Fprintln(&b, "Parallelism")
	fmt.Fprintf(&b, "  ILP:            %s\n", number(r.Dataflow.ILP))
	fmt.Fprintf(&b, "  Critical path:  %d\n", r.Dataflow.CriticalPath.Length)

	section.Fprintln(&b, "Power/Area")
	fmt.Fprintf(&b, "  Total power:    %s mW\n", number(r.Power.TotalPowerMW))
	fmt.Fprintf(&b, "  Total area:     %s mm^2\n", number(r.Area.TotalMM2))
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func number(f Float) string {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", float64(f))
}

func percent(f Float) string {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", float64(f)*100)
}
