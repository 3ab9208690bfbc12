package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"tankprobe/internal/metrics"
)

// Summary renders per-endpoint history statistics as a table.
func Summary(w io.Writer, summaries []metrics.EndpointSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No recorded probes.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Endpoint", "Probes", "Connected", "Sent", "Received", "Success %", "Avg connect ms", "Last state", "Last probe"})
	for _, s := range summaries {
		avg := "-"
		if s.AvgConnectMS != nil {
			avg = strconv.FormatFloat(*s.AvgConnectMS, 'f', 1, 64)
		}
		table.Append([]string{
			s.Endpoint,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Connected),
			strconv.Itoa(s.Sent),
			strconv.Itoa(s.Received),
			strconv.FormatFloat(s.SuccessPercent, 'f', 2, 64),
			avg,
			s.LastState,
			s.LastProbe,
		})
	}
	table.Render()
}
