package metrics

import (
	"math"
	"sort"
	"time"

	"tankprobe/internal/models"
)

// EndpointSummary summarises how far recorded probes of one endpoint got.
type EndpointSummary struct {
	Endpoint       string   `json:"endpoint"`
	Total          int      `json:"total"`
	Connected      int      `json:"connected"`
	Sent           int      `json:"sent"`
	Received       int      `json:"received"`
	SuccessPercent float64  `json:"success_percent"`
	AvgConnectMS   *float64 `json:"avg_connect_ms,omitempty"`
	LastState      string   `json:"last_state,omitempty"`
	LastProbe      string   `json:"last_probe,omitempty"`
}

// ComputeEndpointSummary aggregates history records per endpoint, sorted by address.
func ComputeEndpointSummary(records []models.Record) []EndpointSummary {
	type acc struct {
		total, connected, sent, received int
		connectSum                       float64
		connectCount                     int
		lastState                        models.State
		lastTime                         time.Time
	}
	state := make(map[string]*acc)
	for _, rec := range records {
		key := rec.Endpoint.Address()
		target := state[key]
		if target == nil {
			target = &acc{}
			state[key] = target
		}

		res := rec.Result
		target.total++
		if res.Connected {
			target.connected++
			if res.Timing.ConnectMS != nil {
				target.connectSum += *res.Timing.ConnectMS
				target.connectCount++
			}
		}
		if res.Sent {
			target.sent++
		}
		if res.OK() {
			target.received++
		}
		if !rec.StartedAt.Before(target.lastTime) {
			target.lastState = res.Outcome
			target.lastTime = rec.StartedAt
		}
	}
	if len(state) == 0 {
		return nil
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]EndpointSummary, 0, len(keys))
	for _, key := range keys {
		data := state[key]
		result := EndpointSummary{
			Endpoint:       key,
			Total:          data.total,
			Connected:      data.connected,
			Sent:           data.sent,
			Received:       data.received,
			SuccessPercent: round2(float64(data.received) / float64(data.total) * 100),
			LastState:      string(data.lastState),
		}
		if data.connectCount > 0 {
			avg := round2(data.connectSum / float64(data.connectCount))
			result.AvgConnectMS = &avg
		}
		if !data.lastTime.IsZero() {
			result.LastProbe = data.lastTime.UTC().Format(time.RFC3339)
		}
		results = append(results, result)
	}
	return results
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
