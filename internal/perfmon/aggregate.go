package perfmon

import "time"

// StreamAggregate summarizes one metric stream's timing distribution.
type StreamAggregate struct {
	Count   int
	Total   time.Duration
	Min     time.Duration
	Avg     time.Duration
	Max     time.Duration
	Success int
	Failure int
}

// AgentAggregate summarizes one agent's processing history.
type AgentAggregate struct {
	AgentID        string
	ProcessedCount int
	Min            time.Duration
	Avg            time.Duration
	Max            time.Duration
	SuccessCount   int
	FailureCount   int
}

// Snapshot is the Performance Monitor's full aggregated view.
type Snapshot struct {
	WindowStart time.Time
	Requests    StreamAggregate
	Routing     StreamAggregate
	Agent       StreamAggregate
	ByAgent     map[string]AgentAggregate
}

func accumulate(agg *StreamAggregate, d time.Duration, success bool) {
	if agg.Count == 0 {
		agg.Min = d
		agg.Max = d
	} else {
		if d < agg.Min {
			agg.Min = d
		}
		if d > agg.Max {
			agg.Max = d
		}
	}
	agg.Total += d
	agg.Count++
	if success {
		agg.Success++
	} else {
		agg.Failure++
	}
}

func finalize(agg *StreamAggregate) {
	if agg.Count > 0 {
		agg.Avg = agg.Total / time.Duration(agg.Count)
	}
}

// Snapshot computes totals/min/avg/max for each stream and per-agent
// aggregates over the entries currently retained (spec.md §4.6).
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	requests := m.requests.snapshot()
	routing := m.routing.snapshot()
	agentRecs := m.agent.snapshot()
	windowStart := m.windowStart
	m.mu.Unlock()

	out := Snapshot{WindowStart: windowStart, ByAgent: make(map[string]AgentAggregate)}

	for _, r := range requests {
		accumulate(&out.Requests, r.End.Sub(r.Start), r.Success)
	}
	finalize(&out.Requests)

	for _, r := range routing {
		accumulate(&out.Routing, r.End.Sub(r.Start), true)
	}
	finalize(&out.Routing)

	byAgent := make(map[string]*AgentAggregate)
	for _, r := range agentRecs {
		d := r.End.Sub(r.Start)
		accumulate(&out.Agent, d, r.Success)

		agg, ok := byAgent[r.AgentID]
		if !ok {
			agg = &AgentAggregate{AgentID: r.AgentID}
			byAgent[r.AgentID] = agg
		}
		if agg.ProcessedCount == 0 {
			agg.Min = d
			agg.Max = d
		} else {
			if d < agg.Min {
				agg.Min = d
			}
			if d > agg.Max {
				agg.Max = d
			}
		}
		agg.Avg = time.Duration((int64(agg.Avg)*int64(agg.ProcessedCount) + int64(d)) / int64(agg.ProcessedCount+1))
		agg.ProcessedCount++
		if r.Success {
			agg.SuccessCount++
		} else {
			agg.FailureCount++
		}
	}
	finalize(&out.Agent)

	for id, agg := range byAgent {
		out.ByAgent[id] = *agg
	}

	return out
}
