package perfmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestAggregateComputesMinAvgMax(t *testing.T) {
	m := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.RecordRequest(RequestRecord{Start: base, End: base.Add(10 * time.Millisecond), Success: true})
	m.RecordRequest(RequestRecord{Start: base, End: base.Add(20 * time.Millisecond), Success: true})
	m.RecordRequest(RequestRecord{Start: base, End: base.Add(30 * time.Millisecond), Success: false, Err: "boom"})

	snap := m.Snapshot()
	assert.Equal(t, 3, snap.Requests.Count)
	assert.Equal(t, 10*time.Millisecond, snap.Requests.Min)
	assert.Equal(t, 30*time.Millisecond, snap.Requests.Max)
	assert.Equal(t, 20*time.Millisecond, snap.Requests.Avg)
	assert.Equal(t, 2, snap.Requests.Success)
	assert.Equal(t, 1, snap.Requests.Failure)
}

func TestAgentProcessingAggregatesPerAgent(t *testing.T) {
	m := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.RecordAgentProcessing(AgentProcessingRecord{AgentID: "A", Start: base, End: base.Add(5 * time.Millisecond), Success: true})
	m.RecordAgentProcessing(AgentProcessingRecord{AgentID: "A", Start: base, End: base.Add(15 * time.Millisecond), Success: false})
	m.RecordAgentProcessing(AgentProcessingRecord{AgentID: "B", Start: base, End: base.Add(100 * time.Millisecond), Success: true})

	snap := m.Snapshot()
	require.Contains(t, snap.ByAgent, "A")
	require.Contains(t, snap.ByAgent, "B")

	a := snap.ByAgent["A"]
	assert.Equal(t, 2, a.ProcessedCount)
	assert.Equal(t, 1, a.SuccessCount)
	assert.Equal(t, 1, a.FailureCount)
	assert.Equal(t, 5*time.Millisecond, a.Min)
	assert.Equal(t, 15*time.Millisecond, a.Max)

	b := snap.ByAgent["B"]
	assert.Equal(t, 1, b.ProcessedCount)
	assert.Equal(t, 100*time.Millisecond, b.Avg)
}

func TestRingBufferEvictsOldestBeyondCapacity(t *testing.T) {
	m := New(Config{MaxHistorySize: 2})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.RecordRequest(RequestRecord{Start: base, End: base.Add(1 * time.Millisecond), Success: true, Endpoint: "first"})
	m.RecordRequest(RequestRecord{Start: base, End: base.Add(2 * time.Millisecond), Success: true, Endpoint: "second"})
	m.RecordRequest(RequestRecord{Start: base, End: base.Add(3 * time.Millisecond), Success: true, Endpoint: "third"})

	snap := m.Snapshot()
	assert.Equal(t, 2, snap.Requests.Count)
	assert.Equal(t, 2*time.Millisecond, snap.Requests.Min)
	assert.Equal(t, 3*time.Millisecond, snap.Requests.Max)
}

func TestResetClearsHistoryAndRestampsWindow(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	clock := t1
	m := New(DefaultConfig(), WithClock(func() time.Time { return clock }))

	m.RecordRequest(RequestRecord{Start: t1, End: t1.Add(time.Millisecond), Success: true})
	clock = t2
	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, 0, snap.Requests.Count)
	assert.Equal(t, t2, snap.WindowStart)
}

func TestRoutingAggregateAlwaysCountsAsSuccess(t *testing.T) {
	m := New(DefaultConfig())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.RecordRouting(RoutingRecord{SourceID: "S", TargetID: "T", Start: base, End: base.Add(2 * time.Millisecond)})

	snap := m.Snapshot()
	assert.Equal(t, 1, snap.Routing.Count)
	assert.Equal(t, 1, snap.Routing.Success)
}
