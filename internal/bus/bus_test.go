package bus

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aosanya/agentruntime/internal/types"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newMsg(id, workflowID, target string, kind types.MessageKind) types.Message {
	return types.Message{
		ID:         id,
		Kind:       kind,
		WorkflowID: workflowID,
		SourceID:   "S",
		TargetID:   target,
		Payload:    map[string]interface{}{"x": 1},
		Metadata:   types.MessageMetadata{CreatedAt: time.Now(), Priority: types.PriorityNormal},
	}
}

func TestDirectedRouteHappyPath(t *testing.T) {
	b := New(testLogger())
	var invoked int32
	var gotID string
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindTaskRequest}, func(ctx context.Context, msg types.Message) error {
		atomic.AddInt32(&invoked, 1)
		gotID = msg.ID
		return nil
	}))

	msg := newMsg("m1", "w1", "A", types.MessageKindTaskRequest)
	err := b.Route(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&invoked))
	assert.Equal(t, "m1", gotID)

	hist := b.MessageHistory("w1")
	require.Len(t, hist, 1)
	assert.Equal(t, "m1", hist[0].ID)
}

func TestRouteUnknownTargetFailsImmediately(t *testing.T) {
	b := New(testLogger())
	err := b.Route(context.Background(), newMsg("m1", "w1", "ghost", types.MessageKindTaskRequest))
	assert.Error(t, err)
	// directed routes still record an attempted history entry
	assert.Len(t, b.MessageHistory("w1"), 1)
}

func TestRouteWrongKindFailsImmediately(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindHealthCheck}, func(ctx context.Context, msg types.Message) error {
		return nil
	}))
	err := b.Route(context.Background(), newMsg("m1", "w1", "A", types.MessageKindTaskRequest))
	assert.Error(t, err)
}

func TestBroadcastInvokesEverySubscriberOnce(t *testing.T) {
	b := New(testLogger())
	var mu sync.Mutex
	seen := map[string]int{}
	for _, id := range []string{"A", "B", "C"} {
		id := id
		require.NoError(t, b.Subscribe(id, []types.MessageKind{types.MessageKindStateUpdate}, func(ctx context.Context, msg types.Message) error {
			mu.Lock()
			seen[id]++
			mu.Unlock()
			return nil
		}))
	}
	require.NoError(t, b.Subscribe("D", []types.MessageKind{types.MessageKindError}, func(ctx context.Context, msg types.Message) error {
		mu.Lock()
		seen["D"]++
		mu.Unlock()
		return nil
	}))

	msg := newMsg("m1", "w1", "", types.MessageKindStateUpdate)
	require.NoError(t, b.Route(context.Background(), msg))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, seen["A"])
	assert.Equal(t, 1, seen["B"])
	assert.Equal(t, 1, seen["C"])
	assert.Equal(t, 0, seen["D"])
}

func TestBroadcastWithZeroSubscribersSucceedsVacuously(t *testing.T) {
	b := New(testLogger())
	err := b.Route(context.Background(), newMsg("m1", "w1", "", types.MessageKindStateUpdate))
	assert.NoError(t, err)
}

func TestSendWithRetryExhaustsAttempts(t *testing.T) {
	b := New(testLogger())
	var attempts int32
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindTaskRequest}, func(ctx context.Context, msg types.Message) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("transient failure")
	}))

	policy := types.RetryPolicy{
		MaxRetries:      3,
		Backoff:         types.BackoffExponential,
		RetryableErrors: map[types.ErrorCategory]struct{}{types.ErrorCategoryTransient: {}},
		Timeout:         5 * time.Second,
	}
	alwaysRetryable := func(err error, p types.RetryPolicy) bool { return true }

	msg := newMsg("m1", "w1", "A", types.MessageKindTaskRequest)
	result := b.SendWithRetry(context.Background(), msg, policy, time.Millisecond, alwaysRetryable)

	assert.False(t, result.Success)
	assert.Equal(t, 4, result.Attempts)
	assert.Equal(t, int32(4), atomic.LoadInt32(&attempts))
}

func TestSendWithRetryStopsOnNonRetryable(t *testing.T) {
	b := New(testLogger())
	var attempts int32
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindTaskRequest}, func(ctx context.Context, msg types.Message) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("validation: bad input")
	}))

	policy := types.DefaultRetryPolicy()
	neverRetryable := func(err error, p types.RetryPolicy) bool { return false }

	result := b.SendWithRetry(context.Background(), newMsg("m1", "w1", "A", types.MessageKindTaskRequest), policy, time.Millisecond, neverRetryable)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestSendWithRetrySucceedsEventually(t *testing.T) {
	b := New(testLogger())
	var attempts int32
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindTaskRequest}, func(ctx context.Context, msg types.Message) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			return errors.New("transient")
		}
		return nil
	}))

	policy := types.DefaultRetryPolicy()
	alwaysRetryable := func(err error, p types.RetryPolicy) bool { return true }

	result := b.SendWithRetry(context.Background(), newMsg("m1", "w1", "A", types.MessageKindTaskRequest), policy, time.Millisecond, alwaysRetryable)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
}

func TestBackoffFormulas(t *testing.T) {
	base := 10 * time.Millisecond
	assert.Equal(t, base, Backoff(types.BackoffFixed, 1, base))
	assert.Equal(t, base, Backoff(types.BackoffFixed, 5, base))

	assert.Equal(t, base*1, Backoff(types.BackoffLinear, 1, base))
	assert.Equal(t, base*3, Backoff(types.BackoffLinear, 3, base))

	assert.Equal(t, base*1, Backoff(types.BackoffExponential, 1, base))
	assert.Equal(t, base*2, Backoff(types.BackoffExponential, 2, base))
	assert.Equal(t, base*4, Backoff(types.BackoffExponential, 3, base))
}

func TestSubscribeValidation(t *testing.T) {
	b := New(testLogger())
	assert.Error(t, b.Subscribe("", []types.MessageKind{types.MessageKindError}, func(context.Context, types.Message) error { return nil }))
	assert.Error(t, b.Subscribe("A", nil, func(context.Context, types.Message) error { return nil }))
}

func TestResubscribeReplacesPriorRegistration(t *testing.T) {
	b := New(testLogger())
	var first, second int32
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindError}, func(context.Context, types.Message) error {
		atomic.AddInt32(&first, 1)
		return nil
	}))
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindError}, func(context.Context, types.Message) error {
		atomic.AddInt32(&second, 1)
		return nil
	}))

	require.NoError(t, b.Route(context.Background(), newMsg("m1", "w1", "A", types.MessageKindError)))
	assert.Equal(t, int32(0), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New(testLogger())
	require.NoError(t, b.Subscribe("A", []types.MessageKind{types.MessageKindError}, func(context.Context, types.Message) error { return nil }))
	assert.True(t, b.HasHandlers("A"))
	b.Unsubscribe("A")
	assert.False(t, b.HasHandlers("A"))
	assert.Error(t, b.Route(context.Background(), newMsg("m1", "w1", "A", types.MessageKindError)))
}
