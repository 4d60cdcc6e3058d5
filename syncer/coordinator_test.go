package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tradesync/exchange"
)

type progressRecord struct {
	percent int
	status  Status
}

// progressRecorder a ProgressFn test double
type progressRecorder struct {
	updates []progressRecord
}

func (r *progressRecorder) fn() ProgressFn {
	return func(percent int, status Status, _ string) {
		r.updates = append(r.updates, progressRecord{percent: percent, status: status})
	}
}

func (r *progressRecorder) sawStatus(status Status) bool {
	for _, u := range r.updates {
		if u.status == status {
			return true
		}
	}
	return false
}

func (r *progressRecorder) last() progressRecord {
	return r.updates[len(r.updates)-1]
}

func TestStartSync_ReportsFullProgressLifecycle(t *testing.T) {
	env := newSyncEnv(t)
	env.client.handler = func(_ int, method string, _ exchange.Params) (*exchange.Page, error) {
		if method == exchange.MethodClosedPositions {
			return &exchange.Page{List: []map[string]interface{}{
				rawOrderAt("BTCUSDT", rangeStart+1000, rangeStart+2000, "5"),
			}}, nil
		}
		return &exchange.Page{List: []map[string]interface{}{
			rawTransactionAt(rangeStart + 1000),
		}}, nil
	}

	coordinator := NewCoordinator(env.service, NewTracker())
	recorder := &progressRecorder{}

	err := coordinator.StartSync(context.Background(), "owner-1", "bybit", rangeStart, rangeEnd, recorder.fn())
	require.NoError(t, err)

	require.Equal(t, progressRecord{percent: 0, status: StatusLoading}, recorder.updates[0])
	require.Equal(t, progressRecord{percent: 100, status: StatusSuccess}, recorder.last())

	// percents never move backwards within a run
	for i := 1; i < len(recorder.updates); i++ {
		require.GreaterOrEqual(t, recorder.updates[i].percent, recorder.updates[i-1].percent)
	}

	p, active := coordinator.Progress("owner-1")
	require.True(t, active)
	require.Equal(t, StatusSuccess, p.Status)
	require.Equal(t, 100, p.Percent)
}

func TestStartSync_StageBoundaries(t *testing.T) {
	env := newSyncEnv(t)
	env.client.handler = func(_ int, _ string, _ exchange.Params) (*exchange.Page, error) {
		return &exchange.Page{}, nil
	}

	coordinator := NewCoordinator(env.service, NewTracker())
	recorder := &progressRecorder{}

	err := coordinator.StartSync(context.Background(), "owner-1", "bybit", rangeStart, rangeEnd, recorder.fn())
	require.NoError(t, err)

	// the transaction stage starts at 50 even when the orders stage was a no-op
	var saw50 bool
	for _, u := range recorder.updates {
		if u.percent == 50 && u.status == StatusLoading {
			saw50 = true
		}
		require.LessOrEqual(t, u.percent, 100)
	}
	require.True(t, saw50)
}

func TestStartSync_CancelStopsBetweenChunks(t *testing.T) {
	env := newSyncEnv(t)
	// shrink chunks so the orders stage spans several of them
	env.service.maxChunkDays = 1

	coordinator := NewCoordinator(env.service, NewTracker())
	recorder := &progressRecorder{}

	env.client.handler = func(call int, _ string, _ exchange.Params) (*exchange.Page, error) {
		if call == 0 {
			// cancellation lands while the first chunk is in flight
			coordinator.CancelSync("owner-1")
		}
		return &exchange.Page{List: []map[string]interface{}{
			rawOrderAt("BTCUSDT", rangeStart+int64(call)+1, rangeStart+int64(call)+2, "1"),
		}}, nil
	}

	err := coordinator.StartSync(context.Background(), "owner-1", "bybit", rangeStart, rangeEnd, recorder.fn())
	require.NoError(t, err)

	// only the first chunk ran; its records are kept
	require.Len(t, env.client.calls, 1)
	count, err := env.store.Order().CountInRange("owner-1", "bybit", rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// a cancelled sync never reaches success and leaves no progress behind
	require.False(t, recorder.sawStatus(StatusSuccess))
	_, active := coordinator.Progress("owner-1")
	require.False(t, active)
}

func TestStartSync_StageErrorReported(t *testing.T) {
	env := newSyncEnv(t)
	env.client.handler = func(_ int, _ string, _ exchange.Params) (*exchange.Page, error) {
		return nil, exchange.NewAPIError("bybit", exchange.MethodClosedPositions, "retCode 10002")
	}

	coordinator := NewCoordinator(env.service, NewTracker())
	recorder := &progressRecorder{}

	err := coordinator.StartSync(context.Background(), "owner-1", "bybit", rangeStart, rangeEnd, recorder.fn())
	var apiErr *exchange.APIError
	require.ErrorAs(t, err, &apiErr)

	require.Equal(t, progressRecord{percent: 0, status: StatusError}, recorder.last())
	p, active := coordinator.Progress("owner-1")
	require.True(t, active)
	require.Equal(t, StatusError, p.Status)
}

func TestClearProgress_StopsRunningSync(t *testing.T) {
	tracker := NewTracker()
	coordinator := NewCoordinator(nil, tracker)

	tracker.Set("owner-1", 30, StatusLoading, "Syncing closed positions")
	coordinator.ClearProgress("owner-1")

	_, active := coordinator.Progress("owner-1")
	require.False(t, active)
	require.True(t, tracker.Cancelled("owner-1"))
}
