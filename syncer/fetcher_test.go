package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradesync/exchange"
)

// fakeClient scripts page responses per call
type fakeClient struct {
	name    string
	calls   []exchange.Params
	handler func(call int, method string, params exchange.Params) (*exchange.Page, error)
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Call(_ context.Context, method string, params exchange.Params) (*exchange.Page, error) {
	f.calls = append(f.calls, params)
	return f.handler(len(f.calls)-1, method, params)
}

func testFetcher() *Fetcher {
	return &Fetcher{PageDelay: 0, PageLimit: 50}
}

func TestSplitRange_CoversRangeExactly(t *testing.T) {
	start := int64(1700000000000)
	end := start + 20*millisPerDay

	chunks := SplitRange(start, end, 7)
	require.Len(t, chunks, 3)

	require.Equal(t, start, chunks[0].Start)
	require.Equal(t, end, chunks[len(chunks)-1].End)
	for i, c := range chunks {
		require.Less(t, c.Start, c.End)
		require.LessOrEqual(t, c.End-c.Start, 7*millisPerDay)
		if i > 0 {
			require.Equal(t, chunks[i-1].End, c.Start)
		}
	}
}

func TestSplitRange_SingleChunkWhenRangeFits(t *testing.T) {
	start := int64(1700000000000)
	end := start + 3*millisPerDay

	chunks := SplitRange(start, end, 7)
	require.Equal(t, []Chunk{{Start: start, End: end}}, chunks)
}

func TestSplitRange_EmptyRange(t *testing.T) {
	require.Nil(t, SplitRange(100, 100, 7))
	require.Nil(t, SplitRange(200, 100, 7))
}

func TestFetchRange_DrainsCursorWithinChunk(t *testing.T) {
	client := &fakeClient{name: "bybit"}
	client.handler = func(call int, _ string, params exchange.Params) (*exchange.Page, error) {
		switch call {
		case 0:
			require.Empty(t, params.String("cursor"))
			return &exchange.Page{
				List:   []map[string]interface{}{{"orderId": "1"}},
				Cursor: "next-1",
			}, nil
		case 1:
			require.Equal(t, "next-1", params.String("cursor"))
			return &exchange.Page{
				List: []map[string]interface{}{{"orderId": "2"}},
			}, nil
		}
		t.Fatalf("unexpected call %d", call)
		return nil, nil
	}

	start := int64(1700000000000)
	records, err := testFetcher().FetchRange(context.Background(), client,
		exchange.MethodClosedPositions, nil, start, start+millisPerDay, 7, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, client.calls, 2)
}

func TestFetchRange_HookSequence(t *testing.T) {
	client := &fakeClient{name: "bybit"}
	client.handler = func(int, string, exchange.Params) (*exchange.Page, error) {
		return &exchange.Page{}, nil
	}

	var seen [][2]int
	hook := func(done, total int) bool {
		seen = append(seen, [2]int{done, total})
		return true
	}

	start := int64(1700000000000)
	_, err := testFetcher().FetchRange(context.Background(), client,
		exchange.MethodClosedPositions, nil, start, start+10*millisPerDay, 7, hook)
	require.NoError(t, err)
	require.Equal(t, [][2]int{{0, 2}, {1, 2}, {2, 2}}, seen)
}

func TestFetchRange_HookAbortKeepsPartialResults(t *testing.T) {
	client := &fakeClient{name: "bybit"}
	client.handler = func(call int, _ string, _ exchange.Params) (*exchange.Page, error) {
		return &exchange.Page{
			List: []map[string]interface{}{{"orderId": "chunk"}},
		}, nil
	}

	hook := func(done, total int) bool {
		return done < 1 // abort before the second chunk
	}

	start := int64(1700000000000)
	records, err := testFetcher().FetchRange(context.Background(), client,
		exchange.MethodClosedPositions, nil, start, start+20*millisPerDay, 7, hook)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, client.calls, 1)
}

func TestFetchRange_PropagatesTransportError(t *testing.T) {
	wantErr := errors.New("connection reset")
	client := &fakeClient{name: "bybit"}
	client.handler = func(int, string, exchange.Params) (*exchange.Page, error) {
		return nil, wantErr
	}

	start := int64(1700000000000)
	_, err := testFetcher().FetchRange(context.Background(), client,
		exchange.MethodClosedPositions, nil, start, start+millisPerDay, 7, nil)
	require.ErrorIs(t, err, wantErr)
}

func TestFetchRange_ChunkParamsForwarded(t *testing.T) {
	client := &fakeClient{name: "bybit"}
	client.handler = func(_ int, _ string, params exchange.Params) (*exchange.Page, error) {
		require.Equal(t, "BTCUSDT", params.String("symbol"))
		require.Positive(t, params.Int64("startTime"))
		require.Positive(t, params.Int64("endTime"))
		require.EqualValues(t, 50, params.Int64("limit"))
		return &exchange.Page{}, nil
	}

	start := int64(1700000000000)
	_, err := testFetcher().FetchRange(context.Background(), client,
		exchange.MethodClosedPositions, exchange.Params{"symbol": "BTCUSDT"},
		start, start+millisPerDay, 7, nil)
	require.NoError(t, err)
	require.Len(t, client.calls, 1)
}

func TestFetchRange_CancelledContextStopsPaging(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	client := &fakeClient{name: "bybit"}
	client.handler = func(call int, _ string, _ exchange.Params) (*exchange.Page, error) {
		cancel()
		return &exchange.Page{
			List:   []map[string]interface{}{{"orderId": "1"}},
			Cursor: "more",
		}, nil
	}

	f := &Fetcher{PageDelay: time.Millisecond, PageLimit: 50}
	start := int64(1700000000000)
	_, err := f.FetchRange(ctx, client, exchange.MethodClosedPositions, nil,
		start, start+millisPerDay, 7, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, client.calls, 1)
}
