package syncer

import (
	"context"
	"time"

	"tradesync/exchange"
	"tradesync/logger"
)

const (
	defaultPageDelay = 100 * time.Millisecond
	defaultPageLimit = 50
	millisPerDay     = int64(24 * time.Hour / time.Millisecond)
)

// Chunk a bounded sub-interval of a requested time range, unix ms
type Chunk struct {
	Start int64
	End   int64
}

// SplitRange splits [start, end] into consecutive chunks of at most
// maxChunkDays each; the last chunk is truncated to end. The union of chunks
// covers the range exactly, overlapping only on shared boundaries.
func SplitRange(start, end int64, maxChunkDays int) []Chunk {
	if end <= start {
		return nil
	}
	if maxChunkDays <= 0 {
		maxChunkDays = 7
	}
	chunkMs := int64(maxChunkDays) * millisPerDay
	if end-start <= chunkMs {
		return []Chunk{{Start: start, End: end}}
	}

	var chunks []Chunk
	for s := start; s < end; s += chunkMs {
		e := s + chunkMs
		if e > end {
			e = end
		}
		chunks = append(chunks, Chunk{Start: s, End: e})
	}
	return chunks
}

// ChunkHook observes chunk completion. It is invoked with done=0 before the
// first chunk and with done=n after the n-th chunk completes; returning false
// aborts the fetch, keeping whatever was accumulated. This is the only
// cooperative cancellation point — an in-flight page is never killed.
type ChunkHook func(done, total int) bool

// Fetcher drains cursor-paginated endpoints chunk by chunk
type Fetcher struct {
	PageDelay time.Duration // inter-page delay to respect rate limits
	PageLimit int
}

// NewFetcher creates a fetcher with default paging behavior
func NewFetcher() *Fetcher {
	return &Fetcher{PageDelay: defaultPageDelay, PageLimit: defaultPageLimit}
}

// FetchRange fetches every record for [start, end], splitting the range into
// chunks and draining the cursor within each. Transport and shape errors
// propagate unretried; the caller decides whether to retry the whole sync.
func (f *Fetcher) FetchRange(ctx context.Context, client exchange.Client, method string, params exchange.Params, start, end int64, maxChunkDays int, hook ChunkHook) ([]map[string]interface{}, error) {
	chunks := SplitRange(start, end, maxChunkDays)
	if len(chunks) == 0 {
		return nil, nil
	}

	var records []map[string]interface{}
	for i, chunk := range chunks {
		if hook != nil && !hook(i, len(chunks)) {
			logger.Infof("⏹ Fetch aborted after %d/%d chunks (%s %s)", i, len(chunks), client.Name(), method)
			return records, nil
		}

		chunkRecords, err := f.fetchChunk(ctx, client, method, params, chunk)
		if err != nil {
			return nil, err
		}
		records = append(records, chunkRecords...)
	}

	if hook != nil {
		hook(len(chunks), len(chunks))
	}
	return records, nil
}

// fetchChunk drains one chunk's cursor pagination
func (f *Fetcher) fetchChunk(ctx context.Context, client exchange.Client, method string, params exchange.Params, chunk Chunk) ([]map[string]interface{}, error) {
	var records []map[string]interface{}
	cursor := ""

	for {
		pageParams := exchange.Params{
			"startTime": chunk.Start,
			"endTime":   chunk.End,
			"limit":     f.PageLimit,
		}
		for k, v := range params {
			pageParams[k] = v
		}
		if cursor != "" {
			pageParams["cursor"] = cursor
		}

		page, err := client.Call(ctx, method, pageParams)
		if err != nil {
			return nil, err
		}
		records = append(records, page.List...)

		if page.Cursor == "" {
			return records, nil
		}
		cursor = page.Cursor

		if err := f.delay(ctx); err != nil {
			return records, err
		}
	}
}

func (f *Fetcher) delay(ctx context.Context) error {
	if f.PageDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.PageDelay):
		return nil
	}
}
