package syncer

import (
	"context"
	"math"

	"tradesync/logger"
)

// Stage percent windows: closed positions fill 0-49, ledger transactions
// 50-100. Progress numbering depends on the orders stage running first.
const (
	ordersStageStart = 0
	ordersStageSpan  = 49
	txStageStart     = 50
	txStageSpan      = 50
)

// ProgressFn receives every progress update the coordinator emits. The
// coordinator knows nothing about how updates reach a client; a test double
// simply records calls.
type ProgressFn func(percent int, status Status, message string)

// Coordinator runs long multi-stage syncs with live progress reporting and
// cooperative cancellation. Its job is observability, not recovery: stage
// errors are reported and rethrown, never swallowed.
type Coordinator struct {
	service *Service
	tracker *Tracker
}

// NewCoordinator creates a sync coordinator
func NewCoordinator(service *Service, tracker *Tracker) *Coordinator {
	return &Coordinator{service: service, tracker: tracker}
}

// Tracker exposes the underlying progress tracker
func (c *Coordinator) Tracker() *Tracker {
	return c.tracker
}

// StartSync runs a full two-stage sync for one owner: closed positions, then
// ledger transactions. Cancellation is checked between chunks; a cancelled
// sync stops with whatever was persisted and never reaches success.
func (c *Coordinator) StartSync(ctx context.Context, owner, exchangeName string, start, end int64, notify ProgressFn) error {
	c.tracker.ResetCancel(owner)

	report := func(percent int, status Status, message string) {
		c.tracker.Set(owner, percent, status, message)
		if notify != nil {
			notify(percent, status, message)
		}
	}

	report(0, StatusLoading, "Syncing closed positions")
	if _, err := c.service.SyncOrders(ctx, owner, exchangeName, start, end,
		c.stageHook(owner, report, ordersStageStart, ordersStageSpan, "Syncing closed positions")); err != nil {
		report(0, StatusError, "Failed to sync closed positions")
		return err
	}
	if c.tracker.Cancelled(owner) {
		logger.Infof("⏹ Sync cancelled for owner %s (%s)", owner, exchangeName)
		return nil
	}

	report(txStageStart, StatusLoading, "Syncing ledger transactions")
	if _, err := c.service.SyncTransactions(ctx, owner, exchangeName, start, end,
		c.stageHook(owner, report, txStageStart, txStageSpan, "Syncing ledger transactions")); err != nil {
		report(0, StatusError, "Failed to sync ledger transactions")
		return err
	}
	if c.tracker.Cancelled(owner) {
		logger.Infof("⏹ Sync cancelled for owner %s (%s)", owner, exchangeName)
		return nil
	}

	report(100, StatusSuccess, "Sync complete")
	return nil
}

// stageHook maps chunk completion onto a stage's percent window and checks
// the cancellation flag between chunks.
func (c *Coordinator) stageHook(owner string, report func(int, Status, string), stageStart, stageSpan int, message string) ChunkHook {
	return func(done, total int) bool {
		if c.tracker.Cancelled(owner) {
			return false
		}
		if done > 0 && total > 0 {
			percent := stageStart + int(math.Round(float64(done)/float64(total)*float64(stageSpan)))
			report(percent, StatusLoading, message)
		}
		return true
	}
}

// CancelSync requests cooperative cancellation of the owner's running sync
// and clears its progress.
func (c *Coordinator) CancelSync(owner string) {
	c.tracker.RequestCancel(owner)
}

// ClearProgress discards the owner's progress. It also raises the
// cancellation flag so a still-running sync stops instead of resurrecting
// the progress entry.
func (c *Coordinator) ClearProgress(owner string) {
	c.tracker.RequestCancel(owner)
}

// Progress returns the owner's progress, or an idle sentinel when no sync is
// running or the entry went stale.
func (c *Coordinator) Progress(owner string) (Progress, bool) {
	return c.tracker.Get(owner)
}
