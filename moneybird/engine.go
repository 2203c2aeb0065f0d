package moneybird

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	syncLockKey = "moneybird:sync:lock"
	syncLockTTL = 15 * time.Minute
)

type SyncOptions struct {
	Full        bool
	TriggeredBy string
	ParentRunId *uint
}

// Engine drives a full pass over the registered resource types. A second
// invocation while one is running is a no-op, never a queue.
type Engine struct {
	resolver *Resolver
	settings *config.MoneybirdSettings
	logger   *logrus.Logger
	running  int32
}

func NewEngine(resolver *Resolver, settings *config.MoneybirdSettings, logger *logrus.Logger) *Engine {
	return &Engine{
		resolver: resolver,
		settings: settings,
		logger:   logger,
	}
}

// PerformSync creates a run record and executes one sync pass, returning the
// finished run. It returns (nil, nil) when another pass already holds the
// lock.
func (e *Engine) PerformSync(ctx context.Context, opts SyncOptions) (*models.SyncRun, error) {
	release, ok, err := e.tryLock(ctx)
	if err != nil || !ok {
		return nil, err
	}
	defer release()

	db := config.GetDB().WithContext(ctx)

	now := time.Now()
	triggeredBy := opts.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = models.SyncTriggeredManual
	}
	full := opts.Full
	run := models.SyncRun{
		Status:      models.SyncRunStatusRunning,
		TriggeredBy: triggeredBy,
		Full:        &full,
		ParentRunId: opts.ParentRunId,
		StartedAt:   &now,
	}
	if err := db.Create(&run).Error; err != nil {
		return nil, err
	}

	return e.execute(ctx, db, &run)
}

// PerformQueuedRun picks up a run created ahead of time (by the trigger and
// retry endpoints, dispatched through pub/sub) and executes it. A run that is
// no longer queued was already picked up elsewhere and is returned untouched.
func (e *Engine) PerformQueuedRun(ctx context.Context, runId uint) (*models.SyncRun, error) {
	release, ok, err := e.tryLock(ctx)
	if err != nil || !ok {
		return nil, err
	}
	defer release()

	db := config.GetDB().WithContext(ctx)

	run, err := models.GetSyncRunById(ctx, runId)
	if err != nil {
		return nil, err
	}
	if run.Status != models.SyncRunStatusQueued {
		return run, nil
	}

	now := time.Now()
	if err := db.Model(run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": now,
	}).Error; err != nil {
		return nil, err
	}
	run.Status = models.SyncRunStatusRunning
	run.StartedAt = &now

	return e.execute(ctx, db, run)
}

// tryLock takes the in-process flag and the cross-instance lock without
// blocking. ok=false means another pass is running and the caller should
// skip.
func (e *Engine) tryLock(ctx context.Context) (release func(), ok bool, err error) {
	if !atomic.CompareAndSwapInt32(&e.running, 0, 1) {
		metricSyncSkipped.Inc()
		e.logger.Info("moneybird sync already running in this process, skipping")
		return nil, false, nil
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, syncLockKey, syncLockTTL, nil)
		if err != nil {
			atomic.StoreInt32(&e.running, 0)
			if errors.Is(err, redislock.ErrNotObtained) {
				metricSyncSkipped.Inc()
				e.logger.Info("moneybird sync lock held elsewhere, skipping")
				return nil, false, nil
			}
			return nil, false, err
		}
		return func() {
			_ = lock.Release(context.Background())
			atomic.StoreInt32(&e.running, 0)
		}, true, nil
	}

	return func() { atomic.StoreInt32(&e.running, 0) }, true, nil
}

func (e *Engine) execute(ctx context.Context, db *gorm.DB, run *models.SyncRun) (*models.SyncRun, error) {
	full := run.Full != nil && *run.Full

	stats := map[string]int{}
	errorCount := 0
	totalSynced := 0
	attempted := 0
	failedTypes := 0

	for _, rt := range e.resolver.Registry().Ordered(e.settings.SyncResources) {
		if !rt.CanFullSync {
			continue
		}
		attempted++

		count, recordErrors, err := e.syncResource(ctx, db, run.ID, rt, full)
		stats[rt.EntityType] = count
		totalSynced += count
		errorCount += recordErrors
		metricRecordsSynced.WithLabelValues(rt.EntityType).Add(float64(count))
		if recordErrors > 0 {
			metricSyncErrors.WithLabelValues(rt.EntityType).Add(float64(recordErrors))
		}
		if err != nil {
			errorCount++
			metricSyncErrors.WithLabelValues(rt.EntityType).Inc()
			_ = models.CreateSyncError(ctx, db, run.ID, rt.EntityType, "", "sync_failed", err.Error(), nil, true)
			config.LogError(e.logger, "moneybird", "PerformSync", rt.EntityType, nil, err)
		}
		if recordErrors > 0 || err != nil {
			failedTypes++
		}
	}

	finishedAt := time.Now()
	status := runStatus(failedTypes, attempted)
	metricSyncRuns.WithLabelValues(status).Inc()

	statsJSON, _ := json.Marshal(stats)
	if err := db.Model(run).Updates(map[string]interface{}{
		"status":         status,
		"finished_at":    finishedAt,
		"duration_ms":    finishedAt.Sub(*run.StartedAt).Milliseconds(),
		"records_synced": totalSynced,
		"error_count":    errorCount,
		"stats_json":     statsJSON,
	}).Error; err != nil {
		return nil, err
	}

	return models.GetSyncRunById(ctx, run.ID)
}

// runStatus derives the run outcome from how many resource-type passes had
// failures. A pass over an empty administration is a success, not a failure.
func runStatus(failedTypes, attempted int) string {
	switch {
	case failedTypes == 0:
		return models.SyncRunStatusSuccess
	case failedTypes >= attempted:
		return models.SyncRunStatusFailed
	default:
		return models.SyncRunStatusPartial
	}
}

// syncResource pulls every remote record for one resource type and reconciles
// it. The fetch cursor only advances when the pass finished without a single
// record error, so the next incremental pass re-covers anything that failed.
func (e *Engine) syncResource(ctx context.Context, db *gorm.DB, runID uint, rt *ResourceType, full bool) (int, int, error) {
	passStart := time.Now().UTC()

	params := url.Values{}
	if !full {
		cursor, err := models.GetSyncCursor(ctx, rt.EntityType)
		if err != nil {
			return 0, 0, err
		}
		if cursor != nil && cursor.Cursor != "" {
			params.Set("filter", "updated_after:"+cursor.Cursor)
		} else {
			full = true
		}
	}

	records, err := e.resolver.Client().GetAll(ctx, rt.Path, params)
	if err != nil {
		return 0, 0, err
	}

	seen := map[string]bool{}
	synced := 0
	recordErrors := 0

	for _, raw := range records {
		remoteID, _, err := rt.IdentityKey(raw)
		if err != nil {
			recordErrors++
			_ = models.CreateSyncError(ctx, db, runID, rt.EntityType, "", "invalid_payload", err.Error(), raw, false)
			continue
		}
		seen[remoteID] = true

		var outcome reconcileOutcome
		err = db.Transaction(func(tx *gorm.DB) error {
			o, rerr := e.resolver.ReconcileOne(ctx, tx, rt, raw)
			outcome = o
			return rerr
		})
		if err != nil {
			recordErrors++
			_ = models.CreateSyncError(ctx, db, runID, rt.EntityType, remoteID, "reconcile_failed", err.Error(), raw, true)
			continue
		}
		if outcome == reconcileSkippedStale {
			metricRecordsSkippedStale.WithLabelValues(rt.EntityType).Inc()
		}
		synced++
	}

	// A full pass has seen the complete remote collection, so anything still
	// linked to an id outside the seen set was deleted remotely. The row stays,
	// only the link is cleared.
	if full && rt.CanDelete {
		err := db.Transaction(func(tx *gorm.DB) error {
			return e.resolver.UnlinkMissing(ctx, tx, rt, seen)
		})
		if err != nil {
			return synced, recordErrors, fmt.Errorf("unlink pass: %w", err)
		}
	}

	if recordErrors == 0 {
		if err := models.SaveSyncCursor(ctx, rt.EntityType, passStart.Format(time.RFC3339)); err != nil {
			return synced, recordErrors, err
		}
	}

	return synced, recordErrors, nil
}
