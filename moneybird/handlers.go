package moneybird

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// WebhookHandler accepts deliveries from the remote administration. It always
// answers 200: a rejected or malformed delivery must not be retried by the
// sender, it is logged and counted instead.
func WebhookHandler(processor *Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var event WebhookEvent
		if err := c.ShouldBindJSON(&event); err != nil {
			metricWebhookRejected.WithLabelValues("malformed_body").Inc()
			c.JSON(http.StatusOK, gin.H{"processed": false})
			return
		}

		if err := processor.Process(c.Request.Context(), &event); err != nil {
			var rejected *WebhookRejected
			if !errors.As(err, &rejected) {
				config.LogError(config.GetLogger(), "moneybird", "WebhookHandler", event.Action, event.EntityType, err)
			}
			c.JSON(http.StatusOK, gin.H{"processed": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"processed": true})
	}
}

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		_, err := config.GetMoneybirdSettings()
		configured := err == nil

		runs, err := models.ListSyncRuns(ctx, 1)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var lastRun *SyncRunResponse
		if len(runs) > 0 {
			resp := mapRunToResponse(runs[0])
			lastRun = &resp
		}

		var cursors []models.SyncCursor
		if err := config.GetDB().WithContext(ctx).Order("entity_type").Find(&cursors).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		cursorItems := make([]SyncCursorResponse, 0, len(cursors))
		for _, cursor := range cursors {
			syncedAt := cursor.SyncedAt
			cursorItems = append(cursorItems, SyncCursorResponse{
				EntityType: cursor.EntityType,
				Cursor:     cursor.Cursor,
				SyncedAt:   formatTime(&syncedAt),
			})
		}

		c.JSON(http.StatusOK, StatusResponse{
			Configured: configured,
			LastRun:    lastRun,
			Cursors:    cursorItems,
		})
	}
}

// TriggerSyncHandler records a queued run and hands it to the sync topic, so
// the push subscription executes it off the request goroutine. When publishing
// fails (no pub/sub in the environment) the run is executed locally instead.
func TriggerSyncHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		run, err := queueSyncRun(c.Request.Context(), engine, models.SyncTriggeredManual, req.Full, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"id": run.ID, "queued": true})
	}
}

// queueSyncRun creates the run record up front so the caller gets an id to
// poll, then dispatches it through pub/sub with a local fallback.
func queueSyncRun(ctx context.Context, engine *Engine, triggeredBy string, full bool, parentRunId *uint) (*models.SyncRun, error) {
	run := models.SyncRun{
		Status:      models.SyncRunStatusQueued,
		TriggeredBy: triggeredBy,
		Full:        &full,
		ParentRunId: parentRunId,
	}
	if err := config.GetDB().WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}

	if err := PublishSyncRun(ctx, SyncPubSubPayload{RunId: run.ID}); err != nil {
		config.LogError(config.GetLogger(), "moneybird", "queueSyncRun", "", run.ID, err)
		go func() {
			runCtx, cancel := context.WithTimeout(context.Background(), syncLockTTL)
			defer cancel()
			if _, err := engine.PerformQueuedRun(runCtx, run.ID); err != nil {
				config.LogError(config.GetLogger(), "moneybird", "queueSyncRun", "", run.ID, err)
			}
		}()
	}
	return &run, nil
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.ListSyncRuns(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := models.GetSyncRunById(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		errs, err := models.ListSyncErrors(c.Request.Context(), run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(*run),
			Errors:          mapErrors(errs),
		})
	}
}

// RetrySyncRunHandler re-runs a finished run with the same scope, linked to
// the original through parent_run_id.
func RetrySyncRunHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := models.GetSyncRunById(c.Request.Context(), uint(id))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run.Status == models.SyncRunStatusRunning || run.Status == models.SyncRunStatusQueued {
			c.JSON(http.StatusConflict, gin.H{"error": "run has not finished"})
			return
		}

		parentId := run.ID
		full := run.Full != nil && *run.Full
		child, err := queueSyncRun(c.Request.Context(), engine, models.SyncTriggeredRetry, full, &parentId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"id": child.ID, "queued": true, "parentRunId": parentId})
	}
}

func formatTime(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		Full:          run.Full != nil && *run.Full,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapErrors(errorsList []models.SyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			RemoteId:   errItem.RemoteId,
			ErrorCode:  errItem.ErrorCode,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}
