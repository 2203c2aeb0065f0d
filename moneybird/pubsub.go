package moneybird

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/JobDoesburg/landolfio-backend/utils"
	"github.com/gin-gonic/gin"
)

// PublishSyncRun hands a sync request to the pub/sub topic so the push
// subscription triggers it, instead of running it on the request goroutine.
func PublishSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	topicName := strings.TrimSpace(os.Getenv("MONEYBIRD_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "moneybird-sync"
	}

	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("MONEYBIRD_SYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	data, err := utils.MarshalToJSON(payload)
	if err != nil {
		return err
	}
	res := topic.Publish(ctx, &pubsub.Message{Data: []byte(data)})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler accepts push deliveries from the sync topic. Responses
// are always 204: a malformed envelope must not be redelivered forever, and
// a busy engine already skips on its own.
func PubSubPushHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_MONEYBIRD_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}

		if payload.RunId != 0 {
			_, _ = engine.PerformQueuedRun(c.Request.Context(), payload.RunId)
			c.Status(204)
			return
		}

		triggeredBy := payload.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = models.SyncTriggeredScheduled
		}
		_, _ = engine.PerformSync(c.Request.Context(), SyncOptions{
			Full:        payload.Full,
			TriggeredBy: triggeredBy,
			ParentRunId: payload.ParentRunId,
		})
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
