package handlers

import (
	"net/http"
	"time"

	"backoffice-svc/middleware"
	"backoffice-svc/models"
	"backoffice-svc/reconciler"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// WebhookHandler receives provider webhook deliveries. Signature
// verification happens at the gateway in front of this service.
type WebhookHandler struct {
	engine *reconciler.Engine
	logger *zap.Logger
}

func NewWebhookHandler(engine *reconciler.Engine, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{engine: engine, logger: logger}
}

// HandleStripeEvent processes one delivery. The status code tells the
// provider whether to redeliver: 400 for failures a retry cannot fix,
// 503 for transient ones.
func (h *WebhookHandler) HandleStripeEvent(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "HandleStripeEvent")
	defer span.End()

	var event models.WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	)

	kind, ok := models.EventKindForType(event.Type)
	if !ok {
		// Acknowledge event types this service does not reconcile so the
		// provider stops redelivering them.
		h.logger.Info("Ignoring unhandled webhook event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
		)
		c.JSON(http.StatusOK, gin.H{"received": true, "handled": false})
		return
	}

	start := time.Now()
	outcome, err := h.engine.Process(ctx, kind, &event)
	middleware.ObserveReconciliation(string(kind), time.Since(start))

	if err != nil {
		span.RecordError(err)
		if reconciler.IsPermanent(err) {
			middleware.RecordWebhookEvent(string(kind), "rejected")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		middleware.RecordWebhookEvent(string(kind), "failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Event could not be processed, retry later"})
		return
	}

	if outcome.Duplicate {
		middleware.RecordWebhookEvent(string(kind), "duplicate")
	} else {
		middleware.RecordWebhookEvent(string(kind), "processed")
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "handled": true, "duplicate": outcome.Duplicate})
}
