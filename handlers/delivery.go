package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"backoffice-svc/cache"
	"backoffice-svc/circuitbreaker"
	"backoffice-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DeliveryHandler is the admin CRUD surface for delivery methods.
type DeliveryHandler struct {
	db             *sql.DB
	redisClient    *redis.Client
	logger         *zap.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewDeliveryHandler(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *DeliveryHandler {
	return &DeliveryHandler{
		db:             db,
		redisClient:    redisClient,
		logger:         logger,
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (h *DeliveryHandler) GetDeliveries(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetDeliveries")
	defer span.End()

	rows, err := h.db.QueryContext(ctx, "SELECT id, name, description, price, enabled, created_at, updated_at FROM deliveries ORDER BY id")
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to fetch deliveries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer rows.Close()

	var deliveries []models.Delivery
	for rows.Next() {
		var d models.Delivery
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.Price, &d.Enabled, &d.CreatedAt, &d.UpdatedAt); err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to scan delivery", zap.Error(err))
			continue
		}
		deliveries = append(deliveries, d)
	}

	span.SetAttributes(attribute.Int("deliveries.count", len(deliveries)))
	c.JSON(http.StatusOK, deliveries)
}

func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "GetDelivery")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("delivery.id", id))

	// Try to get from cache first
	cachedData, err := cache.GetDelivery(ctx, h.redisClient, id)
	if err == nil {
		var delivery models.Delivery
		if err := json.Unmarshal(cachedData, &delivery); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			c.JSON(http.StatusOK, delivery)
			return
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	// Get from database with circuit breaker
	var delivery models.Delivery
	dbErr := h.circuitBreaker.Execute(ctx, func() error {
		return h.db.QueryRowContext(ctx,
			"SELECT id, name, description, price, enabled, created_at, updated_at FROM deliveries WHERE id = $1",
			id,
		).Scan(&delivery.ID, &delivery.Name, &delivery.Description, &delivery.Price, &delivery.Enabled, &delivery.CreatedAt, &delivery.UpdatedAt)
	})

	if dbErr != nil {
		if dbErr == circuitbreaker.ErrCircuitOpen {
			span.SetAttributes(attribute.String("circuit.state", "open"))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}
		if dbErr == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Delivery method not found"})
			return
		}
		span.RecordError(dbErr)
		h.logger.Error("Failed to fetch delivery", zap.Error(dbErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Cache the delivery method for 5 minutes
	cache.SetDelivery(ctx, h.redisClient, id, delivery, 5*time.Minute)

	c.JSON(http.StatusOK, delivery)
}

func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "CreateDelivery")
	defer span.End()

	var req models.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var delivery models.Delivery
	err := h.db.QueryRowContext(ctx,
		"INSERT INTO deliveries (name, description, price, enabled) VALUES ($1, $2, $3, $4) RETURNING id, name, description, price, enabled, created_at, updated_at",
		req.Name, req.Description, req.Price, req.Enabled,
	).Scan(&delivery.ID, &delivery.Name, &delivery.Description, &delivery.Price, &delivery.Enabled, &delivery.CreatedAt, &delivery.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create delivery", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("delivery.id", delivery.ID))
	h.logger.Info("Delivery method created", zap.Int("delivery_id", delivery.ID))
	c.JSON(http.StatusCreated, delivery)
}

func (h *DeliveryHandler) UpdateDelivery(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "UpdateDelivery")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("delivery.id", id))

	var req models.UpdateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Build update query dynamically
	query := "UPDATE deliveries SET updated_at = CURRENT_TIMESTAMP"
	args := []interface{}{}
	argPos := 1

	if req.Name != nil {
		query += ", name = $" + strconv.Itoa(argPos)
		args = append(args, *req.Name)
		argPos++
	}
	if req.Description != nil {
		query += ", description = $" + strconv.Itoa(argPos)
		args = append(args, *req.Description)
		argPos++
	}
	if req.Price != nil {
		query += ", price = $" + strconv.Itoa(argPos)
		args = append(args, *req.Price)
		argPos++
	}
	if req.Enabled != nil {
		query += ", enabled = $" + strconv.Itoa(argPos)
		args = append(args, *req.Enabled)
		argPos++
	}

	query += " WHERE id = $" + strconv.Itoa(argPos) + " RETURNING id, name, description, price, enabled, created_at, updated_at"
	args = append(args, id)

	var delivery models.Delivery
	err := h.db.QueryRowContext(ctx, query, args...).Scan(
		&delivery.ID, &delivery.Name, &delivery.Description, &delivery.Price, &delivery.Enabled, &delivery.CreatedAt, &delivery.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			c.JSON(http.StatusNotFound, gin.H{"error": "Delivery method not found"})
			return
		}
		span.RecordError(err)
		h.logger.Error("Failed to update delivery", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	// Invalidate cache
	cache.DeleteDelivery(ctx, h.redisClient, id)

	h.logger.Info("Delivery method updated", zap.String("delivery_id", id))
	c.JSON(http.StatusOK, delivery)
}

func (h *DeliveryHandler) DeleteDelivery(c *gin.Context) {
	ctx, span := otel.Tracer("backoffice-service").Start(c.Request.Context(), "DeleteDelivery")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("delivery.id", id))

	result, err := h.db.ExecContext(ctx, "DELETE FROM deliveries WHERE id = $1", id)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to delete delivery", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Delivery method not found"})
		return
	}

	// Invalidate cache
	cache.DeleteDelivery(ctx, h.redisClient, id)

	h.logger.Info("Delivery method deleted", zap.String("delivery_id", id))
	c.JSON(http.StatusOK, gin.H{"message": "Delivery method deleted successfully"})
}
