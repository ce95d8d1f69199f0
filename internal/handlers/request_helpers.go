package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"blazestride/internal/idempotency"
	"blazestride/internal/models"
	"blazestride/internal/orders"
	"blazestride/internal/validation"
)

var validate = validation.New()

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func ensureDBConnection(ctx context.Context, db *mongo.Database) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Client().Ping(checkCtx, readpref.Primary())
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondOrderError maps the errors of the orders and reviews services to
// HTTP responses.
func respondOrderError(c *gin.Context, route string, err error) {
	var (
		validationErr *orders.ValidationError
		stockErr      *orders.InsufficientStockError
		notFoundErr   *orders.NotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		log.Printf("[%s] returning error %d: %v", route, http.StatusBadRequest, err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": validationErr.Details,
		})
	case errors.As(err, &stockErr):
		log.Printf("[%s] returning error %d: %v", route, http.StatusBadRequest, err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     stockErr.Error(),
			"productId": stockErr.ProductID.Hex(),
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
	case errors.As(err, &notFoundErr):
		log.Printf("[%s] returning error %d: %v", route, http.StatusNotFound, err)
		body := gin.H{"error": notFoundErr.Error()}
		if notFoundErr.Resource == "product" {
			body["productId"] = notFoundErr.ID.Hex()
		}
		c.AbortWithStatusJSON(http.StatusNotFound, body)
	case errors.Is(err, orders.ErrNotFound):
		respondWithError(c, http.StatusNotFound, route, "not found")
	case errors.Is(err, idempotency.ErrInProgress):
		respondWithError(c, http.StatusConflict, route, "a request with this Idempotency-Key is in progress")
	case errors.Is(err, orders.ErrTransient):
		log.Printf("[%s] transient failure: %v", route, err)
		respondWithError(c, http.StatusServiceUnavailable, route, "service temporarily unavailable")
	default:
		log.Printf("[%s] unexpected failure: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "internal server error")
	}
}

func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, ok := c.Get("userId")
	if !ok {
		return primitive.NilObjectID, false
	}
	id, ok := value.(primitive.ObjectID)
	return id, ok
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == models.RoleAdmin
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}
