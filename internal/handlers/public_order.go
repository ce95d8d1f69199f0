package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blazestride/internal/idempotency"
	"blazestride/internal/orders"
	"blazestride/internal/validation"
)

/* =========================
   CREATE ORDER
========================= */

// CreateOrder places an order for the authenticated user. idem may be nil,
// in which case the Idempotency-Key header is ignored.
func CreateOrder(svc *orders.Service, idem *idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req orders.PlaceOrderRequest
		if err := validation.DecodeStrictJSON(c, &req); err != nil {
			log.Printf("[%s] invalid body: %v", route, err)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid body",
				"details": []string{err.Error()},
			})
			return
		}
		req.User = userID

		ctx := c.Request.Context()
		scope := userID.Hex()
		key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		guarded := idem != nil && key != ""

		if guarded {
			claimed, existingID, err := idem.Claim(ctx, scope, key)
			switch {
			case errors.Is(err, idempotency.ErrInProgress):
				respondOrderError(c, route, err)
				return
			case err != nil:
				log.Printf("[ORDER] [ERROR] idempotency unavailable, placing without it: %v", err)
				guarded = false
			case !claimed:
				replayOrder(c, svc, route, existingID)
				return
			}
		}

		result, err := svc.PlaceOrder(ctx, req)
		if err != nil {
			if guarded {
				if relErr := idem.Release(context.WithoutCancel(ctx), scope, key); relErr != nil {
					log.Println("[ORDER] [ERROR] idempotency release failed:", relErr)
				}
			}
			respondOrderError(c, route, err)
			return
		}

		if guarded {
			if err := idem.Complete(context.WithoutCancel(ctx), scope, key, result.Order.ID.Hex()); err != nil {
				log.Println("[ORDER] [ERROR] idempotency complete failed:", err)
			}
		}

		writeWarnings(c, result.Warnings)
		body := gin.H{"order": result.Order}
		if len(result.Warnings) > 0 {
			body["warnings"] = result.Warnings
		}
		c.JSON(http.StatusCreated, body)
	}
}

func replayOrder(c *gin.Context, svc *orders.Service, route, rawID string) {
	id, err := primitive.ObjectIDFromHex(rawID)
	if err != nil {
		respondWithError(c, http.StatusConflict, route, "Idempotency-Key already used")
		return
	}

	order, err := svc.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondOrderError(c, route, err)
		return
	}

	log.Println("[ORDER] [INFO] replaying order for repeated Idempotency-Key:", order.ID.Hex())
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func writeWarnings(c *gin.Context, warnings []string) {
	for _, w := range warnings {
		c.Writer.Header().Add("Warning", `199 blazestride "`+w+`"`)
	}
}

/* =========================
   GET ORDERS
========================= */

// GetMyOrders lists the caller's orders, newest first.
func GetMyOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		list, err := svc.ListUserOrders(c.Request.Context(), userID)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"orders": list})
	}
}

// GetOrder returns one order to its owner or to an admin. Other users get a
// 404 so order ids cannot be probed.
func GetOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		defer handlePanic(c, route)

		orderID, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		userID, _ := currentUserID(c)

		order, err := svc.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		if order.User != userID && !isAdmin(c) {
			respondOrderError(c, route, &orders.NotFoundError{Resource: "order", ID: orderID})
			return
		}

		c.JSON(http.StatusOK, gin.H{"order": order})
	}
}

