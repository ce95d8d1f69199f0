package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blazestride/internal/models"
	"blazestride/internal/orders"
	"blazestride/internal/validation"
)

type updateOrderStatusRequest struct {
	OrderStatus string `json:"orderStatus"`
}

// ListOrders is the admin order listing with optional status and user
// filters.
func ListOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := orders.ListFilter{Page: page, Limit: limit}

		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			status, err := models.ToOrderStatus(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid status")
				return
			}
			filter.Status = status
		}

		if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
			userID, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid userId")
				return
			}
			filter.User = userID
		}

		list, total, err := svc.ListOrders(c.Request.Context(), filter)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       list,
			"pagination": paginationMeta(page, limit, total),
		})
	}
}

func UpdateOrderStatus(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/api/orders/:id/status"
		defer handlePanic(c, route)

		orderID, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req updateOrderStatusRequest
		if err := validation.DecodeStrictJSON(c, &req); err != nil || req.OrderStatus == "" {
			respondWithError(c, http.StatusBadRequest, route, "orderStatus is required")
			return
		}

		result, err := svc.UpdateStatus(c.Request.Context(), orderID, req.OrderStatus)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		log.Printf("[%s] order %s is now %s", route, orderID.Hex(), result.Order.OrderStatus)
		writeWarnings(c, result.Warnings)
		body := gin.H{"order": result.Order}
		if len(result.Warnings) > 0 {
			body["warnings"] = result.Warnings
		}
		c.JSON(http.StatusOK, body)
	}
}

func DeleteOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/orders/:id"
		defer handlePanic(c, route)

		orderID, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		if err := svc.DeleteOrder(c.Request.Context(), orderID); err != nil {
			respondOrderError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "order deleted"})
	}
}
