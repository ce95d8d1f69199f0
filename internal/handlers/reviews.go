package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"blazestride/internal/reviews"
	"blazestride/internal/validation"
)

func respondReviewError(c *gin.Context, route string, err error) {
	switch {
	case errors.Is(err, reviews.ErrOrderNotReceived), errors.Is(err, reviews.ErrProductNotInOrder):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	case errors.Is(err, reviews.ErrDuplicate):
		respondWithError(c, http.StatusConflict, route, "review already exists")
	default:
		respondOrderError(c, route, err)
	}
}

// UpsertReview creates the caller's review (201) or updates it (200).
func UpsertReview(svc *reviews.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /reviews"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req reviews.UpsertRequest
		if err := validation.DecodeStrictJSON(c, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid body",
				"details": []string{err.Error()},
			})
			return
		}
		req.User = userID

		review, created, err := svc.Upsert(c.Request.Context(), req)
		if err != nil {
			respondReviewError(c, route, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		log.Printf("[REVIEW] [INFO] review %s saved (created=%t)", review.ID.Hex(), created)
		c.JSON(status, gin.H{"review": review})
	}
}

func GetReviewByOrderAndProduct(svc *reviews.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /reviews/order/:orderId/product/:productId"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		orderID, ok := objectIDParam(c, "orderId")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid orderId")
			return
		}
		productID, ok := objectIDParam(c, "productId")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		review, err := svc.GetByOrderAndProduct(c.Request.Context(), userID, orderID, productID)
		if err != nil {
			respondReviewError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"review": review})
	}
}

func GetProductReviews(svc *reviews.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /reviews/product/:productId"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, "productId")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		list, err := svc.ListForProduct(c.Request.Context(), productID)
		if err != nil {
			respondReviewError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"reviews": list})
	}
}

func GetMyReviews(svc *reviews.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /reviews/user"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		list, err := svc.ListForUser(c.Request.Context(), userID)
		if err != nil {
			respondReviewError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"reviews": list})
	}
}

func DeleteReview(svc *reviews.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /reviews/:reviewId"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		reviewID, ok := objectIDParam(c, "reviewId")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid reviewId")
			return
		}

		if err := svc.Delete(c.Request.Context(), reviewID, userID); err != nil {
			respondReviewError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "review deleted"})
	}
}
