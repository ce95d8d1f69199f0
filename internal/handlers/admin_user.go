package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blazestride/internal/models"
	"blazestride/internal/validation"
)

type updateUserRequest struct {
	Role   *string `json:"role" validate:"omitempty,oneof=customer admin"`
	Status *string `json:"status" validate:"omitempty,oneof=active deactivated"`
}

func ListUsers(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/users"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := bson.M{}
		if role := strings.TrimSpace(c.Query("role")); role != "" {
			filter["role"] = role
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		total, err := db.Collection("users").CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		opts := options.Find().
			SetSkip((page - 1) * limit).
			SetLimit(limit).
			SetSort(bson.D{{Key: "createdAt", Value: -1}})

		cursor, err := db.Collection("users").Find(ctx, filter, opts)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		users := make([]models.User, 0)
		if err := cursor.All(ctx, &users); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       users,
			"pagination": paginationMeta(page, limit, total),
		})
	}
}

// UpdateUser lets an admin change a user's role or deactivate the account.
func UpdateUser(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/users/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req updateUserRequest
		if err := validation.BindAndValidate(c, &req, validate); err != nil {
			return
		}

		updateSet := bson.M{}
		if req.Role != nil {
			updateSet["role"] = *req.Role
		}
		if req.Status != nil {
			updateSet["status"] = *req.Status
		}
		if len(updateSet) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		updateSet["updatedAt"] = time.Now().UTC()

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var user models.User
		err := db.Collection("users").FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": updateSet}, opts).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if !user.IsActive() {
			if _, err := db.Collection("refresh_tokens").UpdateMany(ctx,
				bson.M{"userId": id, "revoked": false},
				bson.M{"$set": bson.M{"revoked": true}},
			); err != nil {
				log.Println("[ADMIN] [ERROR] revoke refresh tokens failed:", err)
			}
		}

		log.Printf("[ADMIN] [INFO] user %s updated: role=%s status=%s", id.Hex(), user.Role, user.Status)
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}
