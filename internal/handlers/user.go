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
	"golang.org/x/crypto/bcrypt"

	"blazestride/internal/models"
	"blazestride/internal/validation"
)

type updateProfileRequest struct {
	FirstName       *string `json:"firstname" validate:"omitempty,min=1,max=50"`
	LastName        *string `json:"lastname" validate:"omitempty,min=1,max=50"`
	Email           *string `json:"email" validate:"omitempty,email"`
	PhoneNumber     *string `json:"phoneNumber" validate:"omitempty,max=30"`
	Address         *string `json:"address" validate:"omitempty,max=300"`
	Avatar          *string `json:"useravatar" validate:"omitempty,url"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword" validate:"omitempty,strongpassword"`
}

type deleteAccountRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func GetMe(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /auth/me"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			log.Println("[AUTH] [ERROR] userId missing in context")
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
			log.Println("[AUTH] [ERROR] get me failed:", err)
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}

		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

// UpdateProfile edits the caller's own profile. Changing the password
// requires the current one.
func UpdateProfile(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /user/profile"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req updateProfileRequest
		if err := validation.BindAndValidate(c, &req, validate); err != nil {
			log.Println("[PROFILE] [ERROR] invalid profile body:", err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
			log.Println("[PROFILE] [ERROR] user not found:", err)
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}

		updateSet := bson.M{}
		if req.FirstName != nil {
			updateSet["firstname"] = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			updateSet["lastname"] = strings.TrimSpace(*req.LastName)
		}
		if req.PhoneNumber != nil {
			updateSet["phoneNumber"] = strings.TrimSpace(*req.PhoneNumber)
		}
		if req.Address != nil {
			updateSet["address"] = strings.TrimSpace(*req.Address)
		}
		if req.Avatar != nil {
			updateSet["useravatar"] = strings.TrimSpace(*req.Avatar)
		}

		if req.Email != nil {
			email := normalizeEmail(*req.Email)
			if email != user.Email {
				count, err := db.Collection("users").CountDocuments(ctx, bson.M{"email": email, "_id": bson.M{"$ne": userID}})
				if err != nil {
					respondWithError(c, http.StatusInternalServerError, route, "db error")
					return
				}
				if count > 0 {
					respondWithError(c, http.StatusConflict, route, "email already registered")
					return
				}
				updateSet["email"] = email
			}
		}

		if req.NewPassword != "" {
			if req.CurrentPassword == "" {
				respondWithError(c, http.StatusBadRequest, route, "currentPassword is required to change the password")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
				respondWithError(c, http.StatusUnauthorized, route, "current password is incorrect")
				return
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "password hash failed")
				return
			}
			updateSet["password"] = string(hash)
		}

		if len(updateSet) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		updateSet["updatedAt"] = time.Now().UTC()

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		var updated models.User
		err := db.Collection("users").FindOneAndUpdate(ctx, bson.M{"_id": userID}, bson.M{"$set": updateSet}, opts).Decode(&updated)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusConflict, route, "email already registered")
				return
			}
			log.Println("[PROFILE] [ERROR] update profile failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Println("[PROFILE] [INFO] profile updated:", userID.Hex())
		c.JSON(http.StatusOK, gin.H{"user": updated})
	}
}

// DeleteAccount removes the caller after re-checking email and password.
func DeleteAccount(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /user/account"
		defer handlePanic(c, route)

		userID, ok := currentUserID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req deleteAccountRequest
		if err := validation.BindAndValidate(c, &req, validate); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if normalizeEmail(req.Email) != user.Email {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}

		if _, err := db.Collection("users").DeleteOne(ctx, bson.M{"_id": userID}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if _, err := db.Collection("refresh_tokens").UpdateMany(ctx,
			bson.M{"userId": userID, "revoked": false},
			bson.M{"$set": bson.M{"revoked": true}},
		); err != nil {
			log.Println("[PROFILE] [ERROR] revoke refresh tokens failed:", err)
		}

		log.Println("[PROFILE] [INFO] account deleted:", userID.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "account deleted"})
	}
}
