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
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"blazestride/internal/models"
	"blazestride/internal/validation"
)

/* =======================
   REQUEST MODELS
======================= */

type createProductRequest struct {
	Name        string            `json:"productname" validate:"required,max=200"`
	Description string            `json:"description" validate:"required"`
	Category    models.StringList `json:"category" validate:"required,min=1"`
	Brand       string            `json:"brand" validate:"required"`
	Price       float64           `json:"price" validate:"gte=0"`
	Images      models.StringList `json:"productimage" validate:"omitempty,dive,url"`
	Stock       int               `json:"stock" validate:"gte=0"`
}

type updateProductRequest struct {
	Name        *string            `json:"productname" validate:"omitempty,min=1,max=200"`
	Description *string            `json:"description"`
	Category    *models.StringList `json:"category" validate:"omitempty,min=1"`
	Brand       *string            `json:"brand"`
	Price       *float64           `json:"price" validate:"omitempty,gte=0"`
	Images      *models.StringList `json:"productimage" validate:"omitempty,dive,url"`
	Stock       *int               `json:"stock" validate:"omitempty,gte=0"`
}

/* =======================
   CREATE
======================= */

func CreateProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/products"
		defer handlePanic(c, route)

		var req createProductRequest
		if err := validation.BindAndValidate(c, &req, validate); err != nil {
			log.Printf("[%s] rejected body: %v", route, err)
			return
		}

		category := req.Category.Normalize()
		brand := strings.ToLower(strings.TrimSpace(req.Brand))
		if details := checkCatalogEnums(category, &brand); len(details) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": details})
			return
		}

		now := time.Now().UTC()
		product := models.Product{
			ID:          primitive.NewObjectID(),
			Name:        strings.TrimSpace(req.Name),
			Description: strings.TrimSpace(req.Description),
			Category:    category,
			Brand:       brand,
			Price:       req.Price,
			Images:      req.Images,
			Stock:       req.Stock,
			InStock:     req.Stock > 0,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if product.Images == nil {
			product.Images = models.StringList{}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if _, err := db.Collection("products").InsertOne(ctx, product); err != nil {
			log.Printf("[%s] insert error: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Printf("[%s] product created: %s", route, product.ID.Hex())
		c.JSON(http.StatusCreated, gin.H{"product": product})
	}
}

/* =======================
   UPDATE
======================= */

func UpdateProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		var req updateProductRequest
		if err := validation.BindAndValidate(c, &req, validate); err != nil {
			log.Printf("[%s] rejected body: %v", route, err)
			return
		}

		updateSet := bson.M{}

		if req.Name != nil {
			updateSet["productname"] = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			updateSet["description"] = strings.TrimSpace(*req.Description)
		}
		var category models.StringList
		if req.Category != nil {
			category = req.Category.Normalize()
			updateSet["category"] = category
		}
		var brand *string
		if req.Brand != nil {
			b := strings.ToLower(strings.TrimSpace(*req.Brand))
			brand = &b
			updateSet["brand"] = b
		}
		if details := checkCatalogEnums(category, brand); len(details) > 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": details})
			return
		}
		if req.Price != nil {
			updateSet["price"] = *req.Price
		}
		if req.Images != nil {
			updateSet["productimage"] = *req.Images
		}
		if req.Stock != nil {
			updateSet["stock"] = *req.Stock
		}

		if len(updateSet) == 0 {
			respondWithError(c, http.StatusBadRequest, route, "no fields to update")
			return
		}
		updateSet["updatedAt"] = time.Now().UTC()

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var raw bson.M
		err := db.Collection("products").FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": updateSet}, opts).Decode(&raw)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			log.Printf("[%s] update error: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		log.Printf("[%s] product updated: %s fields=%d", route, id.Hex(), len(updateSet)-1)
		c.JSON(http.StatusOK, gin.H{"product": product})
	}
}

/* =======================
   DELETE
======================= */

func DeleteProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := db.Collection("products").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}

		log.Printf("[%s] product deleted: %s", route, id.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
	}
}
