package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"blazestride/internal/models"
)

// GetCategories lists the fixed catalog categories and brands.
func GetCategories() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"categories": models.Categories,
			"brands":     models.Brands,
		})
	}
}
