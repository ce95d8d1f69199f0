package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Categories and Brands are the values accepted by the catalog.
var (
	Categories = []string{"daily", "tempo", "marathon", "race"}
	Brands     = []string{"adidas", "asics", "brooks", "hoka", "nike", "new balance", "saucony"}
)

type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name          string             `bson:"productname" json:"productname"`
	Description   string             `bson:"description" json:"description"`
	Category      StringList         `bson:"category" json:"category"`
	Brand         string             `bson:"brand" json:"brand"`
	Price         float64            `bson:"price" json:"price"`
	Images        StringList         `bson:"productimage" json:"productimage"`
	Stock         int                `bson:"stock" json:"stock"`
	InStock       bool               `bson:"-" json:"inStock"`
	AverageRating float64            `bson:"averageRating" json:"averageRating"`
	ReviewCount   int                `bson:"reviewCount" json:"reviewCount"`
	Reservations  []StockReservation `bson:"reservations,omitempty" json:"-"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// StockReservation marks the stock taken by one line of an order that is
// still being placed. It is removed when the order commits or rolls back.
type StockReservation struct {
	Order    primitive.ObjectID `bson:"order" json:"order"`
	Line     int                `bson:"line" json:"line"`
	Quantity int                `bson:"quantity" json:"quantity"`
	At       time.Time          `bson:"at" json:"at"`
}

// FirstImage returns the primary product image or an empty string.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

func IsValidCategory(value string) bool {
	return contains(Categories, value)
}

func IsValidBrand(value string) bool {
	return contains(Brands, value)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
