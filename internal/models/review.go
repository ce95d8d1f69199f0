package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review is a customer's rating of a product bought in a specific order.
// (user, product, order) is unique.
type Review struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User              primitive.ObjectID `bson:"user" json:"user"`
	FirstName         string             `bson:"firstname" json:"firstname"`
	LastName          string             `bson:"lastname" json:"lastname"`
	Product           primitive.ObjectID `bson:"product" json:"product"`
	ProductName       string             `bson:"productname" json:"productname"`
	Order             primitive.ObjectID `bson:"order" json:"order"`
	Rating            int                `bson:"rating" json:"rating"`
	ReviewDescription string             `bson:"reviewDescription" json:"reviewDescription"`
	ReviewImages      []string           `bson:"reviewImages" json:"reviewImages"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}
