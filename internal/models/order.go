package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

// remember to add new statuses to validOrderStatuses
const (
	OrderStatusToConfirm OrderStatus = "To Confirm"
	OrderStatusToShip    OrderStatus = "To Ship"
	OrderStatusToDeliver OrderStatus = "To Deliver"
	OrderStatusReceived  OrderStatus = "Received"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusToConfirm: {},
	OrderStatusToShip:    {},
	OrderStatusToDeliver: {},
	OrderStatusReceived:  {},
	OrderStatusCancelled: {},
}

var ErrInvalidOrderStatus = errors.New("invalid order status")

// ToOrderStatus parses s into one of the five known order statuses.
func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", ErrInvalidOrderStatus
}

// OrderItem is a single order line. Price is the unit price captured when the
// order was placed and is never recomputed from the catalog.
type OrderItem struct {
	Product  primitive.ObjectID `bson:"product" json:"product"`
	Name     string             `bson:"name" json:"name"`
	Price    float64            `bson:"price" json:"price"`
	Quantity int                `bson:"quantity" json:"quantity"`
	Image    string             `bson:"image,omitempty" json:"image,omitempty"`
}

// ShippingInfo holds the delivery address of an order.
type ShippingInfo struct {
	Address    string `bson:"address" json:"address"`
	City       string `bson:"city" json:"city"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	PhoneNo    string `bson:"phoneNo" json:"phoneNo"`
	Country    string `bson:"country" json:"country"`
}

// Order defines the persisted order document.
type Order struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	User          primitive.ObjectID `bson:"user" json:"user"`
	OrderItems    []OrderItem        `bson:"orderItems" json:"orderItems"`
	ShippingInfo  ShippingInfo       `bson:"shippingInfo" json:"shippingInfo"`
	ReceiverName  string             `bson:"receiverName" json:"receiverName"`
	ItemsPrice    float64            `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice      float64            `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice float64            `bson:"shippingPrice" json:"shippingPrice"`
	TotalPrice    float64            `bson:"totalPrice" json:"totalPrice"`
	OrderStatus   OrderStatus        `bson:"orderStatus" json:"orderStatus"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ContainsProduct reports whether productID appears in the order lines.
func (o Order) ContainsProduct(productID primitive.ObjectID) bool {
	for _, item := range o.OrderItems {
		if item.Product == productID {
			return true
		}
	}
	return false
}

// ShortID is the upper-cased eight character prefix shown to customers.
func (o Order) ShortID() string {
	hex := o.ID.Hex()
	if len(hex) > 8 {
		hex = hex[:8]
	}
	b := []byte(hex)
	for i, ch := range b {
		if ch >= 'a' && ch <= 'f' {
			b[i] = ch - 'a' + 'A'
		}
	}
	return string(b)
}
