package orders

import (
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"blazestride/internal/models"
	"blazestride/internal/money"
)

// OrderLine is one submitted line. Price is the unit price the customer saw.
// Amounts are pointers so that a missing amount fails validation instead of
// reading as zero.
type OrderLine struct {
	Product  string   `json:"product" validate:"required,objectid"`
	Name     string   `json:"name" validate:"required"`
	Price    *float64 `json:"price" validate:"required,gte=0"`
	Quantity int      `json:"quantity" validate:"required,min=1"`
	Image    string   `json:"image"`
}

type ShippingInput struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	PhoneNo    string `json:"phoneNo" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// PlaceOrderRequest is the checkout payload. User is taken from the
// authenticated caller, never from the body.
type PlaceOrderRequest struct {
	User          primitive.ObjectID `json:"-" validate:"required"`
	OrderItems    []OrderLine        `json:"orderItems" validate:"required,min=1,dive"`
	ShippingInfo  ShippingInput      `json:"shippingInfo"`
	ReceiverName  string             `json:"receiverName" validate:"required"`
	ItemsPrice    *float64           `json:"itemsPrice" validate:"required,gte=0"`
	TaxPrice      *float64           `json:"taxPrice" validate:"required,gte=0"`
	ShippingPrice *float64           `json:"shippingPrice" validate:"required,gte=0"`
	TotalPrice    *float64           `json:"totalPrice" validate:"required,gte=0"`
}

// orderTotalsRule checks that the submitted totals agree with the lines.
func orderTotalsRule(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PlaceOrderRequest)

	// Missing amounts are already reported as required.
	if req.ItemsPrice == nil || req.TaxPrice == nil || req.ShippingPrice == nil || req.TotalPrice == nil {
		return
	}

	items := decimal.Zero
	for _, line := range req.OrderItems {
		if line.Price == nil {
			return
		}
		items = items.Add(money.LineTotal(*line.Price, line.Quantity))
	}
	if !money.EqualCents(items, money.FromFloat(*req.ItemsPrice)) {
		sl.ReportError(*req.ItemsPrice, "itemsPrice", "ItemsPrice", "totals_match", items.StringFixed(2))
	}

	total := money.FromFloat(*req.ItemsPrice).
		Add(money.FromFloat(*req.TaxPrice)).
		Add(money.FromFloat(*req.ShippingPrice))
	if !money.EqualCents(total, money.FromFloat(*req.TotalPrice)) {
		sl.ReportError(*req.TotalPrice, "totalPrice", "TotalPrice", "totals_match", total.StringFixed(2))
	}
}

// newOrder copies the validated request into an order document. Prices are
// taken as submitted.
func newOrder(req PlaceOrderRequest) models.Order {
	items := lo.Map(req.OrderItems, func(line OrderLine, _ int) models.OrderItem {
		id, _ := primitive.ObjectIDFromHex(line.Product)
		return models.OrderItem{
			Product:  id,
			Name:     strings.TrimSpace(line.Name),
			Price:    lo.FromPtr(line.Price),
			Quantity: line.Quantity,
			Image:    strings.TrimSpace(line.Image),
		}
	})

	return models.Order{
		User:       req.User,
		OrderItems: items,
		ShippingInfo: models.ShippingInfo{
			Address:    strings.TrimSpace(req.ShippingInfo.Address),
			City:       strings.TrimSpace(req.ShippingInfo.City),
			PostalCode: strings.TrimSpace(req.ShippingInfo.PostalCode),
			PhoneNo:    strings.TrimSpace(req.ShippingInfo.PhoneNo),
			Country:    strings.TrimSpace(req.ShippingInfo.Country),
		},
		ReceiverName:  strings.TrimSpace(req.ReceiverName),
		ItemsPrice:    lo.FromPtr(req.ItemsPrice),
		TaxPrice:      lo.FromPtr(req.TaxPrice),
		ShippingPrice: lo.FromPtr(req.ShippingPrice),
		TotalPrice:    lo.FromPtr(req.TotalPrice),
		OrderStatus:   models.OrderStatusToConfirm,
	}
}
