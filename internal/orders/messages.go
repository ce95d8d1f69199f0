package orders

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"blazestride/internal/models"
	"blazestride/internal/money"
	"blazestride/internal/notify"
)

var statusColors = map[models.OrderStatus]template.CSS{
	models.OrderStatusToConfirm: "#856404",
	models.OrderStatusToShip:    "#0c5460",
	models.OrderStatusToDeliver: "#155724",
	models.OrderStatusReceived:  "#0f5132",
	models.OrderStatusCancelled: "#7b0101",
}

var templateFuncs = template.FuncMap{
	"money": money.Format,
	"lineTotal": func(item models.OrderItem) string {
		return money.Format(money.LineTotal(item.Price, item.Quantity).InexactFloat64())
	},
	"date": func(t time.Time) string {
		return t.Format("Jan 2, 2006 15:04 MST")
	},
}

var confirmationTemplate = template.Must(template.New("confirmation").Funcs(templateFuncs).Parse(`
<h2>Thank you for your order!</h2>
<p>Dear {{.Contact.Name}},</p>
<p>Your order has been received and is being processed.</p>

<h3>Order Details:</h3>
<p><strong>Order Number:</strong> {{.Order.ShortID}}</p>
<p><strong>Order Date:</strong> {{date .Order.CreatedAt}}</p>

<h3>Shipping Information:</h3>
<p><strong>Receiver:</strong> {{.Order.ReceiverName}}</p>
<p><strong>Address:</strong> {{.Order.ShippingInfo.Address}}</p>
<p><strong>City:</strong> {{.Order.ShippingInfo.City}}</p>
<p><strong>Postal Code:</strong> {{.Order.ShippingInfo.PostalCode}}</p>
<p><strong>Phone:</strong> {{.Order.ShippingInfo.PhoneNo}}</p>

<h3>Order Items:</h3>
<ul>
{{range .Order.OrderItems}}  <li>{{.Name}} - Quantity: {{.Quantity}} - {{lineTotal .}}</li>
{{end}}</ul>

<p>Subtotal: {{money .Order.ItemsPrice}}</p>
<p>Tax: {{money .Order.TaxPrice}}</p>
<p>Shipping: {{money .Order.ShippingPrice}}</p>
<h3><strong>Total Amount: {{money .Order.TotalPrice}}</strong></h3>

<p>We will notify you once your order is shipped.</p>
<p>Thank you for shopping with us!</p>
`))

var statusTemplate = template.Must(template.New("status").Funcs(templateFuncs).Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #333;">Order Status Update</h2>
  <p>Dear {{.Contact.Name}},</p>
  <p>Your order status has been updated.</p>

  <div style="background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <p><strong>Order Number:</strong> {{.Order.ShortID}}</p>
    <p><strong>New Status:</strong> <span style="color: {{.Color}}; font-weight: bold;">{{.Order.OrderStatus}}</span></p>
    <p><strong>Updated At:</strong> {{date .Order.UpdatedAt}}</p>
  </div>

  <h3>Order Summary:</h3>
  <ul>
  {{range .Order.OrderItems}}  <li>{{.Name}} - Quantity: {{.Quantity}} - {{lineTotal .}}</li>
  {{end}}</ul>

  <p><strong>Total Amount: {{money .Order.TotalPrice}}</strong></p>
  {{if .Received}}
  <p style="color: #0f5132; font-weight: bold;">Thank you for your purchase! We hope to serve you again.</p>
  {{else}}
  <p>We will keep you updated on your order progress.</p>
  {{end}}
  <p>Thank you for shopping with us!</p>
</div>
`))

type messageData struct {
	Contact  Contact
	Order    models.Order
	Color    template.CSS
	Received bool
}

func confirmationMessage(contact Contact, order models.Order) (notify.Message, error) {
	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, messageData{Contact: contact, Order: order}); err != nil {
		return notify.Message{}, fmt.Errorf("render confirmation: %w", err)
	}
	return notify.Message{
		To:      contact.Email,
		Subject: "Order Confirmation - Order #" + order.ShortID(),
		HTML:    buf.String(),
	}, nil
}

func statusUpdateMessage(contact Contact, order models.Order) (notify.Message, error) {
	color, ok := statusColors[order.OrderStatus]
	if !ok {
		color = "#333"
	}

	var buf bytes.Buffer
	err := statusTemplate.Execute(&buf, messageData{
		Contact:  contact,
		Order:    order,
		Color:    color,
		Received: order.OrderStatus == models.OrderStatusReceived,
	})
	if err != nil {
		return notify.Message{}, fmt.Errorf("render status update: %w", err)
	}
	return notify.Message{
		To:      contact.Email,
		Subject: fmt.Sprintf("Order Status Update - Order #%s", order.ShortID()),
		HTML:    buf.String(),
	}, nil
}
