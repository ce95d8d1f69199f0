// Package receipt renders PDF receipts attached to order confirmations.
package receipt

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-pdf/fpdf"

	"blazestride/internal/models"
	"blazestride/internal/money"
)

type Renderer struct {
	StoreName string
}

func NewRenderer() *Renderer {
	return &Renderer{StoreName: "BlazeStride"}
}

// Render returns an A4 PDF listing the order lines, totals and shipping info.
func (r *Renderer) Render(order models.Order) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(fmt.Sprintf("%s receipt %s", r.StoreName, order.ShortID())), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(r.StoreName))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr("Order #"+order.ShortID()))
	pdf.Ln(6)
	pdf.Cell(0, 6, tr("Date: "+order.CreatedAt.Format("2006-01-02 15:04 MST")))
	pdf.Ln(6)
	pdf.Cell(0, 6, tr("Status: "+string(order.OrderStatus)))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(100, 7, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, "Qty", "B", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, "Price", "B", 0, "R", false, 0, "")
	pdf.CellFormat(35, 7, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range order.OrderItems {
		pdf.CellFormat(100, 7, tr(item.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 7, strconv.Itoa(item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, tr(money.Format(item.Price)), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, tr(money.Format(money.LineTotal(item.Price, item.Quantity).InexactFloat64())), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	totals := []struct {
		label string
		value float64
	}{
		{"Subtotal", order.ItemsPrice},
		{"Tax", order.TaxPrice},
		{"Shipping", order.ShippingPrice},
		{"Total", order.TotalPrice},
	}
	for i, t := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Helvetica", "B", 11)
		}
		pdf.CellFormat(150, 7, t.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 7, tr(money.Format(t.value)), "", 1, "R", false, 0, "")
	}
	pdf.Ln(8)

	ship := order.ShippingInfo
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 6, "Ship to")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	for _, l := range []string{
		order.ReceiverName,
		ship.Address,
		ship.City + " " + ship.PostalCode,
		ship.Country,
		ship.PhoneNo,
	} {
		pdf.Cell(0, 5, tr(l))
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}
