// Package money holds the decimal arithmetic and display formatting used for
// order totals, receipts and emails.
package money

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func FromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// LineTotal returns price * quantity without intermediate float rounding.
func LineTotal(price float64, quantity int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity)))
}

// EqualCents compares two amounts rounded to the cent.
func EqualCents(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}

// Format renders v as a US dollar amount for customer-facing text.
func Format(v float64) string {
	amount := decimal.NewFromFloat(v).Round(2).InexactFloat64()
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(currency.USD.Amount(amount)))
}
