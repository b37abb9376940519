// Package invoice renders an order as a printable HTML bill.
package invoice

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stitchbook/api/internal/database"
	"github.com/stitchbook/api/internal/dates"
	"github.com/stitchbook/api/internal/ledger"
	"github.com/stitchbook/api/internal/measurement"
)

//go:embed invoice.html
var invoiceHTML string

var tmpl = template.Must(template.New("invoice").Parse(invoiceHTML))

// Data is everything the bill shows.
type Data struct {
	Company      database.Company
	Customer     database.Customer
	Order        database.Order
	Payments     []database.Payment
	SignatureURL string
}

type view struct {
	Company      database.Company
	Customer     database.Customer
	GSTIN        string
	BillNo       string
	OrderedOn    string
	DeliveryDate string
	Lines        []line
	Payments     []paymentLine
	Total        string
	Collected    string
	Balance      string
	RefundDue    bool
	Refund       string
	Notes        string
	Terms        string
	SignatureURL string
}

type line struct {
	No           int
	OutfitType   string
	Quantity     int32
	Measurements []measurement.Field
	Notes        string
	DeliveryDate string
	Status       string
	Amount       string
	Cancelled    bool
}

type paymentLine struct {
	PaidOn string
	Mode   string
	Type   string
	Amount string
}

func money(d decimal.Decimal) string {
	return "₹" + d.StringFixed(2)
}

func newView(d Data) view {
	sum := ledger.Summarize(d.Order, d.Payments)

	v := view{
		Company:      d.Company,
		Customer:     d.Customer,
		GSTIN:        d.Company.Gstin.String,
		BillNo:       d.Order.BillNo,
		OrderedOn:    dates.FormatDisplay(d.Order.OrderedOn),
		Total:        money(sum.ActiveTotal),
		Collected:    money(sum.Collected),
		Balance:      money(sum.Balance),
		RefundDue:    sum.RefundDue(),
		Refund:       money(sum.Refund()),
		Notes:        d.Order.Notes.String,
		Terms:        d.Company.BillTerms.String,
		SignatureURL: d.SignatureURL,
	}
	if d.Order.DeliveryDate.Valid {
		v.DeliveryDate = dates.FormatDisplay(d.Order.DeliveryDate.Time)
	}

	table := measurement.Default()
	for i, item := range d.Order.Items {
		l := line{
			No:           i + 1,
			OutfitType:   item.OutfitType,
			Quantity:     item.Quantity,
			Measurements: table.Sort(item.OutfitType, item.Measurements),
			Notes:        item.Notes,
			Status:       item.Status,
			Amount:       money(ledger.ItemValue(item)),
			Cancelled:    !ledger.IsActive(item),
		}
		if item.DeliveryDate != "" {
			if t, err := dates.Parse(item.DeliveryDate); err == nil {
				l.DeliveryDate = dates.FormatDisplay(t)
			}
		}
		v.Lines = append(v.Lines, l)
	}

	for _, p := range d.Payments {
		v.Payments = append(v.Payments, paymentLine{
			PaidOn: dates.FormatDisplay(p.PaidOn),
			Mode:   p.Mode,
			Type:   p.Type.String,
			Amount: money(p.Amount),
		})
	}
	return v
}

// Render produces the bill as an HTML document.
func Render(d Data) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newView(d)); err != nil {
		return "", fmt.Errorf("render invoice %s: %w", d.Order.BillNo, err)
	}
	return buf.String(), nil
}

// ShareURL returns a wa.me link that opens WhatsApp with a bill summary for
// the customer.
func ShareURL(d Data) string {
	sum := ledger.Summarize(d.Order, d.Payments)
	msg := fmt.Sprintf("%s\nBill %s dated %s\nTotal %s, paid %s, balance %s",
		d.Company.Name,
		d.Order.BillNo,
		d.Order.OrderedOn.Format(dates.DisplayLayout),
		money(sum.ActiveTotal),
		money(sum.Collected),
		money(sum.Balance),
	)
	return fmt.Sprintf("https://wa.me/91%s?text=%s", d.Customer.Mobile, url.QueryEscape(msg))
}

// Filename is the suggested download name for a bill.
func Filename(order database.Order) string {
	return fmt.Sprintf("bill-%s-%s.html", order.BillNo, order.OrderedOn.Format(time.DateOnly))
}
