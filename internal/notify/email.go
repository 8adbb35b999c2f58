package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/ariefcatur/go-shop-checkout/internal/orders"
)

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type lineView struct {
	Name     string
	Quantity int
	Amount   string
}

type confirmationView struct {
	OrderCode     string
	RecipientName string
	Address       string
	Payment       string
	Lines         []lineView
	Subtotal      string
	ShippingFee   string
	Discount      string
	HasDiscount   bool
	Total         string
	TrackURL      string
}

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>Order placed</h1>
  <p>Hello <strong>{{.RecipientName}}</strong>,</p>
  <p>Thank you for your order. We have received it and will confirm it shortly.</p>
  <p><strong>Order:</strong> #{{.OrderCode}}</p>
  <table style="width: 100%; border-collapse: collapse;">
    <thead><tr><th style="text-align: left;">Product</th><th>Qty</th><th style="text-align: right;">Amount</th></tr></thead>
    <tbody>
    {{- range .Lines}}
      <tr><td>{{.Name}}</td><td style="text-align: center;">{{.Quantity}}</td><td style="text-align: right;">{{.Amount}}</td></tr>
    {{- end}}
    </tbody>
    <tfoot>
      <tr><td colspan="2" style="text-align: right;">Subtotal</td><td style="text-align: right;">{{.Subtotal}}</td></tr>
      <tr><td colspan="2" style="text-align: right;">Shipping</td><td style="text-align: right;">{{.ShippingFee}}</td></tr>
      {{- if .HasDiscount}}
      <tr><td colspan="2" style="text-align: right;">Discount</td><td style="text-align: right;">-{{.Discount}}</td></tr>
      {{- end}}
      <tr><td colspan="2" style="text-align: right;"><strong>Total</strong></td><td style="text-align: right;"><strong>{{.Total}}</strong></td></tr>
    </tfoot>
  </table>
  <p>Deliver to: {{.Address}}<br>Payment: {{.Payment}}</p>
  <p><a href="{{.TrackURL}}">Track your order</a></p>
</div>`))

var confirmationText = texttemplate.Must(texttemplate.New("confirmation").Parse(`Hello {{.RecipientName}},

Thank you for your order #{{.OrderCode}}.
{{range .Lines}}
- {{.Name}} x{{.Quantity}}: {{.Amount}}
{{- end}}

Subtotal: {{.Subtotal}}
Shipping: {{.ShippingFee}}
{{- if .HasDiscount}}
Discount: -{{.Discount}}
{{- end}}
Total: {{.Total}}

Deliver to: {{.Address}}
Payment: {{.Payment}}

Track your order: {{.TrackURL}}
`))

// OrderCode is the short form of an order id shown to customers.
func OrderCode(orderID string) string {
	id := strings.ReplaceAll(orderID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return strings.ToUpper(id)
}

// FormatVND renders an amount in dong with dot thousand separators, e.g. 1.250.000 ₫.
func FormatVND(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := fmt.Sprintf("%d", amount)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String() + " ₫"
	}
	return b.String() + " ₫"
}

func paymentLabel(m orders.PaymentMethod) string {
	switch m {
	case orders.PaymentCOD:
		return "Cash on delivery"
	case orders.PaymentBankTransfer:
		return "Bank transfer"
	}
	return string(m)
}

// OrderConfirmation builds the email sent once an order is placed.
func OrderConfirmation(p orders.OrderPlacedPayload, clientURL string) (Email, error) {
	v := confirmationView{
		OrderCode:     OrderCode(p.OrderID),
		RecipientName: p.RecipientName,
		Address:       p.ShippingAddress,
		Payment:       paymentLabel(p.PaymentMethod),
		Subtotal:      FormatVND(p.Subtotal),
		ShippingFee:   FormatVND(p.ShippingFee),
		Discount:      FormatVND(p.Discount),
		HasDiscount:   p.Discount > 0,
		Total:         FormatVND(p.Total),
		TrackURL:      strings.TrimRight(clientURL, "/") + "/checkout/success/" + p.OrderID,
	}
	for _, it := range p.Items {
		v.Lines = append(v.Lines, lineView{Name: it.Name, Quantity: it.Qty, Amount: FormatVND(it.Price * int64(it.Qty))})
	}

	var html, text bytes.Buffer
	if err := confirmationHTML.Execute(&html, v); err != nil {
		return Email{}, fmt.Errorf("render html: %w", err)
	}
	if err := confirmationText.Execute(&text, v); err != nil {
		return Email{}, fmt.Errorf("render text: %w", err)
	}
	return Email{
		To:      p.Email,
		Subject: fmt.Sprintf("Order confirmation #%s", v.OrderCode),
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}
