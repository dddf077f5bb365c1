package notify

import (
	"context"
	"fmt"
	"log/slog"
	"tree-order-service/internal/orders"
	"tree-order-service/pkg/logkey"
)

// Sender is satisfied by *Mailer and by test doubles.
type Sender interface {
	Send(to, subject, body string, html bool) error
}

type mail struct {
	to      string
	subject string
	body    string
	html    bool
}

// Queue decouples mail delivery from the request path. Handlers enqueue and
// move on; a single worker goroutine drains the channel. Delivery failures and
// full-queue drops are logged only, never surfaced to the caller.
type Queue struct {
	sender     Sender
	adminEmail string
	tasks      chan mail
}

func NewQueue(sender Sender, adminEmail string, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		sender:     sender,
		adminEmail: adminEmail,
		tasks:      make(chan mail, buffer),
	}
}

// Start drains the queue until ctx is cancelled. Run it in its own goroutine.
func (q *Queue) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-q.tasks:
			if err := q.sender.Send(m.to, m.subject, m.body, m.html); err != nil {
				slog.Error("failed to send notification",
					slog.String(logkey.Email, m.to), slog.String(logkey.Error, err.Error()))
			}
		}
	}
}

func (q *Queue) enqueue(m mail) {
	select {
	case q.tasks <- m:
	default:
		slog.Error("notification queue full, dropping mail", slog.String(logkey.Email, m.to))
	}
}

// OrderCompleted queues the admin alert and the customer confirmation for a
// freshly finalized order.
func (q *Queue) OrderCompleted(o orders.Order) {
	if q.adminEmail != "" {
		q.enqueue(mail{
			to:      q.adminEmail,
			subject: "Neue Bestellung Eingegangen",
			body:    adminBody(o),
		})
	}
	q.enqueue(mail{
		to:      o.Customer.Email,
		subject: "Ihre Bestellung war erfolgreich! | Bestell-Nr. " + o.ID,
		body:    customerBody(o),
		html:    true,
	})
}

func adminBody(o orders.Order) string {
	return fmt.Sprintf(
		"Eine neue Bestellung wurde aufgegeben.\n\n"+
			"Bestell-ID: %s\n"+
			"Kunde: %s %s\n"+
			"Gesamtbetrag: %.2f€\n",
		o.ID, o.Customer.FirstName, o.Customer.LastName, o.Price)
}

func customerBody(o orders.Order) string {
	paymentLabel := "Barzahlung vor Ort"
	switch o.PaymentMethod {
	case orders.PaymentStripe:
		paymentLabel = "Kartenzahlung"
	case orders.PaymentPaypal:
		paymentLabel = "PayPal"
	}

	treeStand := "Nein"
	if o.TreeStand {
		treeStand = "Ja"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="de">
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd;">
    <div style="background-color: #006400; color: #ffffff; padding: 10px 20px; text-align: center;">
      <h1 style="margin: 0; font-size: 24px;">Bestellbestätigung</h1>
    </div>
    <p>Sehr geehrte/r Frau/Herr <strong>%s</strong>,</p>
    <p>Vielen Dank für Ihre Bestellung bei <strong>Dein Weihnachtsbaum.de</strong>!
       Ihre Bestellung wurde erfolgreich platziert und wird in Kürze bearbeitet.</p>
    <p><strong>Bestell-ID:</strong> %s<br>
       <strong>Bestelldatum:</strong> %s Uhr</p>
    <table style="width: 100%%; border-collapse: collapse;" border="1" cellpadding="8">
      <tr><td><strong>Baumart:</strong></td><td>%s</td></tr>
      <tr><td><strong>Größe:</strong></td><td>%s</td></tr>
      <tr><td><strong>Lieferumfang:</strong></td><td>%s</td></tr>
      <tr><td><strong>Christbaumständer:</strong></td><td>%s</td></tr>
      <tr><td><strong>Lieferadresse:</strong></td><td>%s, %s %s</td></tr>
      <tr><td><strong>Zahlungsmethode:</strong></td><td>%s</td></tr>
    </table>
    <p style="text-align: right; font-size: 1.2em;">
      <strong>Gesamtbetrag (inkl. MwSt.):</strong> %.2f€</p>
    <p>Bei Fragen zu Ihrer Bestellung antworten Sie einfach auf diese E-Mail.</p>
    <p>Mit freundlichen Grüßen,<br>Ihr Team von <strong>Dein Weihnachtsbaum.de</strong></p>
  </div>
</body>
</html>`,
		o.Customer.LastName, o.ID, o.OrderDate.Format("02.01.2006, 15:04"),
		o.Tree, o.Size, o.Package, treeStand,
		o.Customer.Address, o.Customer.PostalCode, o.Customer.City,
		paymentLabel, o.Price)
}
