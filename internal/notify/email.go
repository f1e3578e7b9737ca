package notify

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/gomail.v2"

	"oapmon/internal/logger"
	"oapmon/internal/models"
)

// Email sends reports over SMTP with the HTML body inline and the CSV
// rows attached.
type Email struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Sender     string
	Recipients []string

	// SuppressAllClear skips the transport entirely for reports with
	// no violations
	SuppressAllClear bool

	// send overrides delivery in tests; nil means DialAndSend
	send func(m *gomail.Message) error
}

// Send implements Sender
func (e *Email) Send(ctx context.Context, report *models.Report, htmlBody string, csvRows []byte) error {
	log := logger.WithComponent("email_notifier")

	if report.AllClear && e.SuppressAllClear {
		log.Info().
			Str("instance", report.Instance).
			Msg("all clear, suppressing report mail")
		return nil
	}
	if len(e.Recipients) == 0 {
		return fmt.Errorf("%w: no recipients configured", ErrDelivery)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.Sender)
	m.SetHeader("To", e.Recipients...)
	m.SetHeader("Subject", report.Subject())
	m.SetBody("text/html", htmlBody)

	if len(csvRows) > 0 && !report.AllClear {
		name := fmt.Sprintf("%s-violations.csv", report.Instance)
		m.Attach(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(csvRows)
			return err
		}))
	}

	if err := e.deliver(m); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	log.Info().
		Str("instance", report.Instance).
		Str("run_id", report.RunID).
		Int("violations", len(report.Violations)).
		Str("recipients", strings.Join(e.Recipients, ",")).
		Msg("report mail sent")
	return nil
}

func (e *Email) deliver(m *gomail.Message) error {
	if e.send != nil {
		return e.send(m)
	}
	d := gomail.NewDialer(e.Host, e.Port, e.Username, e.Password)
	return d.DialAndSend(m)
}
