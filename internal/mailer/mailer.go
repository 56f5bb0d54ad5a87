package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/rs/zerolog"
)

// Config carries SMTP settings from the mail section of config.yaml.
type Config struct {
	Host string
	Port string
	From string
	Pass string
}

// SendStatusEmail notifies a requester about a participation request status
// change. Notification delivery is best effort, callers only log failures.
func SendStatusEmail(log *zerolog.Logger, cfg Config, eventTitle, status, recipientEmail string) error {
	var subject, body string
	switch status {
	case "CONFIRMED":
		subject = "Your participation is confirmed"
		body = fmt.Sprintf("Hello!\n\nYour participation request for \"%s\" has been confirmed. See you there!", eventTitle)
	case "REJECTED":
		subject = "Your participation request was declined"
		body = fmt.Sprintf("Hello!\n\nYour participation request for \"%s\" was declined by the organizer or the event is full.", eventTitle)
	case "CANCELED":
		subject = "Your participation request was canceled"
		body = fmt.Sprintf("Hello!\n\nYour participation request for \"%s\" has been canceled.", eventTitle)
	case "PENDING":
		subject = "Your participation request was received"
		body = fmt.Sprintf("Hello!\n\nYour participation request for \"%s\" is waiting for the organizer's approval.", eventTitle)
	default:
		return fmt.Errorf("unknown request status: %s", status)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		cfg.From, recipientEmail, subject, body,
	)

	addr := cfg.Host + ":" + cfg.Port
	auth := smtp.PlainAuth("", cfg.From, cfg.Pass, cfg.Host)

	if err := smtp.SendMail(addr, auth, cfg.From, []string{recipientEmail}, []byte(msg)); err != nil {
		log.Warn().Msgf("failed to send email to %s: %v", recipientEmail, err)
		return fmt.Errorf("send email: %w", err)
	}

	log.Info().Msgf("email sent to %s (status: %s)", recipientEmail, status)
	return nil
}
