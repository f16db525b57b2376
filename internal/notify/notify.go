// Package notify sends operational email notifications via SendGrid.
package notify

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailNotifier reports pipeline job outcomes to the support team
type EmailNotifier struct {
	apiKey       string
	supportEmail string
	log          zerolog.Logger
}

func NewEmailNotifier(apiKey, supportEmail string, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		apiKey:       apiKey,
		supportEmail: supportEmail,
		log:          logger.With().Str("component", "notify").Logger(),
	}
}

// Configured reports whether sending is possible
func (n *EmailNotifier) Configured() bool {
	return n.apiKey != "" && n.supportEmail != ""
}

// NotifyJobComplete emails a summary of a finished processing job
func (n *EmailNotifier) NotifyJobComplete(jobID string, processed, questionsFound, groupsCreated int) error {
	if !n.Configured() {
		return fmt.Errorf("SendGrid not configured")
	}

	from := mail.NewEmail("FAQ Miner", "noreply@"+domainOf(n.supportEmail))
	to := mail.NewEmail("Support Team", n.supportEmail)
	subject := fmt.Sprintf("FAQ processing job %s completed", jobID)

	body := fmt.Sprintf(`FAQ processing job finished.

Job ID: %s
Completed At: %s

Emails Processed: %d
Questions Found: %d
FAQ Groups Created: %d`,
		jobID, time.Now().Format(time.RFC3339), processed, questionsFound, groupsCreated)

	message := mail.NewSingleEmail(from, subject, to, body, body)

	client := sendgrid.NewSendClient(n.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	n.log.Info().Str("job_id", jobID).Msg("completion notification sent")
	return nil
}

func domainOf(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '@' {
			return address[i+1:]
		}
	}
	return address
}
