package handlers

import (
	"net/http"
	"strings"
	"time"

	"faqminer/internal/classify"
	"faqminer/internal/database"
	"faqminer/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ImportEmailRecord is one email submitted for ingestion
type ImportEmailRecord struct {
	MessageID   string    `json:"message_id"`
	ThreadID    string    `json:"thread_id,omitempty"`
	SenderEmail string    `json:"sender_email"`
	SenderName  string    `json:"sender_name,omitempty"`
	Subject     string    `json:"subject"`
	BodyText    string    `json:"body_text"`
	ReceivedAt  time.Time `json:"received_at"`
}

// ImportEmailsRequest is a batch of emails to ingest
type ImportEmailsRequest struct {
	Emails []ImportEmailRecord `json:"emails"`
}

// ImportEmailsResponse reports the outcome of a batch ingestion
type ImportEmailsResponse struct {
	Success  bool   `json:"success"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// ImportEmailsHandler ingests a batch of emails for later processing.
// Re-submitting a message_id updates the stored email instead of duplicating it.
// @Summary Import emails
// @Description Ingests a batch of emails into the processing queue
// @Tags Emails
// @Accept json
// @Produce json
// @Param request body ImportEmailsRequest true "Email batch"
// @Success 200 {object} ImportEmailsResponse
// @Failure 400 {object} ImportEmailsResponse
// @Failure 500 {object} ImportEmailsResponse
// @Router /api/emails/import [post]
func ImportEmailsHandler(store *database.Store, logger zerolog.Logger) echo.HandlerFunc {
	log := logger.With().Str("component", "email_import").Logger()

	return func(c echo.Context) error {
		var req ImportEmailsRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ImportEmailsResponse{
				Success: false,
				Error:   "invalid request body",
			})
		}
		if len(req.Emails) == 0 {
			return c.JSON(http.StatusBadRequest, ImportEmailsResponse{
				Success: false,
				Error:   "no emails in request",
			})
		}

		imported, skipped := 0, 0
		for i := range req.Emails {
			record := &req.Emails[i]
			if record.MessageID == "" || record.SenderEmail == "" {
				skipped++
				continue
			}

			email := &models.Email{
				MessageID:         record.MessageID,
				SenderEmail:       strings.ToLower(strings.TrimSpace(record.SenderEmail)),
				SenderName:        record.SenderName,
				Subject:           record.Subject,
				NormalizedSubject: classify.NormalizeSubject(record.Subject),
				BodyText:          record.BodyText,
				ReceivedAt:        record.ReceivedAt,
				Direction:         models.DirectionUnknown,
				FilteringStatus:   models.FilteringPending,
			}
			if record.ThreadID != "" {
				threadID := record.ThreadID
				email.ThreadID = &threadID
			}
			if email.ReceivedAt.IsZero() {
				email.ReceivedAt = time.Now().UTC()
			}

			if err := store.UpsertEmail(c.Request().Context(), email); err != nil {
				log.Error().Str("message_id", record.MessageID).Err(err).Msg("failed to store email")
				return c.JSON(http.StatusInternalServerError, ImportEmailsResponse{
					Success:  false,
					Imported: imported,
					Skipped:  skipped,
					Error:    "failed to store email batch",
				})
			}
			imported++
		}

		log.Info().Int("imported", imported).Int("skipped", skipped).Msg("email batch ingested")
		return c.JSON(http.StatusOK, ImportEmailsResponse{
			Success:  true,
			Imported: imported,
			Skipped:  skipped,
		})
	}
}
