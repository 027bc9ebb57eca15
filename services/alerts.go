package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"santiago-a-pie/config"
	"santiago-a-pie/database"
	"santiago-a-pie/metrics"
	"santiago-a-pie/models"
)

// AlertsService emails subscribed comuna contacts when a comuna's
// perception score falls through the configured threshold.
type AlertsService struct {
	cfg    *config.Config
	db     *database.Database
	client *sendgrid.Client // nil when SendGrid is not configured

	mu         sync.Mutex
	lastScores map[int64]float64
}

// NewAlertsService creates the alerts service.
func NewAlertsService(cfg *config.Config, db *database.Database) *AlertsService {
	s := &AlertsService{
		cfg:        cfg,
		db:         db,
		lastScores: make(map[int64]float64),
	}
	if cfg.SendGridAPIKey != "" {
		s.client = sendgrid.NewSendClient(cfg.SendGridAPIKey)
	}
	return s
}

// CheckScores compares fresh comuna scores against the previous recompute
// and alerts for comunas that crossed below the threshold.
func (s *AlertsService) CheckScores(scores []models.ComunaScore) {
	s.mu.Lock()
	previous := s.lastScores
	current := make(map[int64]float64, len(scores))
	for _, score := range scores {
		current[score.ComunaID] = score.Score
	}
	s.lastScores = current
	s.mu.Unlock()

	for _, score := range scores {
		prev, seen := previous[score.ComunaID]
		crossed := score.Score < s.cfg.AlertThreshold && (!seen || prev >= s.cfg.AlertThreshold)
		if !crossed {
			continue
		}
		if err := s.alertComuna(context.Background(), &score); err != nil {
			log.Errorf("Failed to alert comuna %d: %v", score.ComunaID, err)
		}
	}
}

func (s *AlertsService) alertComuna(ctx context.Context, score *models.ComunaScore) error {
	emails, err := s.db.GetAlertableContacts(ctx, score.ComunaID, s.cfg.AlertCooldown)
	if err != nil {
		return err
	}
	if len(emails) == 0 {
		return nil
	}

	log.Infof("Comuna %s dropped to %.1f, alerting %d contacts",
		score.Name, score.Score, len(emails))

	sent := 0
	for _, email := range emails {
		if err := s.sendAlert(email, score); err != nil {
			log.Errorf("Failed to send alert to %s: %v", email, err)
			continue
		}
		sent++
		metrics.AlertsSentTotal.Inc()
	}

	if sent > 0 {
		return s.db.MarkContactsAlerted(ctx, score.ComunaID)
	}
	return nil
}

func (s *AlertsService) sendAlert(recipientEmail string, score *models.ComunaScore) error {
	if s.client == nil {
		return fmt.Errorf("sendgrid is not configured")
	}

	from := mail.NewEmail(s.cfg.AlertFromName, s.cfg.AlertFromEmail)
	subject := fmt.Sprintf("Alerta Santiago a Pie: baja de seguridad percibida en %s", score.Name)
	to := mail.NewEmail(recipientEmail, recipientEmail)

	plainText := fmt.Sprintf(`Hola,

El puntaje de seguridad percibida de la comuna %s bajó a %.1f (umbral: %.1f).

Reportes considerados: %d.

Puedes revisar el detalle por calle en el mapa de Santiago a Pie.

Saludos,
Equipo Santiago a Pie`, score.Name, score.Score, s.cfg.AlertThreshold, score.ReportCount)

	htmlContent := fmt.Sprintf(`<p>Hola,</p>
<p>El puntaje de seguridad percibida de la comuna <strong>%s</strong> bajó a
<strong>%.1f</strong> (umbral: %.1f).</p>
<p>Reportes considerados: %d.</p>
<p>Puedes revisar el detalle por calle en el mapa de Santiago a Pie.</p>
<p>Saludos,<br>Equipo Santiago a Pie</p>`,
		score.Name, score.Score, s.cfg.AlertThreshold, score.ReportCount)

	message := mail.NewSingleEmail(from, subject, to, plainText, htmlContent)

	response, err := s.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}

	return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
}
