// Package notify sends alerts when an unknown face is captured.
package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"sync"
	"time"

	"github.com/kozaktomas/vault-watch/internal/config"
)

// Alert describes a single unknown-face event.
type Alert struct {
	CameraID   string
	Detection  string // detection ID for the review UI
	Confidence float64
	BestMatch  string
	CapturedAt time.Time
}

// Alerter delivers alerts. Implementations must be safe for concurrent
// use from the processing loop.
type Alerter interface {
	Notify(ctx context.Context, alert Alert) error
}

// Nop is an Alerter that discards everything. Used when email alerts
// are disabled.
type Nop struct{}

func (Nop) Notify(ctx context.Context, alert Alert) error { return nil }

// sendMailFunc matches smtp.SendMail, extracted for testing.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailAlerter sends alerts over SMTP with a per-camera cooldown, so a
// person standing in front of a camera does not generate a mail per
// frame.
type EmailAlerter struct {
	cfg      config.EmailConfig
	cooldown time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time

	now      func() time.Time
	sendMail sendMailFunc
}

// NewEmailAlerter creates an SMTP alerter from the email configuration.
func NewEmailAlerter(cfg config.EmailConfig) *EmailAlerter {
	cooldown := time.Duration(cfg.Cooldown) * time.Second
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &EmailAlerter{
		cfg:      cfg,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
		sendMail: smtp.SendMail,
	}
}

// Notify sends the alert unless the camera is still inside its cooldown
// window. A suppressed alert is not an error.
func (a *EmailAlerter) Notify(ctx context.Context, alert Alert) error {
	a.mu.Lock()
	now := a.now()
	if last, ok := a.lastSent[alert.CameraID]; ok && now.Sub(last) < a.cooldown {
		a.mu.Unlock()
		return nil
	}
	a.lastSent[alert.CameraID] = now
	a.mu.Unlock()

	msg := buildMessage(a.cfg.Sender, a.cfg.Recipient, alert)
	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)

	var auth smtp.Auth
	if a.cfg.Password != "" {
		auth = smtp.PlainAuth("", a.cfg.Sender, a.cfg.Password, a.cfg.SMTPHost)
	}

	if err := a.sendMail(addr, auth, a.cfg.Sender, []string{a.cfg.Recipient}, msg); err != nil {
		// The cooldown stamp stays in place, otherwise a broken SMTP
		// server would turn every frame into a delivery attempt.
		log.Printf("failed to send alert for camera %s: %v", alert.CameraID, err)
		return fmt.Errorf("sending alert mail: %w", err)
	}
	return nil
}

func buildMessage(from, to string, alert Alert) []byte {
	subject := fmt.Sprintf("Unknown face on camera %s", alert.CameraID)
	body := fmt.Sprintf(
		"An unknown face was captured.\r\n\r\n"+
			"Camera:      %s\r\n"+
			"Time:        %s\r\n"+
			"Confidence:  %.3f\r\n"+
			"Closest:     %s\r\n"+
			"Detection:   %s\r\n",
		alert.CameraID,
		alert.CapturedAt.Format(time.RFC1123),
		alert.Confidence,
		orDash(alert.BestMatch),
		alert.Detection,
	)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, body)
	return []byte(msg)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
