// Package alerting posts tariff reload failures to a chat or generic webhook.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// MinFailuresBeforeAlert is the number of consecutive failures before an alert is sent
	MinFailuresBeforeAlert int
	// Timeout for HTTP requests
	Timeout time.Duration
}

// Enabled reports whether a webhook is configured.
func (c AlertConfig) Enabled() bool { return c.WebhookURL != "" }

// normalize fills defaults and detects the webhook type from the URL.
func (c AlertConfig) normalize() AlertConfig {
	if c.MinFailuresBeforeAlert <= 0 {
		c.MinFailuresBeforeAlert = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.WebhookType == "" {
		switch {
		case strings.Contains(c.WebhookURL, "slack.com"):
			c.WebhookType = "slack"
		case strings.Contains(c.WebhookURL, "discord.com"):
			c.WebhookType = "discord"
		default:
			c.WebhookType = "generic"
		}
	}
	return c
}

// ReloadAlert describes a failing tariff reload job.
type ReloadAlert struct {
	JobName             string
	Source              string
	ConsecutiveFailures int
	Error               string
	Duration            time.Duration
	Timestamp           time.Time
}

// Alerter sends alerts to configured webhooks.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
	log    *zap.Logger
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig, log *zap.Logger) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	cfg = cfg.normalize()
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// SendReloadAlert posts alert unless alerting is disabled or the failure
// streak is still below the threshold.
func (a *Alerter) SendReloadAlert(ctx context.Context, alert ReloadAlert) error {
	if !a.cfg.Enabled() {
		a.log.Debug("alerting: alerts disabled, skipping")
		return nil
	}
	if alert.ConsecutiveFailures < a.cfg.MinFailuresBeforeAlert {
		a.log.Debug("alerting: failures below threshold, skipping",
			zap.Int("failures", alert.ConsecutiveFailures),
			zap.Int("threshold", a.cfg.MinFailuresBeforeAlert))
		return nil
	}

	var payload []byte
	var err error
	switch a.cfg.WebhookType {
	case "slack":
		payload, err = buildSlackPayload(alert)
	case "discord":
		payload, err = buildDiscordPayload(alert)
	default:
		payload, err = buildGenericPayload(alert)
	}
	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	a.log.Info("alerting: sent reload alert",
		zap.String("job", alert.JobName),
		zap.Int("failures", alert.ConsecutiveFailures))
	return nil
}

func buildSlackPayload(alert ReloadAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf(":x: Tariff reload failing: %s", alert.JobName),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Source:*\n%s", alert.Source)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", alert.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", alert.Duration.Round(time.Millisecond))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Error:*\n```%s```", alert.Error),
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordPayload(alert ReloadAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Tariff reload failing: %s", alert.JobName),
				"description": alert.Error,
				"color":       16711680, // Red
				"fields": []map[string]interface{}{
					{"name": "Source", "value": alert.Source, "inline": true},
					{"name": "Consecutive failures", "value": fmt.Sprintf("%d", alert.ConsecutiveFailures), "inline": true},
					{"name": "Duration", "value": alert.Duration.Round(time.Millisecond).String(), "inline": true},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}

func buildGenericPayload(alert ReloadAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":           "tariff_reload_failure",
		"job_name":             alert.JobName,
		"source":               alert.Source,
		"consecutive_failures": alert.ConsecutiveFailures,
		"error":                alert.Error,
		"duration_ms":          alert.Duration.Milliseconds(),
		"timestamp":            alert.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}
