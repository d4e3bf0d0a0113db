// Package monitoring raises webhook alerts when roster refreshes go wrong.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/artist-check/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRefreshFailureRate AlertType = "refresh_failure_rate"
	AlertBackendDown        AlertType = "backend_down"
	AlertUnscoredArtists    AlertType = "unscored_artists"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RefreshSnapshot is the outcome of one roster refresh.
type RefreshSnapshot struct {
	Refreshed   int
	Failed      int
	FetchFailed int // entries left in the fetch_failed state afterwards
	Trigger     string
}

// Attempted is the number of artists the refresh tried.
func (s RefreshSnapshot) Attempted() int { return s.Refreshed + s.Failed }

// FailureRate is Failed over Attempted, 0 when nothing was attempted.
func (s RefreshSnapshot) FailureRate() float64 {
	if s.Attempted() == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Attempted())
}

// Alerter evaluates a RefreshSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Enabled reports whether alerts have somewhere to go.
func (a *Alerter) Enabled() bool { return a.cfg.WebhookURL != "" }

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap RefreshSnapshot) []Alert {
	var alerts []Alert
	now := a.now().UTC()
	attempted := snap.Attempted()

	if attempted > 0 && snap.Failed == attempted {
		alerts = append(alerts, Alert{
			Type:      AlertBackendDown,
			Severity:  "critical",
			Message:   fmt.Sprintf("All %d artist fetches failed during %s refresh", attempted, snap.Trigger),
			Details:   map[string]any{"failed": snap.Failed},
			Timestamp: now,
		})
	} else if attempted >= a.cfg.MinArtists && snap.FailureRate() > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Refresh failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d artists)",
				snap.FailureRate()*100, a.cfg.FailureRateThreshold*100, snap.Failed, attempted,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate(),
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"attempted":    attempted,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MaxFetchFailed > 0 && snap.FetchFailed >= a.cfg.MaxFetchFailed {
		alerts = append(alerts, Alert{
			Type:      AlertUnscoredArtists,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d artists have no show data and cannot be scored", snap.FetchFailed),
			Details:   map[string]any{"fetch_failed": snap.FetchFailed},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.Enabled() || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
