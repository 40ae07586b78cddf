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

	"github.com/sells-group/entity-extractor/internal/config"
	"github.com/sells-group/entity-extractor/internal/model"
	"github.com/sells-group/entity-extractor/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "extraction_failure_rate"
	AlertSalvageRate AlertType = "salvage_rate"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Summary against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2,
			JitterFraction: 0.2,
		},
	}
}

// Evaluate checks the summary against thresholds and returns any alerts.
// Cancelled chunks are not failures of the service and are left out of the
// failure rate.
func (a *Alerter) Evaluate(s Summary) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	cancelled := s.Outcomes[model.OutcomeCancelled]
	finished := s.TotalChunks - cancelled
	failed := s.Failures - cancelled
	if a.cfg.FailureRateThreshold > 0 && finished >= a.cfg.MinChunks && finished > 0 {
		rate := float64(failed) / float64(finished)
		if rate > a.cfg.FailureRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertFailureRate,
				Severity: "high",
				Message: fmt.Sprintf(
					"Extraction failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d chunks)",
					rate*100, a.cfg.FailureRateThreshold*100, failed, finished,
				),
				Details: map[string]any{
					"failure_rate": rate,
					"threshold":    a.cfg.FailureRateThreshold,
					"failed":       failed,
					"finished":     finished,
					"error_counts": s.ErrorCounts,
				},
				Timestamp: now,
			})
		}
	}

	parsed := 0
	for _, n := range s.StrategyUsage {
		parsed += n
	}
	salvaged := s.StrategyUsage[model.StrategySalvage]
	if a.cfg.SalvageRateThreshold > 0 && parsed >= a.cfg.MinChunks && parsed > 0 {
		rate := float64(salvaged) / float64(parsed)
		if rate > a.cfg.SalvageRateThreshold {
			alerts = append(alerts, Alert{
				Type:     AlertSalvageRate,
				Severity: "medium",
				Message: fmt.Sprintf(
					"%.1f%% of parsed responses needed salvage (threshold %.1f%%)",
					rate*100, a.cfg.SalvageRateThreshold*100,
				),
				Details: map[string]any{
					"salvage_rate":   rate,
					"threshold":      a.cfg.SalvageRateThreshold,
					"strategy_usage": s.StrategyUsage,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		cfg := a.retry
		cfg.OnRetry = resilience.RetryLogger("monitoring", "webhook", zap.String("type", string(alert.Type)))
		attempts, err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Int("attempts", attempts),
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

// sendWebhook posts a single alert to the webhook URL. Transient statuses and
// network failures are retryable; any other 4xx is fatal.
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
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return resilience.NewTransportError(eris.Wrap(err, "monitoring: webhook request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 400 {
		return nil
	}
	statusErr := eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	if resp.StatusCode < 500 && !resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewFatalServiceError(statusErr, resp.StatusCode)
	}
	return resilience.NewServiceError(statusErr, resp.StatusCode)
}
