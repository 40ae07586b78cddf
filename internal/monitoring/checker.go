package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/entity-extractor/internal/config"
)

// Checker evaluates the recorder's summary periodically in the background.
type Checker struct {
	recorder *Recorder
	alerter  *Alerter
	cfg      config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(recorder *Recorder, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		recorder: recorder,
		alerter:  alerter,
		cfg:      cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check evaluates the current summary once and sends any alerts. It returns
// the alerts that were triggered.
func (c *Checker) Check(ctx context.Context) []Alert {
	alerts := c.alerter.Evaluate(c.recorder.Snapshot())
	if len(alerts) == 0 {
		zap.L().Debug("monitoring: no alerts triggered")
		return nil
	}

	for _, a := range alerts {
		zap.L().Warn("monitoring: alert triggered",
			zap.String("type", string(a.Type)),
			zap.String("message", a.Message),
		)
	}
	sent := c.alerter.SendAlerts(ctx, alerts)
	zap.L().Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return alerts
}
