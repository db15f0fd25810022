// Package notify delivers queued alerts to tenant webhooks. Delivery is
// at-least-once: an anomaly is marked sent only after the webhook accepts
// it, and re-running the dispatcher never re-sends a marked anomaly.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/apaudit/internal/model"
	"github.com/sells-group/apaudit/internal/retry"
	"github.com/sells-group/apaudit/internal/store"
)

const defaultTimeout = 10 * time.Second

// Alert is the webhook payload for a single queued anomaly.
type Alert struct {
	Tenant        string               `json:"tenant"`
	AnomalyID     string               `json:"anomaly_id"`
	BillID        string               `json:"bill_id"`
	RelatedBillID string               `json:"related_bill_id,omitempty"`
	Type          model.AnomalyType    `json:"type"`
	Tier          model.ConfidenceTier `json:"tier"`
	Signal        float64              `json:"signal"`
	Impact        float64              `json:"impact"`
	Detail        string               `json:"detail,omitempty"`
	DetectedAt    time.Time            `json:"detected_at"`
}

// Dispatcher posts queued alerts to tenant webhooks.
type Dispatcher struct {
	store  store.Store
	client *http.Client
	retry  retry.Config
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client. Used in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(d *Dispatcher) { d.retry = cfg }
}

// New creates a Dispatcher.
func New(st store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  st,
		client: &http.Client{Timeout: defaultTimeout},
		retry:  retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Counts summarizes one dispatch pass.
type Counts struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Dispatch sends every queued, unsent anomaly for the tenant to its webhook.
// A tenant without a webhook URL is a no-op. Per-anomaly delivery failures
// are logged and counted; they never abort the pass.
func (d *Dispatcher) Dispatch(ctx context.Context, tenant model.Tenant) (Counts, error) {
	log := zap.L().With(zap.String("tenant", tenant.Name))
	var counts Counts

	if tenant.WebhookURL == "" {
		log.Debug("no webhook configured; skipping alert dispatch")
		return counts, nil
	}

	queued, err := d.store.ListAnomalies(ctx, store.AnomalyFilter{
		TenantID: tenant.ID,
		Status:   model.StatusAlertQueued,
		Limit:    500,
	})
	if err != nil {
		return counts, eris.Wrap(err, "notify: list queued anomalies")
	}

	for _, a := range queued {
		if a.AlertSent {
			counts.Skipped++
			continue
		}
		if err := d.send(ctx, tenant, a); err != nil {
			log.Error("alert delivery failed",
				zap.String("anomaly_id", a.ID),
				zap.String("type", string(a.Type)),
				zap.Error(err),
			)
			counts.Failed++
			continue
		}
		if err := d.store.MarkAlertSent(ctx, a.ID); err != nil {
			// Delivered but unmarked: the next pass will re-send. Acceptable
			// under at-least-once semantics, but worth a loud log line.
			log.Error("alert delivered but not marked sent",
				zap.String("anomaly_id", a.ID),
				zap.Error(err),
			)
		}
		counts.Sent++
	}

	log.Info("alert dispatch complete",
		zap.Int("sent", counts.Sent),
		zap.Int("failed", counts.Failed),
		zap.Int("skipped", counts.Skipped),
	)
	return counts, nil
}

func (d *Dispatcher) send(ctx context.Context, tenant model.Tenant, a model.Anomaly) error {
	payload := Alert{
		Tenant:        tenant.Name,
		AnomalyID:     a.ID,
		BillID:        a.BillID,
		RelatedBillID: a.RelatedBillID,
		Type:          a.Type,
		Tier:          a.Tier,
		Signal:        a.Signal,
		Impact:        a.Impact,
		Detail:        a.Detail,
		DetectedAt:    a.DetectedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "notify: marshal alert")
	}

	return retry.Do(ctx, d.retry, "webhook alert", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, tenant.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "notify: build request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return retry.MarkTransient(eris.Wrap(err, "notify: post alert"))
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body) //nolint:errcheck

		if resp.StatusCode >= 500 {
			return retry.MarkTransient(eris.Errorf("notify: webhook returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 300 {
			return eris.Errorf("notify: webhook returned %d", resp.StatusCode)
		}
		return nil
	})
}
