package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/model"
)

// Alert reasons.
const (
	ReasonFault  = "fault"
	ReasonLowRUL = "low_rul"
)

type Alert struct {
	ID         string    `json:"id"`
	Reason     string    `json:"reason"`
	FaultType  string    `json:"fault_type"`
	RUL        int       `json:"rul"`
	Confidence float64   `json:"confidence"`
	Data       []float64 `json:"data"`
	ReadingID  string    `json:"reading_id,omitempty"`
	RaisedAt   time.Time `json:"raised_at"`
}

func NewAlert(reason string, d model.Diagnosis) *Alert {
	return &Alert{
		ID:         uuid.NewString(),
		Reason:     reason,
		FaultType:  d.FaultType,
		RUL:        d.RUL,
		Confidence: d.Confidence,
		Data:       d.Data,
		ReadingID:  d.ReadingID,
		RaisedAt:   time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, alert *Alert) error
	Health(ctx context.Context) error
}

type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type WebhookNotifier struct {
	log     *slog.Logger
	url     string
	token   string
	client  *http.Client
	retry   RetryConfig
	backoff backoff
}

func NewWebhookNotifier(log *slog.Logger, url, token string, timeout time.Duration, retry RetryConfig) *WebhookNotifier {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &WebhookNotifier{
		log:   log,
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
		retry:   retry,
		backoff: newBackoff(retry.InitialDelay, retry.MaxDelay),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, alert *Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= n.retry.MaxAttempts; attempt++ {
		err := n.post(ctx, data)
		if err == nil {
			return nil
		}

		lastErr = err
		n.log.Warn("alert delivery attempt failed",
			slog.String("alert_id", alert.ID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", n.retry.MaxAttempts),
			sl.Err(err),
		)

		if attempt < n.retry.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.backoff.delay(attempt)):
			}
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", n.retry.MaxAttempts, lastErr)
}

func (n *WebhookNotifier) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
}

func (n *WebhookNotifier) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, n.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("webhook unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// LogNotifier logs alerts instead of delivering them. Used when no webhook is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, alert *Alert) error {
	n.log.Warn("ALERT",
		slog.String("alert_id", alert.ID),
		slog.String("reason", alert.Reason),
		slog.String("fault_type", alert.FaultType),
		slog.Int("rul", alert.RUL),
		slog.Float64("confidence", alert.Confidence),
	)
	return nil
}

func (n *LogNotifier) Health(context.Context) error {
	return nil
}
