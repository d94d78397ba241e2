package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/model"
	"github.com/speedwagon-io/motordiag/internal/notify"
)

type Diagnoser interface {
	Latest(ctx context.Context) (model.Diagnosis, error)
}

type Publisher interface {
	BroadcastDiagnosis(ctx context.Context, d model.Diagnosis) error
}

type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
}

type AlertRecorder interface {
	ObserveAlert(delivered bool)
}

type Config struct {
	Interval          time.Duration
	RULAlertThreshold int
	PruneInterval     time.Duration
	Retention         time.Duration
}

// Monitor periodically diagnoses the most recent reading, publishes every
// new diagnosis and raises an alert when the motor leaves the healthy state.
type Monitor struct {
	log       *slog.Logger
	cfg       Config
	diagnoser Diagnoser
	publisher Publisher
	notifier  notify.Notifier
	pruner    Pruner
	recorder  AlertRecorder

	lastReading string
	// alerted holds the reason/fault keys delivered since the motor was
	// last healthy.
	alerted map[string]struct{}
}

type Option func(*Monitor)

func WithPublisher(p Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithPruner enables retention of readings older than Config.Retention.
func WithPruner(p Pruner) Option {
	return func(m *Monitor) { m.pruner = p }
}

func WithAlertRecorder(r AlertRecorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

func New(log *slog.Logger, cfg Config, diagnoser Diagnoser, opts ...Option) *Monitor {
	m := &Monitor{
		log:       log.With(slog.String("component", "monitor")),
		cfg:       cfg,
		diagnoser: diagnoser,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run ticks until ctx is done. Only the Run goroutine touches monitor state.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("starting monitor",
		slog.Duration("interval", m.cfg.Interval),
		slog.Int("rul_alert_threshold", m.cfg.RULAlertThreshold),
	)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	var pruneC <-chan time.Time
	if m.pruner != nil && m.cfg.PruneInterval > 0 && m.cfg.Retention > 0 {
		pruneTicker := time.NewTicker(m.cfg.PruneInterval)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	m.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("context cancelled, stopping monitor")
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		case <-pruneC:
			m.prune(ctx)
		}
	}
}

// Tick diagnoses the latest reading once. Readings already seen by a
// previous tick are skipped.
func (m *Monitor) Tick(ctx context.Context) {
	d, err := m.diagnoser.Latest(ctx)
	if err != nil {
		m.log.Error("failed to diagnose latest reading", sl.Err(err))
		return
	}

	if d.IsNoData() || d.ReadingID == m.lastReading {
		return
	}
	m.lastReading = d.ReadingID

	if m.publisher != nil {
		if err := m.publisher.BroadcastDiagnosis(ctx, d); err != nil {
			m.log.Warn("failed to publish diagnosis", slog.String("reading_id", d.ReadingID), sl.Err(err))
		}
	}

	m.evaluate(ctx, d)
}

// AlertReason classifies d against the alert rules. An empty reason means healthy.
func AlertReason(d model.Diagnosis, rulThreshold int) string {
	if d.FaultType != model.HealthyFault {
		return notify.ReasonFault
	}
	if d.RUL < rulThreshold {
		return notify.ReasonLowRUL
	}
	return ""
}

// evaluate alerts once per reason and fault type. Delivered conditions
// stay suppressed until the motor is healthy again.
func (m *Monitor) evaluate(ctx context.Context, d model.Diagnosis) {
	reason := AlertReason(d, m.cfg.RULAlertThreshold)
	if reason == "" {
		if len(m.alerted) > 0 {
			m.log.Info("motor back to healthy", slog.String("reading_id", d.ReadingID))
		}
		clear(m.alerted)
		return
	}

	key := reason + "/" + d.FaultType
	if _, ok := m.alerted[key]; ok || m.notifier == nil {
		return
	}

	alert := notify.NewAlert(reason, d)
	err := m.notifier.Notify(ctx, alert)
	if m.recorder != nil {
		m.recorder.ObserveAlert(err == nil)
	}
	if err != nil {
		m.log.Error("failed to deliver alert",
			slog.String("alert_id", alert.ID),
			slog.String("reason", reason),
			sl.Err(err),
		)
		return
	}

	if m.alerted == nil {
		m.alerted = make(map[string]struct{})
	}
	m.alerted[key] = struct{}{}
	m.log.Info("alert raised",
		slog.String("alert_id", alert.ID),
		slog.String("reason", reason),
		slog.String("fault_type", d.FaultType),
		slog.Int("rul", d.RUL),
	)
}

func (m *Monitor) prune(ctx context.Context) {
	n, err := m.pruner.Prune(ctx, m.cfg.Retention)
	if err != nil {
		m.log.Error("failed to prune old readings", sl.Err(err))
		return
	}
	if n > 0 {
		m.log.Info("old readings pruned", slog.Int64("count", n))
	}
}
