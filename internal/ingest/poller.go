package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/model"
)

const TransportPoll = "poll"

type PollConfig struct {
	URL      string
	Method   string
	Body     string
	Interval time.Duration
	Timeout  time.Duration
	// Fields maps a feature name to the gateway's field; unmapped features
	// are read under their own name.
	Fields map[string]string
}

// Poller pulls telemetry from a gateway endpoint that cannot push. Every
// successful response is ingested as the most recent reading.
type Poller struct {
	log     *slog.Logger
	cfg     PollConfig
	client  *http.Client
	service *Service

	mu      sync.Mutex
	lastErr error
	polled  bool
}

func NewPoller(log *slog.Logger, cfg PollConfig, service *Service) (*Poller, error) {
	if cfg.URL == "" {
		return nil, errors.New("poll url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	for feature := range cfg.Fields {
		if !isFeature(feature) {
			return nil, fmt.Errorf("poll field mapping for unknown feature %q", feature)
		}
	}

	return &Poller{
		log:     log.With(slog.String("component", "poller")),
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		service: service,
	}, nil
}

func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("starting poller",
		slog.String("url", p.cfg.URL),
		slog.Duration("interval", p.cfg.Interval),
	)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	defer p.client.CloseIdleConnections()

	p.pollAndRecord(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("context cancelled, stopping poller")
			return nil
		case <-ticker.C:
			p.pollAndRecord(ctx)
		}
	}
}

func (p *Poller) pollAndRecord(ctx context.Context) {
	err := p.Poll(ctx)
	if err != nil {
		p.log.Error("failed to poll telemetry", slog.String("url", p.cfg.URL), sl.Err(err))
	}

	p.mu.Lock()
	p.lastErr = err
	p.polled = true
	p.mu.Unlock()
}

// Poll fetches one response and ingests it. A response without data is not an error.
func (p *Poller) Poll(ctx context.Context) error {
	body, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	if body == nil {
		p.log.Debug("gateway returned no data")
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %v", model.ErrMalformedInput, err)
	}

	payload, err := json.Marshal(p.transform(raw))
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	_, err = p.service.Ingest(ctx, TransportPoll, payload, map[string]any{"source": p.cfg.URL})
	return err
}

func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	var reqBody io.Reader
	if p.cfg.Body != "" {
		reqBody = strings.NewReader(p.cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, p.cfg.Method, p.cfg.URL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Some gateways answer a bare boolean when they have nothing to report.
	trimmed := bytes.TrimSpace(body)
	switch strings.ToLower(string(trimmed)) {
	case "", "true", "false", "null":
		return nil, nil
	}

	return trimmed, nil
}

// transform renames mapped fields to feature names and coerces numeric
// strings. Fields that are not used as a feature source pass through as extras.
func (p *Poller) transform(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	used := make(map[string]bool, model.FeatureCount)

	for _, feature := range model.FeatureNames {
		source := feature
		if mapped, ok := p.cfg.Fields[feature]; ok {
			source = mapped
		}

		v, ok := raw[source]
		if !ok {
			continue
		}
		used[source] = true
		out[feature] = toFloat(v)
	}

	for k, v := range raw {
		if used[k] {
			continue
		}
		if _, clash := out[k]; clash {
			continue
		}
		out[k] = v
	}

	return out
}

// toFloat converts numeric strings; anything else is returned unchanged so
// that validation reports it.
func toFloat(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return v
	}
	return f
}

func isFeature(name string) bool {
	for _, f := range model.FeatureNames {
		if f == name {
			return true
		}
	}
	return false
}

// Health reports the outcome of the last poll.
func (p *Poller) Health(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.polled {
		return errors.New("no poll completed yet")
	}
	return p.lastErr
}
