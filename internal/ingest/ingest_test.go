package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/motordiag/internal/model"
	"github.com/speedwagon-io/motordiag/internal/storage"
)

const validPayload = `{
	"motor_temp": 65.2, "ambient_temp": 24.0,
	"vib_x": 1.1, "vib_y": 1.3, "vib_z": 0.9,
	"volt_a": 230, "volt_b": 229.5, "volt_c": 230.4,
	"curr_a": 10.1, "curr_b": 10.3, "curr_c": 9.8,
	"motor_id": "M-7"
}`

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) ObserveIngest(transport, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[transport+"/"+outcome]++
}

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

type failingSink struct{}

func (failingSink) Insert(context.Context, *model.Reading) error {
	return errors.New("disk full")
}

func TestServiceIngest(t *testing.T) {
	store := storage.NewMemoryStore(10)
	rec := &countingRecorder{}
	svc := NewService(slogdiscard.NewDiscardLogger(), store, rec)

	r, err := svc.Ingest(context.Background(), TransportMQTT, []byte(validPayload), map[string]any{
		"topic":    "motors/M-7/telemetry",
		"motor_id": "overridden",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Seq != 1 {
		t.Fatalf("expected seq 1, got %d", r.Seq)
	}
	if r.Extra["topic"] != "motors/M-7/telemetry" {
		t.Fatalf("expected topic in extras, got %v", r.Extra)
	}
	if r.Extra["motor_id"] != "M-7" {
		t.Fatalf("payload extras must win over metadata, got %v", r.Extra["motor_id"])
	}

	latest, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || latest.ID != r.ID {
		t.Fatalf("expected stored reading %s, got %+v", r.ID, latest)
	}
	if got := rec.get("mqtt/accepted"); got != 1 {
		t.Fatalf("expected 1 accepted, got %d", got)
	}
}

func TestServiceRejectsMalformed(t *testing.T) {
	store := storage.NewMemoryStore(10)
	rec := &countingRecorder{}
	svc := NewService(slogdiscard.NewDiscardLogger(), store, rec)

	for _, payload := range []string{"not json", `[1,2,3]`, `{"motor_temp": 1}`} {
		if _, err := svc.Ingest(context.Background(), TransportHTTP, []byte(payload), nil); !errors.Is(err, model.ErrMalformedInput) {
			t.Fatalf("payload %q: expected ErrMalformedInput, got %v", payload, err)
		}
	}

	if n, _ := store.Count(context.Background()); n != 0 {
		t.Fatalf("malformed payloads must not be stored, got %d", n)
	}
	if got := rec.get("http/rejected"); got != 3 {
		t.Fatalf("expected 3 rejected, got %d", got)
	}
}

func TestServiceStorageFailure(t *testing.T) {
	rec := &countingRecorder{}
	svc := NewService(slogdiscard.NewDiscardLogger(), failingSink{}, rec)

	_, err := svc.Ingest(context.Background(), TransportHTTP, []byte(validPayload), nil)
	if !errors.Is(err, model.ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected cause in error, got %v", err)
	}
	if got := rec.get("http/failed"); got != 1 {
		t.Fatalf("expected 1 failed, got %d", got)
	}
}

func TestSubscriberHandle(t *testing.T) {
	store := storage.NewMemoryStore(10)
	svc := NewService(slogdiscard.NewDiscardLogger(), store, nil)

	sub, err := NewSubscriber(slogdiscard.NewDiscardLogger(), MQTTConfig{
		BrokerURL: "mqtt://localhost:1883",
		ClientID:  "test",
		Topic:     "motors/+/telemetry",
		QoS:       1,
	}, svc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := context.Background()
	sub.handle(ctx, "motors/M-1/telemetry", []byte(validPayload))
	sub.handle(ctx, "motors/M-1/status", []byte(validPayload))
	sub.handle(ctx, "motors/M-2/telemetry", []byte("garbage"))

	if n, _ := store.Count(ctx); n != 1 {
		t.Fatalf("expected exactly one stored reading, got %d", n)
	}

	if err := sub.Health(ctx); err == nil {
		t.Fatalf("expected unhealthy before connecting")
	}
}

func TestNewSubscriberValidation(t *testing.T) {
	svc := NewService(slogdiscard.NewDiscardLogger(), storage.NewMemoryStore(1), nil)

	if _, err := NewSubscriber(slogdiscard.NewDiscardLogger(), MQTTConfig{BrokerURL: "localhost", Topic: "a"}, svc); err == nil {
		t.Fatalf("expected error for broker URL without scheme")
	}
	if _, err := NewSubscriber(slogdiscard.NewDiscardLogger(), MQTTConfig{BrokerURL: "mqtt://localhost:1883"}, svc); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"motors/+/telemetry", "motors/M-1/telemetry", true},
		{"motors/+/telemetry", "motors/M-1/status", false},
		{"motors/+/telemetry", "motors/M-1/telemetry/raw", false},
		{"motors/#", "motors/M-1/telemetry/raw", true},
		{"motors/M-1/telemetry", "motors/M-1/telemetry", true},
		{"motors/M-1/telemetry", "motors/M-2/telemetry", false},
		{"$share/diag/motors/+/telemetry", "motors/M-3/telemetry", true},
		{"+/+", "motors", false},
	}

	for _, tt := range tests {
		if got := TopicMatches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("TopicMatches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
