package stream

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/speedwagon-io/motordiag/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/motordiag/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestHubBroadcastDiagnosis(t *testing.T) {
	var gauge atomic.Int64
	hub := NewHub(slogdiscard.NewDiscardLogger(), WithClientGauge(func(n int) {
		gauge.Store(int64(n))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.Clients() == 1 })
	if gauge.Load() != 1 {
		t.Fatalf("expected gauge 1, got %d", gauge.Load())
	}

	d := model.Diagnosis{
		Data:      make([]float64, model.FeatureCount),
		FaultType: "Overheating",
		RUL:       1234,
	}
	if err := hub.BroadcastDiagnosis(ctx, d); err != nil {
		t.Fatalf("unexpected broadcast error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	var msg struct {
		Type    string          `json:"type"`
		Payload model.Diagnosis `json:"payload"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("failed to decode message %s: %v", raw, err)
	}
	if msg.Type != "diagnosis" {
		t.Fatalf("expected diagnosis message, got %q", msg.Type)
	}
	if msg.Payload.FaultType != "Overheating" || msg.Payload.RUL != 1234 {
		t.Fatalf("unexpected payload %+v", msg.Payload)
	}

	conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 0 })
}

func TestHubStopped(t *testing.T) {
	hub := NewHub(slogdiscard.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	if err := hub.Broadcast(context.Background(), "diagnosis", model.NoData()); err != ErrHubStopped {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}

func TestBroadcastWithoutClients(t *testing.T) {
	hub := NewHub(slogdiscard.NewDiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if err := hub.BroadcastDiagnosis(ctx, model.NoData()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
