package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/speedwagon-io/motordiag/internal/inference"
	"github.com/speedwagon-io/motordiag/internal/ingest"
	"github.com/speedwagon-io/motordiag/internal/lib/logger/handlers/slogdiscard"
	"github.com/speedwagon-io/motordiag/internal/model"
	"github.com/speedwagon-io/motordiag/internal/pipeline"
	"github.com/speedwagon-io/motordiag/internal/rul"
	"github.com/speedwagon-io/motordiag/internal/storage"
)

const baselinePayload = `{
	"motor_temp": 60, "ambient_temp": 25,
	"vib_x": 2.5, "vib_y": 1, "vib_z": 1,
	"volt_a": 230, "volt_b": 230, "volt_c": 230,
	"curr_a": 10, "curr_b": 10, "curr_c": 10,
	"motor_id": "M-1"
}`

type stubClassifier struct {
	label string
	err   error
}

func (c stubClassifier) Classify(context.Context, []float64) (inference.Classification, error) {
	if c.err != nil {
		return inference.Classification{}, c.err
	}
	return inference.Classification{Label: c.label, Confidence: 1}, nil
}

type testServer struct {
	store   *storage.MemoryStore
	handler http.Handler
}

func newTestServer(t *testing.T, cls stubClassifier, opts RouterOptions) *testServer {
	t.Helper()

	scaler, err := inference.NewScaler(make([]float64, model.FeatureCount), make([]float64, model.FeatureCount))
	if err != nil {
		t.Fatalf("scaler: %v", err)
	}

	log := slogdiscard.NewDiscardLogger()
	store := storage.NewMemoryStore(10)
	p := pipeline.New(log, store, scaler, cls, rul.NewEstimator(nil))
	h := NewHandler(log, ingest.NewService(log, store, nil), p, 1024)

	return &testServer{
		store:   store,
		handler: NewRouter(log, h, opts),
	}
}

func (s *testServer) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) count(t *testing.T) int64 {
	t.Helper()
	n, err := s.store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestGetLatestDataEmptyStore(t *testing.T) {
	s := newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{})

	rec := s.do(http.MethodGet, "/get_latest_data/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	want := `{"data":[0,0,0,0,0,0,0,0,0,0,0],"fault_type":"No Data","rul":0}`
	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestUploadThenGetLatest(t *testing.T) {
	s := newTestServer(t, stubClassifier{label: "Bearing Defects"}, RouterOptions{})

	rec := s.do(http.MethodPost, "/upload_data", baselinePayload, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"success"}` {
		t.Fatalf("unexpected upload response %s", got)
	}

	rec = s.do(http.MethodGet, "/get_latest_data", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var d model.Diagnosis
	if err := json.Unmarshal(rec.Body.Bytes(), &d); err != nil {
		t.Fatalf("failed to decode diagnosis: %v", err)
	}
	if d.FaultType != "Bearing Defects" || d.RUL != 2500 {
		t.Fatalf("unexpected diagnosis %+v", d)
	}
	if len(d.Data) != model.FeatureCount || d.Data[model.MotorTemp] != 60 || d.Data[model.VibX] != 2.5 {
		t.Fatalf("expected raw features in data, got %v", d.Data)
	}
}

func TestUploadMalformed(t *testing.T) {
	s := newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "motor_temp=60"},
		{"empty body", ""},
		{"array", "[60, 25]"},
		{"missing fields", `{"motor_temp": 60}`},
		{"string field", strings.Replace(baselinePayload, `"vib_y": 1`, `"vib_y": "1"`, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/upload_data", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}

			var resp errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Error == "" {
				t.Fatalf("expected error body, got %s", rec.Body.String())
			}
		})
	}

	if n := s.count(t); n != 0 {
		t.Fatalf("malformed uploads must not be stored, got %d", n)
	}
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{})

	body := `{"padding":"` + strings.Repeat("x", 2048) + `"}`
	rec := s.do(http.MethodPost, "/upload_data", body, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/upload_data"},
		{http.MethodPut, "/upload_data"},
		{http.MethodPost, "/get_latest_data/"},
		{http.MethodDelete, "/get_latest_data"},
	}

	for _, tt := range tests {
		rec := s.do(tt.method, tt.path, "", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 405, got %d", tt.method, tt.path, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Invalid request"}` {
			t.Fatalf("%s %s: unexpected body %s", tt.method, tt.path, got)
		}
	}

	if n := s.count(t); n != 0 {
		t.Fatalf("expected nothing stored, got %d", n)
	}
}

func TestGetLatestDataInferenceFailure(t *testing.T) {
	s := newTestServer(t, stubClassifier{err: errors.Join(model.ErrInference, errors.New("endpoint unavailable"))}, RouterOptions{})

	if rec := s.do(http.MethodPost, "/upload_data", baselinePayload, nil); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	rec := s.do(http.MethodGet, "/get_latest_data/", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if !strings.Contains(resp.Error, "endpoint unavailable") {
		t.Fatalf("expected cause in error message, got %q", resp.Error)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	s := newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{KeyHashes: []string{string(hash)}})

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "guess", http.StatusUnauthorized},
		{"valid key", "s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.key != "" {
				header.Set(apiKeyHeader, tt.key)
			}
			rec := s.do(http.MethodPost, "/upload_data", baselinePayload, header)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}

	if n := s.count(t); n != 1 {
		t.Fatalf("expected only the authorized upload stored, got %d", n)
	}

	// Reads stay open.
	if rec := s.do(http.MethodGet, "/get_latest_data/", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for query without key, got %d", rec.Code)
	}
}

func TestRequestIDAddedToExtras(t *testing.T) {
	s := newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{})

	header := http.Header{}
	header.Set("X-Request-Id", "req-42")
	if rec := s.do(http.MethodPost, "/upload_data", baselinePayload, header); rec.Code != http.StatusOK {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	r, err := s.store.Latest(context.Background())
	if err != nil || r == nil {
		t.Fatalf("latest: %v", err)
	}
	if r.Extra["request_id"] != "req-42" || r.Extra["motor_id"] != "M-1" {
		t.Fatalf("unexpected extras %v", r.Extra)
	}
}

func TestStreamRoute(t *testing.T) {
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{Stream: stream})

	if rec := s.do(http.MethodGet, "/ws/diagnoses", "", nil); rec.Code != http.StatusTeapot {
		t.Fatalf("expected stream handler to serve, got %d", rec.Code)
	}

	s = newTestServer(t, stubClassifier{label: "Healthy"}, RouterOptions{})
	if rec := s.do(http.MethodGet, "/ws/diagnoses", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without stream, got %d", rec.Code)
	}
}
