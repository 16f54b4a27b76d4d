package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/logger"
	"github.com/sungwon/email-queue/internal/metrics"
)

func requestCount(t *testing.T, method, path, status string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.APIRequestsTotal.WithLabelValues(method, path, status).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCorrelationIDMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"generated when absent", ""},
		{"propagated from caller", "corr-from-upstream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fromCtx string
			h := CorrelationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fromCtx = logger.CorrelationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/emails", nil)
			if tt.header != "" {
				req.Header.Set("X-Correlation-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if fromCtx == "" {
				t.Fatal("correlation ID missing from context")
			}
			if tt.header != "" && fromCtx != tt.header {
				t.Errorf("context ID = %q, want %q", fromCtx, tt.header)
			}
			if got := rec.Header().Get("X-Correlation-ID"); got != fromCtx {
				t.Errorf("response header = %q, want %q", got, fromCtx)
			}
		})
	}
}

func TestLoggingMiddleware_RequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	h := CorrelationIDMiddleware(LoggingMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		log.Info().Msg("queued email")
		w.WriteHeader(http.StatusAccepted)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/emails", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2:\n%s", len(lines), buf.String())
	}

	var handlerLine, accessLine map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &handlerLine); err != nil {
		t.Fatalf("decode handler log: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &accessLine); err != nil {
		t.Fatalf("decode access log: %v", err)
	}

	if handlerLine["correlation_id"] != "corr-42" {
		t.Errorf("handler log correlation_id = %v, want corr-42", handlerLine["correlation_id"])
	}
	if accessLine["message"] != "request completed" {
		t.Errorf("access log message = %v", accessLine["message"])
	}
	if accessLine["status"] != float64(http.StatusAccepted) {
		t.Errorf("access log status = %v, want 202", accessLine["status"])
	}
	if accessLine["path"] != "/api/v1/emails" || accessLine["method"] != http.MethodPost {
		t.Errorf("access log request = %v %v", accessLine["method"], accessLine["path"])
	}
}

func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/api/v1/emails/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := requestCount(t, http.MethodGet, "/api/v1/emails/{id}", "404")
	unmatchedBefore := requestCount(t, http.MethodGet, "unmatched", "404")

	for _, id := range []string{"a1", "b2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/emails/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := requestCount(t, http.MethodGet, "/api/v1/emails/{id}", "404") - before; got != 2 {
		t.Errorf("route pattern count delta = %v, want 2", got)
	}
	if got := requestCount(t, http.MethodGet, "unmatched", "404") - unmatchedBefore; got != 1 {
		t.Errorf("unmatched count delta = %v, want 1", got)
	}
	if got := requestCount(t, http.MethodGet, "/api/v1/emails/a1", "404"); got != 0 {
		t.Errorf("raw path recorded as label: %v", got)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantBody   *errorResponse
	}{
		{
			name:       "panic becomes 500 error body",
			handler:    func(http.ResponseWriter, *http.Request) { panic("provider exploded") },
			wantStatus: http.StatusInternalServerError,
			wantBody:   &errorResponse{Message: "Internal server error", Code: codeInternal},
		},
		{
			name: "normal response untouched",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				respondJSON(w, http.StatusAccepted, map[string]string{"id": "e1"})
			},
			wantStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RecoverMiddleware(zerolog.Nop())(tt.handler)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/emails", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody == nil {
				return
			}
			var got errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if got != *tt.wantBody {
				t.Errorf("body = %+v, want %+v", got, *tt.wantBody)
			}
		})
	}
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	sw.WriteHeader(http.StatusAccepted)
	sw.WriteHeader(http.StatusInternalServerError)

	if sw.status != http.StatusAccepted {
		t.Errorf("status = %d, want 202", sw.status)
	}
}
