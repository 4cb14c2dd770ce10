package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eventos/apiserver/config"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequestLoggingWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxLogger *zerolog.Logger
	handler := chimw.RequestID(RequestLogging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = zerolog.Ctx(r.Context())
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/1", nil))

	require.NotNil(t, ctxLogger)
	assert.NotEqual(t, zerolog.Disabled, ctxLogger.GetLevel())

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "GET", line["method"])
	assert.Equal(t, "/user/1", line["path"])
	assert.EqualValues(t, 404, line["status"])
	assert.EqualValues(t, 7, line["bytes"])
	assert.NotEmpty(t, line["request_id"])
}

func TestLoginRateLimiterDisabled(t *testing.T) {
	limiter := NewLoginRateLimiter(config.RateLimitConfig{LoginPerMinute: 0})
	assert.Nil(t, limiter)

	handler := limiter.Middleware(http.HandlerFunc(okHandler))
	for i := 0; i < 20; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestLoginRateLimiterPerClient(t *testing.T) {
	limiter := NewLoginRateLimiter(config.RateLimitConfig{LoginPerMinute: 6, LoginBurst: 2})
	require.NotNil(t, limiter)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	handler := limiter.Middleware(http.HandlerFunc(okHandler))
	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:2222").Code)

	limited := send("10.0.0.1:3333")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "10", limited.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Too many login attempts, try again later","name":"RateLimitError"}`, limited.Body.String())

	assert.Equal(t, http.StatusOK, send("10.0.0.2:1111").Code)

	now = now.Add(10 * time.Second)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:4444").Code)
}

func TestLoginRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := NewLoginRateLimiter(config.RateLimitConfig{LoginPerMinute: 10, LoginBurst: 5})
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("a"))
	assert.True(t, limiter.allow("b"))
	assert.Equal(t, 2, limiter.size())

	now = now.Add(limiterIdleTTL + limiterSweepInterval + time.Second)
	assert.True(t, limiter.allow("c"))
	assert.Equal(t, 1, limiter.size())
}

func TestTracingUsesRoutePattern(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	router := chi.NewRouter()
	router.Use(Tracing)
	router.Get("/user/{userID}", okHandler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/42", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /user/{userID}", spans[0].Name)

	attrs := map[string]any{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "/user/{userID}", attrs["http.route"])
	assert.EqualValues(t, 200, attrs["http.response.status_code"])
}
