package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupOperationLogger() (*OperationLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return NewOperationLogger(zap.New(core)), logs
}

// withActor 模拟认证中间件
func withActor(userID int64, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(contextKeyUserID, userID)
		c.Set(contextKeyRole, role)
		c.Next()
	}
}

func TestOperationLogger_Log(t *testing.T) {
	opLogger, logs := setupOperationLogger()

	r := gin.New()
	r.Use(withActor(3, "MANAGER"), opLogger.Log())
	r.PATCH("/api/v1/bookings/:id/cancel", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/api/v1/bookings/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	t.Run("写操作记录日志", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/api/v1/bookings/12/cancel",
			strings.NewReader(`{"reason":"行程变更","phone":"13900000000"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(httptest.NewRecorder(), req)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, "booking", fields["module"])
		assert.Equal(t, "cancel", fields["action"])
		assert.Equal(t, int64(12), fields["target_id"])
		assert.Equal(t, int64(3), fields["user_id"])

		body, ok := fields["request"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "行程变更", body["reason"])
		assert.Equal(t, "***", body["phone"])
	})

	t.Run("读操作不记录", func(t *testing.T) {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/bookings/12", nil))
		assert.Equal(t, 0, logs.Len())
	})
}

func TestOperationLogger_FailedRequestLogsWarn(t *testing.T) {
	opLogger, logs := setupOperationLogger()

	r := gin.New()
	r.Use(withActor(5, "USER"), opLogger.Log())
	r.POST("/api/v1/bookings", func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(`{"visit_id":1}`)))

	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "create", entries[0].ContextMap()["action"])
}

func TestOperationLogger_Anonymous(t *testing.T) {
	opLogger, logs := setupOperationLogger()

	r := gin.New()
	r.Use(opLogger.Log())
	r.POST("/api/v1/visits", func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/visits", nil))
	assert.Equal(t, 0, logs.Len())
}

func TestOperationLogger_FilterSensitiveData(t *testing.T) {
	opLogger, _ := setupOperationLogger()

	data := map[string]interface{}{
		"rooms": []interface{}{
			map[string]interface{}{"room_id": float64(1), "access_token": "x"},
		},
		"Phone": "13900000000",
	}

	filtered := opLogger.filterSensitiveData(data).(map[string]interface{})
	assert.Equal(t, "***", filtered["Phone"])
	room := filtered["rooms"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1), room["room_id"])
	assert.Equal(t, "***", room["access_token"])
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	r := gin.New()
	r.Use(Tracing(&TracingConfig{ServiceName: "test", SkipPaths: []string{"/health"}}), InjectTraceContext())
	r.GET("/api/v1/bookings/:id", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/bookings/7", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/bookings/:id", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), w.Body.String())
	assert.Contains(t, w.Header().Get("traceparent"), w.Body.String())
}
