package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsSampled())
}

func TestConfig_UseTLS(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"production forces tls", Config{Environment: "production", Insecure: true}, true},
		{"staging forces tls", Config{Environment: "staging", Insecure: true}, true},
		{"development insecure", Config{Environment: "development", Insecure: true}, false},
		{"development default", Config{Environment: "development"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.useTLS())
		})
	}
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, NewSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, NewSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, NewSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestHTTPMiddleware_PassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		assert.NotNil(t, c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNewResource_TagsNetwork(t *testing.T) {
	res, err := newResource(context.Background(), Config{Environment: "test", Network: "testnet"})
	require.NoError(t, err)

	v, ok := res.Set().Value(attribute.Key("ton.network"))
	require.True(t, ok)
	assert.Equal(t, "testnet", v.AsString())
}

func TestExporterOptions(t *testing.T) {
	assert.Len(t, exporterOptions(Config{CollectorURL: "otel:4317", Environment: "development", Insecure: true}), 2)
	assert.Len(t, exporterOptions(Config{CollectorURL: "otel:4317", Environment: "production"}), 2)
}
