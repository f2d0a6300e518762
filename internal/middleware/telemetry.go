package middleware

import (
	"log/slog"
	"time"

	"taskboard/internal/telemetry"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry opens a server span per request, records its duration and logs
// one line when it completes.
func Telemetry(p *telemetry.Provider, m *telemetry.Metrics, log *slog.Logger) gin.HandlerFunc {
	if p == nil {
		p = telemetry.Noop()
	}
	if m == nil {
		m = telemetry.NoopMetrics()
	}
	if log == nil {
		log = telemetry.Discard()
	}
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := p.Tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", c.Request.Method),
				attribute.String("http.route", route),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if ws := c.GetString(KeyWorkspaceID); ws != "" {
			span.SetAttributes(telemetry.AttrWorkspaceID.String(ws))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		elapsed := time.Since(start)
		m.RequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		))

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		log.Log(ctx, level, "request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"user_id", c.GetString(KeyUserID),
		)
	}
}
