package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "trello-api/api"
	requestSpanName    = "http.request"
	requestMetricsName = "http.request.metrics"
	metricsContextKey  = "request.metrics"
)

type requestMetrics struct {
	logger     *log.Logger
	span       trace.Span
	start      time.Time
	method     string
	route      string
	requester  string
	errorStage string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
		method: method,
		route:  route,
	}, spanCtx
}

func (m *requestMetrics) SetRequester(id string) {
	m.requester = id
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the span and writes one structured entry for the request.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))
	severity, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.request.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64("http.duration_ms", total),
		attribute.String("severity_text", severity),
	}
	if m.requester != "" {
		attrs = append(attrs, attribute.String("enduser.id", m.requester))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("error.stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent(requestMetricsName, trace.WithAttributes(attrs...))
		if status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":           m.route,
		"method":          m.method,
		"status":          status,
		"total_ms":        total,
		"severity_number": severityNumber,
	}
	if m.requester != "" {
		fields["requester"] = m.requester
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}

	entry := m.logger.WithFields(fields)
	switch severity {
	case "ERROR":
		entry.Error(requestMetricsName)
	case "WARN":
		entry.Warn(requestMetricsName)
	default:
		entry.Info(requestMetricsName)
	}
}

// RequestMetrics records a span and a log entry for every request.
func RequestMetrics(logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status, _, _ = classifyError(err)
			}
			m.SetRequester(requester(c))
			m.Log(status, err)
			return err
		}
	}
}

// markStage records where a failing request gave up.
func markStage(c echo.Context, stage string) {
	if m, ok := c.Get(metricsContextKey).(*requestMetrics); ok {
		m.SetErrorStage(stage)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case status == 0 && err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
