package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName       = "board-api"
	boardSpanName    = "board.fetch"
	boardEventName   = "board.fetch"
	boardEventDomain = "board"
	boardRoute       = "/api/board"
)

// boardRequestMetrics captures per-request timings for the board read path
// and emits them both as an otel span and as a structured observability log
// event carrying the trace id.
type boardRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration    time.Duration
	refreshDuration time.Duration
	encodeDuration  time.Duration
	tasksRendered   int
	dragActive      bool
	errorStage      string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger) (*boardRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, boardSpanName)
	return &boardRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveRefresh(d time.Duration) {
	if d > 0 {
		m.refreshDuration = d
	}
}

func (m *boardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *boardRequestMetrics) SetTasksRendered(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksRendered = count
}

func (m *boardRequestMetrics) SetDragActive(active bool) {
	m.dragActive = active
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and emits the observability event. It must be called
// exactly once per request.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := map[string]any{
		"http.route":        boardRoute,
		"http.status_code":  status,
		"board.total_ms":    totalMs,
		"board.tasks":       m.tasksRendered,
		"board.drag_active": m.dragActive,
	}
	if m.authDuration > 0 {
		attrs["board.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.refreshDuration > 0 {
		attrs["board.refresh_ms"] = durationToMillis(m.refreshDuration)
	}
	if m.encodeDuration > 0 {
		attrs["board.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		attrs["board.error_stage"] = m.errorStage
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", boardRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("board.total_ms", totalMs),
			attribute.Int("board.tasks", m.tasksRendered),
			attribute.Bool("board.drag_active", m.dragActive),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("board.error_stage", m.errorStage))
		}
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.AddEvent("observability.event")
	}

	if m.logger != nil {
		severityText, severityNumber := "INFO", 9
		if err != nil || m.errorStage != "" {
			severityText, severityNumber = "WARN", 13
		}
		fields := log.Fields{
			"event.name":      boardEventName,
			"event.domain":    boardEventDomain,
			"attributes":      attrs,
			"severity_text":   severityText,
			"severity_number": severityNumber,
		}
		if m.span != nil && m.span.SpanContext().HasTraceID() {
			fields["trace_id"] = m.span.SpanContext().TraceID().String()
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		m.logger.WithFields(fields).Info("observability.event")
	}

	if m.span != nil {
		m.span.End()
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
