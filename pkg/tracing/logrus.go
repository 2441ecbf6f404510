package tracing

import (
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/sirupsen/logrus"
	jaeger "github.com/uber/jaeger-client-go"
)

// SpanHook is a logrus Hook that writes log entries and their fields to the span
// of the entry context. The "unit" field is also set as a span tag so the spans
// of a migration run can be searched by unit.
type SpanHook struct{}

// Fire implements the Hook interface
func (hook *SpanHook) Fire(entry *logrus.Entry) error {
	if entry == nil || entry.Context == nil {
		return nil
	}

	span := opentracing.SpanFromContext(entry.Context)
	if span == nil {
		return nil
	}

	fields := []log.Field{
		log.String("log.msg", entry.Message),
		log.String("log.level", entry.Level.String()),
	}
	for name, data := range entry.Data {
		fields = append(fields, log.Object(name, data))
	}
	span.LogFields(fields...)

	if unit, ok := entry.Data["unit"]; ok {
		span.SetTag("migration.unit", fmt.Sprintf("%v", unit))
	}

	switch sc := span.Context().(type) {
	case jaeger.SpanContext:
		entry.Data["traceId"] = sc.TraceID().String()
		entry.Data["spanId"] = sc.SpanID().String()
	case mocktracer.MockSpanContext:
		entry.Data["traceId"] = fmt.Sprintf("%v", sc.TraceID)
		entry.Data["spanId"] = fmt.Sprintf("%v", sc.SpanID)
	}
	return nil
}

// Levels implements the Hook interface
func (hook *SpanHook) Levels() []logrus.Level {
	return logrus.AllLevels
}
