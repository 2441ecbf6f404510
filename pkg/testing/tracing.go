package testing

import (
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
)

// SetupMockTracer installs a mock tracer as the global tracer. Returns the
// tracer so you can inspect the finished spans.
func SetupMockTracer() (tracer *mocktracer.MockTracer, restore func()) {
	prev := opentracing.GlobalTracer()
	tracer = mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	return tracer, func() {
		opentracing.SetGlobalTracer(prev)
	}
}
