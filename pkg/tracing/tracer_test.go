package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/stretchr/testify/require"
)

func TestTracer(t *testing.T) {
	mt := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(mt)
	defer opentracing.SetGlobalTracer(prev)

	tr := NewTracer("migrations", "Applier")

	t.Run("tags the package and component", func(t *testing.T) {
		mt.Reset()
		span, ctx := tr.StartSpan(context.Background(), "Apply")
		require.Equal(t, span, opentracing.SpanFromContext(ctx))
		tr.FinishSpan(span, nil)

		finished := mt.FinishedSpans()
		require.Len(t, finished, 1)
		require.Equal(t, "Apply", finished[0].OperationName)
		require.Equal(t, "migrations", finished[0].Tag("pkg.name"))
		require.Equal(t, "Applier", finished[0].Tag("pkg.component"))
		require.Nil(t, finished[0].Tag("error"))
	})

	t.Run("marks failed spans", func(t *testing.T) {
		mt.Reset()
		span, _ := tr.StartSpan(context.Background(), "applyUnit")
		tr.FinishSpan(span, errors.New("integrity error"))

		finished := mt.FinishedSpans()
		require.Len(t, finished, 1)
		require.Equal(t, true, finished[0].Tag("error"))
		require.Equal(t, "integrity error", finished[0].Logs()[0].Fields[0].ValueString)
	})

	t.Run("nil spans are ignored", func(t *testing.T) {
		require.NotPanics(t, func() { tr.FinishSpan(nil, errors.New("boom")) })
	})
}
