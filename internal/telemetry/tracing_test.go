package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracerProvider(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), "creator-crawler-test")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, tp.Shutdown(context.Background()))
	})

	_, span := Tracer().Start(context.Background(), "probe")
	require.True(t, span.SpanContext().IsValid())
	span.End()
}
