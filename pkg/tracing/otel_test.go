package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerWithoutEndpointIsNoop(t *testing.T) {
	tr, err := NewTracer(Config{ServiceName: "bindopt"})
	require.NoError(t, err)

	ctx, span := tr.StartRunSpan(context.Background(), "run-1", 4, 10)
	AddSpanAttributes(span, map[string]interface{}{"rows": 4, "objective": "min", "other": 1.5})
	RecordSpanError(span, errors.New("oracle down"))
	span.End()

	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNilTracerIsUsable(t *testing.T) {
	var tr *Tracer
	_, span := tr.StartGenerationSpan(context.Background(), 3)
	RecordSpanSuccess(span)
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))
}
