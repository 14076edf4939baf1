package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics_RecordStageExecution(t *testing.T) {
	m := NoopMetrics{}

	t.Run("does not panic with valid args", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordStageExecution(context.Background(), "node", "success", 100*time.Millisecond)
		})
	})

	t.Run("does not panic with fail status", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordStageExecution(context.Background(), "node", "fail", 0)
		})
	})

	t.Run("does not panic with empty node ID", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordStageExecution(context.Background(), "", "", 0)
		})
	})
}

func TestNoopMetrics_RecordStageRetry(t *testing.T) {
	m := NoopMetrics{}
	assert.NotPanics(t, func() {
		m.RecordStageRetry(context.Background(), "node", 1)
	})
}

func TestNoopMetrics_RecordPipelineRun(t *testing.T) {
	m := NoopMetrics{}

	t.Run("does not panic with success=true", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordPipelineRun(context.Background(), true, 500*time.Millisecond)
		})
	})

	t.Run("does not panic with success=false", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordPipelineRun(context.Background(), false, 100*time.Millisecond)
		})
	})
}

func TestNoopMetrics_RecordCheckpoint(t *testing.T) {
	m := NoopMetrics{}

	t.Run("does not panic with valid args", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordCheckpoint(context.Background(), "node", 1024)
		})
	})

	t.Run("does not panic with negative size", func(t *testing.T) {
		assert.NotPanics(t, func() {
			m.RecordCheckpoint(context.Background(), "node", -1)
		})
	})
}

func TestNoopSpanManager_StartRunSpan(t *testing.T) {
	sm := NoopSpanManager{}

	t.Run("returns same context", func(t *testing.T) {
		ctx := context.Background()
		newCtx, span := sm.StartRunSpan(ctx, "pipeline", "run-1")

		assert.Equal(t, ctx, newCtx, "Context should be unchanged")
		assert.NotNil(t, span, "Span should not be nil")
	})

	t.Run("span is a non-recording noop span", func(t *testing.T) {
		_, span := sm.StartRunSpan(context.Background(), "pipeline", "run-1")
		assert.False(t, span.IsRecording())
	})
}

func TestNoopSpanManager_StartStageSpan(t *testing.T) {
	sm := NoopSpanManager{}

	ctx := context.Background()
	newCtx, span := sm.StartStageSpan(ctx, "plan", "tool")

	assert.Equal(t, ctx, newCtx, "Context should be unchanged")
	assert.False(t, span.IsRecording())
}

func TestNoopSpanManager_EndSpanWithError(t *testing.T) {
	sm := NoopSpanManager{}

	t.Run("does not panic with nil span", func(t *testing.T) {
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(nil, nil)
		})
	})

	t.Run("does not panic with error", func(t *testing.T) {
		_, span := sm.StartRunSpan(context.Background(), "p", "r")
		assert.NotPanics(t, func() {
			sm.EndSpanWithError(span, errors.New("test error"))
		})
	})
}

func TestNoopSpanManager_AddSpanEvent(t *testing.T) {
	sm := NoopSpanManager{}

	assert.NotPanics(t, func() {
		sm.AddSpanEvent(context.Background(), "test_event", attribute.String("key", "value"))
	})
}

func TestNoopImplementations_FullRunShape(t *testing.T) {
	// Verifies the noop implementations survive a realistic traversal
	// shape without side effects.
	metrics := NoopMetrics{}
	spans := NoopSpanManager{}

	ctx := context.Background()
	ctx, runSpan := spans.StartRunSpan(ctx, "release", "run-123")

	for i, nodeID := range []string{"plan", "build", "deploy"} {
		stageCtx, stageSpan := spans.StartStageSpan(ctx, nodeID, "tool")

		status := "success"
		if i == 1 {
			metrics.RecordStageRetry(stageCtx, nodeID, 1)
			status = "partial_success"
		}

		metrics.RecordStageExecution(stageCtx, nodeID, status, time.Millisecond)
		metrics.RecordCheckpoint(stageCtx, nodeID, 512)
		spans.AddSpanEvent(stageCtx, "checkpoint_saved", attribute.Int64("size", 512))
		spans.EndSpanWithError(stageSpan, nil)
	}

	metrics.RecordPipelineRun(ctx, true, 100*time.Millisecond)
	spans.EndSpanWithError(runSpan, nil)
}
