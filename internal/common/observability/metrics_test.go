package observability

import (
	"context"
	"testing"
	"time"

	"oracle-worker/internal/common/logger"

	"github.com/stretchr/testify/assert"
)

func TestObservability_RecordsWithoutPanicking(t *testing.T) {
	o := New("oracle-worker-test", logger.NewTestLogger(t))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		o.RecordJobProcessed(ctx, "completed")
		o.RecordJobDuration(ctx, 150*time.Millisecond, "completed")
		o.RecordStage(ctx, "generating", 90*time.Millisecond)
	})
	assert.NoError(t, o.Shutdown(ctx))
}

func TestObservability_NilIsNoOp(t *testing.T) {
	var o *Observability
	ctx := context.Background()

	assert.NotPanics(t, func() {
		o.RecordJobProcessed(ctx, "failed")
		o.RecordJobDuration(ctx, time.Second, "failed")
		o.RecordStage(ctx, "persisting", time.Second)
	})
	assert.NoError(t, o.Shutdown(ctx))
}
