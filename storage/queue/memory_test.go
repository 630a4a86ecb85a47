package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssotoa70/mediasearch/engine/domain"
)

func TestMemoryEnqueueAndConsume(t *testing.T) {
	m := NewMemory(4)
	require.NoError(t, m.Enqueue(context.Background(), domain.TranscriptionJob{JobID: "j1"}))

	var got atomic.Value
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_ = m.Consume(ctx, 1, time.Second, func(_ context.Context, job domain.TranscriptionJob) error {
		got.Store(job.JobID)
		cancel()
		return nil
	})

	require.NotNil(t, got.Load())
	assert.Equal(t, domain.JobID("j1"), got.Load())
}

func TestMemoryEnqueueDelayedDelivers(t *testing.T) {
	m := NewMemory(4)
	require.NoError(t, m.EnqueueDelayed(context.Background(), domain.TranscriptionJob{JobID: "j2"}, 20*time.Millisecond))

	var count int32
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_ = m.Consume(ctx, 1, time.Second, func(_ context.Context, job domain.TranscriptionJob) error {
		if job.JobID == "j2" {
			atomic.AddInt32(&count, 1)
			cancel()
		}
		return nil
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestMemoryMoveToDLQRecordsItem(t *testing.T) {
	m := NewMemory(4)
	require.NoError(t, m.MoveToDLQ(context.Background(), domain.TranscriptionJob{JobID: "j3"}, domain.DLQItem{DLQID: "d1"}))
	items := m.DLQItems()
	require.Len(t, items, 1)
	assert.Equal(t, "d1", items[0].DLQID)
}
