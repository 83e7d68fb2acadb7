package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingPushAndFillBuf(t *testing.T) {
	r := NewRing(16)
	r.Push([]complex64{1, 2, 3, 4})

	dst := make([]complex64, 4)
	err := r.FillBuf(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, []complex64{1, 2, 3, 4}, dst)
	assert.Equal(t, 0, r.Len())
}

func TestRingOverrunDropsOldest(t *testing.T) {
	r := NewRing(4)
	r.Push([]complex64{1, 2, 3, 4, 5, 6}) // overruns by 2

	dst := make([]complex64, 4)
	err := r.FillBuf(context.Background(), dst)
	require.NoError(t, err)
	assert.Equal(t, []complex64{3, 4, 5, 6}, dst)
}

func TestRingFillBufBlocksUntilDataArrives(t *testing.T) {
	r := NewRing(16)
	dst := make([]complex64, 4)
	done := make(chan error, 1)
	go func() {
		done <- r.FillBuf(context.Background(), dst)
	}()

	select {
	case <-done:
		t.Fatal("FillBuf returned before data was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	r.Push([]complex64{1, 2, 3, 4})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("FillBuf did not unblock after Push")
	}
	assert.Equal(t, []complex64{1, 2, 3, 4}, dst)
}

func TestRingFillBufRespectsCancellation(t *testing.T) {
	r := NewRing(16)
	ctx, cancel := context.WithCancel(context.Background())
	dst := make([]complex64, 4)
	done := make(chan error, 1)
	go func() {
		done <- r.FillBuf(ctx, dst)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	r.WakeAll()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("FillBuf did not observe cancellation")
	}
}

func TestRingPartialFillAccumulatesAcrossPushes(t *testing.T) {
	r := NewRing(16)
	dst := make([]complex64, 6)
	done := make(chan error, 1)
	go func() {
		done <- r.FillBuf(context.Background(), dst)
	}()

	time.Sleep(5 * time.Millisecond)
	r.Push([]complex64{1, 2, 3})
	time.Sleep(5 * time.Millisecond)
	r.Push([]complex64{4, 5, 6})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("FillBuf never completed")
	}
	assert.Equal(t, []complex64{1, 2, 3, 4, 5, 6}, dst)
}
