package rigsolve

import (
	"bytes"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadPool_NilRunsInline(t *testing.T) {
	var p *ThreadPool
	assert.Equal(t, 1, p.Workers())

	calls := 0
	p.ParallelFor(1000, func(start, end int) {
		calls++
		assert.Equal(t, [2]int{0, 1000}, [2]int{start, end})
	})
	assert.Equal(t, 1, calls)

	assert.NotPanics(t, p.Close)
}

func TestThreadPool_ParallelForCovers(t *testing.T) {
	p := NewThreadPool(4)
	defer p.Close()

	seen := make([]int32, 5000)
	p.ParallelFor(len(seen), func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, n := range seen {
		require.Equal(t, int32(1), n, "index %d visit count", i)
	}
}

func TestThreadPool_ParallelForEmpty(t *testing.T) {
	p := NewThreadPool(2)
	defer p.Close()

	p.ParallelFor(0, func(start, end int) {
		t.Error("fn called for empty range")
	})
}

func TestThreadPool_AfterCloseStillComputes(t *testing.T) {
	p := NewThreadPool(4)
	p.Close()

	var total atomic.Int64
	p.ParallelFor(1000, func(start, end int) { total.Add(int64(end - start)) })
	assert.Equal(t, int64(1000), total.Load())
}

func TestThreadPool_LogsPartitionAtDebug(t *testing.T) {
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	p := NewThreadPool(4)
	defer p.Close()
	p.ParallelFor(5000, func(start, end int) {})

	out := buf.String()
	assert.Contains(t, out, "rigsolve: parallel ranges")
	assert.Contains(t, out, "workers=4")
	assert.Contains(t, out, "backlog=")

	// Nothing is logged when Debug is disabled.
	buf.Reset()
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	p.ParallelFor(5000, func(start, end int) {})
	assert.Empty(t, buf.String())
}

func TestSharedThreadPool(t *testing.T) {
	a := SharedThreadPool()
	require.NotNil(t, a)
	assert.Same(t, a, SharedThreadPool(), "one lazily created pool")
	assert.GreaterOrEqual(t, a.Workers(), 1)
}
