package priority_refresh

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ton-sweeper/sweeper_service/pkg/logger"
)

type refresherStub struct {
	mu       sync.Mutex
	owners   []string
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (r *refresherStub) Refresh(ctx context.Context, owner string) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.owners = append(r.owners, owner)
	r.mu.Unlock()
}

func (r *refresherStub) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.owners...)
	sort.Strings(out)
	return out
}

func TestWorker_RefreshAllBoundedFanOut(t *testing.T) {
	stub := &refresherStub{delay: 10 * time.Millisecond}
	owners := []string{"EQA", "EQB", "EQC", "EQD", "EQE"}
	w := NewWorker(stub, owners, time.Minute, 2, logger.NewNop())

	w.RefreshAll(context.Background())

	assert.Equal(t, owners, stub.seen())
	assert.LessOrEqual(t, stub.peak.Load(), int32(2))
}

func TestWorker_DefaultConcurrency(t *testing.T) {
	w := NewWorker(&refresherStub{}, nil, time.Minute, 0, logger.NewNop())
	assert.Equal(t, defaultConcurrency, w.concurrency)
}

func TestWorker_StartWarmsImmediately(t *testing.T) {
	stub := &refresherStub{}
	w := NewWorker(stub, []string{"EQA"}, time.Hour, 1, logger.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return len(stub.seen()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, w.Stop(ctx))
}

func TestWorker_StartRejectsBadInterval(t *testing.T) {
	w := NewWorker(&refresherStub{}, []string{"EQA"}, 0, 1, logger.NewNop())
	assert.Error(t, w.Start(context.Background()))
}
