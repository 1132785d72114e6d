package gossip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/octoreflex/octoreflex/pkg/errors"
)

// fakeClock is an adjustable clock for TTL tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureEmitter records every emitted event.
type captureEmitter struct {
	mu     sync.Mutex
	events []PartitionEvent
}

func (e *captureEmitter) Emit(event PartitionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *captureEmitter) Events() []PartitionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PartitionEvent, len(e.events))
	copy(out, e.events)
	return out
}

func newTestEvaluator(t *testing.T, cfg Config) (*Evaluator, *fakeClock, *captureEmitter) {
	t.Helper()
	emitter := &captureEmitter{}
	q, err := NewEvaluator(cfg, emitter, nil, nil)
	require.NoError(t, err)

	clock := newFakeClock()
	q.now = clock.Now
	return q, clock, emitter
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero quorum min", Config{QuorumMin: 0, ObservationTTL: time.Second}},
		{"zero ttl", Config{QuorumMin: 1, ObservationTTL: 0}},
		{"negative peers", Config{QuorumMin: 1, ObservationTTL: time.Second, TotalPeers: -1}},
		{"threshold above one", Config{QuorumMin: 1, ObservationTTL: time.Second, PartitionThreshold: 1.5}},
		{"fraction above one", Config{QuorumMin: 1, ObservationTTL: time.Second, QuorumFraction: 1.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEvaluator(tc.cfg, nil, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeConfigInvalid))
		})
	}
}

func TestSignal_BelowAndAtQuorum(t *testing.T) {
	q, _, _ := newTestEvaluator(t, Config{QuorumMin: 2, ObservationTTL: 30 * time.Second, TotalPeers: 5})

	assert.Equal(t, 0.0, q.Signal("proc-a"))

	q.Record("proc-a", "node-1", 4.2)
	assert.Equal(t, 0.0, q.Signal("proc-a"))

	q.Record("proc-a", "node-2", 3.8)
	assert.Equal(t, 1.0, q.Signal("proc-a"))
}

func TestRecord_IdempotentPerNode(t *testing.T) {
	q, _, _ := newTestEvaluator(t, Config{QuorumMin: 2, ObservationTTL: 30 * time.Second, TotalPeers: 5})

	// Re-reports from the same node replace, never append.
	q.Record("proc-a", "node-1", 4.2)
	q.Record("proc-a", "node-1", 5.0)
	q.Record("proc-a", "node-1", 6.1)

	assert.Equal(t, 0.0, q.Signal("proc-a"))
	obs := q.LiveObservations("proc-a")
	require.Len(t, obs, 1)
	assert.Equal(t, 6.1, obs[0].Score)
}

func TestSignal_ObservationsExpire(t *testing.T) {
	q, clock, _ := newTestEvaluator(t, Config{QuorumMin: 2, ObservationTTL: 30 * time.Second, TotalPeers: 5})

	q.Record("proc-a", "node-1", 4.2)
	clock.Advance(20 * time.Second)
	q.Record("proc-a", "node-2", 3.8)
	assert.Equal(t, 1.0, q.Signal("proc-a"))

	// node-1's observation is now 31s old, node-2's only 11s.
	clock.Advance(11 * time.Second)
	assert.Equal(t, 0.0, q.Signal("proc-a"))
	assert.Len(t, q.LiveObservations("proc-a"), 1)
}

func TestSignal_ExpiryBoundaryIsExclusive(t *testing.T) {
	q, clock, _ := newTestEvaluator(t, Config{QuorumMin: 1, ObservationTTL: 30 * time.Second})

	q.Record("proc-a", "node-1", 4.2)

	clock.Advance(30*time.Second - time.Nanosecond)
	assert.Equal(t, 1.0, q.Signal("proc-a"))

	// Age == TTL is expired.
	clock.Advance(time.Nanosecond)
	assert.Equal(t, 0.0, q.Signal("proc-a"))
}

func TestRecord_RefreshExtendsLifetime(t *testing.T) {
	q, clock, _ := newTestEvaluator(t, Config{QuorumMin: 1, ObservationTTL: 30 * time.Second})

	q.Record("proc-a", "node-1", 4.2)
	clock.Advance(25 * time.Second)
	q.Record("proc-a", "node-1", 4.5)

	clock.Advance(25 * time.Second)
	assert.Equal(t, 1.0, q.Signal("proc-a"))
}

func TestSweepOnce_RemovesExpiredAndEmptyRecords(t *testing.T) {
	q, clock, _ := newTestEvaluator(t, Config{QuorumMin: 1, ObservationTTL: 30 * time.Second})

	q.Record("proc-a", "node-1", 4.2)
	q.Record("proc-a", "node-2", 3.1)
	q.Record("proc-b", "node-1", 5.5)

	clock.Advance(31 * time.Second)
	q.Record("proc-a", "node-3", 2.2)

	q.sweepOnce()

	q.mu.RLock()
	defer q.mu.RUnlock()
	require.Contains(t, q.records, "proc-a")
	assert.Len(t, q.records["proc-a"], 1)
	assert.NotContains(t, q.records, "proc-b")
}

func TestRunSweeper_StopsOnContextCancel(t *testing.T) {
	q, _, _ := newTestEvaluator(t, Config{
		QuorumMin:      1,
		ObservationTTL: 30 * time.Second,
		SweepInterval:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.RunSweeper(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestUpdatePeerReachability_PartitionWalk(t *testing.T) {
	q, _, emitter := newTestEvaluator(t, Config{
		QuorumMin:          5,
		ObservationTTL:     30 * time.Second,
		TotalPeers:         10,
		PartitionThreshold: 0.5,
		QuorumFraction:     0.5,
	})

	mode, min, reachable := q.PartitionState()
	assert.Equal(t, ModeNormal, mode)
	assert.Equal(t, 5, min)
	assert.Equal(t, 10, reachable)

	// Still above threshold: no transition, no event.
	q.UpdatePeerReachability(6)
	mode, min, _ = q.PartitionState()
	assert.Equal(t, ModeNormal, mode)
	assert.Equal(t, 5, min)
	assert.Empty(t, emitter.Events())

	// 4/10 < 0.5: Isolated, effective min floor(4·0.5) = 2.
	q.UpdatePeerReachability(4)
	mode, min, reachable = q.PartitionState()
	assert.Equal(t, ModeIsolated, mode)
	assert.Equal(t, 2, min)
	assert.Equal(t, 4, reachable)

	events := emitter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ModeIsolated, events[0].Mode)
	assert.Equal(t, 4, events[0].ReachablePeers)
	assert.Equal(t, 10, events[0].TotalPeers)
	assert.Equal(t, 2, events[0].EffectiveMin)
	assert.NotEmpty(t, events[0].ID)

	// Identical update changes nothing and emits nothing.
	q.UpdatePeerReachability(4)
	assert.Len(t, emitter.Events(), 1)

	// Recovery emits one Normal transition.
	q.UpdatePeerReachability(9)
	mode, min, _ = q.PartitionState()
	assert.Equal(t, ModeNormal, mode)
	assert.Equal(t, 5, min)
	require.Len(t, emitter.Events(), 2)
	assert.Equal(t, ModeNormal, emitter.Events()[1].Mode)
}

func TestUpdatePeerReachability_ReducedQuorumApplies(t *testing.T) {
	q, _, _ := newTestEvaluator(t, Config{
		QuorumMin:          5,
		ObservationTTL:     30 * time.Second,
		TotalPeers:         10,
		PartitionThreshold: 0.5,
		QuorumFraction:     0.5,
	})

	q.Record("proc-a", "node-1", 4.0)
	q.Record("proc-a", "node-2", 4.1)
	assert.Equal(t, 0.0, q.Signal("proc-a"))

	q.UpdatePeerReachability(4)
	assert.Equal(t, 1.0, q.Signal("proc-a"))
}

func TestUpdatePeerReachability_ClampsOutOfRange(t *testing.T) {
	q, _, _ := newTestEvaluator(t, Config{
		QuorumMin:          2,
		ObservationTTL:     30 * time.Second,
		TotalPeers:         4,
		PartitionThreshold: 0.5,
		QuorumFraction:     0.5,
	})

	q.UpdatePeerReachability(99)
	_, _, reachable := q.PartitionState()
	assert.Equal(t, 4, reachable)

	q.UpdatePeerReachability(-3)
	mode, min, reachable := q.PartitionState()
	assert.Equal(t, ModeIsolated, mode)
	assert.Equal(t, 1, min)
	assert.Equal(t, 0, reachable)
}

func TestSignal_SingleNodeDeployment(t *testing.T) {
	// With no peers the configured minimum is overridden to 1: the node's
	// own observation is the whole swarm.
	q, _, emitter := newTestEvaluator(t, Config{QuorumMin: 2, ObservationTTL: 30 * time.Second, TotalPeers: 0})

	mode, min, _ := q.PartitionState()
	assert.Equal(t, ModeNormal, mode)
	assert.Equal(t, 1, min)

	q.Record("proc-a", "node-self", 4.2)
	assert.Equal(t, 1.0, q.Signal("proc-a"))

	q.UpdatePeerReachability(0)
	mode, _, _ = q.PartitionState()
	assert.Equal(t, ModeNormal, mode)
	assert.Empty(t, emitter.Events())
}

func TestEvaluator_ConcurrentAccess(t *testing.T) {
	q, _, _ := newTestEvaluator(t, Config{
		QuorumMin:          2,
		ObservationTTL:     30 * time.Second,
		TotalPeers:         10,
		PartitionThreshold: 0.5,
		QuorumFraction:     0.5,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				switch n % 4 {
				case 0:
					q.Record("proc-a", "node-1", float64(j))
				case 1:
					q.Signal("proc-a")
				case 2:
					q.UpdatePeerReachability(j % 11)
				case 3:
					q.sweepOnce()
				}
			}
		}(i)
	}
	wg.Wait()
}
