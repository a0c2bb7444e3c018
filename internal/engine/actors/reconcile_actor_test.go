package actors

import (
	stdctx "context"
	"sync"
	"testing"
	"time"

	"kick-haven/internal/forum"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuditor struct {
	mu       sync.Mutex
	calls    map[uuid.UUID]int
	failures map[uuid.UUID]error
}

func newFakeAuditor() *fakeAuditor {
	return &fakeAuditor{calls: make(map[uuid.UUID]int), failures: make(map[uuid.UUID]error)}
}

func (f *fakeAuditor) Recompute(ctx stdctx.Context, id uuid.UUID) (*forum.AuditResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err := f.failures[id]; err != nil {
		return nil, err
	}
	return &forum.AuditResult{
		TargetID: id,
		Before:   models.Counters{Upvotes: 2},
		After:    models.Counters{Upvotes: 1},
		Repaired: true,
	}, nil
}

func (f *fakeAuditor) callCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func spawnReconciler(t *testing.T, auditor Recomputer) (*actor.ActorSystem, *actor.PID) {
	t.Helper()
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewReconcileActor(auditor, time.Second)
	})
	return system, system.Root.Spawn(props)
}

func stats(t *testing.T, system *actor.ActorSystem, pid *actor.PID) ReconcileStats {
	t.Helper()
	result, err := system.Root.RequestFuture(pid, &GetStatsMsg{}, 5*time.Second).Result()
	require.NoError(t, err)
	s, ok := result.(ReconcileStats)
	require.True(t, ok)
	return s
}

func TestReconcileTargetResponds(t *testing.T) {
	auditor := newFakeAuditor()
	system, pid := spawnReconciler(t, auditor)

	target := uuid.New()
	result, err := system.Root.RequestFuture(pid, &ReconcileTargetMsg{TargetID: target}, 5*time.Second).Result()
	require.NoError(t, err)
	audit, ok := result.(*forum.AuditResult)
	require.True(t, ok)
	assert.True(t, audit.Repaired)

	missing := uuid.New()
	auditor.failures[missing] = utils.NewNotFoundError("Target not found.")
	result, err = system.Root.RequestFuture(pid, &ReconcileTargetMsg{TargetID: missing}, 5*time.Second).Result()
	require.NoError(t, err)
	appErr, ok := result.(*utils.AppError)
	require.True(t, ok)
	assert.Equal(t, utils.ErrNotFound, appErr.Code)

	s := stats(t, system, pid)
	assert.Equal(t, int64(1), s.Reconciled)
	assert.Equal(t, int64(1), s.Repaired)
	assert.Equal(t, int64(1), s.Failed)
}

func TestSweepRetriesTransientFailures(t *testing.T) {
	auditor := newFakeAuditor()
	system, pid := spawnReconciler(t, auditor)

	ok, flaky, gone := uuid.New(), uuid.New(), uuid.New()
	auditor.failures[flaky] = utils.NewUnavailableError("count votes", stdctx.DeadlineExceeded)
	auditor.failures[gone] = utils.NewNotFoundError("Target not found.")

	for _, id := range []uuid.UUID{ok, flaky, gone, ok} {
		system.Root.Send(pid, &MarkDirtyMsg{TargetID: id})
	}
	assert.Equal(t, 3, stats(t, system, pid).Pending)

	system.Root.Send(pid, &SweepMsg{})
	s := stats(t, system, pid)
	assert.Equal(t, 1, s.Pending, "only the transient failure stays queued")
	assert.False(t, s.LastSweep.IsZero())

	auditor.mu.Lock()
	delete(auditor.failures, flaky)
	auditor.mu.Unlock()
	system.Root.Send(pid, &SweepMsg{})
	assert.Equal(t, 0, stats(t, system, pid).Pending)
	assert.Equal(t, 2, auditor.callCount(flaky))
	assert.Equal(t, 1, auditor.callCount(ok))
}
