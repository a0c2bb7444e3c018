package actors

import (
	stdctx "context"
	"fmt"
	"time"

	"kick-haven/internal/forum"
	"kick-haven/internal/logging"
	"kick-haven/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Message types for ReconcileActor
type (
	// MarkDirtyMsg queues a target for the next sweep.
	MarkDirtyMsg struct {
		TargetID uuid.UUID
	}

	// ReconcileTargetMsg recomputes one target now. The actor responds with
	// *forum.AuditResult or *utils.AppError.
	ReconcileTargetMsg struct {
		TargetID uuid.UUID
	}

	// SweepMsg recomputes every queued target.
	SweepMsg struct{}

	// GetStatsMsg is answered with ReconcileStats.
	GetStatsMsg struct{}
)

// ReconcileStats summarises the reconciler's work since start.
type ReconcileStats struct {
	Pending    int       `json:"pending"`
	Reconciled int64     `json:"reconciled"`
	Repaired   int64     `json:"repaired"`
	Failed     int64     `json:"failed"`
	LastSweep  time.Time `json:"lastSweep"`
}

// Recomputer rewrites the counters of one target from live data.
type Recomputer interface {
	Recompute(ctx stdctx.Context, targetID uuid.UUID) (*forum.AuditResult, error)
}

// ReconcileActor owns the set of targets whose counters may have drifted.
// Work is processed one message at a time, so two recomputes of the same
// target never overlap.
type ReconcileActor struct {
	auditor   Recomputer
	opTimeout time.Duration
	dirty     map[uuid.UUID]struct{}
	stats     ReconcileStats
}

func NewReconcileActor(auditor Recomputer, opTimeout time.Duration) actor.Actor {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &ReconcileActor{
		auditor:   auditor,
		opTimeout: opTimeout,
		dirty:     make(map[uuid.UUID]struct{}),
	}
}

func (a *ReconcileActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		logging.Debug().Str("pid", context.Self().String()).Msg("reconcile actor started")

	case *MarkDirtyMsg:
		a.dirty[msg.TargetID] = struct{}{}

	case *ReconcileTargetMsg:
		result, err := a.recompute(msg.TargetID)
		if err != nil {
			context.Respond(utils.AsAppError(err))
			return
		}
		delete(a.dirty, msg.TargetID)
		context.Respond(result)

	case *SweepMsg:
		a.handleSweep()

	case *GetStatsMsg:
		stats := a.stats
		stats.Pending = len(a.dirty)
		context.Respond(stats)

	case *actor.Stopping, *actor.Stopped, *actor.Restarting:

	default:
		logging.Warn().Str("type", fmt.Sprintf("%T", msg)).Msg("ReconcileActor: unknown message type")
	}
}

func (a *ReconcileActor) handleSweep() {
	a.stats.LastSweep = time.Now().UTC()
	for id := range a.dirty {
		_, err := a.recompute(id)
		switch {
		case err == nil, utils.IsErrorCode(err, utils.ErrNotFound):
			// deleted targets have nothing left to repair
			delete(a.dirty, id)
		default:
			logging.Warn().Err(err).Str("target", id.String()).Msg("reconcile failed, will retry on next sweep")
		}
	}
}

func (a *ReconcileActor) recompute(id uuid.UUID) (*forum.AuditResult, error) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.opTimeout)
	defer cancel()

	result, err := a.auditor.Recompute(ctx, id)
	if err != nil {
		a.stats.Failed++
		return nil, err
	}
	a.stats.Reconciled++
	if result.Repaired {
		a.stats.Repaired++
		logging.Info().
			Str("target", id.String()).
			Interface("before", result.Before).
			Interface("after", result.After).
			Msg("counters repaired")
	}
	return result, nil
}
