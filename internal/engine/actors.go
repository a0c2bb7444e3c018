package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"kick-haven/internal/engine/actors"
	"kick-haven/internal/forum"
	"kick-haven/internal/logging"
	"kick-haven/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// Engine hosts the background actors. Today that is the counter reconciler,
// fed by the service when a write could not be rolled back and by a periodic
// sweep.
type Engine struct {
	system         *actor.ActorSystem
	reconciler     *actor.PID
	requestTimeout time.Duration
	interval       time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ forum.Reconciler = (*Engine)(nil)

// NewEngine spawns the reconciler on system. A zero interval disables the
// periodic sweep.
func NewEngine(system *actor.ActorSystem, auditor actors.Recomputer, interval, requestTimeout time.Duration) *Engine {
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	props := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewReconcileActor(auditor, requestTimeout)
	})
	return &Engine{
		system:         system,
		reconciler:     system.Root.Spawn(props),
		requestTimeout: requestTimeout,
		interval:       interval,
		stop:           make(chan struct{}),
	}
}

// Start launches the sweep ticker.
func (e *Engine) Start() {
	if e.interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Sweep()
			case <-e.stop:
				return
			}
		}
	}()
	logging.Info().Dur("interval", e.interval).Msg("counter reconciler started")
}

// MarkDirty queues targetID for the next sweep. It never blocks.
func (e *Engine) MarkDirty(targetID uuid.UUID) {
	e.system.Root.Send(e.reconciler, &actors.MarkDirtyMsg{TargetID: targetID})
}

// Sweep asks the reconciler to process its queue now.
func (e *Engine) Sweep() {
	e.system.Root.Send(e.reconciler, &actors.SweepMsg{})
}

// Reconcile recomputes the counters of targetID and waits for the result.
func (e *Engine) Reconcile(ctx context.Context, targetID uuid.UUID) (*forum.AuditResult, error) {
	result, err := e.request(ctx, &actors.ReconcileTargetMsg{TargetID: targetID})
	if err != nil {
		return nil, err
	}
	switch v := result.(type) {
	case *forum.AuditResult:
		return v, nil
	case *utils.AppError:
		return nil, v
	default:
		return nil, utils.NewAppError(utils.ErrInternal, "Reconcile failed", fmt.Errorf("unexpected response %T", result))
	}
}

// Stats reports the reconciler's counters.
func (e *Engine) Stats(ctx context.Context) (actors.ReconcileStats, error) {
	result, err := e.request(ctx, &actors.GetStatsMsg{})
	if err != nil {
		return actors.ReconcileStats{}, err
	}
	stats, ok := result.(actors.ReconcileStats)
	if !ok {
		return actors.ReconcileStats{}, utils.NewAppError(utils.ErrInternal, "Stats failed", fmt.Errorf("unexpected response %T", result))
	}
	return stats, nil
}

func (e *Engine) request(ctx context.Context, msg interface{}) (interface{}, error) {
	timeout := e.requestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, utils.NewUnavailableError("engine request", context.DeadlineExceeded)
	}
	result, err := e.system.Root.RequestFuture(e.reconciler, msg, timeout).Result()
	if err != nil {
		return nil, utils.NewUnavailableError("engine request", err)
	}
	return result, nil
}

// Stop halts the ticker and drains the reconciler's mailbox.
func (e *Engine) Stop() {
	e.once.Do(func() {
		close(e.stop)
		e.wg.Wait()
		if err := e.system.Root.PoisonFuture(e.reconciler).Wait(); err != nil {
			logging.Warn().Err(err).Msg("reconciler did not stop cleanly")
		}
	})
}
