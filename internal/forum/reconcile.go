package forum

import (
	"context"

	"kick-haven/internal/database"
	"kick-haven/internal/models"
	"kick-haven/internal/utils"

	"github.com/google/uuid"
)

// AuditResult reports a recompute of one target.
type AuditResult struct {
	TargetID uuid.UUID       `json:"targetId"`
	Before   models.Counters `json:"before"`
	After    models.Counters `json:"after"`
	Repaired bool            `json:"repaired"`
}

// CounterAuditor recomputes stored counters from live votes and comments.
type CounterAuditor struct {
	store   database.Store
	metrics *utils.MetricsCollector
}

func NewCounterAuditor(store database.Store, metrics *utils.MetricsCollector) *CounterAuditor {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &CounterAuditor{store: store, metrics: metrics}
}

// Recompute rewrites the counters of targetID when they differ from the live
// counts. A target that no longer exists is reported as NotFound.
func (a *CounterAuditor) Recompute(ctx context.Context, targetID uuid.UUID) (*AuditResult, error) {
	var result *AuditResult
	err := a.store.RunInTx(ctx, func(ctx context.Context) error {
		target, err := a.store.LockContent(ctx, targetID)
		if err != nil {
			return err
		}
		up, down, err := a.store.CountVotes(ctx, targetID)
		if err != nil {
			return err
		}
		live := models.Counters{Upvotes: up, Downvotes: down}
		if target.IsRoot {
			if live.CommentCount, err = a.store.CountComments(ctx, targetID); err != nil {
				return err
			}
		}

		result = &AuditResult{TargetID: targetID, Before: target.Counters(), After: live}
		if result.Before == live {
			return nil
		}
		result.Repaired = true
		return a.store.SetCounters(ctx, targetID, live)
	})
	if err != nil {
		return nil, err
	}
	a.metrics.IncrementReconciles(result.Repaired)
	return result, nil
}

// ParseTargetID validates a target id taken from a request.
func ParseTargetID(raw string) (uuid.UUID, error) {
	return parseID(raw, msgInvalidTargetID)
}
