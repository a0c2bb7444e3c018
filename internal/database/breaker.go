package database

import (
	"context"
	"errors"
	"time"

	"kick-haven/internal/logging"
	"kick-haven/internal/utils"

	"github.com/lib/pq"
	"github.com/sony/gobreaker/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// guard bounds every storage call with a timeout and a circuit breaker, and
// turns raw driver errors into ServiceUnavailable.
type guard struct {
	cb      *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
}

func newGuard(name string, timeout time.Duration) *guard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Domain answers and aborted-but-retryable transactions say nothing
		// about the health of the store.
		IsSuccessful: func(err error) bool {
			return err == nil || isDomainError(err) || isTransientTransaction(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}
	return &guard{cb: gobreaker.NewCircuitBreaker[struct{}](settings), timeout: timeout}
}

// do runs fn under the breaker. op names the operation in the error message.
func (g *guard) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, rejectBadInput(fn(ctx))
	})
	return classify(op, err)
}

func isDomainError(err error) bool {
	return utils.IsErrorCode(err, utils.ErrNotFound) ||
		utils.IsErrorCode(err, utils.ErrConflict) ||
		utils.IsErrorCode(err, utils.ErrInvalidArgument)
}

// transientTransactionLabel marks a transaction the server aborted because of a
// write conflict or election. Retrying it is expected to succeed.
const transientTransactionLabel = "TransientTransactionError"

func isTransientTransaction(err error) bool {
	var serverErr mongo.ServerError
	return errors.As(err, &serverErr) && serverErr.HasErrorLabel(transientTransactionLabel)
}

// rejectBadInput turns Postgres data exceptions (class 22: value too long,
// out of range, bad encoding) into InvalidArgument so a client sending bad
// input cannot open the breaker for everyone else.
func rejectBadInput(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "22" {
		return utils.NewAppError(utils.ErrInvalidArgument, "Invalid input: a value is too long or out of range.", err)
	}
	return err
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return utils.NewUnavailableError(op, err)
}
