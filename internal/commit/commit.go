// Package commit turns a confirmed wizard session into exactly one stored
// match.
package commit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felipefinhane/poker-ranking/internal/alloc"
	"github.com/felipefinhane/poker-ranking/internal/wizard"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrDuplicate is returned by a MatchWriter when the idempotency token was
// already applied. matchID may still carry the existing match.
var ErrDuplicate = errors.New("idempotency token already processed")

// MatchWriter stores a match and all its participant rows atomically.
type MatchWriter interface {
	CreateMatchWithParticipants(ctx context.Context, tournamentID string, occurredAt time.Time, token string, rows []alloc.Row) (matchID string, err error)
}

// Recorder receives one observation per commit attempt.
type Recorder interface {
	ObserveCommit(outcome string)
}

type Coordinator struct {
	writer   MatchWriter
	store    wizard.Store
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
	newToken func() string
	recorder Recorder
}

type Option func(*Coordinator)

// WithTokenSource replaces uuid.NewString, mostly for tests.
func WithTokenSource(fn func() string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newToken = fn
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithBreakerSettings overrides the default breaker around the writer.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Coordinator) { c.breaker = gobreaker.NewCircuitBreaker(st) }
}

func New(writer MatchWriter, store wizard.Store, log *zap.Logger, opts ...Option) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		writer:   writer,
		store:    store,
		log:      log.Named("commit"),
		newToken: uuid.NewString,
	}
	c.breaker = gobreaker.NewCircuitBreaker(DefaultBreakerSettings(c.log))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultBreakerSettings trips after 5 consecutive storage failures and
// probes again after 30 seconds. Duplicates count as successes.
func DefaultBreakerSettings(log *zap.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "match-writer",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDuplicate)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
}

// Rows builds the ordered match rows of a confirmed session.
func Rows(s *wizard.Session) ([]alloc.Row, error) {
	if s == nil || s.State != wizard.StateConfirming || s.Confirming == nil {
		return nil, fmt.Errorf("%w: session is not confirming", wizard.ErrValidation)
	}
	rows := s.Confirming.Rows()
	if err := alloc.ValidateRows(rows); err != nil {
		return nil, fmt.Errorf("%w: %v", wizard.ErrValidation, err)
	}
	return rows, nil
}

// Commit writes the session as a match under a fresh idempotency token. On
// success, or when the store reports the token as already applied, the
// session is cleared. A session already marked as committed is not written
// again. Any other failure leaves the session in place and
// returns an error wrapping wizard.ErrStorage.
func (c *Coordinator) Commit(ctx context.Context, s *wizard.Session) (wizard.CommitResult, error) {
	rows, err := Rows(s)
	if err != nil {
		c.observe("invalid")
		return wizard.CommitResult{}, err
	}

	if s.Confirming.Committed {
		c.log.Info("Session already committed",
			zap.String("context_id", s.ContextID),
			zap.String("actor_id", s.ActorID),
			zap.String("match_id", s.Confirming.MatchID),
		)
		res := wizard.CommitResult{MatchID: s.Confirming.MatchID, Duplicate: true}
		c.clear(ctx, s, res.MatchID)
		c.observe("duplicate")
		return res, nil
	}

	token := c.newToken()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.writer.CreateMatchWithParticipants(ctx, s.TournamentID, s.OccurredAt, token, rows)
	})
	matchID, _ := out.(string)

	var res wizard.CommitResult
	switch {
	case err == nil:
		res = wizard.CommitResult{MatchID: matchID}
	case errors.Is(err, ErrDuplicate):
		c.log.Info("Match already stored for token",
			zap.String("token", token),
			zap.String("match_id", matchID),
		)
		res = wizard.CommitResult{MatchID: matchID, Duplicate: true}
	default:
		c.observe("failed")
		return wizard.CommitResult{}, fmt.Errorf("%w: %v", wizard.ErrStorage, err)
	}

	c.clear(ctx, s, res.MatchID)

	if res.Duplicate {
		c.observe("duplicate")
	} else {
		c.observe("created")
	}
	return res, nil
}

// clear removes the committed session. When that fails the session is saved
// as committed instead, so a repeated confirmation cannot store the match
// again.
func (c *Coordinator) clear(ctx context.Context, s *wizard.Session, matchID string) {
	err := c.store.Clear(ctx, s.ContextID, s.ActorID)
	if err == nil {
		return
	}
	c.log.Error("Failed to clear session after commit",
		zap.String("context_id", s.ContextID),
		zap.String("actor_id", s.ActorID),
		zap.String("match_id", matchID),
		zap.Error(err),
	)
	if s.Confirming.Committed {
		return
	}

	marked := s.Clone()
	marked.Confirming.Committed = true
	marked.Confirming.MatchID = matchID
	if _, err := c.store.Save(ctx, marked); err != nil {
		c.log.Error("Failed to mark session as committed",
			zap.String("context_id", s.ContextID),
			zap.String("actor_id", s.ActorID),
			zap.String("match_id", matchID),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) observe(outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveCommit(outcome)
	}
}
