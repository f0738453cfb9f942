// Package toggle flips like, bookmark and follow edges and keeps the
// denormalized counter on the target in step with edge existence.
package toggle

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"graphfeed/backend/internal/constants"
	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
	"graphfeed/backend/pkg/logger"
)

// Kind is a toggle-style relation
type Kind string

const (
	Like     Kind = "like"
	Bookmark Kind = "bookmark"
	Follow   Kind = "follow"
)

type relation struct {
	edge    store.EdgeKind
	actor   store.Label
	target  store.Label
	counter store.Counter
}

var relations = map[Kind]relation{
	Like:     {edge: store.EdgeLiked, actor: store.LabelUser, target: store.LabelPost, counter: store.CounterLikes},
	Bookmark: {edge: store.EdgeBookmarked, actor: store.LabelUser, target: store.LabelPost, counter: store.CounterBookmarks},
	Follow:   {edge: store.EdgeFollowing, actor: store.LabelUser, target: store.LabelUser, counter: store.CounterFollowers},
}

// ParseKind converts "like", "bookmark" or "follow" into a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := relations[k]; !ok {
		return "", apperrors.NewValidation("kind", fmt.Sprintf("unknown toggle kind %q", s))
	}
	return k, nil
}

// Result is the outcome of one toggle
type Result struct {
	Kind     Kind   `json:"kind"`
	ActorID  string `json:"actorId"`
	TargetID string `json:"targetId"`
	State    string `json:"state"`
	Counter  int    `json:"counter"`
}

// Toggler flips toggle-style edges
type Toggler struct {
	store  store.Store
	policy store.RetryPolicy
	logger *zap.Logger
}

// Option configures a Toggler
type Option func(*Toggler)

// WithRetryPolicy overrides how lost races and transient store errors are retried
func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(t *Toggler) { t.policy = p }
}

// WithLogger overrides the component logger
func WithLogger(l *zap.Logger) Option {
	return func(t *Toggler) { t.logger = l }
}

// NewToggler creates a new toggler over the given store
func NewToggler(s store.Store, opts ...Option) *Toggler {
	t := &Toggler{
		store:  s,
		policy: store.DefaultRetryPolicy,
		logger: logger.Named("toggle"),
	}
	t.policy.MaxAttempts = constants.DefaultToggleAttempts
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Toggle creates the actor->target edge of the given kind if it is absent and
// removes it if it is present, adjusting the target's counter in the same
// transaction. On error nothing is committed.
func (t *Toggler) Toggle(ctx context.Context, actorID, targetID string, kind Kind) (*Result, error) {
	rel, ok := relations[kind]
	if !ok {
		return nil, apperrors.NewValidation("kind", fmt.Sprintf("unknown toggle kind %q", kind))
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, apperrors.NewValidation("actorId", "required")
	}
	if strings.TrimSpace(targetID) == "" {
		return nil, apperrors.NewValidation("targetId", "required")
	}
	if kind == Follow && actorID == targetID {
		return nil, apperrors.NewInvalidRelation(string(kind), "users cannot follow themselves")
	}

	var result Result
	attempts, err := store.Retry(ctx, t.policy, t.logger, "toggle_"+string(kind), func(ctx context.Context) error {
		return t.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			r, err := toggleOnce(ctx, tx, actorID, targetID, kind, rel)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeConflict) {
			err = apperrors.NewConflictRetryExhausted("toggle "+string(kind), attempts, err)
		}
		t.logger.Warn("Toggle failed",
			zap.String("kind", string(kind)),
			zap.String("actor_id", actorID),
			zap.String("target_id", targetID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, err
	}

	t.logger.Info("Toggled relation",
		zap.String("kind", string(kind)),
		zap.String("actor_id", actorID),
		zap.String("target_id", targetID),
		zap.String("state", result.State),
		zap.Int("counter", result.Counter),
		zap.Int("attempts", attempts),
	)
	return &result, nil
}

func toggleOnce(ctx context.Context, tx store.Tx, actorID, targetID string, kind Kind, rel relation) (Result, error) {
	if err := expectLabel(ctx, tx, actorID, "actor", rel.actor, kind); err != nil {
		return Result{}, err
	}
	if err := expectLabel(ctx, tx, targetID, "target", rel.target, kind); err != nil {
		return Result{}, err
	}

	// The counter lives on the target, so the target lock serializes every
	// toggle that could touch it.
	if err := tx.LockNode(ctx, targetID); err != nil {
		return Result{}, err
	}

	res := Result{Kind: kind, ActorID: actorID, TargetID: targetID}

	ref, err := tx.FindEdge(ctx, actorID, targetID, rel.edge)
	if err != nil {
		return Result{}, err
	}

	delta := 1
	if ref == nil {
		if _, err := tx.CreateEdge(ctx, actorID, targetID, rel.edge); err != nil {
			return Result{}, err
		}
		res.State = constants.ToggleCreated
	} else {
		if err := tx.DeleteEdge(ctx, *ref); err != nil {
			return Result{}, err
		}
		res.State = constants.ToggleRemoved
		delta = -1
	}

	res.Counter, err = tx.IncrementCounter(ctx, targetID, rel.counter, delta)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func expectLabel(ctx context.Context, tx store.Tx, id, role string, want store.Label, kind Kind) error {
	got, err := tx.NodeLabel(ctx, id)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
			return apperrors.NewNotFound(role, id)
		}
		return err
	}
	if got != want {
		return apperrors.NewInvalidRelation(string(kind), fmt.Sprintf("%s %s is a %s, expected a %s", role, id, got, want))
	}
	return nil
}
