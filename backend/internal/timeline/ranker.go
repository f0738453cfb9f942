// Package timeline ranks the posts a user is connected to into a personal feed.
package timeline

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"graphfeed/backend/internal/constants"
	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
	"graphfeed/backend/pkg/logger"
)

// Weights assigns a score to membership in each candidate set
type Weights struct {
	Followed   int
	Liked      int
	Commented  int
	Bookmarked int
}

// DefaultWeights favour authors the user follows, then conversation, then reactions
var DefaultWeights = Weights{
	Followed:   constants.FollowedPostWeight,
	Liked:      constants.LikedPostWeight,
	Commented:  constants.CommentedPostWeight,
	Bookmarked: constants.BookmarkedPostWeight,
}

// Entry is a ranked post
type Entry struct {
	Post  store.Post `json:"post"`
	Score int        `json:"score"`
}

// Ranker builds timelines
type Ranker struct {
	store        store.Store
	weights      Weights
	defaultLimit int
	maxLimit     int
	policy       store.RetryPolicy
	logger       *zap.Logger
}

// Option configures a Ranker
type Option func(*Ranker)

// WithWeights overrides the scoring weights
func WithWeights(w Weights) Option {
	return func(r *Ranker) { r.weights = w }
}

// WithLimits overrides the default and maximum page sizes
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(r *Ranker) {
		r.defaultLimit = defaultLimit
		r.maxLimit = maxLimit
	}
}

// WithRetryPolicy overrides the retry policy for the candidate query
func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(r *Ranker) { r.policy = p }
}

// WithLogger overrides the component logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Ranker) { r.logger = l }
}

// NewRanker creates a new ranker
func NewRanker(s store.Store, opts ...Option) *Ranker {
	r := &Ranker{
		store:        s,
		weights:      DefaultWeights,
		defaultLimit: constants.DefaultTimelineLimit,
		maxLimit:     constants.MaxTimelineLimit,
		policy:       store.DefaultRetryPolicy,
		logger:       logger.Named("timeline"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank returns up to limit posts for the user, best first. A limit of zero or
// less means the default limit.
func (r *Ranker) Rank(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidation("userId", "required")
	}
	if limit <= 0 {
		limit = r.defaultLimit
	}
	if r.maxLimit > 0 && limit > r.maxLimit {
		limit = r.maxLimit
	}

	var candidates store.TimelineCandidates
	_, err := store.Retry(ctx, r.policy, r.logger, "query_timeline", func(ctx context.Context) error {
		var err error
		candidates, err = r.store.QueryTimelineCandidates(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	entries := Score(candidates, r.weights, limit)
	r.logger.Debug("Timeline ranked",
		zap.String("user_id", userID),
		zap.Int("candidates", len(candidates.FollowedPosts)+len(candidates.LikedPosts)+len(candidates.CommentedPosts)+len(candidates.BookmarkedPosts)),
		zap.Int("returned", len(entries)),
	)
	return entries, nil
}

// Score merges the candidate sets, summing the weight of every set a post is
// in, and returns the top limit entries ordered by score, then createdAt
// (newest first), then id. A post listed twice within one set counts once.
func Score(c store.TimelineCandidates, w Weights, limit int) []Entry {
	scores := make(map[string]*Entry)
	add := func(posts []store.Post, weight int) {
		seen := make(map[string]bool, len(posts))
		for _, p := range posts {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			if e, ok := scores[p.ID]; ok {
				e.Score += weight
				continue
			}
			scores[p.ID] = &Entry{Post: p, Score: weight}
		}
	}
	add(c.FollowedPosts, w.Followed)
	add(c.LikedPosts, w.Liked)
	add(c.CommentedPosts, w.Commented)
	add(c.BookmarkedPosts, w.Bookmarked)

	entries := make([]Entry, 0, len(scores))
	for _, e := range scores {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Post.CreatedAt.Equal(b.Post.CreatedAt) {
			return a.Post.CreatedAt.After(b.Post.CreatedAt)
		}
		return a.Post.ID < b.Post.ID
	})

	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
