package toggle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graphfeed/backend/internal/constants"
	"graphfeed/backend/internal/store"
	"graphfeed/backend/internal/store/memstore"
	apperrors "graphfeed/backend/pkg/errors"
)

type fixture struct {
	store  *memstore.Store
	users  []string
	postID string
}

func newFixture(t *testing.T, users int, opts ...memstore.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memstore.New(opts...)}
	for i := 0; i < users; i++ {
		u, err := f.store.CreateUser(ctx, fmt.Sprintf("user%02d", i), fmt.Sprintf("user%02d@example.com", i))
		require.NoError(t, err)
		f.users = append(f.users, u.ID)
	}
	p, err := f.store.CreatePost(ctx, store.NewPost{AuthorID: f.users[0], Title: "Post", Description: "Body"})
	require.NoError(t, err)
	f.postID = p.ID
	return f
}

func newTestToggler(s store.Store, attempts int) *Toggler {
	return NewToggler(s,
		WithLogger(zap.NewNop()),
		WithRetryPolicy(store.RetryPolicy{MaxAttempts: attempts, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}),
	)
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"like", "Bookmark", " follow "} {
		_, err := ParseKind(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseKind("share")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestToggle_LikeTwiceRestoresState(t *testing.T) {
	f := newFixture(t, 1)
	tg := newTestToggler(f.store, 3)
	ctx := context.Background()
	actor := f.users[0]

	res, err := tg.Toggle(ctx, actor, f.postID, Like)
	require.NoError(t, err)
	assert.Equal(t, constants.ToggleCreated, res.State)
	assert.Equal(t, 1, res.Counter)
	assert.True(t, f.store.HasEdge(actor, f.postID, store.EdgeLiked))
	assert.Equal(t, 1, f.store.CounterValue(f.postID, store.CounterLikes))

	res, err = tg.Toggle(ctx, actor, f.postID, Like)
	require.NoError(t, err)
	assert.Equal(t, constants.ToggleRemoved, res.State)
	assert.Equal(t, 0, res.Counter)
	assert.False(t, f.store.HasEdge(actor, f.postID, store.EdgeLiked))
	assert.Equal(t, 0, f.store.CounterValue(f.postID, store.CounterLikes))
}

func TestToggle_BookmarkIsIndependentOfLike(t *testing.T) {
	f := newFixture(t, 1)
	tg := newTestToggler(f.store, 3)
	ctx := context.Background()
	actor := f.users[0]

	_, err := tg.Toggle(ctx, actor, f.postID, Like)
	require.NoError(t, err)
	res, err := tg.Toggle(ctx, actor, f.postID, Bookmark)
	require.NoError(t, err)

	assert.Equal(t, constants.ToggleCreated, res.State)
	assert.Equal(t, 1, f.store.CounterValue(f.postID, store.CounterLikes))
	assert.Equal(t, 1, f.store.CounterValue(f.postID, store.CounterBookmarks))
}

func TestToggle_FollowMaintainsFollowerCount(t *testing.T) {
	f := newFixture(t, 3)
	tg := newTestToggler(f.store, 3)
	ctx := context.Background()
	target := f.users[0]

	for _, actor := range f.users[1:] {
		_, err := tg.Toggle(ctx, actor, target, Follow)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.store.CounterValue(target, store.CounterFollowers))
	assert.Equal(t, 2, f.store.EdgeCount(store.EdgeFollowing, target))

	res, err := tg.Toggle(ctx, f.users[1], target, Follow)
	require.NoError(t, err)
	assert.Equal(t, constants.ToggleRemoved, res.State)
	assert.Equal(t, 1, f.store.CounterValue(target, store.CounterFollowers))
}

func TestToggle_Rejections(t *testing.T) {
	f := newFixture(t, 2)
	tg := newTestToggler(f.store, 3)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   string
		target  string
		kind    Kind
		errType apperrors.ErrorType
	}{
		{"self follow", f.users[0], f.users[0], Follow, apperrors.ErrorTypeValidation},
		{"follow a post", f.users[0], f.postID, Follow, apperrors.ErrorTypeValidation},
		{"like a user", f.users[0], f.users[1], Like, apperrors.ErrorTypeValidation},
		{"post as actor", f.postID, f.postID, Bookmark, apperrors.ErrorTypeValidation},
		{"missing actor", "ghost", f.postID, Like, apperrors.ErrorTypeNotFound},
		{"missing target", f.users[0], "ghost", Like, apperrors.ErrorTypeNotFound},
		{"empty actor", "", f.postID, Like, apperrors.ErrorTypeValidation},
		{"unknown kind", f.users[0], f.postID, Kind("share"), apperrors.ErrorTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tg.Toggle(ctx, tt.actor, tt.target, tt.kind)
			require.Error(t, err)
			assert.Equal(t, tt.errType, apperrors.TypeOf(err))
		})
	}

	assert.Equal(t, 0, f.store.CounterValue(f.postID, store.CounterLikes))
	assert.Equal(t, 0, f.store.CounterValue(f.postID, store.CounterBookmarks))
	assert.Equal(t, 0, f.store.CounterValue(f.users[0], store.CounterFollowers))
	assert.Equal(t, 0, f.store.EdgeCount(store.EdgeFollowing, f.users[0]))
}

func TestToggle_ConcurrentTogglesKeepCounterConsistent(t *testing.T) {
	const actors = 16
	f := newFixture(t, actors)
	tg := newTestToggler(f.store, 200)
	ctx := context.Background()

	// Every actor toggles three times, so each ends up liking the post once.
	g, gctx := errgroup.WithContext(ctx)
	for _, actor := range f.users {
		g.Go(func() error {
			for i := 0; i < 3; i++ {
				if _, err := tg.Toggle(gctx, actor, f.postID, Like); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, actors, f.store.EdgeCount(store.EdgeLiked, f.postID))
	assert.Equal(t, actors, f.store.CounterValue(f.postID, store.CounterLikes))
}

func TestToggle_ConcurrentSamePairParity(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		toggles int
	}{
		{name: "like odd", kind: Like, toggles: 7},
		{name: "like even", kind: Like, toggles: 8},
		{name: "follow odd", kind: Follow, toggles: 7},
		{name: "follow even", kind: Follow, toggles: 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 2)
			tg := newTestToggler(f.store, 500)
			ctx := context.Background()

			actor, target := f.users[1], f.postID
			edge, counter := store.EdgeLiked, store.CounterLikes
			if tt.kind == Follow {
				target = f.users[0]
				edge, counter = store.EdgeFollowing, store.CounterFollowers
			}

			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < tt.toggles; i++ {
				g.Go(func() error {
					_, err := tg.Toggle(gctx, actor, target, tt.kind)
					return err
				})
			}
			require.NoError(t, g.Wait())

			want := tt.toggles % 2
			assert.Equal(t, want == 1, f.store.HasEdge(actor, target, edge))
			assert.Equal(t, want, f.store.EdgeCount(edge, target))
			assert.Equal(t, f.store.EdgeCount(edge, target), f.store.CounterValue(target, counter))
		})
	}
}

func TestToggle_ConflictRetryExhausted(t *testing.T) {
	attempts := 0
	f := newFixture(t, 1, memstore.WithFaultHook(func(op string) error {
		if op == "commit" {
			attempts++
			return apperrors.NewConflict("node/post", nil)
		}
		return nil
	}))
	tg := newTestToggler(f.store, 4)

	_, err := tg.Toggle(context.Background(), f.users[0], f.postID, Like)
	require.Error(t, err)

	var exhausted *apperrors.ErrConflictRetryExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Equal(t, 4, attempts)
	assert.False(t, f.store.HasEdge(f.users[0], f.postID, store.EdgeLiked))
	assert.Equal(t, 0, f.store.CounterValue(f.postID, store.CounterLikes))
}

func TestToggle_TransientStoreFailureIsRetried(t *testing.T) {
	failures := 2
	f := newFixture(t, 1, memstore.WithFaultHook(func(op string) error {
		if op == "find_edge" && failures > 0 {
			failures--
			return apperrors.NewStoreFailed(op, true, fmt.Errorf("connection reset"))
		}
		return nil
	}))
	tg := newTestToggler(f.store, 5)

	res, err := tg.Toggle(context.Background(), f.users[0], f.postID, Like)
	require.NoError(t, err)
	assert.Equal(t, constants.ToggleCreated, res.State)
	assert.Equal(t, 1, f.store.CounterValue(f.postID, store.CounterLikes))
}
