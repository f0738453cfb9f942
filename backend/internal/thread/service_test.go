package thread

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	"graphfeed/backend/internal/store/memstore"
	apperrors "graphfeed/backend/pkg/errors"
)

func newTestService(t *testing.T) (*Service, *memstore.Store, string, string) {
	t.Helper()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	st := memstore.New(memstore.WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	ctx := context.Background()
	u, err := st.CreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	p, err := st.CreatePost(ctx, store.NewPost{AuthorID: u.ID, Title: "Post", Description: "Body"})
	require.NoError(t, err)

	svc := NewService(st,
		WithLogger(zap.NewNop()),
		WithRetryPolicy(store.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}),
	)
	return svc, st, u.ID, p.ID
}

func TestService_CommentReplyAndBuild(t *testing.T) {
	svc, st, userID, postID := newTestService(t)
	ctx := context.Background()

	c1, err := svc.Comment(ctx, postID, userID, "  first  ")
	require.NoError(t, err)
	assert.Equal(t, "first", c1.Text)
	c2, err := svc.Reply(ctx, postID, c1.ID, userID, "second")
	require.NoError(t, err)
	c3, err := svc.Reply(ctx, postID, c1.ID, userID, "third")
	require.NoError(t, err)
	c4, err := svc.Reply(ctx, postID, c3.ID, userID, "fourth")
	require.NoError(t, err)
	assert.Equal(t, 2, c4.Depth)

	assert.Equal(t, 4, st.CounterValue(postID, store.CounterComments))

	th, err := svc.BuildThreads(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, []string{c1.ID}, ids(th.Roots))
	assert.Equal(t, []string{c2.ID, c3.ID}, ids(th.ByID[c1.ID].Children))
	assert.Equal(t, []string{c4.ID}, ids(th.ByID[c3.ID].Children))
}

func TestService_DeleteDecrementsAndPromotesReplies(t *testing.T) {
	svc, st, userID, postID := newTestService(t)
	ctx := context.Background()

	c1, err := svc.Comment(ctx, postID, userID, "root")
	require.NoError(t, err)
	c2, err := svc.Reply(ctx, postID, c1.ID, userID, "reply")
	require.NoError(t, err)

	gotPost, err := svc.Delete(ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, postID, gotPost)
	assert.Equal(t, 1, st.CounterValue(postID, store.CounterComments))

	th, err := svc.BuildThreads(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, []string{c2.ID}, ids(th.Roots))

	_, err = svc.Delete(ctx, c1.ID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	assert.Equal(t, 1, st.CounterValue(postID, store.CounterComments))
}

func TestService_Rejections(t *testing.T) {
	svc, st, userID, postID := newTestService(t)
	ctx := context.Background()

	other, err := st.CreatePost(ctx, store.NewPost{AuthorID: userID, Title: "Other", Description: "Body"})
	require.NoError(t, err)
	foreign, err := svc.Comment(ctx, other.ID, userID, "elsewhere")
	require.NoError(t, err)

	_, err = svc.Comment(ctx, postID, userID, "   ")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, err = svc.Comment(ctx, "missing", userID, "hello")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

	_, err = svc.Comment(ctx, postID, "ghost", "hello")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

	_, err = svc.Reply(ctx, postID, "missing", userID, "hello")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

	_, err = svc.Reply(ctx, postID, foreign.ID, userID, "hello")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	assert.Equal(t, 0, st.CounterValue(postID, store.CounterComments))

	_, err = svc.BuildThreads(ctx, "missing")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}
