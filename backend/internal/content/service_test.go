package content

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	"graphfeed/backend/internal/store/memstore"
	apperrors "graphfeed/backend/pkg/errors"
)

func ptr(s string) *string { return &s }

func TestRegisterUser(t *testing.T) {
	svc := NewService(memstore.New())
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "  alice  ", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, 0, u.FollowerCount)

	_, err = svc.RegisterUser(ctx, "bob", "bob@example.com")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, err = svc.RegisterUser(ctx, "robert", "not-an-email")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, err = svc.RegisterUser(ctx, "alice2", "alice@example.com")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestPublishEditDelete(t *testing.T) {
	svc := NewService(memstore.New())
	ctx := context.Background()
	u, err := svc.RegisterUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)

	p, err := svc.Publish(ctx, u.ID, "Title", ptr("Sub"), "Body")
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.AuthorID)
	assert.Equal(t, 0, p.LikeCount)
	assert.Equal(t, 0, p.CommentCount)
	require.NotNil(t, p.Subtitle)
	assert.Empty(t, p.UpdateHistory)

	edited, err := svc.Edit(ctx, p.ID, store.PostPatch{Description: ptr("New body")})
	require.NoError(t, err)
	assert.Equal(t, "Title", edited.Title)
	assert.Equal(t, "New body", edited.Description)
	assert.Len(t, edited.UpdateHistory, 1)

	_, err = svc.Edit(ctx, p.ID, store.PostPatch{})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	_, err = svc.Edit(ctx, p.ID, store.PostPatch{Title: ptr(" ")})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	got, err := svc.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "New body", got.Description)

	require.NoError(t, svc.Delete(ctx, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}

func TestPublish_Rejections(t *testing.T) {
	svc := NewService(memstore.New())
	ctx := context.Background()

	_, err := svc.Publish(ctx, "ghost", "Title", nil, "Body")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

	_, err = svc.Publish(ctx, "ghost", "", nil, "Body")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, err = svc.Publish(ctx, "", "Title", nil, "Body")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestService_RetriesTransientFailures(t *testing.T) {
	failures := map[string]int{"create_user": 2, "create_post": 1, "get_profile": 1}
	st := memstore.New(memstore.WithFaultHook(func(op string) error {
		if failures[op] > 0 {
			failures[op]--
			return apperrors.NewStoreFailed(op, true, stderrors.New("connection reset"))
		}
		return nil
	}))
	svc := NewService(st,
		WithLogger(zap.NewNop()),
		WithRetryPolicy(store.RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}),
	)
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	_, err = svc.Publish(ctx, u.ID, "Title", nil, "Body")
	require.NoError(t, err)
	prof, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, prof.AuthoredPosts, 1)
	assert.Zero(t, failures["create_user"])

	failures["get_user"] = 5
	_, err = svc.User(ctx, u.ID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStore))
	assert.Equal(t, 2, failures["get_user"])
}

func TestService_NonRetryableFailsFast(t *testing.T) {
	calls := 0
	st := memstore.New(memstore.WithFaultHook(func(op string) error {
		if op == "list_posts" {
			calls++
			return apperrors.NewStoreFailed(op, false, stderrors.New("syntax error"))
		}
		return nil
	}))
	svc := NewService(st, WithLogger(zap.NewNop()), WithRetryPolicy(store.RetryPolicy{MaxAttempts: 4, BaseBackoff: time.Millisecond}))

	_, err := svc.List(context.Background())
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStore))
	assert.Equal(t, 1, calls)
}

func TestListUserAndProfile(t *testing.T) {
	svc := NewService(memstore.New())
	ctx := context.Background()
	u, err := svc.RegisterUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	p, err := svc.Publish(ctx, u.ID, "Title", nil, "Body")
	require.NoError(t, err)

	posts, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, p.ID, posts[0].ID)

	got, err := svc.User(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	prof, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, prof.User.ID)
	require.Len(t, prof.AuthoredPosts, 1)
	assert.Empty(t, prof.LikedPosts)
	assert.Empty(t, prof.BookmarkedPosts)

	_, err = svc.User(ctx, " ")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	_, err = svc.Profile(ctx, "ghost")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}
