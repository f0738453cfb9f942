package memstore

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
)

var _ store.Store = (*Store)(nil)

func seed(t *testing.T, s *Store) (userID, postID string) {
	t.Helper()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	p, err := s.CreatePost(ctx, store.NewPost{AuthorID: u.ID, Title: "Hello", Description: "First post"})
	require.NoError(t, err)
	return u.ID, p.ID
}

func TestRunInTransaction_CommitsOnSuccess(t *testing.T) {
	s := New()
	userID, postID := seed(t, s)

	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateEdge(ctx, userID, postID, store.EdgeLiked); err != nil {
			return err
		}
		_, err := tx.IncrementCounter(ctx, postID, store.CounterLikes, 1)
		return err
	})
	require.NoError(t, err)
	assert.True(t, s.HasEdge(userID, postID, store.EdgeLiked))
	assert.Equal(t, 1, s.CounterValue(postID, store.CounterLikes))
}

func TestRunInTransaction_DiscardsOnError(t *testing.T) {
	s := New()
	userID, postID := seed(t, s)
	boom := stderrors.New("boom")

	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateEdge(ctx, userID, postID, store.EdgeLiked); err != nil {
			return err
		}
		if _, err := tx.IncrementCounter(ctx, postID, store.CounterLikes, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, s.HasEdge(userID, postID, store.EdgeLiked))
	assert.Equal(t, 0, s.CounterValue(postID, store.CounterLikes))
}

func TestRunInTransaction_ReadsOwnWrites(t *testing.T) {
	s := New()
	userID, postID := seed(t, s)

	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		ref, err := tx.CreateEdge(ctx, userID, postID, store.EdgeBookmarked)
		require.NoError(t, err)

		found, err := tx.FindEdge(ctx, userID, postID, store.EdgeBookmarked)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, ref.Ref, found.Ref)

		_, err = tx.CreateEdge(ctx, userID, postID, store.EdgeBookmarked)
		assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

		require.NoError(t, tx.DeleteEdge(ctx, ref))
		found, err = tx.FindEdge(ctx, userID, postID, store.EdgeBookmarked)
		require.NoError(t, err)
		assert.Nil(t, found)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, s.HasEdge(userID, postID, store.EdgeBookmarked))
}

func TestRunInTransaction_ConflictOnConcurrentWrite(t *testing.T) {
	s := New()
	userID, postID := seed(t, s)
	other, err := s.CreateUser(context.Background(), "bobby", "bob@example.com")
	require.NoError(t, err)

	err = s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.LockNode(ctx, postID))
		if _, err := tx.IncrementCounter(ctx, postID, store.CounterLikes, 1); err != nil {
			return err
		}

		// A second transaction commits against the same post first.
		inner := s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			require.NoError(t, tx.LockNode(ctx, postID))
			if _, err := tx.CreateEdge(ctx, other.ID, postID, store.EdgeLiked); err != nil {
				return err
			}
			_, err := tx.IncrementCounter(ctx, postID, store.CounterLikes, 1)
			return err
		})
		require.NoError(t, inner)

		_, err := tx.CreateEdge(ctx, userID, postID, store.EdgeLiked)
		return err
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConflict))
	assert.True(t, apperrors.IsRetryable(err))

	assert.False(t, s.HasEdge(userID, postID, store.EdgeLiked))
	assert.True(t, s.HasEdge(other.ID, postID, store.EdgeLiked))
	assert.Equal(t, 1, s.CounterValue(postID, store.CounterLikes))
}

func TestIncrementCounter_FloorsAtZero(t *testing.T) {
	s := New()
	_, postID := seed(t, s)

	var got int
	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		got, err = tx.IncrementCounter(ctx, postID, store.CounterComments, -1)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got)
	assert.Equal(t, 0, s.CounterValue(postID, store.CounterComments))
}

func TestIncrementCounter_WrongNode(t *testing.T) {
	s := New()
	userID, _ := seed(t, s)

	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.IncrementCounter(ctx, userID, store.CounterLikes, 1)
		return err
	})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestRunInTransaction_Timeout(t *testing.T) {
	s := New(WithTimeout(10 * time.Millisecond))
	_, postID := seed(t, s)

	err := s.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		<-ctx.Done()
		_, err := tx.IncrementCounter(ctx, postID, store.CounterLikes, 1)
		return err
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeTimeout))
	assert.Equal(t, 0, s.CounterValue(postID, store.CounterLikes))
}

func TestFaultHook(t *testing.T) {
	fail := true
	s := New(WithFaultHook(func(op string) error {
		if fail && op == "commit" {
			return apperrors.NewStoreFailed(op, true, stderrors.New("connection reset"))
		}
		return nil
	}))
	userID, postID := seed(t, s)

	txn := func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateEdge(ctx, userID, postID, store.EdgeLiked)
		return err
	}
	err := s.RunInTransaction(context.Background(), txn)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeStore))
	assert.False(t, s.HasEdge(userID, postID, store.EdgeLiked))

	fail = false
	require.NoError(t, s.RunInTransaction(context.Background(), txn))
	assert.True(t, s.HasEdge(userID, postID, store.EdgeLiked))
}

func TestComments_DepthAndDetachOnDelete(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))
	userID, postID := seed(t, s)
	ctx := context.Background()

	create := func(parent *string) store.CommentRecord {
		var rec store.CommentRecord
		err := s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			rec, err = tx.CreateComment(ctx, store.NewComment{PostID: postID, AuthorID: userID, ParentID: parent, Text: "hi"})
			return err
		})
		require.NoError(t, err)
		return rec
	}

	root := create(nil)
	child := create(&root.ID)
	grandchild := create(&child.ID)
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, 2, grandchild.Depth)

	records, err := s.QueryCommentsForPost(ctx, postID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{root.ID, child.ID, grandchild.ID}, []string{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, "alice", records[2].AuthorUsername)

	err = s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		postOf, err := tx.CommentPost(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, postID, postOf)
		return tx.DeleteComment(ctx, child.ID)
	})
	require.NoError(t, err)

	records, err = s.QueryCommentsForPost(ctx, postID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[1].ParentID)
	assert.Equal(t, 0, records[1].Depth)
}

func TestCreateComment_ParentOnOtherPost(t *testing.T) {
	s := New()
	userID, postID := seed(t, s)
	ctx := context.Background()
	otherPost, err := s.CreatePost(ctx, store.NewPost{AuthorID: userID, Title: "Other", Description: "x"})
	require.NoError(t, err)

	var parent store.CommentRecord
	require.NoError(t, s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		parent, err = tx.CreateComment(ctx, store.NewComment{PostID: otherPost.ID, AuthorID: userID, Text: "there"})
		return err
	}))

	err = s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateComment(ctx, store.NewComment{PostID: postID, AuthorID: userID, ParentID: &parent.ID, Text: "here"})
		return err
	})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestQueryCommentsForPost_Missing(t *testing.T) {
	s := New()
	_, err := s.QueryCommentsForPost(context.Background(), "nope")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

	_, postID := seed(t, s)
	records, err := s.QueryCommentsForPost(context.Background(), postID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestContent_UpdateAndDelete(t *testing.T) {
	s := New()
	userID, postID := seed(t, s)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice2", "ALICE@example.com")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	title := "Hello again"
	p, err := s.UpdatePost(ctx, postID, store.PostPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Hello again", p.Title)
	assert.Equal(t, "First post", p.Description)
	assert.Len(t, p.UpdateHistory, 1)

	require.NoError(t, s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateEdge(ctx, userID, postID, store.EdgeLiked)
		return err
	}))
	require.NoError(t, s.DeletePost(ctx, postID))
	assert.False(t, s.HasEdge(userID, postID, store.EdgeLiked))

	_, err = s.GetPost(ctx, postID)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	assert.True(t, apperrors.IsErrorType(s.DeletePost(ctx, postID), apperrors.ErrorTypeNotFound))
}

func TestContent_ListPostsAndProfile(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice", "alice@example.com")
	require.NoError(t, err)
	bobby, err := s.CreateUser(ctx, "bobby", "bobby@example.com")
	require.NoError(t, err)
	first, err := s.CreatePost(ctx, store.NewPost{AuthorID: alice.ID, Title: "first", Description: "x"})
	require.NoError(t, err)
	second, err := s.CreatePost(ctx, store.NewPost{AuthorID: alice.ID, Title: "second", Description: "x"})
	require.NoError(t, err)
	other, err := s.CreatePost(ctx, store.NewPost{AuthorID: bobby.ID, Title: "other", Description: "x"})
	require.NoError(t, err)

	require.NoError(t, s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateEdge(ctx, alice.ID, other.ID, store.EdgeLiked); err != nil {
			return err
		}
		if _, err := tx.CreateEdge(ctx, alice.ID, first.ID, store.EdgeBookmarked); err != nil {
			return err
		}
		if _, err := tx.CreateEdge(ctx, alice.ID, bobby.ID, store.EdgeFollowing); err != nil {
			return err
		}
		_, err := tx.IncrementCounter(ctx, bobby.ID, store.CounterFollowers, 1)
		return err
	}))

	posts, err := s.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, []string{other.ID, second.ID, first.ID}, []string{posts[0].ID, posts[1].ID, posts[2].ID})

	got, err := s.GetUser(ctx, bobby.ID)
	require.NoError(t, err)
	assert.Equal(t, "bobby", got.Username)
	assert.Equal(t, 1, got.FollowerCount)

	prof, err := s.GetProfile(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, prof.User.ID)
	assert.Equal(t, 1, prof.FollowingCount)
	require.Len(t, prof.AuthoredPosts, 2)
	assert.Equal(t, second.ID, prof.AuthoredPosts[0].ID)
	assert.Equal(t, first.ID, prof.AuthoredPosts[1].ID)
	require.Len(t, prof.LikedPosts, 1)
	assert.Equal(t, other.ID, prof.LikedPosts[0].ID)
	require.Len(t, prof.BookmarkedPosts, 1)
	assert.Equal(t, first.ID, prof.BookmarkedPosts[0].ID)

	prof, err = s.GetProfile(ctx, bobby.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, prof.FollowingCount)
	assert.Equal(t, 1, prof.User.FollowerCount)
	assert.Empty(t, prof.LikedPosts)

	_, err = s.GetUser(ctx, "ghost")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	_, err = s.GetProfile(ctx, "ghost")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
}
