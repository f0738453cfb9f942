// Package thread creates, deletes and reads the comment threads under posts.
package thread

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
	"graphfeed/backend/pkg/logger"
)

// Service owns comment writes and thread reconstruction
type Service struct {
	store  store.Store
	policy store.RetryPolicy
	logger *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithRetryPolicy overrides the retry policy for store calls
func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger overrides the component logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new thread service
func NewService(s store.Store, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		policy: store.DefaultRetryPolicy,
		logger: logger.Named("thread"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// BuildThreads returns the comment forest of a post
func (s *Service) BuildThreads(ctx context.Context, postID string) (*Thread, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, apperrors.NewValidation("postId", "required")
	}

	var records []store.CommentRecord
	_, err := store.Retry(ctx, s.policy, s.logger, "query_comments", func(ctx context.Context) error {
		var err error
		records, err = s.store.QueryCommentsForPost(ctx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return Build(postID, records, s.logger)
}

// Comment adds a root comment to a post
func (s *Service) Comment(ctx context.Context, postID, authorID, text string) (*store.CommentRecord, error) {
	return s.create(ctx, store.NewComment{PostID: postID, AuthorID: authorID, Text: text})
}

// Reply adds a reply to an existing comment of the same post
func (s *Service) Reply(ctx context.Context, postID, parentCommentID, authorID, text string) (*store.CommentRecord, error) {
	if strings.TrimSpace(parentCommentID) == "" {
		return nil, apperrors.NewValidation("parentCommentId", "required")
	}
	return s.create(ctx, store.NewComment{PostID: postID, AuthorID: authorID, ParentID: &parentCommentID, Text: text})
}

func (s *Service) create(ctx context.Context, nc store.NewComment) (*store.CommentRecord, error) {
	nc.Text = strings.TrimSpace(nc.Text)
	if nc.Text == "" {
		return nil, apperrors.NewValidation("text", "required")
	}
	if strings.TrimSpace(nc.PostID) == "" {
		return nil, apperrors.NewValidation("postId", "required")
	}
	if strings.TrimSpace(nc.AuthorID) == "" {
		return nil, apperrors.NewValidation("authorId", "required")
	}

	var created store.CommentRecord
	_, err := store.Retry(ctx, s.policy, s.logger, "create_comment", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			if nc.ParentID != nil {
				parentPost, err := tx.CommentPost(ctx, *nc.ParentID)
				if err != nil {
					return err
				}
				if parentPost != nc.PostID {
					return apperrors.NewValidation("parentCommentId", "parent comment belongs to another post")
				}
			}
			rec, err := tx.CreateComment(ctx, nc)
			if err != nil {
				return err
			}
			if _, err := tx.IncrementCounter(ctx, nc.PostID, store.CounterComments, 1); err != nil {
				return err
			}
			created = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Comment created",
		zap.String("comment_id", created.ID),
		zap.String("post_id", created.PostID),
		zap.String("author_id", created.AuthorID),
		zap.Bool("reply", created.ParentID != nil),
	)
	return &created, nil
}

// Delete removes a comment and decrements the comment counter of the post it
// is on. Replies to it stay on the post and surface as roots.
func (s *Service) Delete(ctx context.Context, commentID string) (string, error) {
	if strings.TrimSpace(commentID) == "" {
		return "", apperrors.NewValidation("commentId", "required")
	}

	var postID string
	_, err := store.Retry(ctx, s.policy, s.logger, "delete_comment", func(ctx context.Context) error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			p, err := tx.CommentPost(ctx, commentID)
			if err != nil {
				return err
			}
			if err := tx.DeleteComment(ctx, commentID); err != nil {
				return err
			}
			if _, err := tx.IncrementCounter(ctx, p, store.CounterComments, -1); err != nil {
				return err
			}
			postID = p
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("Comment deleted",
		zap.String("comment_id", commentID),
		zap.String("post_id", postID),
	)
	return postID, nil
}
