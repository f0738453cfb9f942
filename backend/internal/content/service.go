// Package content handles users and posts outside the relationship engine:
// registration, publishing, editing and deleting.
package content

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
	"graphfeed/backend/pkg/logger"
)

// MinUsernameLength is the shortest username accepted at registration
const MinUsernameLength = 5

// Service wraps the content half of the store with input checks
type Service struct {
	store  store.ContentStore
	policy store.RetryPolicy
	logger *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithRetryPolicy sets how transient store failures are retried
func WithRetryPolicy(p store.RetryPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLogger overrides the component logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new content service
func NewService(s store.ContentStore, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		policy: store.DefaultRetryPolicy,
		logger: logger.Named("content"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := store.Retry(ctx, s.policy, s.logger, op, fn)
	return err
}

// RegisterUser creates a user node
func (s *Service) RegisterUser(ctx context.Context, username, email string) (*store.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if len(username) < MinUsernameLength {
		return nil, apperrors.NewValidation("username", "should be at least 5 characters long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidation("email", "not a valid address")
	}

	var u store.User
	err := s.retry(ctx, "create_user", func(ctx context.Context) error {
		var err error
		u, err = s.store.CreateUser(ctx, username, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("User registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return &u, nil
}

// Publish creates a post authored by authorID with zeroed counters
func (s *Service) Publish(ctx context.Context, authorID, title string, subtitle *string, description string) (*store.Post, error) {
	if strings.TrimSpace(authorID) == "" {
		return nil, apperrors.NewValidation("authorId", "required")
	}
	if strings.TrimSpace(title) == "" {
		return nil, apperrors.NewValidation("title", "required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, apperrors.NewValidation("description", "required")
	}

	np := store.NewPost{
		AuthorID:    authorID,
		Title:       title,
		Subtitle:    subtitle,
		Description: description,
	}
	var p store.Post
	err := s.retry(ctx, "create_post", func(ctx context.Context) error {
		var err error
		p, err = s.store.CreatePost(ctx, np)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Post published", zap.String("post_id", p.ID), zap.String("author_id", authorID))
	return &p, nil
}

// Edit applies a partial update; the edit time is appended to the post's update history
func (s *Service) Edit(ctx context.Context, postID string, patch store.PostPatch) (*store.Post, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, apperrors.NewValidation("postId", "required")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, apperrors.NewValidation("title", "cannot be empty")
	}
	if patch.Title == nil && patch.Subtitle == nil && patch.Description == nil {
		return nil, apperrors.NewValidation("patch", "nothing to update")
	}

	var p store.Post
	err := s.retry(ctx, "update_post", func(ctx context.Context) error {
		var err error
		p, err = s.store.UpdatePost(ctx, postID, patch)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Post edited", zap.String("post_id", postID), zap.Int("revisions", len(p.UpdateHistory)))
	return &p, nil
}

// Get returns a post
func (s *Service) Get(ctx context.Context, postID string) (*store.Post, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, apperrors.NewValidation("postId", "required")
	}
	var p store.Post
	err := s.retry(ctx, "get_post", func(ctx context.Context) error {
		var err error
		p, err = s.store.GetPost(ctx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns every post, newest first
func (s *Service) List(ctx context.Context) ([]store.Post, error) {
	var posts []store.Post
	err := s.retry(ctx, "list_posts", func(ctx context.Context) error {
		var err error
		posts, err = s.store.ListPosts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// User returns a user
func (s *Service) User(ctx context.Context, userID string) (*store.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidation("userId", "required")
	}
	var u store.User
	err := s.retry(ctx, "get_user", func(ctx context.Context) error {
		var err error
		u, err = s.store.GetUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Profile returns a user with the posts they wrote, liked and bookmarked
func (s *Service) Profile(ctx context.Context, userID string) (*store.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.NewValidation("userId", "required")
	}
	var prof store.Profile
	err := s.retry(ctx, "get_profile", func(ctx context.Context) error {
		var err error
		prof, err = s.store.GetProfile(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &prof, nil
}

// Delete removes a post, its comments and every edge touching it
func (s *Service) Delete(ctx context.Context, postID string) error {
	if strings.TrimSpace(postID) == "" {
		return apperrors.NewValidation("postId", "required")
	}
	err := s.retry(ctx, "delete_post", func(ctx context.Context) error {
		return s.store.DeletePost(ctx, postID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Post deleted", zap.String("post_id", postID))
	return nil
}
