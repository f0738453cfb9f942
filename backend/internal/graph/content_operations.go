package graph

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
)

// ============================================================================
// Users
// ============================================================================

// CreateUser creates a user node. Emails are unique.
func (r *Repository) CreateUser(ctx context.Context, username, email string) (store.User, error) {
	query := `
		OPTIONAL MATCH (existing:User {email: $email})
		WITH existing WHERE existing IS NULL
		CREATE (u:User {
			id: $id,
			username: $username,
			email: $email,
			followerCount: 0,
			createdAt: datetime()
		})
		RETURN u {.*} AS user
	`
	params := map[string]any{
		"id":       uuid.New().String(),
		"username": username,
		"email":    email,
	}
	records, err := r.writeQuery(ctx, "create user", query, params)
	if isConstraintViolation(err) {
		// a concurrent insert won the race past the OPTIONAL MATCH
		return store.User{}, apperrors.NewValidation("email", "already registered")
	}
	if err != nil {
		return store.User{}, err
	}
	if len(records) == 0 {
		return store.User{}, apperrors.NewValidation("email", "already registered")
	}
	u := decodeUser(getMapFromRecord(records[0], "user"))
	r.logger.Debug("Created user", zap.String("user_id", u.ID))
	return u, nil
}

// GetUser returns a user by id
func (r *Repository) GetUser(ctx context.Context, userID string) (store.User, error) {
	query := `
		MATCH (u:User {id: $userID})
		RETURN u {.*} AS user
	`
	records, err := r.readQuery(ctx, "get user", query, map[string]any{"userID": userID})
	if err != nil {
		return store.User{}, err
	}
	if len(records) == 0 {
		return store.User{}, apperrors.NewNotFound("user", userID)
	}
	return decodeUser(getMapFromRecord(records[0], "user")), nil
}

// GetProfile returns the user with the posts they wrote, liked and
// bookmarked, plus how many users they follow
func (r *Repository) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	query := `
		MATCH (u:User {id: $userID})
		RETURN u {.*} AS user,
		       [(u)-[:POSTED]->(p:Post) | p {.*}] AS authored,
		       [(u)-[:LIKED]->(p:Post) | p {.*}] AS liked,
		       [(u)-[:BOOKMARKED]->(p:Post) | p {.*}] AS bookmarked,
		       size([(u)-[:FOLLOWING]->(f:User) | f.id]) AS following
	`
	records, err := r.readQuery(ctx, "get profile", query, map[string]any{"userID": userID})
	if err != nil {
		return store.Profile{}, err
	}
	if len(records) == 0 {
		return store.Profile{}, apperrors.NewNotFound("user", userID)
	}
	rec := records[0]
	authored, _ := rec.Get("authored")
	liked, _ := rec.Get("liked")
	bookmarked, _ := rec.Get("bookmarked")
	prof := store.Profile{
		User:            decodeUser(getMapFromRecord(rec, "user")),
		FollowingCount:  getIntFromRecord(rec, "following"),
		AuthoredPosts:   newestFirst(decodePosts(authored)),
		LikedPosts:      newestFirst(decodePosts(liked)),
		BookmarkedPosts: newestFirst(decodePosts(bookmarked)),
	}
	return prof, nil
}

// isConstraintViolation reports whether err is a uniqueness constraint
// rejection from the server
func isConstraintViolation(err error) bool {
	var nerr *neo4j.Neo4jError
	return stderrors.As(err, &nerr) && nerr.Code == "Neo.ClientError.Schema.ConstraintValidationFailed"
}

// ============================================================================
// Posts
// ============================================================================

// CreatePost creates a post with zeroed counters and links the author to it
func (r *Repository) CreatePost(ctx context.Context, np store.NewPost) (store.Post, error) {
	query := `
		MATCH (a:User {id: $authorID})
		CREATE (p:Post {
			id: $id,
			authorId: $authorID,
			title: $title,
			subtitle: $subtitle,
			description: $description,
			createdAt: datetime(),
			likeCount: 0,
			bookmarkCount: 0,
			commentCount: 0,
			updateHistory: []
		})
		CREATE (a)-[:POSTED {createdAt: datetime()}]->(p)
		RETURN p {.*} AS post
	`
	var subtitle any
	if np.Subtitle != nil {
		subtitle = *np.Subtitle
	}
	params := map[string]any{
		"id":          uuid.New().String(),
		"authorID":    np.AuthorID,
		"title":       np.Title,
		"subtitle":    subtitle,
		"description": np.Description,
	}
	records, err := r.writeQuery(ctx, "create post", query, params)
	if err != nil {
		return store.Post{}, err
	}
	if len(records) == 0 {
		return store.Post{}, apperrors.NewNotFound("user", np.AuthorID)
	}
	return decodePost(getMapFromRecord(records[0], "post")), nil
}

// GetPost returns a post by id
func (r *Repository) GetPost(ctx context.Context, postID string) (store.Post, error) {
	query := `
		MATCH (p:Post {id: $postID})
		RETURN p {.*} AS post
	`
	records, err := r.readQuery(ctx, "get post", query, map[string]any{"postID": postID})
	if err != nil {
		return store.Post{}, err
	}
	if len(records) == 0 {
		return store.Post{}, apperrors.NewNotFound("post", postID)
	}
	return decodePost(getMapFromRecord(records[0], "post")), nil
}

// ListPosts returns every post, newest first
func (r *Repository) ListPosts(ctx context.Context) ([]store.Post, error) {
	query := `
		MATCH (p:Post)
		RETURN p {.*} AS post
		ORDER BY p.createdAt DESC, p.id
	`
	records, err := r.readQuery(ctx, "list posts", query, nil)
	if err != nil {
		return nil, err
	}
	posts := make([]store.Post, 0, len(records))
	for _, rec := range records {
		posts = append(posts, decodePost(getMapFromRecord(rec, "post")))
	}
	return posts, nil
}

// UpdatePost applies a partial edit and records the edit time
func (r *Repository) UpdatePost(ctx context.Context, postID string, patch store.PostPatch) (store.Post, error) {
	query := `
		MATCH (p:Post {id: $postID})
		SET p.title = coalesce($title, p.title),
		    p.subtitle = coalesce($subtitle, p.subtitle),
		    p.description = coalesce($description, p.description),
		    p.updateHistory = coalesce(p.updateHistory, []) + datetime()
		RETURN p {.*} AS post
	`
	params := map[string]any{
		"postID":      postID,
		"title":       optional(patch.Title),
		"subtitle":    optional(patch.Subtitle),
		"description": optional(patch.Description),
	}
	records, err := r.writeQuery(ctx, "update post", query, params)
	if err != nil {
		return store.Post{}, err
	}
	if len(records) == 0 {
		return store.Post{}, apperrors.NewNotFound("post", postID)
	}
	return decodePost(getMapFromRecord(records[0], "post")), nil
}

// DeletePost removes the post, every comment on it and all incident edges
func (r *Repository) DeletePost(ctx context.Context, postID string) error {
	query := `
		MATCH (p:Post {id: $postID})
		OPTIONAL MATCH (c:Comment)-[:ON]->(p)
		WITH p, collect(c) AS comments
		FOREACH (c IN comments | DETACH DELETE c)
		DETACH DELETE p
		RETURN size(comments) AS removed_comments
	`
	records, err := r.writeQuery(ctx, "delete post", query, map[string]any{"postID": postID})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return apperrors.NewNotFound("post", postID)
	}
	r.logger.Debug("Deleted post",
		zap.String("post_id", postID),
		zap.Int("comments", getIntFromRecord(records[0], "removed_comments")),
	)
	return nil
}

// optional turns a nil pointer into a Cypher null
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func newestFirst(posts []store.Post) []store.Post {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
	return posts
}
