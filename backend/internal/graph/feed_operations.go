package graph

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
)

// ============================================================================
// Comment threads
// ============================================================================

// QueryCommentsForPost returns the flat comment records of a post. Depth is the
// shortest REPLIED_TO chain from the comment to a comment with no parent.
func (r *Repository) QueryCommentsForPost(ctx context.Context, postID string) ([]store.CommentRecord, error) {
	query := `
		MATCH (p:Post {id: $postID})
		OPTIONAL MATCH (c:Comment)-[:ON]->(p)
		OPTIONAL MATCH (author:User)-[:WROTE]->(c)
		OPTIONAL MATCH (c)-[:REPLIED_TO]->(parent:Comment)
		OPTIONAL MATCH path = (c)-[:REPLIED_TO*0..]->(root:Comment)
		WHERE NOT (root)-[:REPLIED_TO]->(:Comment)
		WITH p, c, author, parent, min(length(path)) AS depth
		RETURN p.id AS post_id,
		       c.id AS id,
		       c.text AS text,
		       c.createdAt AS created_at,
		       author.id AS author_id,
		       author.username AS author_username,
		       parent.id AS parent_id,
		       coalesce(depth, 0) AS depth
		ORDER BY created_at ASC, id ASC
	`
	records, err := r.readQuery(ctx, "query comments", query, map[string]any{"postID": postID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFound("post", postID)
	}

	comments := make([]store.CommentRecord, 0, len(records))
	for _, rec := range records {
		// A post without comments still yields one row with null comment columns.
		if getStringFromRecord(rec, "id") == "" {
			continue
		}
		comments = append(comments, decodeComment(rec, postID))
	}
	return comments, nil
}

// ============================================================================
// Timeline candidates
// ============================================================================

var candidateQueries = map[string]string{
	"followed":   `(u)-[:FOLLOWING]->(:User)-[:POSTED]->(p:Post)`,
	"liked":      `(u)-[:LIKED]->(p:Post)`,
	"commented":  `(u)-[:WROTE]->(:Comment)-[:ON]->(p:Post)`,
	"bookmarked": `(u)-[:BOOKMARKED]->(p:Post)`,
}

func candidateQuery(pattern string) string {
	return `
		MATCH (u:User {id: $userID})
		OPTIONAL MATCH ` + pattern + `
		RETURN u.id AS user_id, collect(DISTINCT p {.*}) AS posts
	`
}

// QueryTimelineCandidates runs the four candidate reads concurrently. Each read
// anchors on the user, so a missing user shows up as an empty result.
func (r *Repository) QueryTimelineCandidates(ctx context.Context, userID string) (store.TimelineCandidates, error) {
	params := map[string]any{"userID": userID}
	results := make(map[string][]store.Post, len(candidateQueries))
	found := make(map[string]bool, len(candidateQueries))
	var out store.TimelineCandidates

	type outcome struct {
		set   string
		found bool
		posts []store.Post
	}
	ch := make(chan outcome, len(candidateQueries))

	g, gctx := errgroup.WithContext(ctx)
	for set, pattern := range candidateQueries {
		g.Go(func() error {
			records, err := r.readQuery(gctx, "timeline "+set, candidateQuery(pattern), params)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				ch <- outcome{set: set}
				return nil
			}
			rec := records[0]
			val, _ := rec.Get("posts")
			ch <- outcome{set: set, found: true, posts: decodePosts(val)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	close(ch)
	for o := range ch {
		results[o.set] = o.posts
		found[o.set] = o.found
	}

	for _, ok := range found {
		if !ok {
			return out, apperrors.NewNotFound("user", userID)
		}
	}

	out.FollowedPosts = results["followed"]
	out.LikedPosts = results["liked"]
	out.CommentedPosts = results["commented"]
	out.BookmarkedPosts = results["bookmarked"]
	r.logger.Debug("Timeline candidates loaded",
		zap.String("user_id", userID),
		zap.Int("followed", len(out.FollowedPosts)),
		zap.Int("liked", len(out.LikedPosts)),
		zap.Int("commented", len(out.CommentedPosts)),
		zap.Int("bookmarked", len(out.BookmarkedPosts)),
	)
	return out, nil
}
