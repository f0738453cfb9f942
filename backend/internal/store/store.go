// Package store defines the contract between the relationship engine and the
// graph store behind it. Implementations live in internal/graph (Neo4j) and
// internal/store/memstore (in-process).
package store

import "context"

// Tx is a single unit of work. Every call shares one transaction; results are
// committed together when the function passed to RunInTransaction returns nil
// and discarded otherwise.
type Tx interface {
	// NodeLabel returns the label of the node with the given id, or a NotFound error.
	NodeLabel(ctx context.Context, id string) (Label, error)
	// LockNode takes the store's write lock on a node for the rest of the transaction.
	LockNode(ctx context.Context, id string) error
	// FindEdge returns the edge source-[kind]->target, or nil if there is none.
	FindEdge(ctx context.Context, source, target string, kind EdgeKind) (*EdgeRef, error)
	CreateEdge(ctx context.Context, source, target string, kind EdgeKind) (EdgeRef, error)
	DeleteEdge(ctx context.Context, ref EdgeRef) error
	// IncrementCounter adds delta to a counter, flooring the result at 0, and
	// returns the new value.
	IncrementCounter(ctx context.Context, nodeID string, counter Counter, delta int) (int, error)

	// CreateComment creates the comment node with its WROTE, ON and, for replies,
	// REPLIED_TO edges. Counters are left to the caller.
	CreateComment(ctx context.Context, c NewComment) (CommentRecord, error)
	// CommentPost follows comment-[:ON]->post and returns the post id.
	CommentPost(ctx context.Context, commentID string) (string, error)
	// DeleteComment removes the comment and its incident edges.
	DeleteComment(ctx context.Context, commentID string) error
}

// Store is the graph store adapter consumed by the engine
type Store interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// QueryCommentsForPost returns every comment on the post, or NotFound if the
	// post does not exist.
	QueryCommentsForPost(ctx context.Context, postID string) ([]CommentRecord, error)
	// QueryTimelineCandidates returns the candidate sets for the user, or NotFound
	// if the user does not exist.
	QueryTimelineCandidates(ctx context.Context, userID string) (TimelineCandidates, error)

	ContentStore

	Close(ctx context.Context) error
}

// ContentStore covers the plain create/edit/delete paths for users and posts
type ContentStore interface {
	CreateUser(ctx context.Context, username, email string) (User, error)
	CreatePost(ctx context.Context, p NewPost) (Post, error)
	GetPost(ctx context.Context, postID string) (Post, error)
	// ListPosts returns every post, newest first.
	ListPosts(ctx context.Context) ([]Post, error)
	GetUser(ctx context.Context, userID string) (User, error)
	// GetProfile returns the user with authored, liked and bookmarked posts,
	// each newest first, and the number of users they follow.
	GetProfile(ctx context.Context, userID string) (Profile, error)
	// UpdatePost applies the patch and appends the edit time to the update history.
	UpdatePost(ctx context.Context, postID string, patch PostPatch) (Post, error)
	// DeletePost removes the post, the comments on it and every incident edge.
	DeletePost(ctx context.Context, postID string) error
}
