package store

import "time"

// Label is the type of a node in the graph
type Label string

const (
	LabelUser    Label = "User"
	LabelPost    Label = "Post"
	LabelComment Label = "Comment"
)

// EdgeKind is the type of a relationship in the graph
type EdgeKind string

// Toggle-style kinds: at most one instance per (source, target).
const (
	EdgeLiked      EdgeKind = "LIKED"
	EdgeBookmarked EdgeKind = "BOOKMARKED"
	EdgeFollowing  EdgeKind = "FOLLOWING"
)

// Structural kinds: created once, removed only with their endpoints.
const (
	EdgePosted    EdgeKind = "POSTED"
	EdgeWrote     EdgeKind = "WROTE"
	EdgeOn        EdgeKind = "ON"
	EdgeRepliedTo EdgeKind = "REPLIED_TO"
)

// Valid reports whether k is one of the known edge kinds
func (k EdgeKind) Valid() bool {
	switch k {
	case EdgeLiked, EdgeBookmarked, EdgeFollowing, EdgePosted, EdgeWrote, EdgeOn, EdgeRepliedTo:
		return true
	}
	return false
}

// Counter is a denormalized counter property kept on a node
type Counter string

const (
	CounterLikes     Counter = "likeCount"
	CounterBookmarks Counter = "bookmarkCount"
	CounterComments  Counter = "commentCount"
	CounterFollowers Counter = "followerCount"
)

// Valid reports whether c is one of the known counters
func (c Counter) Valid() bool {
	switch c {
	case CounterLikes, CounterBookmarks, CounterComments, CounterFollowers:
		return true
	}
	return false
}

// User is a user node. Credentials live with the auth layer, not here.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FollowerCount int       `json:"followerCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Post is a post node with its denormalized counters
type Post struct {
	ID            string      `json:"id"`
	AuthorID      string      `json:"authorId,omitempty"`
	Title         string      `json:"title"`
	Subtitle      *string     `json:"subtitle,omitempty"`
	Description   string      `json:"description"`
	CreatedAt     time.Time   `json:"createdAt"`
	LikeCount     int         `json:"likeCount"`
	BookmarkCount int         `json:"bookmarkCount"`
	CommentCount  int         `json:"commentCount"`
	UpdateHistory []time.Time `json:"updateHistory,omitempty"`
}

// Profile is a user together with the posts they are connected to
type Profile struct {
	User            User   `json:"user"`
	FollowingCount  int    `json:"followingCount"`
	AuthoredPosts   []Post `json:"authoredPosts"`
	LikedPosts      []Post `json:"likedPosts"`
	BookmarkedPosts []Post `json:"bookmarkedPosts"`
}

// PostPatch carries the fields of an edit; nil fields keep their current value
type PostPatch struct {
	Title       *string
	Subtitle    *string
	Description *string
}

// NewPost is the input for creating a post
type NewPost struct {
	AuthorID    string
	Title       string
	Subtitle    *string
	Description string
}

// CommentRecord is one comment of a post as returned by the store, flat.
// Depth is the length of the REPLIED_TO chain to a root comment (root = 0).
type CommentRecord struct {
	ID             string    `json:"id"`
	PostID         string    `json:"postId"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
	AuthorID       string    `json:"authorId"`
	AuthorUsername string    `json:"authorUsername"`
	ParentID       *string   `json:"parentId"`
	Depth          int       `json:"depth"`
}

// NewComment is the input for creating a comment or a reply
type NewComment struct {
	PostID   string
	AuthorID string
	ParentID *string
	Text     string
}

// EdgeRef identifies one stored relationship
type EdgeRef struct {
	Ref    string
	Source string
	Target string
	Kind   EdgeKind
}

// TimelineCandidates are the four candidate sets for a user's timeline.
// The sets may overlap.
type TimelineCandidates struct {
	FollowedPosts   []Post
	LikedPosts      []Post
	CommentedPosts  []Post
	BookmarkedPosts []Post
}
