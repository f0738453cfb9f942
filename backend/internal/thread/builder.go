package thread

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
)

// Author is the writer of a comment
type Author struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}

// CommentNode is one comment inside a reconstructed thread
type CommentNode struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"createdAt"`
	Author    Author         `json:"author"`
	ParentID  *string        `json:"parentCommentId"`
	Depth     int            `json:"depth"`
	Children  []*CommentNode `json:"replies"`
}

// Thread is the forest of comments on one post. ByID indexes the same nodes
// reachable from Roots and is not serialized.
type Thread struct {
	PostID string                  `json:"postId"`
	ByID   map[string]*CommentNode `json:"-"`
	Roots  []*CommentNode          `json:"rootComments"`
}

// Build turns the flat comment records of a post into an ordered forest.
//
// Records are ordered by (depth, createdAt, id) before linking, so every
// children slice and the roots slice come out in that order whatever order the
// records arrived in. A parent id that names no record is dropped and the
// comment becomes a root. Records that cannot be reached from any root form a
// reply cycle and fail the build.
func Build(postID string, records []store.CommentRecord, log *zap.Logger) (*Thread, error) {
	if log == nil {
		log = zap.NewNop()
	}

	sorted := make([]store.CommentRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	t := &Thread{
		PostID: postID,
		ByID:   make(map[string]*CommentNode, len(sorted)),
		Roots:  make([]*CommentNode, 0),
	}

	order := make([]*CommentNode, 0, len(sorted))
	for _, rec := range sorted {
		if _, dup := t.ByID[rec.ID]; dup {
			log.Warn("Duplicate comment record ignored",
				zap.String("post_id", postID),
				zap.String("comment_id", rec.ID),
			)
			continue
		}
		node := &CommentNode{
			ID:        rec.ID,
			Text:      rec.Text,
			CreatedAt: rec.CreatedAt,
			Author:    Author{ID: rec.AuthorID, Username: rec.AuthorUsername},
			ParentID:  rec.ParentID,
			Depth:     rec.Depth,
			Children:  make([]*CommentNode, 0),
		}
		t.ByID[rec.ID] = node
		order = append(order, node)
	}

	for _, node := range order {
		if node.ParentID == nil {
			t.Roots = append(t.Roots, node)
			continue
		}
		parent, ok := t.ByID[*node.ParentID]
		if !ok {
			log.Warn("Dangling parent reference, promoting comment to root",
				zap.String("post_id", postID),
				zap.String("comment_id", node.ID),
				zap.String("parent_id", *node.ParentID),
			)
			node.ParentID = nil
			t.Roots = append(t.Roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	if unreachable := assignDepths(t, order); len(unreachable) > 0 {
		log.Error("Reply cycle detected in thread",
			zap.String("post_id", postID),
			zap.Strings("comment_ids", unreachable),
		)
		return nil, apperrors.NewMalformedThread(postID, unreachable)
	}

	return t, nil
}

// assignDepths walks the forest from the roots, setting each node's depth from
// its position, and returns the ids of nodes never reached, sorted.
func assignDepths(t *Thread, order []*CommentNode) []string {
	visited := make(map[string]bool, len(order))
	stack := make([]*CommentNode, 0, len(t.Roots))
	for i := len(t.Roots) - 1; i >= 0; i-- {
		t.Roots[i].Depth = 0
		stack = append(stack, t.Roots[i])
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[node.ID] {
			continue
		}
		visited[node.ID] = true
		for _, child := range node.Children {
			child.Depth = node.Depth + 1
			stack = append(stack, child)
		}
	}

	var unreachable []string
	for _, node := range order {
		if !visited[node.ID] {
			unreachable = append(unreachable, node.ID)
		}
	}
	sort.Strings(unreachable)
	return unreachable
}
