package memstore

import (
	"context"

	"github.com/google/uuid"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
)

type counterKey struct {
	nodeID  string
	counter store.Counter
}

// tx buffers writes on top of the committed state
type tx struct {
	s *Store

	reads  map[string]uint64
	writes map[string]struct{}

	edges           map[edgeKey]*store.EdgeRef // nil marks a deletion
	counters        map[counterKey]int
	newComments     map[string]*store.CommentRecord
	deletedComments map[string]bool
}

func newTx(s *Store) *tx {
	return &tx{
		s:               s,
		reads:           make(map[string]uint64),
		writes:          make(map[string]struct{}),
		edges:           make(map[edgeKey]*store.EdgeRef),
		counters:        make(map[counterKey]int),
		newComments:     make(map[string]*store.CommentRecord),
		deletedComments: make(map[string]bool),
	}
}

// observe records the committed version of key the first time it is read.
// Callers hold s.mu.
func (t *tx) observe(key string) {
	if _, ok := t.reads[key]; !ok {
		t.reads[key] = t.s.versions[key]
	}
}

func (t *tx) write(key string) {
	t.observe(key)
	t.writes[key] = struct{}{}
}

// label resolves a node as this transaction sees it. Callers hold s.mu.
func (t *tx) label(id string) (store.Label, bool) {
	t.observe(nodeKey(id))
	if t.deletedComments[id] {
		return "", false
	}
	if _, ok := t.newComments[id]; ok {
		return store.LabelComment, true
	}
	return t.s.label(id)
}

func (t *tx) comment(id string) (*store.CommentRecord, bool) {
	if t.deletedComments[id] {
		return nil, false
	}
	if c, ok := t.newComments[id]; ok {
		return c, true
	}
	c, ok := t.s.comments[id]
	return c, ok
}

func (t *tx) NodeLabel(ctx context.Context, id string) (store.Label, error) {
	if err := t.s.enter(ctx, "node_label"); err != nil {
		return "", err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	l, ok := t.label(id)
	if !ok {
		return "", apperrors.NewNotFound("node", id)
	}
	return l, nil
}

func (t *tx) LockNode(ctx context.Context, id string) error {
	if err := t.s.enter(ctx, "lock_node"); err != nil {
		return err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if _, ok := t.label(id); !ok {
		return apperrors.NewNotFound("node", id)
	}
	t.write(nodeKey(id))
	return nil
}

func (t *tx) lookupEdge(k edgeKey) *store.EdgeRef {
	t.observe(k.String())
	if ref, ok := t.edges[k]; ok {
		return ref
	}
	if ref, ok := t.s.edges[k]; ok {
		return &ref
	}
	return nil
}

func (t *tx) FindEdge(ctx context.Context, source, target string, kind store.EdgeKind) (*store.EdgeRef, error) {
	if err := t.s.enter(ctx, "find_edge"); err != nil {
		return nil, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	ref := t.lookupEdge(edgeKey{source: source, target: target, kind: kind})
	if ref == nil {
		return nil, nil
	}
	cp := *ref
	return &cp, nil
}

func (t *tx) CreateEdge(ctx context.Context, source, target string, kind store.EdgeKind) (store.EdgeRef, error) {
	if err := t.s.enter(ctx, "create_edge"); err != nil {
		return store.EdgeRef{}, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if _, ok := t.label(source); !ok {
		return store.EdgeRef{}, apperrors.NewNotFound("node", source)
	}
	if _, ok := t.label(target); !ok {
		return store.EdgeRef{}, apperrors.NewNotFound("node", target)
	}
	k := edgeKey{source: source, target: target, kind: kind}
	if t.lookupEdge(k) != nil {
		return store.EdgeRef{}, apperrors.NewInvalidRelation(string(kind), "edge already exists")
	}
	ref := &store.EdgeRef{Ref: uuid.New().String(), Source: source, Target: target, Kind: kind}
	t.edges[k] = ref
	t.write(k.String())
	return *ref, nil
}

func (t *tx) DeleteEdge(ctx context.Context, ref store.EdgeRef) error {
	if err := t.s.enter(ctx, "delete_edge"); err != nil {
		return err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	k := edgeKey{source: ref.Source, target: ref.Target, kind: ref.Kind}
	existing := t.lookupEdge(k)
	if existing == nil || existing.Ref != ref.Ref {
		return apperrors.NewNotFound("edge", ref.Ref)
	}
	t.edges[k] = nil
	t.write(k.String())
	return nil
}

func (t *tx) IncrementCounter(ctx context.Context, nodeID string, counter store.Counter, delta int) (int, error) {
	if err := t.s.enter(ctx, "increment_counter"); err != nil {
		return 0, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	if !counter.Valid() {
		return 0, apperrors.NewValidation("counter", string(counter))
	}
	if _, ok := t.label(nodeID); !ok {
		return 0, apperrors.NewNotFound("node", nodeID)
	}
	ck := counterKey{nodeID: nodeID, counter: counter}
	current, ok := t.counters[ck]
	if !ok {
		current, ok = t.s.counterValue(nodeID, counter)
		if !ok {
			return 0, apperrors.NewValidation("counter", string(counter)+" does not apply to node "+nodeID)
		}
	}
	next := current + delta
	if next < 0 {
		next = 0
	}
	t.counters[ck] = next
	t.write(nodeKey(nodeID))
	return next, nil
}

func (t *tx) CreateComment(ctx context.Context, nc store.NewComment) (store.CommentRecord, error) {
	if err := t.s.enter(ctx, "create_comment"); err != nil {
		return store.CommentRecord{}, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	author, ok := t.s.users[nc.AuthorID]
	if !ok {
		return store.CommentRecord{}, apperrors.NewNotFound("user", nc.AuthorID)
	}
	t.observe(nodeKey(nc.AuthorID))
	if l, ok := t.label(nc.PostID); !ok || l != store.LabelPost {
		return store.CommentRecord{}, apperrors.NewNotFound("post", nc.PostID)
	}

	depth := 0
	if nc.ParentID != nil {
		t.observe(nodeKey(*nc.ParentID))
		parent, ok := t.comment(*nc.ParentID)
		if !ok {
			return store.CommentRecord{}, apperrors.NewNotFound("comment", *nc.ParentID)
		}
		if parent.PostID != nc.PostID {
			return store.CommentRecord{}, apperrors.NewValidation("parentCommentId", "parent comment belongs to another post")
		}
		depth = t.s.depth(parent) + 1
	}

	rec := &store.CommentRecord{
		ID:             uuid.New().String(),
		PostID:         nc.PostID,
		Text:           nc.Text,
		CreatedAt:      t.s.now().UTC(),
		AuthorID:       author.ID,
		AuthorUsername: author.Username,
		ParentID:       nc.ParentID,
		Depth:          depth,
	}
	t.newComments[rec.ID] = rec
	t.write(nodeKey(rec.ID))
	return *rec, nil
}

func (t *tx) CommentPost(ctx context.Context, commentID string) (string, error) {
	if err := t.s.enter(ctx, "comment_post"); err != nil {
		return "", err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.observe(nodeKey(commentID))
	c, ok := t.comment(commentID)
	if !ok {
		return "", apperrors.NewNotFound("comment", commentID)
	}
	return c.PostID, nil
}

func (t *tx) DeleteComment(ctx context.Context, commentID string) error {
	if err := t.s.enter(ctx, "delete_comment"); err != nil {
		return err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	t.observe(nodeKey(commentID))
	if _, ok := t.comment(commentID); !ok {
		return apperrors.NewNotFound("comment", commentID)
	}
	if _, ok := t.newComments[commentID]; ok {
		delete(t.newComments, commentID)
	} else {
		t.deletedComments[commentID] = true
	}
	t.write(nodeKey(commentID))
	return nil
}
