// Package memstore is an in-process implementation of store.Store with
// optimistic concurrency control. Transactions read committed state, buffer
// their writes and validate, at commit, that nothing they read has changed
// since. A failed validation is reported as a retryable conflict.
package memstore

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
)

type edgeKey struct {
	source string
	target string
	kind   store.EdgeKind
}

func (k edgeKey) String() string {
	return "edge/" + k.source + "/" + string(k.kind) + "/" + k.target
}

func nodeKey(id string) string {
	return "node/" + id
}

// Store is the in-memory graph
type Store struct {
	mu       sync.RWMutex
	users    map[string]*store.User
	posts    map[string]*store.Post
	comments map[string]*store.CommentRecord
	edges    map[edgeKey]store.EdgeRef
	versions map[string]uint64

	timeout time.Duration
	now     func() time.Time
	fault   func(op string) error
}

// Option configures a Store
type Option func(*Store)

// WithTimeout sets the per-operation deadline
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// WithClock replaces time.Now, mainly for deterministic tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFaultHook installs a hook called at the start of every store call; a
// non-nil return is reported as that call's error.
func WithFaultHook(hook func(op string) error) Option {
	return func(s *Store) { s.fault = hook }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		users:    make(map[string]*store.User),
		posts:    make(map[string]*store.Post),
		comments: make(map[string]*store.CommentRecord),
		edges:    make(map[edgeKey]store.EdgeRef),
		versions: make(map[string]uint64),
		timeout:  5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op; the store holds no external resources
func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) enter(ctx context.Context, op string) error {
	if s.fault != nil {
		if err := s.fault(op); err != nil {
			return err
		}
	}
	return s.ctxErr(ctx, op)
}

func (s *Store) ctxErr(ctx context.Context, op string) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return apperrors.NewStoreTimeout(op, s.timeout, err)
	default:
		return apperrors.NewContextCancelled(op, err)
	}
}

func (s *Store) bump(key string) {
	s.versions[key]++
}

// RunInTransaction runs fn in a new transaction and commits it if fn returns nil
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.enter(ctx, "begin"); err != nil {
		return err
	}

	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		if ctxErr := s.ctxErr(ctx, "transaction"); ctxErr != nil && apperrors.TypeOf(err) == "" {
			return ctxErr
		}
		return err
	}
	return s.commit(ctx, t)
}

func (s *Store) commit(ctx context.Context, t *tx) error {
	if err := s.enter(ctx, "commit"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Deadline is checked under the lock so an expired transaction never applies.
	if err := s.ctxErr(ctx, "commit"); err != nil {
		return err
	}
	for key, seen := range t.reads {
		if s.versions[key] != seen {
			return apperrors.NewConflict(key, nil)
		}
	}

	for k, ref := range t.edges {
		if ref == nil {
			delete(s.edges, k)
		} else {
			s.edges[k] = *ref
		}
	}
	for ck, value := range t.counters {
		s.setCounter(ck.nodeID, ck.counter, value)
	}
	for id, c := range t.newComments {
		cp := *c
		s.comments[id] = &cp
	}
	for id := range t.deletedComments {
		s.removeComment(id)
	}

	for key := range t.writes {
		s.bump(key)
	}
	return nil
}

// removeComment deletes a comment and detaches its replies. Callers hold mu.
func (s *Store) removeComment(id string) {
	delete(s.comments, id)
	s.bump(nodeKey(id))
	for childID, child := range s.comments {
		if child.ParentID != nil && *child.ParentID == id {
			child.ParentID = nil
			s.bump(nodeKey(childID))
		}
	}
}

func (s *Store) counterValue(nodeID string, counter store.Counter) (int, bool) {
	if p, ok := s.posts[nodeID]; ok {
		switch counter {
		case store.CounterLikes:
			return p.LikeCount, true
		case store.CounterBookmarks:
			return p.BookmarkCount, true
		case store.CounterComments:
			return p.CommentCount, true
		}
		return 0, false
	}
	if u, ok := s.users[nodeID]; ok && counter == store.CounterFollowers {
		return u.FollowerCount, true
	}
	return 0, false
}

func (s *Store) setCounter(nodeID string, counter store.Counter, value int) {
	if p, ok := s.posts[nodeID]; ok {
		switch counter {
		case store.CounterLikes:
			p.LikeCount = value
		case store.CounterBookmarks:
			p.BookmarkCount = value
		case store.CounterComments:
			p.CommentCount = value
		}
		return
	}
	if u, ok := s.users[nodeID]; ok && counter == store.CounterFollowers {
		u.FollowerCount = value
	}
}

func (s *Store) label(id string) (store.Label, bool) {
	if _, ok := s.users[id]; ok {
		return store.LabelUser, true
	}
	if _, ok := s.posts[id]; ok {
		return store.LabelPost, true
	}
	if _, ok := s.comments[id]; ok {
		return store.LabelComment, true
	}
	return "", false
}

// depth walks REPLIED_TO links to a root. Callers hold mu.
func (s *Store) depth(c *store.CommentRecord) int {
	d := 0
	for cur := c; cur.ParentID != nil; d++ {
		parent, ok := s.comments[*cur.ParentID]
		if !ok || d > len(s.comments) {
			break
		}
		cur = parent
	}
	return d
}

// QueryCommentsForPost returns the flat comment records of a post
func (s *Store) QueryCommentsForPost(ctx context.Context, postID string) ([]store.CommentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "query_comments"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.posts[postID]; !ok {
		return nil, apperrors.NewNotFound("post", postID)
	}

	records := make([]store.CommentRecord, 0)
	for _, c := range s.comments {
		if c.PostID != postID {
			continue
		}
		rec := *c
		rec.Depth = s.depth(c)
		if u, ok := s.users[c.AuthorID]; ok {
			rec.AuthorUsername = u.Username
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// QueryTimelineCandidates returns the four candidate sets for a user
func (s *Store) QueryTimelineCandidates(ctx context.Context, userID string) (store.TimelineCandidates, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "query_timeline"); err != nil {
		return store.TimelineCandidates{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[userID]; !ok {
		return store.TimelineCandidates{}, apperrors.NewNotFound("user", userID)
	}

	followed := make(map[string]bool)
	liked := make(map[string]bool)
	bookmarked := make(map[string]bool)
	for k := range s.edges {
		if k.source != userID {
			continue
		}
		switch k.kind {
		case store.EdgeFollowing:
			followed[k.target] = true
		case store.EdgeLiked:
			liked[k.target] = true
		case store.EdgeBookmarked:
			bookmarked[k.target] = true
		}
	}
	commented := make(map[string]bool)
	for _, c := range s.comments {
		if c.AuthorID == userID {
			commented[c.PostID] = true
		}
	}
	byFollowed := make(map[string]bool)
	for id, p := range s.posts {
		if followed[p.AuthorID] {
			byFollowed[id] = true
		}
	}

	return store.TimelineCandidates{
		FollowedPosts:   s.postSet(byFollowed),
		LikedPosts:      s.postSet(liked),
		CommentedPosts:  s.postSet(commented),
		BookmarkedPosts: s.postSet(bookmarked),
	}, nil
}

func (s *Store) postSet(ids map[string]bool) []store.Post {
	posts := make([]store.Post, 0, len(ids))
	for id := range ids {
		if p, ok := s.posts[id]; ok {
			posts = append(posts, copyPost(p))
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	return posts
}

func copyPost(p *store.Post) store.Post {
	cp := *p
	if p.Subtitle != nil {
		sub := *p.Subtitle
		cp.Subtitle = &sub
	}
	cp.UpdateHistory = append([]time.Time(nil), p.UpdateHistory...)
	return cp
}

// CreateUser adds a user node
func (s *Store) CreateUser(ctx context.Context, username, email string) (store.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "create_user"); err != nil {
		return store.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return store.User{}, apperrors.NewValidation("email", "already registered")
		}
	}
	u := &store.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     email,
		CreatedAt: s.now().UTC(),
	}
	s.users[u.ID] = u
	s.bump(nodeKey(u.ID))
	return *u, nil
}

// CreatePost adds a post node and the POSTED edge from its author
func (s *Store) CreatePost(ctx context.Context, np store.NewPost) (store.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "create_post"); err != nil {
		return store.Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[np.AuthorID]; !ok {
		return store.Post{}, apperrors.NewNotFound("user", np.AuthorID)
	}
	p := &store.Post{
		ID:          uuid.New().String(),
		AuthorID:    np.AuthorID,
		Title:       np.Title,
		Subtitle:    np.Subtitle,
		Description: np.Description,
		CreatedAt:   s.now().UTC(),
	}
	s.posts[p.ID] = p
	s.bump(nodeKey(p.ID))
	return copyPost(p), nil
}

// GetPost returns one post
func (s *Store) GetPost(ctx context.Context, postID string) (store.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "get_post"); err != nil {
		return store.Post{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[postID]
	if !ok {
		return store.Post{}, apperrors.NewNotFound("post", postID)
	}
	return copyPost(p), nil
}

// ListPosts returns every post, newest first
func (s *Store) ListPosts(ctx context.Context) ([]store.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "list_posts"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]store.Post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, copyPost(p))
	}
	newestFirst(posts)
	return posts, nil
}

// GetUser returns one user
func (s *Store) GetUser(ctx context.Context, userID string) (store.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "get_user"); err != nil {
		return store.User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return store.User{}, apperrors.NewNotFound("user", userID)
	}
	return *u, nil
}

// GetProfile collects a user's authored, liked and bookmarked posts
func (s *Store) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "get_profile"); err != nil {
		return store.Profile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return store.Profile{}, apperrors.NewNotFound("user", userID)
	}

	liked := make(map[string]bool)
	bookmarked := make(map[string]bool)
	following := 0
	for k := range s.edges {
		if k.source != userID {
			continue
		}
		switch k.kind {
		case store.EdgeLiked:
			liked[k.target] = true
		case store.EdgeBookmarked:
			bookmarked[k.target] = true
		case store.EdgeFollowing:
			following++
		}
	}
	authored := make(map[string]bool)
	for id, p := range s.posts {
		if p.AuthorID == userID {
			authored[id] = true
		}
	}

	prof := store.Profile{
		User:            *u,
		FollowingCount:  following,
		AuthoredPosts:   s.postSet(authored),
		LikedPosts:      s.postSet(liked),
		BookmarkedPosts: s.postSet(bookmarked),
	}
	newestFirst(prof.AuthoredPosts)
	newestFirst(prof.LikedPosts)
	newestFirst(prof.BookmarkedPosts)
	return prof, nil
}

func newestFirst(posts []store.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID < posts[j].ID
	})
}

// UpdatePost applies a patch and records the edit time
func (s *Store) UpdatePost(ctx context.Context, postID string, patch store.PostPatch) (store.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "update_post"); err != nil {
		return store.Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok {
		return store.Post{}, apperrors.NewNotFound("post", postID)
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Subtitle != nil {
		sub := *patch.Subtitle
		p.Subtitle = &sub
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	p.UpdateHistory = append(p.UpdateHistory, s.now().UTC())
	s.bump(nodeKey(postID))
	return copyPost(p), nil
}

// DeletePost removes a post together with its comments and incident edges
func (s *Store) DeletePost(ctx context.Context, postID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.enter(ctx, "delete_post"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		return apperrors.NewNotFound("post", postID)
	}
	for id, c := range s.comments {
		if c.PostID == postID {
			delete(s.comments, id)
			s.bump(nodeKey(id))
		}
	}
	for k := range s.edges {
		if k.target == postID || k.source == postID {
			delete(s.edges, k)
			s.bump(k.String())
		}
	}
	delete(s.posts, postID)
	s.bump(nodeKey(postID))
	return nil
}

// HasEdge reports whether source-[kind]->target is committed
func (s *Store) HasEdge(source, target string, kind store.EdgeKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.edges[edgeKey{source: source, target: target, kind: kind}]
	return ok
}

// EdgeCount counts committed edges of a kind into target
func (s *Store) EdgeCount(kind store.EdgeKind, target string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.edges {
		if k.kind == kind && k.target == target {
			n++
		}
	}
	return n
}

// CounterValue returns the committed value of a counter
func (s *Store) CounterValue(nodeID string, counter store.Counter) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.counterValue(nodeID, counter)
	return v
}
