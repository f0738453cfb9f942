package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"graphfeed/backend/internal/store"
	apperrors "graphfeed/backend/pkg/errors"
)

// endpoints fixes the node labels on either side of each edge kind so every
// pattern can use the label indexes.
var endpoints = map[store.EdgeKind][2]store.Label{
	store.EdgeLiked:      {store.LabelUser, store.LabelPost},
	store.EdgeBookmarked: {store.LabelUser, store.LabelPost},
	store.EdgeFollowing:  {store.LabelUser, store.LabelUser},
	store.EdgePosted:     {store.LabelUser, store.LabelPost},
	store.EdgeWrote:      {store.LabelUser, store.LabelComment},
	store.EdgeOn:         {store.LabelComment, store.LabelPost},
	store.EdgeRepliedTo:  {store.LabelComment, store.LabelComment},
}

// neoTx adapts a managed transaction to store.Tx
type neoTx struct {
	tx   neo4j.ManagedTransaction
	repo *Repository
}

func (t *neoTx) run(ctx context.Context, op, query string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, t.repo.classify(ctx, op, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, t.repo.classify(ctx, op, err)
	}
	return records, nil
}

func (t *neoTx) NodeLabel(ctx context.Context, id string) (store.Label, error) {
	query := `
		MATCH (n)
		WHERE (n:User OR n:Post OR n:Comment) AND n.id = $id
		RETURN [l IN labels(n) WHERE l IN ['User', 'Post', 'Comment']][0] AS label
		LIMIT 1
	`
	records, err := t.run(ctx, "node label", query, map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", apperrors.NewNotFound("node", id)
	}
	return store.Label(getStringFromRecord(records[0], "label")), nil
}

func (t *neoTx) LockNode(ctx context.Context, id string) error {
	// Writing a property takes the node's write lock until the transaction ends.
	query := `
		MATCH (n)
		WHERE (n:User OR n:Post OR n:Comment) AND n.id = $id
		SET n._lock = true
		REMOVE n._lock
		RETURN count(n) AS locked
	`
	records, err := t.run(ctx, "lock node", query, map[string]any{"id": id})
	if err != nil {
		return err
	}
	if len(records) == 0 || getIntFromRecord(records[0], "locked") == 0 {
		return apperrors.NewNotFound("node", id)
	}
	return nil
}

func edgePattern(kind store.EdgeKind) (string, error) {
	ends, ok := endpoints[kind]
	if !ok {
		return "", apperrors.NewValidation("kind", fmt.Sprintf("unknown edge kind %q", kind))
	}
	return fmt.Sprintf("(a:%s {id: $source})-[r:%s]->(b:%s {id: $target})", ends[0], kind, ends[1]), nil
}

func (t *neoTx) FindEdge(ctx context.Context, source, target string, kind store.EdgeKind) (*store.EdgeRef, error) {
	pattern, err := edgePattern(kind)
	if err != nil {
		return nil, err
	}
	query := "MATCH " + pattern + " RETURN elementId(r) AS ref LIMIT 1"
	records, err := t.run(ctx, "find edge", query, map[string]any{"source": source, "target": target})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &store.EdgeRef{
		Ref:    getStringFromRecord(records[0], "ref"),
		Source: source,
		Target: target,
		Kind:   kind,
	}, nil
}

func (t *neoTx) CreateEdge(ctx context.Context, source, target string, kind store.EdgeKind) (store.EdgeRef, error) {
	ends, ok := endpoints[kind]
	if !ok {
		return store.EdgeRef{}, apperrors.NewValidation("kind", fmt.Sprintf("unknown edge kind %q", kind))
	}
	query := fmt.Sprintf(`
		MATCH (a:%s {id: $source}), (b:%s {id: $target})
		CREATE (a)-[r:%s {createdAt: datetime()}]->(b)
		RETURN elementId(r) AS ref
	`, ends[0], ends[1], kind)
	records, err := t.run(ctx, "create edge", query, map[string]any{"source": source, "target": target})
	if err != nil {
		return store.EdgeRef{}, err
	}
	if len(records) == 0 {
		return store.EdgeRef{}, apperrors.NewNotFound("node", source+" or "+target)
	}
	return store.EdgeRef{
		Ref:    getStringFromRecord(records[0], "ref"),
		Source: source,
		Target: target,
		Kind:   kind,
	}, nil
}

func (t *neoTx) DeleteEdge(ctx context.Context, ref store.EdgeRef) error {
	query := `
		MATCH ()-[r]->()
		WHERE elementId(r) = $ref
		DELETE r
		RETURN count(*) AS deleted
	`
	records, err := t.run(ctx, "delete edge", query, map[string]any{"ref": ref.Ref})
	if err != nil {
		return err
	}
	if len(records) == 0 || getIntFromRecord(records[0], "deleted") == 0 {
		return apperrors.NewNotFound("edge", ref.Ref)
	}
	return nil
}

func (t *neoTx) IncrementCounter(ctx context.Context, nodeID string, counter store.Counter, delta int) (int, error) {
	if !counter.Valid() {
		return 0, apperrors.NewValidation("counter", string(counter))
	}
	label := store.LabelPost
	if counter == store.CounterFollowers {
		label = store.LabelUser
	}
	query := fmt.Sprintf(`
		MATCH (n:%[1]s {id: $id})
		WITH n, coalesce(n.%[2]s, 0) + $delta AS next
		SET n.%[2]s = CASE WHEN next < 0 THEN 0 ELSE next END
		RETURN n.%[2]s AS value
	`, label, counter)
	records, err := t.run(ctx, "increment counter", query, map[string]any{"id": nodeID, "delta": delta})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, apperrors.NewNotFound(string(label), nodeID)
	}
	return getIntFromRecord(records[0], "value"), nil
}

func (t *neoTx) CreateComment(ctx context.Context, nc store.NewComment) (store.CommentRecord, error) {
	params := map[string]any{
		"id":       uuid.New().String(),
		"authorID": nc.AuthorID,
		"postID":   nc.PostID,
		"text":     nc.Text,
	}

	match := "MATCH (u:User {id: $authorID}), (p:Post {id: $postID})"
	reply := ""
	if nc.ParentID != nil {
		params["parentID"] = *nc.ParentID
		match = "MATCH (u:User {id: $authorID}), (p:Post {id: $postID}), (parent:Comment {id: $parentID})-[:ON]->(p)"
		reply = "CREATE (c)-[:REPLIED_TO]->(parent)"
	}

	query := match + `
		CREATE (c:Comment {id: $id, text: $text, createdAt: datetime()})
		CREATE (u)-[:WROTE]->(c)
		CREATE (c)-[:ON]->(p)
		` + reply + `
		RETURN c.id AS id, c.text AS text, c.createdAt AS created_at,
		       u.id AS author_id, u.username AS author_username
	`
	records, err := t.run(ctx, "create comment", query, params)
	if err != nil {
		return store.CommentRecord{}, err
	}
	if len(records) == 0 {
		return store.CommentRecord{}, t.missingForComment(ctx, nc)
	}

	rec := decodeComment(records[0], nc.PostID)
	rec.ParentID = nc.ParentID
	if nc.ParentID != nil {
		depth, err := t.depth(ctx, rec.ID)
		if err != nil {
			return store.CommentRecord{}, err
		}
		rec.Depth = depth
	}
	return rec, nil
}

// missingForComment works out which endpoint made a comment insert match nothing
func (t *neoTx) missingForComment(ctx context.Context, nc store.NewComment) error {
	if l, err := t.NodeLabel(ctx, nc.AuthorID); err != nil || l != store.LabelUser {
		return apperrors.NewNotFound("user", nc.AuthorID)
	}
	if l, err := t.NodeLabel(ctx, nc.PostID); err != nil || l != store.LabelPost {
		return apperrors.NewNotFound("post", nc.PostID)
	}
	if nc.ParentID != nil {
		if l, err := t.NodeLabel(ctx, *nc.ParentID); err != nil || l != store.LabelComment {
			return apperrors.NewNotFound("comment", *nc.ParentID)
		}
		return apperrors.NewValidation("parentCommentId", "parent comment belongs to another post")
	}
	return apperrors.NewNotFound("post", nc.PostID)
}

func (t *neoTx) depth(ctx context.Context, commentID string) (int, error) {
	query := `
		MATCH path = (c:Comment {id: $id})-[:REPLIED_TO*0..]->(root:Comment)
		WHERE NOT (root)-[:REPLIED_TO]->(:Comment)
		RETURN min(length(path)) AS depth
	`
	records, err := t.run(ctx, "comment depth", query, map[string]any{"id": commentID})
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	return getIntFromRecord(records[0], "depth"), nil
}

func (t *neoTx) CommentPost(ctx context.Context, commentID string) (string, error) {
	query := `
		MATCH (c:Comment {id: $id})-[:ON]->(p:Post)
		RETURN p.id AS post_id
		LIMIT 1
	`
	records, err := t.run(ctx, "comment post", query, map[string]any{"id": commentID})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", apperrors.NewNotFound("comment", commentID)
	}
	return getStringFromRecord(records[0], "post_id"), nil
}

func (t *neoTx) DeleteComment(ctx context.Context, commentID string) error {
	query := `
		MATCH (c:Comment {id: $id})
		DETACH DELETE c
		RETURN count(*) AS deleted
	`
	records, err := t.run(ctx, "delete comment", query, map[string]any{"id": commentID})
	if err != nil {
		return err
	}
	if len(records) == 0 || getIntFromRecord(records[0], "deleted") == 0 {
		return apperrors.NewNotFound("comment", commentID)
	}
	return nil
}
