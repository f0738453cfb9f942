package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"graphfeed/backend/internal/store"
)

// ============================================================================
// Record decoding
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getOptionalStringFromRecord(record *neo4j.Record, key string) *string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	if str, ok := val.(string); ok {
		return &str
	}
	return nil
}

func getIntFromRecord(record *neo4j.Record, key string) int {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	return toInt(val)
}

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	return toTime(val)
}

func getMapFromRecord(record *neo4j.Record, key string) map[string]any {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	m, _ := val.(map[string]any)
	return m
}

func getStringFromMap(m map[string]any, key string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func toInt(val any) int {
	switch v := val.(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func toTime(val any) time.Time {
	switch v := val.(type) {
	case time.Time:
		return v.UTC()
	case neo4j.LocalDateTime:
		return v.Time().UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func decodeUser(m map[string]any) store.User {
	return store.User{
		ID:            getStringFromMap(m, "id"),
		Username:      getStringFromMap(m, "username"),
		Email:         getStringFromMap(m, "email"),
		FollowerCount: toInt(m["followerCount"]),
		CreatedAt:     toTime(m["createdAt"]),
	}
}

func decodePost(m map[string]any) store.Post {
	p := store.Post{
		ID:            getStringFromMap(m, "id"),
		AuthorID:      getStringFromMap(m, "authorId"),
		Title:         getStringFromMap(m, "title"),
		Description:   getStringFromMap(m, "description"),
		CreatedAt:     toTime(m["createdAt"]),
		LikeCount:     toInt(m["likeCount"]),
		BookmarkCount: toInt(m["bookmarkCount"]),
		CommentCount:  toInt(m["commentCount"]),
	}
	if sub, ok := m["subtitle"].(string); ok {
		p.Subtitle = &sub
	}
	if history, ok := m["updateHistory"].([]any); ok {
		p.UpdateHistory = make([]time.Time, 0, len(history))
		for _, h := range history {
			if t := toTime(h); !t.IsZero() {
				p.UpdateHistory = append(p.UpdateHistory, t)
			}
		}
	}
	return p
}

func decodePosts(val any) []store.Post {
	list, ok := val.([]any)
	if !ok {
		return []store.Post{}
	}
	posts := make([]store.Post, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok && m["id"] != nil {
			posts = append(posts, decodePost(m))
		}
	}
	return posts
}

func decodeComment(record *neo4j.Record, postID string) store.CommentRecord {
	return store.CommentRecord{
		ID:             getStringFromRecord(record, "id"),
		PostID:         postID,
		Text:           getStringFromRecord(record, "text"),
		CreatedAt:      getTimeFromRecord(record, "created_at"),
		AuthorID:       getStringFromRecord(record, "author_id"),
		AuthorUsername: getStringFromRecord(record, "author_username"),
		ParentID:       getOptionalStringFromRecord(record, "parent_id"),
		Depth:          getIntFromRecord(record, "depth"),
	}
}
