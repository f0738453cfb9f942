package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"graphfeed/backend/internal/store"
	"graphfeed/backend/internal/toggle"
	apperrors "graphfeed/backend/pkg/errors"
)

// fail writes err with the status its type maps to. Server-side failures are
// logged; caller mistakes are not.
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	_ = c.Error(err)
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"type":  apperrors.TypeOf(err),
	})
}

func (h *Handlers) toggleRelation(c *gin.Context) {
	kind, err := toggle.ParseKind(c.Param("kind"))
	if err != nil {
		h.fail(c, "Invalid toggle kind", err)
		return
	}

	var req struct {
		ActorID  string `json:"actor_id" binding:"required"`
		TargetID string `json:"target_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Toggler.Toggle(c.Request.Context(), req.ActorID, req.TargetID, kind)
	if err != nil {
		h.fail(c, "Failed to toggle relation", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) getThread(c *gin.Context) {
	t, err := h.Threads.BuildThreads(c.Request.Context(), c.Param("postId"))
	if err != nil {
		h.fail(c, "Failed to build thread", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type commentRequest struct {
	AuthorID string `json:"author_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

func (h *Handlers) createComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.Threads.Comment(c.Request.Context(), c.Param("postId"), req.AuthorID, req.Text)
	if err != nil {
		h.fail(c, "Failed to create comment", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handlers) createReply(c *gin.Context) {
	var req struct {
		commentRequest
		PostID string `json:"post_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.Threads.Reply(c.Request.Context(), req.PostID, c.Param("commentId"), req.AuthorID, req.Text)
	if err != nil {
		h.fail(c, "Failed to create reply", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handlers) deleteComment(c *gin.Context) {
	commentID := c.Param("commentId")
	postID, err := h.Threads.Delete(c.Request.Context(), commentID)
	if err != nil {
		h.fail(c, "Failed to delete comment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "comment_id": commentID, "post_id": postID})
}

func (h *Handlers) getTimeline(c *gin.Context) {
	userID := c.Query("user_id")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(c, "Invalid limit", apperrors.NewValidation("limit", "must be an integer"))
			return
		}
		limit = n
	}

	entries, err := h.Timeline.Rank(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, "Failed to rank timeline", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "entries": entries})
}

func (h *Handlers) createUser(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.Content.RegisterUser(c.Request.Context(), req.Username, req.Email)
	if err != nil {
		h.fail(c, "Failed to register user", err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handlers) createPost(c *gin.Context) {
	var req struct {
		AuthorID    string  `json:"author_id" binding:"required"`
		Title       string  `json:"title" binding:"required"`
		Subtitle    *string `json:"subtitle"`
		Description string  `json:"description" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.Content.Publish(c.Request.Context(), req.AuthorID, req.Title, req.Subtitle, req.Description)
	if err != nil {
		h.fail(c, "Failed to publish post", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handlers) getPost(c *gin.Context) {
	p, err := h.Content.Get(c.Request.Context(), c.Param("postId"))
	if err != nil {
		h.fail(c, "Failed to fetch post", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) listPosts(c *gin.Context) {
	posts, err := h.Content.List(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list posts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (h *Handlers) getUser(c *gin.Context) {
	u, err := h.Content.User(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, "Failed to fetch user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handlers) getProfile(c *gin.Context) {
	prof, err := h.Content.Profile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.fail(c, "Failed to fetch profile", err)
		return
	}
	c.JSON(http.StatusOK, prof)
}

func (h *Handlers) updatePost(c *gin.Context) {
	var req struct {
		Title       *string `json:"title"`
		Subtitle    *string `json:"subtitle"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.Content.Edit(c.Request.Context(), c.Param("postId"), store.PostPatch{
		Title:       req.Title,
		Subtitle:    req.Subtitle,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, "Failed to edit post", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) deletePost(c *gin.Context) {
	postID := c.Param("postId")
	if err := h.Content.Delete(c.Request.Context(), postID); err != nil {
		h.fail(c, "Failed to delete post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "post_id": postID})
}
