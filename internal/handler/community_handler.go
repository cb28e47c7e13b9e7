package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skillbridge/lms-api/internal/models"
	"github.com/skillbridge/lms-api/internal/service"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
	"github.com/skillbridge/lms-api/pkg/response"
)

// CommunityHandler exposes one community collection (forum, blog or events).
// The same handler serves all three kinds; routes bind a kind each.
type CommunityHandler struct {
	community *service.CommunityService
	kind      models.PostKind
}

// NewCommunityHandler constructs a handler bound to one post kind.
func NewCommunityHandler(community *service.CommunityService, kind models.PostKind) *CommunityHandler {
	return &CommunityHandler{community: community, kind: kind}
}

// List godoc
// @Summary List posts
// @Tags Community
// @Produce json
// @Param authorId query string false "Filter by author"
// @Param search query string false "Search title and body"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /forum [get]
func (h *CommunityHandler) List(c *gin.Context) {
	var filter models.PostFilter
	filter.AuthorID = c.Query("authorId")
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	if status := strings.ToUpper(c.Query("status")); status != "" {
		filter.Status = models.PostStatus(status)
	}

	posts, pagination, err := h.community.List(c.Request.Context(), claimsFromContext(c), h.kind, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, posts, pagination)
}

// Create godoc
// @Summary Create post
// @Tags Community
// @Accept json
// @Produce json
// @Param payload body service.CreatePostRequest true "Post payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forum [post]
func (h *CommunityHandler) Create(c *gin.Context) {
	var req service.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	post, err := h.community.Create(c.Request.Context(), claimsFromContext(c), h.kind, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

// Get godoc
// @Summary Get post
// @Tags Community
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forum/{id} [get]
func (h *CommunityHandler) Get(c *gin.Context) {
	post, err := h.community.Get(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Update godoc
// @Summary Update post
// @Tags Community
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body service.UpdatePostRequest true "Post payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forum/{id} [put]
func (h *CommunityHandler) Update(c *gin.Context) {
	var req service.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	post, err := h.community.Update(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Publish godoc
// @Summary Publish post
// @Tags Community
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forum/{id}/publish [post]
func (h *CommunityHandler) Publish(c *gin.Context) {
	post, err := h.community.Publish(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, post, nil)
}

// Delete godoc
// @Summary Delete post
// @Tags Community
// @Produce json
// @Param id path string true "Post ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forum/{id} [delete]
func (h *CommunityHandler) Delete(c *gin.Context) {
	if err := h.community.Delete(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ToggleLike godoc
// @Summary Toggle like
// @Description Flip the caller's like; toggling twice restores the original state
// @Tags Community
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Router /forum/{id}/like [post]
func (h *CommunityHandler) ToggleLike(c *gin.Context) {
	state, err := h.community.ToggleLike(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// ListComments godoc
// @Summary List comments
// @Tags Community
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Router /forum/{id}/comments [get]
func (h *CommunityHandler) ListComments(c *gin.Context) {
	comments, err := h.community.ListComments(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// AddComment godoc
// @Summary Add comment
// @Tags Community
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body service.CreateCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Router /forum/{id}/comments [post]
func (h *CommunityHandler) AddComment(c *gin.Context) {
	var req service.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	comment, err := h.community.AddComment(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// DeleteComment godoc
// @Summary Delete comment
// @Tags Community
// @Produce json
// @Param id path string true "Post ID"
// @Param commentId path string true "Comment ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /forum/{id}/comments/{commentId} [delete]
func (h *CommunityHandler) DeleteComment(c *gin.Context) {
	if err := h.community.DeleteComment(c.Request.Context(), claimsFromContext(c), h.kind, c.Param("id"), c.Param("commentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Register godoc
// @Summary Register for event
// @Tags Community
// @Produce json
// @Param id path string true "Event ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/register [post]
func (h *CommunityHandler) Register(c *gin.Context) {
	registration, err := h.community.Register(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registration)
}

// Unregister godoc
// @Summary Cancel event registration
// @Tags Community
// @Produce json
// @Param id path string true "Event ID"
// @Success 204 {object} response.Envelope
// @Router /events/{id}/register [delete]
func (h *CommunityHandler) Unregister(c *gin.Context) {
	if err := h.community.Unregister(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
