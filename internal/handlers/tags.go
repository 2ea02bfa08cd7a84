package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"imagehive/internal/models"
)

type createTagRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h HandlerSet) CreateTag(c *gin.Context) {
	var req createTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	tag, err := h.tags.Create(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tag)
}

func (h HandlerSet) ListTags(c *gin.Context) {
	tags, err := h.tags.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if tags == nil {
		tags = []models.Tag{}
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
