package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"imagehive/internal/models"
	"imagehive/internal/service"
)

type imageResponse struct {
	ID         int64        `json:"id"`
	Title      string       `json:"title"`
	FilePath   string       `json:"filePath"`
	Resolution string       `json:"resolution"`
	SizeBytes  int64        `json:"sizeBytes"`
	UUID       string       `json:"uuid"`
	CreatedAt  time.Time    `json:"createdAt"`
	Tags       []models.Tag `json:"tags"`
}

func toImageResponse(img models.Image) imageResponse {
	tags := img.Tags
	if tags == nil {
		tags = []models.Tag{}
	}
	return imageResponse{
		ID:         img.ID,
		Title:      img.Title,
		FilePath:   img.FilePath,
		Resolution: img.Resolution,
		SizeBytes:  img.SizeBytes,
		UUID:       img.BatchID.String(),
		CreatedAt:  img.CreatedAt,
		Tags:       tags,
	}
}

func toImageResponses(images []models.Image) []imageResponse {
	items := make([]imageResponse, 0, len(images))
	for _, img := range images {
		items = append(items, toImageResponse(img))
	}
	return items
}

func (h HandlerSet) ListImages(c *gin.Context) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	images, err := h.imageService.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": toImageResponses(images)})
}

// UploadImage accepts a multipart form with the source file, the
// requested resolutions and the tag ids to attach to every derivative.
func (h HandlerSet) UploadImage(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "file required"})
		return
	}
	defer file.Close()

	tagIDs, err := parseTagIDs(c.PostFormArray("tags"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "tags must be integers"})
		return
	}

	batchID, err := h.uploadService.Upload(c.Request.Context(), service.UploadInput{
		User:        user,
		File:        file,
		Header:      header,
		Resolutions: c.PostFormArray("resolutions"),
		TagIDs:      tagIDs,
	})
	if err != nil {
		h.log.Error().Err(err).Str("user", user.Email).Msg("upload failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"uuid": batchID})
}

// UploadResults answers "what did my last upload produce" from the
// completion index without blocking on the worker.
func (h HandlerSet) UploadResults(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	images, err := h.imageService.Results(c.Request.Context(), user.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": toImageResponses(images)})
}

type updateImageRequest struct {
	Title *string `json:"title"`
	Tags  []int64 `json:"tags"`
}

func (h HandlerSet) UpdateImage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "bad image id"})
		return
	}

	var req updateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error()})
		return
	}

	img, err := h.imageService.Update(c.Request.Context(), id, service.UpdateImageInput{
		Title:  req.Title,
		TagIDs: req.Tags,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toImageResponse(img))
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": "bad image id"})
		return
	}

	if err := h.imageService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func parseTagIDs(values []string) ([]int64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
