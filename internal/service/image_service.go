package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagehive/internal/models"
)

type imageStore interface {
	GetByID(ctx context.Context, id int64) (models.Image, error)
	List(ctx context.Context, limit, offset int) ([]models.Image, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Image, error)
	UpdateTitle(ctx context.Context, id int64, title string) error
	AttachTags(ctx context.Context, imageID int64, tagIDs []int64) error
	Delete(ctx context.Context, id int64) error
}

type variantRemover interface {
	RemoveVariant(ctx context.Context, key string) error
}

type completionIndex interface {
	Latest(ctx context.Context, email string) (string, error)
}

type ImageService struct {
	images imageStore
	blobs  variantRemover
	index  completionIndex
	log    zerolog.Logger
}

func NewImageService(images imageStore, blobs variantRemover, index completionIndex, log zerolog.Logger) *ImageService {
	return &ImageService{
		images: images,
		blobs:  blobs,
		index:  index,
		log:    log,
	}
}

func (s *ImageService) Get(ctx context.Context, id int64) (models.Image, error) {
	return s.images.GetByID(ctx, id)
}

func (s *ImageService) List(ctx context.Context, limit, offset int) ([]models.Image, error) {
	return s.images.List(ctx, limit, offset)
}

// Results returns the derivatives of the caller's most recently
// completed job, or an empty slice when no job has finished yet.
func (s *ImageService) Results(ctx context.Context, email string) ([]models.Image, error) {
	latest, err := s.index.Latest(ctx, email)
	if err != nil {
		return nil, err
	}
	if latest == "" {
		return nil, nil
	}

	batchID, err := uuid.Parse(latest)
	if err != nil {
		return nil, nil
	}
	return s.images.ListByBatch(ctx, batchID)
}

type UpdateImageInput struct {
	Title  *string
	TagIDs []int64
}

// Update changes the title and/or extends the tag set. Only tag ids not
// already attached are inserted; existing associations stay untouched.
func (s *ImageService) Update(ctx context.Context, id int64, input UpdateImageInput) (models.Image, error) {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return models.Image{}, err
	}

	if len(input.TagIDs) > 0 {
		attached := make(map[int64]struct{}, len(img.Tags))
		for _, tag := range img.Tags {
			attached[tag.ID] = struct{}{}
		}

		var added []int64
		for _, id := range input.TagIDs {
			if _, ok := attached[id]; !ok {
				added = append(added, id)
			}
		}

		if len(added) > 0 {
			if err := s.images.AttachTags(ctx, img.ID, added); err != nil {
				return models.Image{}, err
			}
		}
	}

	if input.Title != nil && *input.Title != "" {
		if err := s.images.UpdateTitle(ctx, img.ID, *input.Title); err != nil {
			return models.Image{}, err
		}
	}

	return s.images.GetByID(ctx, id)
}

// Delete removes the stored blob and the image row; tag associations
// cascade with the row, the tags themselves survive.
func (s *ImageService) Delete(ctx context.Context, id int64) error {
	img, err := s.images.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.blobs.RemoveVariant(ctx, img.FilePath); err != nil {
		return err
	}

	return s.images.Delete(ctx, id)
}
