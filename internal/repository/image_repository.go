package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"imagehive/internal/apperr"
	"imagehive/internal/models"
)

var ErrImageNotFound = apperr.New(apperr.KindNotFound, "image not found")

type ImageRepository struct {
	pool *pgxpool.Pool
}

func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// CreateBatch persists every derivative of one job plus its tag links
// in a single transaction: either all rows of the batch become visible
// or none do. Tag ids that do not resolve to existing tags are dropped.
func (r *ImageRepository) CreateBatch(ctx context.Context, images []models.Image, tagIDs []int64) ([]models.Image, error) {
	const insertImage = `
		INSERT INTO images (title, file_path, resolution, size_bytes, uuid)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	persisted := make([]models.Image, len(images))

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tags, err := resolveTags(ctx, tx, tagIDs)
		if err != nil {
			return err
		}

		for i, img := range images {
			if err := tx.QueryRow(ctx, insertImage,
				img.Title,
				img.FilePath,
				img.Resolution,
				img.SizeBytes,
				img.BatchID,
			).Scan(&img.ID, &img.CreatedAt); err != nil {
				return err
			}

			if err := linkTags(ctx, tx, img.ID, tags); err != nil {
				return err
			}

			img.Tags = tags
			persisted[i] = img
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "persist batch", err)
	}
	return persisted, nil
}

// AttachTags links the given tags to an image. Unknown ids are dropped
// and already-linked tags are not duplicated, so the call is safe to
// repeat with overlapping sets.
func (r *ImageRepository) AttachTags(ctx context.Context, imageID int64, tagIDs []int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tags, err := resolveTags(ctx, tx, tagIDs)
		if err != nil {
			return err
		}
		return linkTags(ctx, tx, imageID, tags)
	})
}

func resolveTags(ctx context.Context, tx pgx.Tx, tagIDs []int64) ([]models.Tag, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id, name FROM tags WHERE id = ANY($1) ORDER BY id
	`

	rows, err := tx.Query(ctx, query, tagIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []models.Tag
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func linkTags(ctx context.Context, tx pgx.Tx, imageID int64, tags []models.Tag) error {
	const query = `
		INSERT INTO image_tags (image_id, tag_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	for _, tag := range tags {
		if _, err := tx.Exec(ctx, query, imageID, tag.ID); err != nil {
			return err
		}
	}
	return nil
}

func (r *ImageRepository) GetByID(ctx context.Context, id int64) (models.Image, error) {
	const query = `
		SELECT id, title, file_path, resolution, size_bytes, uuid, created_at
		FROM images WHERE id = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	var img models.Image
	if err := row.Scan(
		&img.ID,
		&img.Title,
		&img.FilePath,
		&img.Resolution,
		&img.SizeBytes,
		&img.BatchID,
		&img.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrImageNotFound
		}
		return models.Image{}, err
	}

	tags, err := r.tagsForImages(ctx, []int64{img.ID})
	if err != nil {
		return models.Image{}, err
	}
	img.Tags = tags[img.ID]
	return img, nil
}

func (r *ImageRepository) List(ctx context.Context, limit, offset int) ([]models.Image, error) {
	const query = `
		SELECT id, title, file_path, resolution, size_bytes, uuid, created_at
		FROM images
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.collectWithTags(ctx, rows)
}

func (r *ImageRepository) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]models.Image, error) {
	const query = `
		SELECT id, title, file_path, resolution, size_bytes, uuid, created_at
		FROM images
		WHERE uuid = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.collectWithTags(ctx, rows)
}

func (r *ImageRepository) collectWithTags(ctx context.Context, rows pgx.Rows) ([]models.Image, error) {
	var images []models.Image
	var imageIDs []int64
	for rows.Next() {
		var img models.Image
		if err := rows.Scan(
			&img.ID,
			&img.Title,
			&img.FilePath,
			&img.Resolution,
			&img.SizeBytes,
			&img.BatchID,
			&img.CreatedAt,
		); err != nil {
			return nil, err
		}
		images = append(images, img)
		imageIDs = append(imageIDs, img.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tags, err := r.tagsForImages(ctx, imageIDs)
	if err != nil {
		return nil, err
	}
	for i := range images {
		images[i].Tags = tags[images[i].ID]
	}
	return images, nil
}

// tagsForImages loads associations eagerly in one query instead of
// relying on per-row lazy loading.
func (r *ImageRepository) tagsForImages(ctx context.Context, imageIDs []int64) (map[int64][]models.Tag, error) {
	if len(imageIDs) == 0 {
		return nil, nil
	}

	const query = `
		SELECT it.image_id, t.id, t.name
		FROM image_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.image_id = ANY($1)
		ORDER BY t.id
	`

	rows, err := r.pool.Query(ctx, query, imageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byImage := make(map[int64][]models.Tag)
	for rows.Next() {
		var imageID int64
		var tag models.Tag
		if err := rows.Scan(&imageID, &tag.ID, &tag.Name); err != nil {
			return nil, err
		}
		byImage[imageID] = append(byImage[imageID], tag)
	}
	return byImage, rows.Err()
}

func (r *ImageRepository) UpdateTitle(ctx context.Context, id int64, title string) error {
	const query = `
		UPDATE images SET title = $2 WHERE id = $1
	`

	cmd, err := r.pool.Exec(ctx, query, id, title)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

// Delete removes the image row; the join table cascades, tag rows stay.
func (r *ImageRepository) Delete(ctx context.Context, id int64) error {
	const query = `
		DELETE FROM images WHERE id = $1
	`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

// BatchExists reports whether any derivative of the batch was committed.
func (r *ImageRepository) BatchExists(ctx context.Context, batchID uuid.UUID) (bool, error) {
	const query = `
		SELECT EXISTS (SELECT 1 FROM images WHERE uuid = $1)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, batchID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
