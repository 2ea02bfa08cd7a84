package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"imagehive/internal/models"
)

type TagRepository struct {
	pool *pgxpool.Pool
}

func NewTagRepository(pool *pgxpool.Pool) *TagRepository {
	return &TagRepository{pool: pool}
}

func (r *TagRepository) Create(ctx context.Context, name string) (models.Tag, error) {
	const query = `
		INSERT INTO tags (name) VALUES ($1) RETURNING id
	`

	tag := models.Tag{Name: name}
	if err := r.pool.QueryRow(ctx, query, name).Scan(&tag.ID); err != nil {
		return models.Tag{}, err
	}
	return tag, nil
}

func (r *TagRepository) List(ctx context.Context) ([]models.Tag, error) {
	const query = `
		SELECT id, name FROM tags ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
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
