package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"imagehive/internal/apperr"
)

// Index maps a user identity to the batch id of their most recently
// *completed* job. Last write wins: a late-finishing earlier job can
// overwrite a later job's slot, and only the latest batch is
// discoverable.
type Index struct {
	client *redis.Client
}

func NewIndex(client *redis.Client) *Index {
	return &Index{client: client}
}

func key(email string) string {
	return fmt.Sprintf("results:%s", email)
}

func (i *Index) SetLatest(ctx context.Context, email, batchID string) error {
	if err := i.client.Set(ctx, key(email), batchID, 0).Err(); err != nil {
		return apperr.Wrap(apperr.KindStorage, "set completion index", err)
	}
	return nil
}

// Latest returns the stored batch id, or "" when the user has no
// completed job yet.
func (i *Index) Latest(ctx context.Context, email string) (string, error) {
	val, err := i.client.Get(ctx, key(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, "read completion index", err)
	}
	return val, nil
}
