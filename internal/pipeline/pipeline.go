package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imagehive/internal/apperr"
	"imagehive/internal/models"
	"imagehive/internal/queue"
	"imagehive/internal/storage"
	"imagehive/internal/transform"
)

type BlobStore interface {
	LoadOriginal(ctx context.Context, key string) (io.ReadCloser, error)
	SaveVariant(ctx context.Context, key, contentType string, data []byte) (int64, error)
	ListOriginalBatches(ctx context.Context) (map[string]time.Time, error)
	RemoveOriginalBatch(ctx context.Context, batchID string) error
}

type ImageStore interface {
	CreateBatch(ctx context.Context, images []models.Image, tagIDs []int64) ([]models.Image, error)
	BatchExists(ctx context.Context, batchID uuid.UUID) (bool, error)
}

type CompletionIndex interface {
	SetLatest(ctx context.Context, email, batchID string) error
}

// Pipeline consumes one job descriptor at a time and turns the source
// upload into N resized derivatives plus one grayscale derivative, all
// committed as a single batch. There is no idempotency key: if the
// broker redelivers a job after a crash between commit and ack, the
// batch rows are inserted again under the same uuid.
type Pipeline struct {
	blobs     BlobStore
	images    ImageStore
	index     CompletionIndex
	engine    transform.Engine
	retention time.Duration
	logger    zerolog.Logger
}

func New(blobs BlobStore, images ImageStore, index CompletionIndex, retention time.Duration, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		blobs:     blobs,
		images:    images,
		index:     index,
		engine:    transform.NewEngine(),
		retention: retention,
		logger:    logger,
	}
}

// Handle dispatches one stream message. A nil return acknowledges the
// message; terminal failures (bad descriptor, undecodable or
// untransformable image) are logged and acknowledged so the job is
// dropped rather than redelivered forever, while storage and database
// failures stay pending for the claim pass to retry.
func (p *Pipeline) Handle(ctx context.Context, msg redis.XMessage) error {
	kind, _ := msg.Values["kind"].(string)

	switch kind {
	case queue.KindDerive:
		payload, _ := msg.Values["payload"].(string)
		err := p.runDerive(ctx, []byte(payload))
		if err != nil && apperr.Terminal(err) {
			p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("job failed terminally, dropping")
			return nil
		}
		return err
	case queue.KindSweep:
		return p.sweep(ctx)
	default:
		p.logger.Warn().Str("kind", kind).Msg("unknown task kind")
		return nil
	}
}

func (p *Pipeline) runDerive(ctx context.Context, payload []byte) error {
	desc, err := models.DecodeJobDescriptor(payload)
	if err != nil {
		return err
	}

	if err := p.Process(ctx, desc); err != nil {
		return err
	}

	p.logger.Info().
		Str("batch_id", desc.BatchID).
		Str("user", desc.UserEmail).
		Int("resolutions", len(desc.Resolutions)).
		Msg("batch completed")
	return nil
}

// Process runs one job to completion: decode, generate each variant in
// descriptor order (grayscale last), write each to the blob store,
// then commit all rows plus tag links atomically and publish the batch
// id to the completion index.
func (p *Pipeline) Process(ctx context.Context, desc models.JobDescriptor) error {
	batchID, err := uuid.Parse(desc.BatchID)
	if err != nil {
		return apperr.Validationf("bad batch uuid %q", desc.BatchID)
	}

	src, err := p.blobs.LoadOriginal(ctx, desc.SourceKey)
	if err != nil {
		return err
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "read original", err)
	}

	img, format, err := p.engine.Decode(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	variants, err := p.engine.Transform(img, desc.FileName, desc.Resolutions)
	if err != nil {
		return err
	}

	rows := make([]models.Image, 0, len(variants))
	for _, v := range variants {
		encoded, err := p.engine.Encode(v.Image, format)
		if err != nil {
			return err
		}

		key := storage.VariantKey(desc.BatchID, v.Title, format)
		size, err := p.blobs.SaveVariant(ctx, key, fmt.Sprintf("image/%s", format), encoded)
		if err != nil {
			return err
		}

		rows = append(rows, models.Image{
			Title:      v.Title,
			FilePath:   key,
			Resolution: v.Label,
			SizeBytes:  size,
			BatchID:    batchID,
		})
	}

	if _, err := p.images.CreateBatch(ctx, rows, desc.TagIDs); err != nil {
		return err
	}

	return p.index.SetLatest(ctx, desc.UserEmail, desc.BatchID)
}

// sweep removes source uploads of batches that never produced rows.
// Failed jobs leave their original blob behind; this is the cleanup
// path for them.
func (p *Pipeline) sweep(ctx context.Context) error {
	batches, err := p.blobs.ListOriginalBatches(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-p.retention)
	removed := 0
	for batch, last := range batches {
		if last.After(cutoff) {
			continue
		}
		batchID, err := uuid.Parse(batch)
		if err != nil {
			continue
		}
		exists, err := p.images.BatchExists(ctx, batchID)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := p.blobs.RemoveOriginalBatch(ctx, batch); err != nil {
			return err
		}
		removed++
	}

	p.logger.Info().Int("removed", removed).Msg("orphan sweep finished")
	return nil
}
