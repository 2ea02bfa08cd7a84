package pipeline

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagehive/internal/apperr"
	"imagehive/internal/models"
	"imagehive/internal/queue"
)

type fakeBlobs struct {
	source   []byte
	saved    map[string][]byte
	batches  map[string]time.Time
	removed  []string
	failSave bool
}

func (f *fakeBlobs) LoadOriginal(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.source)), nil
}

func (f *fakeBlobs) SaveVariant(ctx context.Context, key, contentType string, data []byte) (int64, error) {
	if f.failSave {
		return 0, apperr.New(apperr.KindStorage, "disk full")
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = data
	return int64(len(data)), nil
}

func (f *fakeBlobs) ListOriginalBatches(ctx context.Context) (map[string]time.Time, error) {
	return f.batches, nil
}

func (f *fakeBlobs) RemoveOriginalBatch(ctx context.Context, batchID string) error {
	f.removed = append(f.removed, batchID)
	return nil
}

type fakeImages struct {
	rows       []models.Image
	tagIDs     []int64
	committed  map[uuid.UUID]bool
	failCreate bool
}

func (f *fakeImages) CreateBatch(ctx context.Context, images []models.Image, tagIDs []int64) ([]models.Image, error) {
	if f.failCreate {
		return nil, apperr.New(apperr.KindStorage, "db down")
	}
	f.rows = append(f.rows, images...)
	f.tagIDs = tagIDs
	return images, nil
}

func (f *fakeImages) BatchExists(ctx context.Context, batchID uuid.UUID) (bool, error) {
	return f.committed[batchID], nil
}

type fakeIndex struct {
	slots map[string]string
}

func (f *fakeIndex) SetLatest(ctx context.Context, email, batchID string) error {
	if f.slots == nil {
		f.slots = make(map[string]string)
	}
	f.slots[email] = batchID
	return nil
}

func pngSource(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 10, G: 120, B: 200, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func descriptorFor(batchID string, resolutions []string) models.JobDescriptor {
	return models.JobDescriptor{
		BatchID:     batchID,
		SourceKey:   batchID + "/cat-sfx.png",
		FileName:    "cat",
		UserEmail:   "user@example.com",
		Resolutions: resolutions,
		TagIDs:      []int64{1, 2},
	}
}

func newTestPipeline(blobs *fakeBlobs, images *fakeImages, index *fakeIndex) *Pipeline {
	return New(blobs, images, index, 24*time.Hour, zerolog.Nop())
}

func TestProcessCompletesBatch(t *testing.T) {
	blobs := &fakeBlobs{source: pngSource(t, 64, 48)}
	images := &fakeImages{}
	index := &fakeIndex{}
	p := newTestPipeline(blobs, images, index)

	batchID := uuid.NewString()
	desc := descriptorFor(batchID, []string{"100x100", "500x500"})

	require.NoError(t, p.Process(context.Background(), desc))

	// N requested resolutions plus the grayscale variant.
	require.Len(t, images.rows, 3)
	for _, row := range images.rows {
		assert.Equal(t, batchID, row.BatchID.String())
		assert.Greater(t, row.SizeBytes, int64(0))
	}
	assert.Equal(t, "cat_100x100", images.rows[0].Title)
	assert.Equal(t, "100x100", images.rows[0].Resolution)
	assert.Equal(t, "cat_500x500", images.rows[1].Title)
	assert.Equal(t, "cat_L", images.rows[2].Title)
	assert.Equal(t, "64x48", images.rows[2].Resolution)

	assert.Equal(t, []int64{1, 2}, images.tagIDs)
	assert.Equal(t, batchID, index.slots["user@example.com"])

	// Variants land under the batch directory, in the source format.
	assert.Contains(t, blobs.saved, batchID+"/cat_100x100.png")
	assert.Contains(t, blobs.saved, batchID+"/cat_500x500.png")
	assert.Contains(t, blobs.saved, batchID+"/cat_L.png")
}

func TestProcessMalformedResolutionFailsWholeJob(t *testing.T) {
	blobs := &fakeBlobs{source: pngSource(t, 32, 32)}
	images := &fakeImages{}
	index := &fakeIndex{}
	p := newTestPipeline(blobs, images, index)

	desc := descriptorFor(uuid.NewString(), []string{"abcxdef"})

	err := p.Process(context.Background(), desc)
	require.Error(t, err)
	assert.True(t, apperr.Terminal(err))
	assert.Empty(t, images.rows)
	assert.Empty(t, index.slots)
}

func TestProcessPersistFailureLeavesIndexUntouched(t *testing.T) {
	blobs := &fakeBlobs{source: pngSource(t, 32, 32)}
	images := &fakeImages{failCreate: true}
	index := &fakeIndex{}
	p := newTestPipeline(blobs, images, index)

	err := p.Process(context.Background(), descriptorFor(uuid.NewString(), []string{"10x10"}))
	require.Error(t, err)
	assert.False(t, apperr.Terminal(err))
	assert.Empty(t, index.slots)
}

func TestCompletionIndexReflectsFinishingOrder(t *testing.T) {
	blobs := &fakeBlobs{source: pngSource(t, 16, 16)}
	images := &fakeImages{}
	index := &fakeIndex{}
	p := newTestPipeline(blobs, images, index)

	// Job A was submitted first but finishes second.
	batchA := uuid.NewString()
	batchB := uuid.NewString()

	require.NoError(t, p.Process(context.Background(), descriptorFor(batchB, []string{"10x10"})))
	require.NoError(t, p.Process(context.Background(), descriptorFor(batchA, []string{"10x10"})))

	assert.Equal(t, batchA, index.slots["user@example.com"])
}

func TestHandleDerive(t *testing.T) {
	blobs := &fakeBlobs{source: pngSource(t, 16, 16)}
	images := &fakeImages{}
	index := &fakeIndex{}
	p := newTestPipeline(blobs, images, index)

	desc := descriptorFor(uuid.NewString(), []string{"10x10"})
	payload, err := desc.Encode()
	require.NoError(t, err)

	msg := redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"kind": queue.KindDerive, "payload": string(payload)},
	}

	require.NoError(t, p.Handle(context.Background(), msg))
	assert.Len(t, images.rows, 2)
}

func TestHandleDropsTerminalFailures(t *testing.T) {
	blobs := &fakeBlobs{source: []byte("not an image")}
	images := &fakeImages{}
	index := &fakeIndex{}
	p := newTestPipeline(blobs, images, index)

	desc := descriptorFor(uuid.NewString(), []string{"10x10"})
	payload, err := desc.Encode()
	require.NoError(t, err)

	msg := redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"kind": queue.KindDerive, "payload": string(payload)},
	}

	// Undecodable source is terminal: acked (nil) so it is not
	// redelivered forever, and nothing was committed.
	require.NoError(t, p.Handle(context.Background(), msg))
	assert.Empty(t, images.rows)
	assert.Empty(t, index.slots)
}

func TestHandleReturnsRetryableFailures(t *testing.T) {
	blobs := &fakeBlobs{source: pngSource(t, 16, 16), failSave: true}
	images := &fakeImages{}
	index := &fakeIndex{}
	p := newTestPipeline(blobs, images, index)

	desc := descriptorFor(uuid.NewString(), []string{"10x10"})
	payload, err := desc.Encode()
	require.NoError(t, err)

	msg := redis.XMessage{
		ID:     "1-0",
		Values: map[string]interface{}{"kind": queue.KindDerive, "payload": string(payload)},
	}

	require.Error(t, p.Handle(context.Background(), msg))
}

func TestHandleUnknownKind(t *testing.T) {
	p := newTestPipeline(&fakeBlobs{}, &fakeImages{}, &fakeIndex{})

	msg := redis.XMessage{ID: "1-0", Values: map[string]interface{}{"kind": "mystery"}}
	require.NoError(t, p.Handle(context.Background(), msg))
}

func TestSweepRemovesOldOrphansOnly(t *testing.T) {
	committed := uuid.New()
	orphanOld := uuid.New()
	orphanFresh := uuid.New()

	blobs := &fakeBlobs{
		batches: map[string]time.Time{
			committed.String():   time.Now().Add(-48 * time.Hour),
			orphanOld.String():   time.Now().Add(-48 * time.Hour),
			orphanFresh.String(): time.Now(),
			"not-a-uuid":         time.Now().Add(-48 * time.Hour),
		},
	}
	images := &fakeImages{committed: map[uuid.UUID]bool{committed: true}}
	p := newTestPipeline(blobs, images, &fakeIndex{})

	msg := redis.XMessage{ID: "1-0", Values: map[string]interface{}{"kind": queue.KindSweep}}
	require.NoError(t, p.Handle(context.Background(), msg))

	assert.Equal(t, []string{orphanOld.String()}, blobs.removed)
}
