package service

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"mime/multipart"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagehive/internal/apperr"
	"imagehive/internal/models"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func uploadFile(t *testing.T, data []byte, name string) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	return memFile{bytes.NewReader(data)}, &multipart.FileHeader{Filename: name, Size: int64(len(data))}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(8, 8, color.NRGBA{R: 1, G: 2, B: 3, A: 255}), imaging.PNG))
	return buf.Bytes()
}

type fakeOriginalStore struct {
	key      string
	saved    []byte
	mime     string
	failSave bool
}

func (f *fakeOriginalStore) SaveOriginal(ctx context.Context, batchID, filename, contentType string, src io.Reader, size int64) (string, error) {
	if f.failSave {
		return "", apperr.New(apperr.KindStorage, "bucket unavailable")
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	f.saved = data
	f.mime = contentType
	f.key = batchID + "/" + filename
	return f.key, nil
}

type fakeProducer struct {
	jobs []models.JobDescriptor
}

func (f *fakeProducer) EnqueueDerive(ctx context.Context, desc models.JobDescriptor) error {
	f.jobs = append(f.jobs, desc)
	return nil
}

func testUser() models.User {
	return models.User{ID: "usr", Email: "user@example.com"}
}

func TestUploadEnqueuesDescriptor(t *testing.T) {
	store := &fakeOriginalStore{}
	producer := &fakeProducer{}
	svc := NewUploadService(store, producer, zerolog.Nop())

	file, header := uploadFile(t, pngBytes(t), "cat.png")
	batchID, err := svc.Upload(context.Background(), UploadInput{
		User:        testUser(),
		File:        file,
		Header:      header,
		Resolutions: []string{"100x100", "500x500"},
		TagIDs:      []int64{1, 2},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(batchID)
	require.NoError(t, err)

	require.Len(t, producer.jobs, 1)
	desc := producer.jobs[0]
	assert.Equal(t, batchID, desc.BatchID)
	assert.Equal(t, store.key, desc.SourceKey)
	assert.Equal(t, "cat", desc.FileName)
	assert.Equal(t, "user@example.com", desc.UserEmail)
	assert.Equal(t, []string{"100x100", "500x500"}, desc.Resolutions)
	assert.Equal(t, []int64{1, 2}, desc.TagIDs)

	assert.Equal(t, "image/png", store.mime)
	assert.NotEmpty(t, store.saved)
}

func TestUploadRejectsMissingFile(t *testing.T) {
	store := &fakeOriginalStore{}
	producer := &fakeProducer{}
	svc := NewUploadService(store, producer, zerolog.Nop())

	_, err := svc.Upload(context.Background(), UploadInput{User: testUser()})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, producer.jobs)
}

func TestUploadRejectsMalformedResolution(t *testing.T) {
	store := &fakeOriginalStore{}
	producer := &fakeProducer{}
	svc := NewUploadService(store, producer, zerolog.Nop())

	file, header := uploadFile(t, pngBytes(t), "cat.png")
	_, err := svc.Upload(context.Background(), UploadInput{
		User:        testUser(),
		File:        file,
		Header:      header,
		Resolutions: []string{"100x100", "abcxdef"},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// Rejected before anything was stored or enqueued.
	assert.Empty(t, store.saved)
	assert.Empty(t, producer.jobs)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	svc := NewUploadService(&fakeOriginalStore{}, &fakeProducer{}, zerolog.Nop())

	file, header := uploadFile(t, nil, "cat.png")
	_, err := svc.Upload(context.Background(), UploadInput{User: testUser(), File: file, Header: header})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUploadRejectsNonImagePayload(t *testing.T) {
	producer := &fakeProducer{}
	svc := NewUploadService(&fakeOriginalStore{}, producer, zerolog.Nop())

	file, header := uploadFile(t, []byte("<html>not an image</html>"), "cat.png")
	_, err := svc.Upload(context.Background(), UploadInput{User: testUser(), File: file, Header: header})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Empty(t, producer.jobs)
}

func TestUploadSurfacesStoreFailure(t *testing.T) {
	producer := &fakeProducer{}
	svc := NewUploadService(&fakeOriginalStore{failSave: true}, producer, zerolog.Nop())

	file, header := uploadFile(t, pngBytes(t), "cat.png")
	_, err := svc.Upload(context.Background(), UploadInput{User: testUser(), File: file, Header: header})
	require.Error(t, err)
	assert.Equal(t, apperr.KindStorage, apperr.KindOf(err))
	assert.Empty(t, producer.jobs)
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "cat", fileStem("cat.png"))
	assert.Equal(t, "cat", fileStem("uploads/cat.png"))
	assert.Equal(t, "archive.tar", fileStem("archive.tar.gz"))
	assert.Equal(t, "readme", fileStem("readme"))
}
