package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"imagehive/internal/apperr"
	"imagehive/internal/media/sniffer"
	"imagehive/internal/models"
)

type originalStore interface {
	SaveOriginal(ctx context.Context, batchID, filename, contentType string, src io.Reader, size int64) (string, error)
}

type jobProducer interface {
	EnqueueDerive(ctx context.Context, desc models.JobDescriptor) error
}

type UploadInput struct {
	User        models.User
	File        multipart.File
	Header      *multipart.FileHeader
	Resolutions []string
	TagIDs      []int64
}

// UploadService accepts a source image, writes it to the blob store and
// enqueues the derivative job. The request never waits for transform
// work: it returns as soon as the broker accepts the descriptor.
type UploadService struct {
	store    originalStore
	producer jobProducer
	log      zerolog.Logger
}

func NewUploadService(store originalStore, producer jobProducer, log zerolog.Logger) *UploadService {
	return &UploadService{
		store:    store,
		producer: producer,
		log:      log,
	}
}

// Upload validates the request, persists the raw bytes and enqueues the
// job descriptor. Returns the batch id shared by every derivative the
// job will produce.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (string, error) {
	if input.File == nil || input.Header == nil {
		return "", apperr.New(apperr.KindValidation, "file required")
	}

	for _, res := range input.Resolutions {
		if _, _, err := models.ParseResolution(res); err != nil {
			return "", err
		}
	}

	data, err := io.ReadAll(input.File)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", apperr.New(apperr.KindValidation, "empty file")
	}

	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	detected, err := sniffer.DetectHead(head)
	if err != nil {
		if errors.Is(err, sniffer.ErrUnknownType) {
			return "", apperr.Wrap(apperr.KindValidation, "unsupported image type", err)
		}
		return "", err
	}

	batchID := uuid.NewString()

	key, err := s.store.SaveOriginal(ctx, batchID, input.Header.Filename, detected.MIME, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	desc := models.JobDescriptor{
		BatchID:     batchID,
		SourceKey:   key,
		FileName:    fileStem(input.Header.Filename),
		UserEmail:   input.User.Email,
		Resolutions: input.Resolutions,
		TagIDs:      input.TagIDs,
	}

	if err := s.producer.EnqueueDerive(ctx, desc); err != nil {
		return "", err
	}

	s.log.Info().
		Str("batch_id", batchID).
		Str("user", input.User.Email).
		Str("format", string(detected.Type)).
		Msg("upload enqueued")

	return batchID, nil
}

func fileStem(filename string) string {
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}
