package models

import (
	"time"

	"github.com/google/uuid"
)

// Image is one stored derivative. Every row produced by a single upload
// job shares the job's batch uuid; one row exists per requested
// resolution plus one for the grayscale variant.
type Image struct {
	ID         int64
	Title      string
	FilePath   string
	Resolution string
	SizeBytes  int64
	BatchID    uuid.UUID
	CreatedAt  time.Time
	Tags       []Tag
}
