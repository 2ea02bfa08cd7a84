package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"imagehive/internal/apperr"
)

// JobDescriptor is the wire contract between the API and the worker.
// Field names are stable across versions for queue compatibility; do
// not rename them.
type JobDescriptor struct {
	BatchID     string   `json:"uuid"`
	SourceKey   string   `json:"source_key"`
	FileName    string   `json:"file_name"`
	UserEmail   string   `json:"user_email"`
	Resolutions []string `json:"resolutions"`
	TagIDs      []int64  `json:"tags"`
}

func (d JobDescriptor) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal job descriptor: %w", err)
	}
	return data, nil
}

// DecodeJobDescriptor deserializes a queue payload, rejecting unknown
// fields and validating the schema before any field is trusted.
func DecodeJobDescriptor(payload []byte) (JobDescriptor, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var d JobDescriptor
	if err := dec.Decode(&d); err != nil {
		return JobDescriptor{}, apperr.Wrap(apperr.KindValidation, "malformed job descriptor", err)
	}
	if err := d.Validate(); err != nil {
		return JobDescriptor{}, err
	}
	return d, nil
}

func (d JobDescriptor) Validate() error {
	if _, err := uuid.Parse(d.BatchID); err != nil {
		return apperr.Validationf("job descriptor: bad batch uuid %q", d.BatchID)
	}
	if d.SourceKey == "" {
		return apperr.New(apperr.KindValidation, "job descriptor: source_key required")
	}
	if d.FileName == "" {
		return apperr.New(apperr.KindValidation, "job descriptor: file_name required")
	}
	if d.UserEmail == "" {
		return apperr.New(apperr.KindValidation, "job descriptor: user_email required")
	}
	for _, res := range d.Resolutions {
		if _, _, err := ParseResolution(res); err != nil {
			return err
		}
	}
	return nil
}

// ParseResolution splits a "WxH" string into positive width and height.
func ParseResolution(s string) (int, int, error) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, apperr.Validationf("resolution %q: want WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, apperr.Validationf("resolution %q: bad width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, apperr.Validationf("resolution %q: bad height", s)
	}
	return width, height, nil
}
