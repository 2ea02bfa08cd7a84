package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadKey(t *testing.T) {
	key := UploadKey("batch-1", "cat.png", "sfx")
	assert.Equal(t, "batch-1/cat-sfx.png", key)

	// Suffix lands in the stem, the extension stays last.
	assert.True(t, strings.HasSuffix(key, ".png"))

	// Identical filenames with different suffixes never collide.
	other := UploadKey("batch-1", "cat.png", "other")
	assert.NotEqual(t, key, other)
}

func TestUploadKeyNoExtension(t *testing.T) {
	assert.Equal(t, "b/readme-sfx", UploadKey("b", "readme", "sfx"))
}

func TestUploadKeyStripsDirectories(t *testing.T) {
	assert.Equal(t, "b/cat-sfx.png", UploadKey("b", "upload/tmp/cat.png", "sfx"))
}

func TestVariantKey(t *testing.T) {
	assert.Equal(t, "batch-1/cat_100x100.png", VariantKey("batch-1", "cat_100x100", "png"))
	assert.Equal(t, "batch-1/cat_L.jpeg", VariantKey("batch-1", "cat_L", "jpeg"))
}
