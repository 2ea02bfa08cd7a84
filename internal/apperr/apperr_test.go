package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(New(KindValidation, "bad input")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	// Kind survives wrapping through fmt.Errorf.
	wrapped := fmt.Errorf("context: %w", New(KindTransform, "decode failed"))
	assert.Equal(t, KindTransform, KindOf(wrapped))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "bad input", MessageOf(New(KindValidation, "bad input")))
	assert.Equal(t, "internal error", MessageOf(errors.New("secret detail")))
}

func TestTerminal(t *testing.T) {
	for _, kind := range []Kind{KindValidation, KindTransform, KindNotFound, KindConflict} {
		assert.True(t, Terminal(New(kind, "x")), "kind %s", kind)
	}
	for _, kind := range []Kind{KindStorage, KindInternal} {
		assert.False(t, Terminal(New(kind, "x")), "kind %s", kind)
	}
	assert.False(t, Terminal(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(New(KindValidation, "x")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(New(KindConflict, "x")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(New(KindNotFound, "x")))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(New(KindStorage, "x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(New(KindInternal, "x")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindStorage, "save variant", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "save variant")
	assert.Contains(t, err.Error(), "root cause")
}
