package sniffer

import (
	"bytes"
	"errors"
)

// MediaType names a raster format the transform engine can both decode
// and re-encode. Anything else is rejected at the upload boundary.
type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeBMP  MediaType = "bmp"
	TypeTIFF MediaType = "tiff"
)

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

func DetectHead(head []byte) (Result, error) {
	if len(head) == 0 {
		return Result{}, ErrUnknownType
	}

	if isJPEG(head) {
		return Result{Type: TypeJPEG, MIME: "image/jpeg"}, nil
	}
	if isPNG(head) {
		return Result{Type: TypePNG, MIME: "image/png"}, nil
	}
	if isGIF(head) {
		return Result{Type: TypeGIF, MIME: "image/gif"}, nil
	}
	if isBMP(head) {
		return Result{Type: TypeBMP, MIME: "image/bmp"}, nil
	}
	if isTIFF(head) {
		return Result{Type: TypeTIFF, MIME: "image/tiff"}, nil
	}

	return Result{}, ErrUnknownType
}

func isJPEG(head []byte) bool {
	return len(head) > 3 &&
		head[0] == 0xff &&
		head[1] == 0xd8 &&
		head[2] == 0xff
}

func isPNG(head []byte) bool {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	return len(head) >= len(pngMagic) && bytes.Equal(head[:len(pngMagic)], pngMagic)
}

func isGIF(head []byte) bool {
	return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
}

func isBMP(head []byte) bool {
	return len(head) >= 2 && head[0] == 'B' && head[1] == 'M'
}

func isTIFF(head []byte) bool {
	return len(head) >= 4 &&
		(bytes.Equal(head[:4], []byte{'I', 'I', 0x2a, 0x00}) ||
			bytes.Equal(head[:4], []byte{'M', 'M', 0x00, 0x2a}))
}
