package transform

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"imagehive/internal/apperr"
	"imagehive/internal/models"
)

// Variant is one derived output of a source image: a resize at a
// requested resolution, or the grayscale conversion at source size.
type Variant struct {
	Image image.Image
	Title string
	Label string
}

type Engine struct{}

func NewEngine() Engine {
	return Engine{}
}

// Decode reads the source image and reports its container format.
func (Engine) Decode(r *bytes.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.KindTransform, "decode source image", err)
	}
	return img, format, nil
}

// Transform fans one source image out into len(resolutions)+1 variants:
// one exact resize per requested "WxH" (in the order given) and,
// unconditionally last, a grayscale conversion at the source's own
// resolution.
func (e Engine) Transform(src image.Image, base string, resolutions []string) ([]Variant, error) {
	variants := make([]Variant, 0, len(resolutions)+1)

	for _, res := range resolutions {
		width, height, err := models.ParseResolution(res)
		if err != nil {
			return nil, err
		}
		label := fmt.Sprintf("%dx%d", width, height)
		variants = append(variants, Variant{
			Image: imaging.Resize(src, width, height, imaging.Lanczos),
			Title: fmt.Sprintf("%s_%s", base, label),
			Label: label,
		})
	}

	bounds := src.Bounds()
	variants = append(variants, Variant{
		Image: imaging.Grayscale(src),
		Title: fmt.Sprintf("%s_L", base),
		Label: fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
	})

	return variants, nil
}

// Encode serializes a variant in the source's container format, so
// every output of a job keeps the format of the upload.
func (Engine) Encode(img image.Image, format string) ([]byte, error) {
	f, err := imaging.FormatFromExtension(format)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransform, fmt.Sprintf("unsupported format %q", format), err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f); err != nil {
		return nil, apperr.Wrap(apperr.KindTransform, "encode variant", err)
	}
	return buf.Bytes(), nil
}
