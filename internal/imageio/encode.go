package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// MimePNG is the content type of encoded results.
const MimePNG = "image/png"

// EncodePNG encodes the image losslessly.
func EncodePNG(im *Image) ([]byte, error) {
	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(im.Pix))
	if err := png.Encode(&buf, im.ToNRGBA()); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes PNG bytes produced by EncodePNG.
func DecodePNG(data []byte) (*Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return FromStdImage(img), nil
}

// Thumbnail scales an image to the given width keeping its aspect ratio and encodes it as PNG.
// Images narrower than width are returned at their original size.
func Thumbnail(im *Image, width int) ([]byte, error) {
	if width <= 0 {
		return nil, fmt.Errorf("thumbnail width must be positive, got %d", width)
	}
	var src image.Image = im.ToNRGBA()
	if im.Width > width {
		src = imaging.Resize(src, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
