package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrDecode is returned when uploaded bytes cannot be decoded as an image.
	ErrDecode = errors.New("image could not be decoded")
	// ErrUnsupportedType is returned for files outside the accepted extensions or content types.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrTooLarge is returned for files above the configured size limit.
	ErrTooLarge = errors.New("image exceeds the size limit")
)

// DefaultExtensions are the upload extensions accepted when none are configured.
var DefaultExtensions = []string{"jpg", "jpeg", "png"}

var acceptedMimeTypes = []string{"image/jpeg", "image/png"}

// IsAllowedExtension reports whether the file name carries one of the allowed extensions.
// Comparison is case-insensitive and ignores a leading dot in the allowed list.
func IsAllowedExtension(filename string, allowed []string) bool {
	if len(allowed) == 0 {
		allowed = DefaultExtensions
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}

// Decoder turns uploaded files into BGR images.
type Decoder struct {
	allowedExtensions []string
	maxBytes          int64
}

// NewDecoder creates a decoder. maxBytes <= 0 disables the size check.
func NewDecoder(allowedExtensions []string, maxBytes int64) *Decoder {
	if len(allowedExtensions) == 0 {
		allowedExtensions = DefaultExtensions
	}
	return &Decoder{
		allowedExtensions: allowedExtensions,
		maxBytes:          maxBytes,
	}
}

// Decode validates the file name and content, then decodes it honouring EXIF orientation.
func (d *Decoder) Decode(filename string, data []byte) (*Image, error) {
	if !IsAllowedExtension(filename, d.allowedExtensions) {
		return nil, fmt.Errorf("%w: %q must have one of the extensions %v",
			ErrUnsupportedType, filename, d.allowedExtensions)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %q is empty", ErrDecode, filename)
	}
	if d.maxBytes > 0 && int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: %q has %d bytes, limit is %d",
			ErrTooLarge, filename, len(data), d.maxBytes)
	}

	detected := mimetype.Detect(data)
	if !slices.Contains(acceptedMimeTypes, detected.String()) {
		return nil, fmt.Errorf("%w: %q has content type %s", ErrUnsupportedType, filename, detected.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("Decoder: failed to decode image", "filename", filename, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	out := FromStdImage(img)
	slog.Debug("Decoder: decoded image",
		"filename", filename,
		"content_type", detected.String(),
		"width", out.Width,
		"height", out.Height,
		"input_size_bytes", len(data))
	return out, nil
}
