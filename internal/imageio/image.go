package imageio

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Channels is the number of color channels of an Image.
const Channels = 3

// Image is a rectangular grid of pixels held as a flat byte array in BGR order,
// which is the channel order the face models expect.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewImage allocates a black image of the given size.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*Channels),
	}
}

// Stride returns the number of bytes per row.
func (im *Image) Stride() int {
	return im.Width * Channels
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (im *Image) Validate() error {
	if im == nil {
		return fmt.Errorf("image is nil")
	}
	if im.Width <= 0 || im.Height <= 0 {
		return fmt.Errorf("invalid image dimensions %dx%d", im.Width, im.Height)
	}
	if len(im.Pix) != im.Width*im.Height*Channels {
		return fmt.Errorf("pixel buffer has %d bytes, expected %d for %dx%d with %d channels",
			len(im.Pix), im.Width*im.Height*Channels, im.Width, im.Height, Channels)
	}
	return nil
}

// BGR returns the pixel at (x, y).
func (im *Image) BGR(x, y int) (b, g, r uint8) {
	i := y*im.Stride() + x*Channels
	return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
}

// SetBGR sets the pixel at (x, y).
func (im *Image) SetBGR(x, y int, b, g, r uint8) {
	i := y*im.Stride() + x*Channels
	im.Pix[i], im.Pix[i+1], im.Pix[i+2] = b, g, r
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	pix := make([]uint8, len(im.Pix))
	copy(pix, im.Pix)
	return &Image{Width: im.Width, Height: im.Height, Pix: pix}
}

// Equal reports whether both images have identical dimensions and pixels.
func (im *Image) Equal(other *Image) bool {
	if im == nil || other == nil {
		return im == other
	}
	if im.Width != other.Width || im.Height != other.Height || len(im.Pix) != len(other.Pix) {
		return false
	}
	for i := range im.Pix {
		if im.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// FromStdImage converts any image.Image into a BGR Image. Alpha is dropped
// without compositing, so fully transparent pixels keep their stored color.
func FromStdImage(src image.Image) *Image {
	nrgba := imaging.Clone(src)
	bounds := nrgba.Bounds()
	out := NewImage(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.Height; y++ {
		srcRow := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+out.Width*4]
		dstRow := out.Pix[y*out.Stride() : (y+1)*out.Stride()]
		for x := 0; x < out.Width; x++ {
			dstRow[x*3+0] = srcRow[x*4+2]
			dstRow[x*3+1] = srcRow[x*4+1]
			dstRow[x*3+2] = srcRow[x*4+0]
		}
	}
	return out
}

// ToNRGBA converts the image back to RGB channel order as an opaque *image.NRGBA.
func (im *Image) ToNRGBA() *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, im.Width, im.Height))
	for y := 0; y < im.Height; y++ {
		srcRow := im.Pix[y*im.Stride() : (y+1)*im.Stride()]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+im.Width*4]
		for x := 0; x < im.Width; x++ {
			dstRow[x*4+0] = srcRow[x*3+2]
			dstRow[x*4+1] = srcRow[x*3+1]
			dstRow[x*4+2] = srcRow[x*3+0]
			dstRow[x*4+3] = 0xff
		}
	}
	return dst
}
