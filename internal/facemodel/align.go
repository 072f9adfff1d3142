package facemodel

import (
	"image"
	"math"

	"github.com/jo-hoe/faceswap/internal/faceswap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// arcfaceTemplate holds the reference landmark positions of a 112x112 aligned face.
var arcfaceTemplate = [5]faceswap.Point{
	{X: 38.2946, Y: 51.6963}, // left eye
	{X: 73.5318, Y: 51.5014}, // right eye
	{X: 56.0252, Y: 71.7366}, // nose
	{X: 41.5493, Y: 92.3655}, // left mouth
	{X: 70.7299, Y: 92.2041}, // right mouth
}

// affine is a 2x3 matrix mapping (x, y) to (a*x + b*y + c, d*x + e*y + f).
type affine [6]float64

func (m affine) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func (m affine) invert() affine {
	det := m[0]*m[4] - m[1]*m[3]
	if math.Abs(det) < 1e-12 {
		return affine{1, 0, 0, 0, 1, 0}
	}
	inv := 1 / det
	a := m[4] * inv
	b := -m[1] * inv
	d := -m[3] * inv
	e := m[0] * inv
	return affine{
		a, b, -(a*m[2] + b*m[5]),
		d, e, -(d*m[2] + e*m[5]),
	}
}

// drawTransform converts a pixel-index transform into the pixel-center
// convention used by x/image/draw.
func (m affine) drawTransform() f64.Aff3 {
	const h = 0.5
	return f64.Aff3{
		m[0], m[1], m[2] + h - (m[0]*h + m[1]*h),
		m[3], m[4], m[5] + h - (m[3]*h + m[4]*h),
	}
}

// alignmentTemplate returns the landmark template for a square crop of the given size.
// Sizes divisible by 112 scale the template; other sizes use the 128-based layout
// with a horizontal shift.
func alignmentTemplate(size int) [5]faceswap.Point {
	var ratio, diffX float32
	if size%112 == 0 {
		ratio = float32(size) / 112
	} else {
		ratio = float32(size) / 128
		diffX = 8 * ratio
	}
	var dst [5]faceswap.Point
	for i, p := range arcfaceTemplate {
		dst[i] = faceswap.Point{X: p.X*ratio + diffX, Y: p.Y * ratio}
	}
	return dst
}

// estimateSimilarity returns the least-squares rotation, uniform scale and translation
// mapping src points onto dst points.
func estimateSimilarity(src, dst [5]faceswap.Point) affine {
	n := float64(len(src))

	var srcCx, srcCy, dstCx, dstCy float64
	for i := range src {
		srcCx += float64(src[i].X)
		srcCy += float64(src[i].Y)
		dstCx += float64(dst[i].X)
		dstCy += float64(dst[i].Y)
	}
	srcCx /= n
	srcCy /= n
	dstCx /= n
	dstCy /= n

	var num1, num2, den float64
	for i := range src {
		sx := float64(src[i].X) - srcCx
		sy := float64(src[i].Y) - srcCy
		dx := float64(dst[i].X) - dstCx
		dy := float64(dst[i].Y) - dstCy

		num1 += sx*dx + sy*dy
		num2 += sx*dy - sy*dx
		den += sx*sx + sy*sy
	}
	if den < 1e-12 {
		return affine{1, 0, dstCx - srcCx, 0, 1, dstCy - srcCy}
	}

	a := num1 / den
	b := num2 / den

	return affine{
		a, -b, dstCx - (a*srcCx - b*srcCy),
		b, a, dstCy - (b*srcCx + a*srcCy),
	}
}

// alignFace crops a size x size face aligned to the landmark template and
// returns the crop together with the image-to-crop transform.
func alignFace(img *image.NRGBA, landmarks [5]faceswap.Point, size int) (*image.NRGBA, affine) {
	m := estimateSimilarity(landmarks, alignmentTemplate(size))
	return warpAffine(img, m, size, size), m
}

// warpAffine maps src into a width x height canvas through m (source to destination).
// Uncovered pixels stay zero.
func warpAffine(src *image.NRGBA, m affine, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Transform(dst, m.drawTransform(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// warpAffineGray is warpAffine for single-channel masks.
func warpAffineGray(src *image.Gray, m affine, width, height int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Transform(dst, m.drawTransform(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
