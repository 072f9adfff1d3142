package facemodel

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/faceswap/internal/imageio"
)

const maskThreshold = 20

// pasteBack warps the swapped face crop back into a copy of target using
// inverse (crop to image) and blends it in through an eroded, blurred mask.
func pasteBack(target *imageio.Image, fake *image.NRGBA, inverse affine) *imageio.Image {
	out := target.Clone()

	size := fake.Bounds().Dx()
	roi, ok := pasteRegion(inverse, size, target.Width, target.Height)
	if !ok {
		return out
	}

	shifted := inverse
	shifted[2] -= float64(roi.Min.X)
	shifted[5] -= float64(roi.Min.Y)

	white := image.NewGray(image.Rect(0, 0, size, size))
	for i := range white.Pix {
		white.Pix[i] = 0xff
	}

	w, h := roi.Dx(), roi.Dy()
	warpedFake := warpAffine(fake, shifted, w, h)
	mask := warpAffineGray(white, shifted, w, h)
	thresholdMask(mask, maskThreshold)

	bounds, ok := maskBounds(mask)
	if !ok {
		return out
	}
	maskSize := int(math.Sqrt(float64(bounds.Dx() * bounds.Dy())))

	mask = erode(mask, max(maskSize/10, 10))
	alpha := imaging.Blur(mask, blurSigma(maskSize))

	parallelRows(h, func(y int) {
		ty := roi.Min.Y + y
		for x := 0; x < w; x++ {
			a := float32(alpha.Pix[y*alpha.Stride+x*4]) / 255
			if a == 0 {
				continue
			}
			tx := roi.Min.X + x
			f := warpedFake.Pix[y*warpedFake.Stride+x*4:]
			i := ty*out.Stride() + tx*imageio.Channels
			p := out.Pix[i : i+3]
			// fake is RGB, out is BGR
			p[0] = uint8(a*float32(f[2]) + (1-a)*float32(p[0]))
			p[1] = uint8(a*float32(f[1]) + (1-a)*float32(p[1]))
			p[2] = uint8(a*float32(f[0]) + (1-a)*float32(p[2]))
		}
	})
	return out
}

// pasteRegion returns the part of the target image the crop can touch after
// warping, padded for bilinear spread and mask blur.
func pasteRegion(inverse affine, size, width, height int) (image.Rectangle, bool) {
	s := float64(size)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [][2]float64{{0, 0}, {s, 0}, {0, s}, {s, s}} {
		x, y := inverse.apply(c[0], c[1])
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	estimate := int(math.Sqrt((maxX - minX) * (maxY - minY)))
	pad := blurRadius(blurSigma(estimate)) + 2

	r := image.Rect(
		int(math.Floor(minX))-pad, int(math.Floor(minY))-pad,
		int(math.Ceil(maxX))+pad, int(math.Ceil(maxY))+pad,
	).Intersect(image.Rect(0, 0, width, height))
	return r, !r.Empty()
}

// thresholdMask raises every value above threshold to full opacity.
func thresholdMask(mask *image.Gray, threshold uint8) {
	for i, v := range mask.Pix {
		if v > threshold {
			mask.Pix[i] = 0xff
		}
	}
}

// maskBounds returns the bounding box of fully opaque mask pixels with
// exclusive max, measured like max - min over the pixel indices.
func maskBounds(mask *image.Gray) (image.Rectangle, bool) {
	b := mask.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := -1, -1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := mask.Pix[(y-b.Min.Y)*mask.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			if row[x-b.Min.X] != 0xff {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}
	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rectangle{Min: image.Pt(minX, minY), Max: image.Pt(maxX, maxY)}, true
}

// erode applies a k x k minimum filter. Pixels outside the image are ignored.
func erode(mask *image.Gray, k int) *image.Gray {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	before := k / 2
	after := k - 1 - before

	rows := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(y int) {
		src := mask.Pix[y*mask.Stride : y*mask.Stride+w]
		dst := rows.Pix[y*rows.Stride : y*rows.Stride+w]
		for x := 0; x < w; x++ {
			m := uint8(0xff)
			for i := max(0, x-before); i <= min(w-1, x+after); i++ {
				m = min(m, src[i])
			}
			dst[x] = m
		}
	})

	out := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(y int) {
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			m := uint8(0xff)
			for j := max(0, y-before); j <= min(h-1, y+after); j++ {
				m = min(m, rows.Pix[j*rows.Stride+x])
			}
			dst[x] = m
		}
	})
	return out
}

// blurSigma derives the gaussian sigma for a mask of the given size. The kernel
// is 2*max(size/20, 5)+1 wide and sigma follows the usual kernel-size rule.
func blurSigma(maskSize int) float64 {
	ksize := 2*max(maskSize/20, 5) + 1
	return 0.3*(float64(ksize-1)*0.5-1) + 0.8
}

func blurRadius(sigma float64) int {
	return int(math.Ceil(sigma * 3))
}
