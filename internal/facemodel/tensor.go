package facemodel

import (
	"image"
	"math"
)

// blobRGB converts an image into an NCHW float tensor in RGB channel order,
// applying (value - mean) / std.
func blobRGB(img *image.NRGBA, mean, std float32) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			out[i] = (float32(row[x*4+0]) - mean) / std
			out[plane+i] = (float32(row[x*4+1]) - mean) / std
			out[2*plane+i] = (float32(row[x*4+2]) - mean) / std
		}
	}
	return out
}

// imageFromRGBBlob converts an NCHW RGB tensor with values in [0, 1] into an image.
func imageFromRGBBlob(data []float32, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	plane := width * height
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for x := 0; x < width; x++ {
			i := y*width + x
			row[x*4+0] = clampByte(data[i] * 255)
			row[x*4+1] = clampByte(data[plane+i] * 255)
			row[x*4+2] = clampByte(data[2*plane+i] * 255)
			row[x*4+3] = 0xff
		}
	}
	return img
}

// l2Normalize scales v to unit length in place and returns it.
func l2Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm < 1e-10 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
