package facemodel

import (
	"image"
	"testing"

	"github.com/disintegration/imaging"
)

func TestDecodeLevel(t *testing.T) {
	const inputSize, stride = 32, 16
	count := (inputSize / stride) * (inputSize / stride) * anchorsPerPosition

	scores := make([]float32, count)
	boxes := make([]float32, count*4)
	kps := make([]float32, count*10)

	// second anchor of the cell at x=1, y=0
	idx := 3
	scores[idx] = 0.9
	scores[0] = 0.2
	copy(boxes[idx*4:], []float32{1, 1, 1, 1})

	faces := decodeLevel(scores, boxes, kps, inputSize, stride, 2, 0.5)

	if len(faces) != 1 {
		t.Fatalf("Expected 1 face above threshold, got %d", len(faces))
	}
	f := faces[0]
	if f.Score != 0.9 {
		t.Errorf("Expected score 0.9, got %f", f.Score)
	}
	if f.Box.X1 != 0 || f.Box.Y1 != -8 || f.Box.X2 != 16 || f.Box.Y2 != 8 {
		t.Errorf("Expected box (0,-8,16,8), got %+v", f.Box)
	}
	for i, p := range f.Landmarks {
		if p.X != 8 || p.Y != 0 {
			t.Errorf("Expected landmark %d at the anchor center (8,0), got %+v", i, p)
		}
	}
}

func TestDecodeLevel_ShortOutputs(t *testing.T) {
	if faces := decodeLevel(make([]float32, 2), nil, nil, 32, 16, 1, 0); faces != nil {
		t.Errorf("Expected no faces for truncated outputs, got %d", len(faces))
	}
}

func TestLetterbox(t *testing.T) {
	img := imaging.New(200, 100, image.White)

	canvas, scale := letterbox(img, 64)

	if canvas.Bounds().Dx() != 64 || canvas.Bounds().Dy() != 64 {
		t.Fatalf("Expected 64x64 canvas, got %v", canvas.Bounds())
	}
	if scale != float32(32)/100 {
		t.Errorf("Expected scale 0.32, got %f", scale)
	}
	if c := canvas.NRGBAAt(10, 10); c.R != 255 {
		t.Errorf("Expected image content in the top-left corner, got %v", c)
	}
	if c := canvas.NRGBAAt(10, 50); c.R != 0 {
		t.Errorf("Expected black padding below the image, got %v", c)
	}
}

func TestBlobRGB(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	copy(img.Pix, []uint8{255, 0, 128, 255, 0, 255, 0, 255})

	blob := blobRGB(img, 0, 255)

	want := []float32{1, 0, 0, 1, float32(128) / 255, 0}
	for i := range want {
		if blob[i] != want[i] {
			t.Errorf("Expected blob[%d] = %f, got %f", i, want[i], blob[i])
		}
	}
}
