package faceswap

import "github.com/jo-hoe/faceswap/internal/imageio"

// Point is a 2D position in image pixel coordinates.
type Point struct {
	X, Y float32
}

// Box is an axis-aligned face bounding box (top-left, bottom-right).
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Width returns box width
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns box area
func (b Box) Area() float32 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// Face is the descriptor a Detector produces for one face: bounding box,
// five landmarks (left eye, right eye, nose, left mouth, right mouth),
// detection score and an L2-normalised identity embedding. The orchestrator
// passes it through to the Swapper without looking inside.
type Face struct {
	Box       Box
	Landmarks [5]Point
	Score     float32
	Embedding []float32
}

// Detector finds faces in an image. Faces scoring below minScore are dropped.
// The returned order is the detector's own (highest score first).
type Detector interface {
	Detect(img *imageio.Image, minScore float32) ([]Face, error)
}

// Swapper replaces the target face in img with the identity of source and
// returns a new image. img must not be modified.
type Swapper interface {
	Swap(img *imageio.Image, target, source Face) (*imageio.Image, error)
}

// ModelProvider hands out the shared detector and swapper, loading them on first use.
type ModelProvider interface {
	Models() (Detector, Swapper, error)
}
