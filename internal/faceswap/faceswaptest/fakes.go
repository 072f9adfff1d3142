// Package faceswaptest provides in-memory model fakes for tests.
package faceswaptest

import (
	"sync"

	"github.com/jo-hoe/faceswap/internal/faceswap"
	"github.com/jo-hoe/faceswap/internal/imageio"
)

// Detector returns the faces registered for the width of the given image.
type Detector struct {
	mu           sync.Mutex
	FacesByWidth map[int][]faceswap.Face
	Err          error
	MinScores    []float32
}

func (d *Detector) Detect(img *imageio.Image, minScore float32) ([]faceswap.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.MinScores = append(d.MinScores, minScore)
	if d.Err != nil {
		return nil, d.Err
	}
	return d.FacesByWidth[img.Width], nil
}

// FaceAt returns a face whose box covers the given rectangle.
func FaceAt(x1, y1, x2, y2 float32) faceswap.Face {
	return faceswap.Face{
		Box:       faceswap.Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Score:     0.9,
		Embedding: make([]float32, 512),
	}
}

// PaintSwapper fills the target box with white. PanicOn makes it panic instead.
type PaintSwapper struct {
	mu      sync.Mutex
	Calls   int
	PanicOn bool
}

func (s *PaintSwapper) Swap(img *imageio.Image, target, _ faceswap.Face) (*imageio.Image, error) {
	s.mu.Lock()
	s.Calls++
	s.mu.Unlock()

	if s.PanicOn {
		panic("swap exploded")
	}

	out := img.Clone()
	for y := max(int(target.Box.Y1), 0); y < min(int(target.Box.Y2), out.Height); y++ {
		for x := max(int(target.Box.X1), 0); x < min(int(target.Box.X2), out.Width); x++ {
			out.SetBGR(x, y, 255, 255, 255)
		}
	}
	return out, nil
}

// Provider hands out fixed models. The first FailTimes calls fail with ErrModelLoad.
type Provider struct {
	mu        sync.Mutex
	Detector  faceswap.Detector
	Swapper   faceswap.Swapper
	FailTimes int
	loaded    bool
	Closed    bool
}

func (p *Provider) Models() (faceswap.Detector, faceswap.Swapper, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailTimes > 0 {
		p.FailTimes--
		return nil, nil, faceswap.ErrModelLoad
	}
	p.loaded = true
	return p.Detector, p.Swapper, nil
}

func (p *Provider) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.loaded = false
	return nil
}
