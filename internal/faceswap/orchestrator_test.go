package faceswap

import (
	"errors"
	"math"
	"testing"

	"github.com/jo-hoe/faceswap/internal/imageio"
)

type detectCall struct {
	img      *imageio.Image
	minScore float32
}

// fakeDetector returns the queued responses in call order.
type fakeDetector struct {
	responses [][]Face
	err       error
	calls     []detectCall
}

func (d *fakeDetector) Detect(img *imageio.Image, minScore float32) ([]Face, error) {
	d.calls = append(d.calls, detectCall{img: img, minScore: minScore})
	if d.err != nil {
		return nil, d.err
	}
	if len(d.calls) > len(d.responses) {
		return nil, nil
	}
	return d.responses[len(d.calls)-1], nil
}

type swapCall struct {
	input  *imageio.Image
	target Face
	source Face
	output *imageio.Image
}

// paintSwapper fills the target box with a color derived from the source score.
type paintSwapper struct {
	calls   []swapCall
	failAt  int
	panicAt int
}

func newPaintSwapper() *paintSwapper {
	return &paintSwapper{failAt: -1, panicAt: -1}
}

func (s *paintSwapper) Swap(img *imageio.Image, target, source Face) (*imageio.Image, error) {
	idx := len(s.calls)
	if idx == s.panicAt {
		panic("model exploded")
	}
	if idx == s.failAt {
		s.calls = append(s.calls, swapCall{input: img, target: target, source: source})
		return nil, errors.New("inference failed")
	}
	out := img.Clone()
	shade := uint8(source.Score * 200)
	for y := int(target.Box.Y1); y < int(target.Box.Y2); y++ {
		for x := int(target.Box.X1); x < int(target.Box.X2); x++ {
			b, g, _ := out.BGR(x, y)
			out.SetBGR(x, y, b+1, g, shade)
		}
	}
	s.calls = append(s.calls, swapCall{input: img, target: target, source: source, output: out})
	return out, nil
}

func newTestImage(w, h int, fill uint8) *imageio.Image {
	im := imageio.NewImage(w, h)
	for i := range im.Pix {
		im.Pix[i] = fill
	}
	return im
}

func face(x1, y1, x2, y2, score float32) Face {
	return Face{Box: Box{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score}
}

func TestOrchestrator_NoTargetFace(t *testing.T) {
	detector := &fakeDetector{responses: [][]Face{{face(0, 0, 2, 2, 0.9)}, {}}}
	swapper := newPaintSwapper()
	o := NewOrchestrator(detector, swapper)

	_, err := o.Swap(newTestImage(4, 4, 10), newTestImage(4, 4, 20), Options{})

	var noFace *NoFaceDetectedError
	if !errors.As(err, &noFace) {
		t.Fatalf("Expected NoFaceDetectedError, got %v", err)
	}
	if noFace.Role != RoleTarget {
		t.Errorf("Expected role %q, got %q", RoleTarget, noFace.Role)
	}
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Error("Expected error to match ErrNoFaceDetected")
	}
	if len(swapper.calls) != 0 {
		t.Errorf("Expected swapper not to be called, got %d calls", len(swapper.calls))
	}
}

func TestOrchestrator_NoSourceFace(t *testing.T) {
	detector := &fakeDetector{responses: [][]Face{{}, {face(0, 0, 2, 2, 0.9)}}}
	swapper := newPaintSwapper()
	o := NewOrchestrator(detector, swapper)

	_, err := o.Swap(newTestImage(4, 4, 10), newTestImage(4, 4, 20), Options{})

	var noFace *NoFaceDetectedError
	if !errors.As(err, &noFace) {
		t.Fatalf("Expected NoFaceDetectedError, got %v", err)
	}
	if noFace.Role != RoleSource {
		t.Errorf("Expected role %q, got %q", RoleSource, noFace.Role)
	}
	if len(swapper.calls) != 0 {
		t.Errorf("Expected swapper not to be called, got %d calls", len(swapper.calls))
	}
}

func TestOrchestrator_SingleFace(t *testing.T) {
	sourceFace := face(0, 0, 2, 2, 0.8)
	targetFace := face(1, 1, 3, 3, 0.7)
	detector := &fakeDetector{responses: [][]Face{{sourceFace}, {targetFace}}}
	swapper := newPaintSwapper()
	o := NewOrchestrator(detector, swapper)

	source := newTestImage(4, 4, 10)
	target := newTestImage(4, 4, 20)
	result, err := o.Swap(source, target, Options{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(swapper.calls) != 1 {
		t.Fatalf("Expected exactly 1 swap call, got %d", len(swapper.calls))
	}
	call := swapper.calls[0]
	if !call.input.Equal(target) {
		t.Error("Expected the single swap to operate on the pristine target")
	}
	if call.target.Box != targetFace.Box || call.source.Box != sourceFace.Box {
		t.Error("Expected swap(target, target_face, source_face)")
	}

	expected, _ := newPaintSwapper().Swap(target, targetFace, sourceFace)
	if !result.Image.Equal(expected) {
		t.Error("Expected result to equal a single swap of the target")
	}
	if result.SourceFaces != 1 || result.TargetFaces != 1 {
		t.Errorf("Expected 1/1 faces, got %d/%d", result.SourceFaces, result.TargetFaces)
	}
}

func TestOrchestrator_MultipleTargetFacesAreSequential(t *testing.T) {
	sourceFaces := []Face{face(0, 0, 2, 2, 0.9), face(2, 2, 4, 4, 0.6)}
	targetFaces := []Face{face(0, 0, 2, 2, 0.95), face(4, 0, 6, 2, 0.85), face(0, 4, 2, 6, 0.75)}
	detector := &fakeDetector{responses: [][]Face{sourceFaces, targetFaces}}
	swapper := newPaintSwapper()
	o := NewOrchestrator(detector, swapper)

	target := newTestImage(6, 6, 20)
	result, err := o.Swap(newTestImage(4, 4, 10), target, Options{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(swapper.calls) != len(targetFaces) {
		t.Fatalf("Expected %d swap calls, got %d", len(targetFaces), len(swapper.calls))
	}
	for i, call := range swapper.calls {
		if call.target.Box != targetFaces[i].Box {
			t.Errorf("call %d: expected target face %v, got %v", i, targetFaces[i].Box, call.target.Box)
		}
		if call.source.Box != sourceFaces[0].Box {
			t.Errorf("call %d: expected the first source face, got %v", i, call.source.Box)
		}
		if i == 0 {
			if !call.input.Equal(target) {
				t.Error("call 0: expected input to equal the pristine target")
			}
			continue
		}
		if call.input != swapper.calls[i-1].output {
			t.Errorf("call %d: expected input to be the output of call %d", i, i-1)
		}
	}
	if result.Image != swapper.calls[len(swapper.calls)-1].output {
		t.Error("Expected result to be the output of the last swap")
	}
}

func TestOrchestrator_OneSourceTwoTargets(t *testing.T) {
	detector := &fakeDetector{responses: [][]Face{
		{face(0, 0, 2, 2, 0.9)},
		{face(0, 0, 2, 2, 0.9), face(3, 3, 5, 5, 0.8)},
	}}
	swapper := newPaintSwapper()
	o := NewOrchestrator(detector, swapper)

	target := newTestImage(6, 6, 20)
	result, err := o.Swap(newTestImage(4, 4, 10), target, Options{})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(swapper.calls) != 2 {
		t.Fatalf("Expected 2 swap calls, got %d", len(swapper.calls))
	}

	regions := [][2]int{{0, 0}, {3, 3}}
	for _, p := range regions {
		rb, rg, rr := result.Image.BGR(p[0], p[1])
		tb, tg, tr := target.BGR(p[0], p[1])
		if rb == tb && rg == tg && rr == tr {
			t.Errorf("Expected pixel %v to differ from the original target", p)
		}
	}
	if !target.Equal(newTestImage(6, 6, 20)) {
		t.Error("Expected target input not to be modified")
	}
}

func TestOrchestrator_PassesMinScore(t *testing.T) {
	detector := &fakeDetector{responses: [][]Face{{face(0, 0, 1, 1, 0.9)}, {face(0, 0, 1, 1, 0.9)}}}
	o := NewOrchestrator(detector, newPaintSwapper())

	if _, err := o.Swap(newTestImage(2, 2, 0), newTestImage(2, 2, 0), Options{MinScore: 0.3}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	for i, call := range detector.calls {
		if call.minScore != 0.3 {
			t.Errorf("detect call %d: expected min score 0.3, got %v", i, call.minScore)
		}
	}

	detector = &fakeDetector{responses: [][]Face{{face(0, 0, 1, 1, 0.9)}, {face(0, 0, 1, 1, 0.9)}}}
	o = NewOrchestrator(detector, newPaintSwapper())
	if _, err := o.Swap(newTestImage(2, 2, 0), newTestImage(2, 2, 0), Options{}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if detector.calls[0].minScore != DefaultMinScore {
		t.Errorf("Expected default min score %v, got %v", DefaultMinScore, detector.calls[0].minScore)
	}
}

func TestOrchestrator_NonFiniteMinScoreUsesDefault(t *testing.T) {
	for _, minScore := range []float32{float32(math.NaN()), float32(math.Inf(1))} {
		detector := &fakeDetector{responses: [][]Face{{face(0, 0, 1, 1, 0.9)}, {face(0, 0, 1, 1, 0.9)}}}
		o := NewOrchestrator(detector, newPaintSwapper())

		if _, err := o.Swap(newTestImage(2, 2, 0), newTestImage(2, 2, 0), Options{MinScore: minScore}); err != nil {
			t.Fatalf("MinScore %v: expected no error, got %v", minScore, err)
		}
		for i, call := range detector.calls {
			if call.minScore != DefaultMinScore {
				t.Errorf("MinScore %v, detect call %d: expected default min score %v, got %v", minScore, i, DefaultMinScore, call.minScore)
			}
		}
	}
}

func TestOrchestrator_Failures(t *testing.T) {
	t.Run("detector error", func(t *testing.T) {
		detector := &fakeDetector{err: errors.New("session closed")}
		o := NewOrchestrator(detector, newPaintSwapper())
		_, err := o.Swap(newTestImage(2, 2, 0), newTestImage(2, 2, 0), Options{})
		if !errors.Is(err, ErrSwap) {
			t.Errorf("Expected ErrSwap, got %v", err)
		}
	})

	t.Run("swapper error yields no partial result", func(t *testing.T) {
		detector := &fakeDetector{responses: [][]Face{
			{face(0, 0, 1, 1, 0.9)},
			{face(0, 0, 1, 1, 0.9), face(1, 1, 2, 2, 0.8)},
		}}
		swapper := newPaintSwapper()
		swapper.failAt = 1
		o := NewOrchestrator(detector, swapper)
		result, err := o.Swap(newTestImage(2, 2, 0), newTestImage(2, 2, 0), Options{})
		if !errors.Is(err, ErrSwap) {
			t.Errorf("Expected ErrSwap, got %v", err)
		}
		if result != nil {
			t.Error("Expected no partial result")
		}
	})

	t.Run("panic is recovered", func(t *testing.T) {
		detector := &fakeDetector{responses: [][]Face{{face(0, 0, 1, 1, 0.9)}, {face(0, 0, 1, 1, 0.9)}}}
		swapper := newPaintSwapper()
		swapper.panicAt = 0
		o := NewOrchestrator(detector, swapper)
		result, err := o.Swap(newTestImage(2, 2, 0), newTestImage(2, 2, 0), Options{})
		if !errors.Is(err, ErrSwap) {
			t.Errorf("Expected ErrSwap, got %v", err)
		}
		if result != nil {
			t.Error("Expected no result after panic")
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		o := NewOrchestrator(&fakeDetector{}, newPaintSwapper())
		_, err := o.Swap(nil, newTestImage(2, 2, 0), Options{})
		if !errors.Is(err, ErrSwap) {
			t.Errorf("Expected ErrSwap for nil source, got %v", err)
		}
	})
}
