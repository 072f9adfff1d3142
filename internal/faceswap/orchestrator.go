package faceswap

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jo-hoe/faceswap/internal/imageio"
)

// DefaultMinScore is the detection confidence used when none is given.
const DefaultMinScore float32 = 0.5

// Options tune a single swap.
type Options struct {
	// MinScore is the detector confidence threshold in (0, 1]. Zero, negative
	// and non-finite values select DefaultMinScore.
	MinScore float32
}

// Result is the composite produced by a successful swap.
type Result struct {
	Image       *imageio.Image
	SourceFaces int
	TargetFaces int
}

// Orchestrator sequences detection and swapping for one source/target pair.
type Orchestrator struct {
	detector Detector
	swapper  Swapper
}

// NewOrchestrator creates an orchestrator over the given model handles.
func NewOrchestrator(detector Detector, swapper Swapper) *Orchestrator {
	return &Orchestrator{
		detector: detector,
		swapper:  swapper,
	}
}

// Swap replaces every face found in target with the first face found in source.
// Each target face is composited onto the output of the previous one, so faces
// are processed sequentially in detector order. Neither input is modified.
func (o *Orchestrator) Swap(source, target *imageio.Image, opts Options) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Orchestrator: recovered from panic during swap", "panic", r)
			result = nil
			err = fmt.Errorf("%w: %v", ErrSwap, r)
		}
	}()

	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid source image: %w", ErrSwap, err)
	}
	if err := target.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid target image: %w", ErrSwap, err)
	}

	minScore := opts.MinScore
	if minScore <= 0 || math.IsNaN(float64(minScore)) || math.IsInf(float64(minScore), 0) {
		minScore = DefaultMinScore
	}

	start := time.Now()
	slog.Info("starting face swap",
		"source_width", source.Width, "source_height", source.Height,
		"target_width", target.Width, "target_height", target.Height,
		"min_score", minScore)

	sourceFaces, err := o.detect(source, RoleSource, minScore)
	if err != nil {
		return nil, err
	}
	targetFaces, err := o.detect(target, RoleTarget, minScore)
	if err != nil {
		return nil, err
	}

	sourceFace := sourceFaces[0]
	current := target.Clone()

	for idx, targetFace := range targetFaces {
		swapStart := time.Now()
		next, err := o.swapper.Swap(current, targetFace, sourceFace)
		if err != nil {
			slog.Error("face swap step failed", "index", idx, "error", err)
			return nil, fmt.Errorf("%w: swapping target face %d: %w", ErrSwap, idx, err)
		}
		if next == nil {
			return nil, fmt.Errorf("%w: swapper returned no image for target face %d", ErrSwap, idx)
		}
		slog.Debug("face swap step completed",
			"index", idx,
			"score", targetFace.Score,
			"duration_ms", time.Since(swapStart).Milliseconds())
		current = next
	}

	slog.Info("face swap completed",
		"source_faces", len(sourceFaces),
		"target_faces", len(targetFaces),
		"total_duration_ms", time.Since(start).Milliseconds())

	return &Result{
		Image:       current,
		SourceFaces: len(sourceFaces),
		TargetFaces: len(targetFaces),
	}, nil
}

func (o *Orchestrator) detect(img *imageio.Image, role Role, minScore float32) ([]Face, error) {
	detectStart := time.Now()
	faces, err := o.detector.Detect(img, minScore)
	if err != nil {
		slog.Error("face detection failed", "role", role, "error", err)
		return nil, fmt.Errorf("%w: detecting faces in %s image: %w", ErrSwap, role, err)
	}
	slog.Debug("face detection completed",
		"role", role,
		"faces", len(faces),
		"duration_ms", time.Since(detectStart).Milliseconds())
	if len(faces) == 0 {
		return nil, &NoFaceDetectedError{Role: role}
	}
	return faces, nil
}
