package facemodel

import (
	"fmt"
	"log/slog"

	"github.com/jo-hoe/faceswap/internal/faceswap"
	"github.com/jo-hoe/faceswap/internal/imageio"
	ort "github.com/yalue/onnxruntime_go"
)

const defaultSwapperInputSize = 128

// Inswapper replaces a target face with a source identity using the
// inswapper generator and pastes the result back into the image.
type Inswapper struct {
	session   *session
	emap      []float32
	inputSize int
	targetIdx int
	sourceIdx int
}

// NewInswapper loads the swapper model and its embedding projection.
func NewInswapper(modelPath string) (*Inswapper, error) {
	emap, err := loadEmap(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read emap from %s: %w", modelPath, err)
	}

	s, err := newSession(modelPath)
	if err != nil {
		return nil, err
	}
	if len(s.inputNames) != 2 {
		_ = s.destroy()
		return nil, fmt.Errorf("swapper model %s has %d inputs, expected 2", modelPath, len(s.inputNames))
	}

	targetIdx, sourceIdx := s.inputIndex("target"), s.inputIndex("source")
	if targetIdx < 0 || sourceIdx < 0 {
		targetIdx, sourceIdx = 0, 1
	}

	inputSize := defaultSwapperInputSize
	if dims := s.inputs[targetIdx].Dimensions; len(dims) == 4 && dims[2] > 0 {
		inputSize = int(dims[2])
	}

	return &Inswapper{
		session:   s,
		emap:      emap,
		inputSize: inputSize,
		targetIdx: targetIdx,
		sourceIdx: sourceIdx,
	}, nil
}

// Swap implements faceswap.Swapper.
func (s *Inswapper) Swap(img *imageio.Image, target, source faceswap.Face) (*imageio.Image, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if len(source.Embedding) != EmbeddingSize {
		return nil, fmt.Errorf("source face embedding has %d values, expected %d", len(source.Embedding), EmbeddingSize)
	}

	crop, m := alignFace(img.ToNRGBA(), target.Landmarks, s.inputSize)

	targetTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(s.inputSize), int64(s.inputSize)),
		blobRGB(crop, 0, 255),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create swapper target tensor: %w", err)
	}
	defer targetTensor.Destroy()

	sourceTensor, err := ort.NewTensor(
		ort.NewShape(1, EmbeddingSize),
		projectEmbedding(source.Embedding, s.emap),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create swapper source tensor: %w", err)
	}
	defer sourceTensor.Destroy()

	inputs := make([]ort.Value, 2)
	inputs[s.targetIdx] = targetTensor
	inputs[s.sourceIdx] = sourceTensor

	outputs, err := s.session.run(inputs)
	if err != nil {
		return nil, err
	}
	defer destroyValues(outputs)

	data, err := floatOutput(outputs[0])
	if err != nil {
		return nil, err
	}
	if len(data) != 3*s.inputSize*s.inputSize {
		return nil, fmt.Errorf("swapper returned %d values, expected %d", len(data), 3*s.inputSize*s.inputSize)
	}

	fake := imageFromRGBBlob(data, s.inputSize, s.inputSize)
	result := pasteBack(img, fake, m.invert())

	slog.Debug("inswapper: face swapped", "box", target.Box, "score", target.Score)
	return result, nil
}

// Close releases the model session.
func (s *Inswapper) Close() error {
	return s.session.destroy()
}
