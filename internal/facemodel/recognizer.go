package facemodel

import (
	"fmt"
	"image"

	"github.com/jo-hoe/faceswap/internal/faceswap"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	recognizerInputSize = 112
	EmbeddingSize       = 512
)

// arcface computes identity embeddings from 112x112 aligned crops.
type arcface struct {
	session *session
}

func newArcFace(modelPath string) (*arcface, error) {
	s, err := newSession(modelPath)
	if err != nil {
		return nil, err
	}
	return &arcface{session: s}, nil
}

// embed returns the L2-normalised embedding of the face with the given landmarks.
func (r *arcface) embed(img *image.NRGBA, landmarks [5]faceswap.Point) ([]float32, error) {
	crop, _ := alignFace(img, landmarks, recognizerInputSize)

	tensor, err := ort.NewTensor(
		ort.NewShape(1, 3, recognizerInputSize, recognizerInputSize),
		blobRGB(crop, 127.5, 127.5),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer input tensor: %w", err)
	}
	defer tensor.Destroy()

	outputs, err := r.session.run([]ort.Value{tensor})
	if err != nil {
		return nil, err
	}
	defer destroyValues(outputs)

	data, err := floatOutput(outputs[0])
	if err != nil {
		return nil, err
	}
	if len(data) != EmbeddingSize {
		return nil, fmt.Errorf("recognizer returned %d values, expected %d", len(data), EmbeddingSize)
	}

	embedding := make([]float32, EmbeddingSize)
	copy(embedding, data)
	return l2Normalize(embedding), nil
}

func (r *arcface) close() error {
	return r.session.destroy()
}
