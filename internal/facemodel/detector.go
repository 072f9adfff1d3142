package facemodel

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/jo-hoe/faceswap/internal/faceswap"
	"github.com/jo-hoe/faceswap/internal/imageio"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	DefaultDetectionSize = 640
	DefaultNMSThreshold  = 0.4

	anchorsPerPosition = 2
)

var featureStrides = []int{8, 16, 32}

// scrfd runs the SCRFD detector. The model has one input and nine outputs:
// scores, boxes and keypoints for strides 8, 16 and 32 in that order.
type scrfd struct {
	session      *session
	inputSize    int
	nmsThreshold float32
}

func newSCRFD(modelPath string, inputSize int, nmsThreshold float32) (*scrfd, error) {
	s, err := newSession(modelPath)
	if err != nil {
		return nil, err
	}
	if len(s.outputNames) != 3*len(featureStrides) {
		_ = s.destroy()
		return nil, fmt.Errorf("detector model %s has %d outputs, expected %d with keypoints",
			modelPath, len(s.outputNames), 3*len(featureStrides))
	}
	if inputSize <= 0 {
		inputSize = DefaultDetectionSize
	}
	if nmsThreshold <= 0 {
		nmsThreshold = DefaultNMSThreshold
	}
	return &scrfd{session: s, inputSize: inputSize, nmsThreshold: nmsThreshold}, nil
}

// detect returns boxes and landmarks of all faces scoring at least minScore,
// highest score first.
func (d *scrfd) detect(img *image.NRGBA, minScore float32) ([]faceswap.Face, error) {
	input, scale := letterbox(img, d.inputSize)

	tensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(d.inputSize), int64(d.inputSize)),
		blobRGB(input, 127.5, 128),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector input tensor: %w", err)
	}
	defer tensor.Destroy()

	outputs, err := d.session.run([]ort.Value{tensor})
	if err != nil {
		return nil, err
	}
	defer destroyValues(outputs)

	levels := len(featureStrides)
	data := make([][]float32, len(outputs))
	for i, v := range outputs {
		if data[i], err = floatOutput(v); err != nil {
			return nil, err
		}
	}

	var faces []faceswap.Face
	for level, stride := range featureStrides {
		faces = append(faces, decodeLevel(
			data[level], data[level+levels], data[level+2*levels],
			d.inputSize, stride, scale, minScore)...)
	}

	return nms(faces, d.nmsThreshold), nil
}

func (d *scrfd) close() error {
	return d.session.destroy()
}

// letterbox resizes img to fit a size x size canvas keeping its aspect ratio and
// places it in the top-left corner. The returned scale maps original to canvas pixels.
func letterbox(img *image.NRGBA, size int) (*image.NRGBA, float32) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	var newWidth, newHeight int
	if height > width {
		newHeight = size
		newWidth = int(float64(size) * float64(width) / float64(height))
	} else {
		newWidth = size
		newHeight = int(float64(size) * float64(height) / float64(width))
	}
	newWidth = max(newWidth, 1)
	newHeight = max(newHeight, 1)
	scale := float32(newHeight) / float32(height)

	resized := imaging.Resize(img, newWidth, newHeight, imaging.Linear)
	canvas := imaging.New(size, size, image.Black)
	canvas = imaging.Paste(canvas, resized, image.Pt(0, 0))
	return canvas, scale
}

// decodeLevel turns the raw outputs of one stride level into faces in original
// image coordinates. Anchor centers are laid out row-major with
// anchorsPerPosition consecutive anchors per grid cell.
func decodeLevel(scores, boxes, kps []float32, inputSize, stride int, scale, minScore float32) []faceswap.Face {
	gridHeight := inputSize / stride
	gridWidth := inputSize / stride
	count := gridHeight * gridWidth * anchorsPerPosition
	if len(scores) < count || len(boxes) < count*4 || len(kps) < count*10 {
		slog.Warn("scrfd: unexpected output size", "stride", stride, "scores", len(scores), "expected", count)
		return nil
	}

	s := float32(stride)
	var faces []faceswap.Face
	idx := 0
	for y := 0; y < gridHeight; y++ {
		for x := 0; x < gridWidth; x++ {
			for a := 0; a < anchorsPerPosition; a++ {
				score := scores[idx]
				if score >= minScore {
					cx := float32(x) * s
					cy := float32(y) * s

					b := boxes[idx*4 : idx*4+4]
					face := faceswap.Face{
						Box: faceswap.Box{
							X1: (cx - b[0]*s) / scale,
							Y1: (cy - b[1]*s) / scale,
							X2: (cx + b[2]*s) / scale,
							Y2: (cy + b[3]*s) / scale,
						},
						Score: score,
					}
					k := kps[idx*10 : idx*10+10]
					for i := range face.Landmarks {
						face.Landmarks[i] = faceswap.Point{
							X: (cx + k[i*2]*s) / scale,
							Y: (cy + k[i*2+1]*s) / scale,
						}
					}
					faces = append(faces, face)
				}
				idx++
			}
		}
	}
	return faces
}

// FaceAnalyzer detects faces and computes the identity embedding of each one.
type FaceAnalyzer struct {
	detector   *scrfd
	recognizer *arcface
}

// NewFaceAnalyzer loads the detector and recognizer models.
func NewFaceAnalyzer(detectorPath, recognizerPath string, inputSize int, nmsThreshold float32) (*FaceAnalyzer, error) {
	det, err := newSCRFD(detectorPath, inputSize, nmsThreshold)
	if err != nil {
		return nil, err
	}
	rec, err := newArcFace(recognizerPath)
	if err != nil {
		_ = det.close()
		return nil, err
	}
	return &FaceAnalyzer{detector: det, recognizer: rec}, nil
}

// Detect implements faceswap.Detector.
func (a *FaceAnalyzer) Detect(img *imageio.Image, minScore float32) ([]faceswap.Face, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}

	rgb := img.ToNRGBA()
	faces, err := a.detector.detect(rgb, minScore)
	if err != nil {
		return nil, err
	}

	for i := range faces {
		embedding, err := a.recognizer.embed(rgb, faces[i].Landmarks)
		if err != nil {
			return nil, err
		}
		faces[i].Embedding = embedding
	}

	slog.Debug("analyzer: faces detected", "count", len(faces), "minScore", minScore)
	return faces, nil
}

// Close releases both model sessions.
func (a *FaceAnalyzer) Close() error {
	err := a.detector.close()
	if recErr := a.recognizer.close(); err == nil {
		err = recErr
	}
	return err
}
