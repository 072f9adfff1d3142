package facemodel

import (
	"sort"

	"github.com/jo-hoe/faceswap/internal/faceswap"
)

// nms sorts faces by score (descending) and drops every face overlapping a
// higher scoring one by more than iouThreshold.
func nms(faces []faceswap.Face, iouThreshold float32) []faceswap.Face {
	if len(faces) == 0 {
		return faces
	}

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})

	keep := make([]bool, len(faces))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(faces); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if !keep[j] {
				continue
			}
			if iou(faces[i].Box, faces[j].Box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]faceswap.Face, 0, len(faces))
	for i, face := range faces {
		if keep[i] {
			result = append(result, face)
		}
	}
	return result
}

// iou calculates intersection over union of two boxes
func iou(a, b faceswap.Box) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
