package faceswap

import (
	"errors"
	"fmt"
)

// Role names which of the two input images an error refers to.
type Role string

const (
	RoleSource Role = "source"
	RoleTarget Role = "target"
)

var (
	// ErrNoFaceDetected matches any NoFaceDetectedError.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrModelLoad is returned when the detector or swapper cannot be initialized.
	ErrModelLoad = errors.New("face models could not be loaded")
	// ErrSwap covers every other failure raised by detection or swapping.
	ErrSwap = errors.New("face swap failed")
)

// NoFaceDetectedError reports that the detector found no face in one of the inputs.
type NoFaceDetectedError struct {
	Role Role
}

func (e *NoFaceDetectedError) Error() string {
	return fmt.Sprintf("no face detected in %s image", e.Role)
}

func (e *NoFaceDetectedError) Is(target error) bool {
	return target == ErrNoFaceDetected
}
