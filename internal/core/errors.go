package core

import (
	"errors"
	"net/http"

	"github.com/jo-hoe/faceswap/internal/faceswap"
	"github.com/jo-hoe/faceswap/internal/imageio"
)

type ErrorKind string

const (
	KindNoFace       ErrorKind = "no_face_detected"
	KindModelLoad    ErrorKind = "model_load_failure"
	KindDecode       ErrorKind = "image_decode_failure"
	KindUnclassified ErrorKind = "swap_failure"
)

// UserError is a failure that can be shown to the user as is.
type UserError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *UserError) StatusCode() int {
	switch e.Kind {
	case KindNoFace:
		return http.StatusUnprocessableEntity
	case KindModelLoad:
		return http.StatusServiceUnavailable
	case KindDecode:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// classify turns any error from ingestion, model loading or swapping into a UserError.
func classify(err error) *UserError {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr
	}

	var noFace *faceswap.NoFaceDetectedError
	switch {
	case errors.As(err, &noFace):
		msg := "No face detected in the target image. Try another image or lower the detection confidence."
		if noFace.Role == faceswap.RoleSource {
			msg = "No face detected in the source image. Try another image or lower the detection confidence."
		}
		return &UserError{Kind: KindNoFace, Message: msg, Err: err}
	case errors.Is(err, faceswap.ErrModelLoad):
		return &UserError{Kind: KindModelLoad, Message: "The face swap models could not be loaded. Please try again later.", Err: err}
	case errors.Is(err, imageio.ErrTooLarge):
		return &UserError{Kind: KindDecode, Message: "The image is too large. Please upload a smaller JPG or PNG image.", Err: err}
	case errors.Is(err, imageio.ErrUnsupportedType):
		return &UserError{Kind: KindDecode, Message: "Unsupported file. Please upload a JPG or PNG image.", Err: err}
	case errors.Is(err, imageio.ErrDecode):
		return &UserError{Kind: KindDecode, Message: "The image could not be read. Please upload a valid JPG or PNG image.", Err: err}
	default:
		return &UserError{Kind: KindUnclassified, Message: "Face swap failed. Please try again with different images.", Err: err}
	}
}
