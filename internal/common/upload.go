package common

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/jo-hoe/faceswap/internal/core"
	"github.com/labstack/echo/v4"
)

// ReadFormFile reads a multipart file field completely.
func ReadFormFile(ctx echo.Context, field string) (core.Upload, error) {
	file, err := ctx.FormFile(field)
	if err != nil {
		return core.Upload{}, err
	}

	src, err := file.Open()
	if err != nil {
		return core.Upload{}, fmt.Errorf("failed to open uploaded file %s: %w", file.Filename, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("ReadFormFile: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()

	data, err := io.ReadAll(src)
	if err != nil {
		return core.Upload{}, fmt.Errorf("failed to read uploaded file %s: %w", file.Filename, err)
	}
	return core.Upload{Filename: file.Filename, Data: data}, nil
}

// ParseConfidence reads a slider value; missing or malformed values select the default.
func ParseConfidence(value string) float32 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return float32(f)
}

// UserFacing returns the status and message shown for a failed operation.
func UserFacing(err error) (int, string) {
	var userErr *core.UserError
	if errors.As(err, &userErr) {
		return userErr.StatusCode(), userErr.Message
	}
	return http.StatusInternalServerError, "Something went wrong. Please try again."
}
