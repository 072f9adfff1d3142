package backend

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jo-hoe/faceswap/internal/common"
	"github.com/jo-hoe/faceswap/internal/core"
	"github.com/jo-hoe/faceswap/internal/imageio"
	"github.com/labstack/echo/v4"
)

type APIService struct {
	config      *core.ServiceConfig
	coreService *core.CoreService
}

type swapParams struct {
	Confidence float32 `form:"confidence" query:"confidence" validate:"omitempty,gte=0,lte=1"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewAPIService(config *core.ServiceConfig, coreService *core.CoreService) *APIService {
	return &APIService{
		config:      config,
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service is running")
	})

	e.POST("/api/swap", s.swapHandler)
	e.GET("/api/health", s.healthHandler)
}

// swapHandler runs a stateless swap and returns the composite as PNG.
func (s *APIService) swapHandler(ctx echo.Context) error {
	var params swapParams
	if err := ctx.Bind(&params); err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "Invalid request parameters"})
	}
	if err := ctx.Validate(&params); err != nil {
		var httpErr *echo.HTTPError
		message := err.Error()
		if errors.As(err, &httpErr) {
			if m, ok := httpErr.Message.(string); ok {
				message = m
			}
		}
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: message})
	}

	source, err := common.ReadFormFile(ctx, "source")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: string(core.KindDecode), Message: "Missing source image"})
	}
	target, err := common.ReadFormFile(ctx, "target")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: string(core.KindDecode), Message: "Missing target image"})
	}

	result, err := s.coreService.SwapImages(core.SwapRequest{
		Source:     source,
		Target:     target,
		Confidence: params.Confidence,
	})
	if err != nil {
		status, message := common.UserFacing(err)
		kind := core.KindUnclassified
		var userErr *core.UserError
		if errors.As(err, &userErr) {
			kind = userErr.Kind
		}
		slog.Warn("swapHandler: swap failed", "status", status, "error", err)
		return ctx.JSON(status, errorResponse{Error: string(kind), Message: message})
	}

	ctx.Response().Header().Set("X-Faces-Swapped", strconv.Itoa(result.FacesSwapped))
	return ctx.Blob(http.StatusOK, imageio.MimePNG, result.PNG)
}

func (s *APIService) healthHandler(ctx echo.Context) error {
	health := s.coreService.Health()
	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return ctx.JSON(status, health)
}
