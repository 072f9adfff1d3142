package frontend

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jo-hoe/faceswap/internal/common"
	"github.com/jo-hoe/faceswap/internal/core"
	"github.com/jo-hoe/faceswap/internal/imageio"
	"github.com/jo-hoe/faceswap/internal/session"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName     = "index.html"
	resultFragment   = "result.html"
	SessionCookie    = "faceswap_session"
	DownloadFilename = "face_swap_result.png"
	previewWidth     = 320
)

type FrontendService struct {
	coreService *core.CoreService
	config      *core.ServiceConfig

	iconOnce sync.Once
	iconPNG  []byte
	iconErr  error
}

func NewFrontendService(config *core.ServiceConfig, coreService *core.CoreService) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		config:      config,
	}
}

type indexView struct {
	Accept     string
	Confidence core.ConfidenceConfig
	Result     resultView
}

type resultView struct {
	Result       *session.Result
	Error        string
	Timestamp    string
	DownloadName string
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = newTemplate()

	e.GET("/", service.rootRedirectHandler)
	e.GET("/"+MainPageName, service.indexHandler)

	e.POST("/htmx/swap", service.htmxSwapHandler)
	e.GET("/htmx/result", service.htmxResultHandler)
	e.POST("/htmx/clear", service.htmxClearHandler)
	e.POST("/htmx/preview", service.htmxPreviewHandler)

	e.GET("/result/image", service.resultImageHandler)
	e.GET("/result/download", service.resultDownloadHandler)

	e.GET("/icon.svg", service.iconHandler)
	e.GET("/icon.png", service.iconPNGHandler)
}

func (service *FrontendService) indexHandler(ctx echo.Context) error {
	sessionID := service.sessionID(ctx)

	view := indexView{
		Accept:     acceptAttribute(service.config.Upload.AllowedExtensions),
		Confidence: service.config.Confidence,
		Result:     service.currentResultView(sessionID),
	}

	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, view)
}

func (service *FrontendService) htmxSwapHandler(ctx echo.Context) error {
	sessionID := service.sessionID(ctx)

	source, err := common.ReadFormFile(ctx, "source")
	if err != nil {
		slog.Warn("htmxSwapHandler: missing source upload", "status", http.StatusBadRequest, "error", err)
		return service.renderError(ctx, sessionID, http.StatusBadRequest, "Please choose a source image.")
	}
	target, err := common.ReadFormFile(ctx, "target")
	if err != nil {
		slog.Warn("htmxSwapHandler: missing target upload", "status", http.StatusBadRequest, "error", err)
		return service.renderError(ctx, sessionID, http.StatusBadRequest, "Please choose a target image.")
	}

	result, err := service.coreService.Swap(sessionID, core.SwapRequest{
		Source:     source,
		Target:     target,
		Confidence: common.ParseConfidence(ctx.FormValue("confidence")),
	})
	if err != nil {
		status, message := common.UserFacing(err)
		slog.Warn("htmxSwapHandler: swap failed", "status", status, "session", sessionID, "error", err)
		return service.renderError(ctx, sessionID, status, message)
	}

	return service.renderResult(ctx, http.StatusOK, service.newResultView(result))
}

func (service *FrontendService) htmxResultHandler(ctx echo.Context) error {
	return service.renderResult(ctx, http.StatusOK, service.currentResultView(service.sessionID(ctx)))
}

func (service *FrontendService) htmxClearHandler(ctx echo.Context) error {
	sessionID := service.sessionID(ctx)
	if err := service.coreService.ClearResult(sessionID); err != nil {
		slog.Error("htmxClearHandler: failed to clear result",
			"status", http.StatusInternalServerError, "session", sessionID, "error", err)
		return service.renderResult(ctx, http.StatusInternalServerError, resultView{Error: "Failed to clear the result."})
	}
	return service.renderResult(ctx, http.StatusOK, resultView{})
}

func (service *FrontendService) htmxPreviewHandler(ctx echo.Context) error {
	upload, err := common.ReadFormFile(ctx, "image")
	if err != nil {
		slog.Warn("htmxPreviewHandler: failed to get uploaded file", "status", http.StatusBadRequest, "error", err)
		return ctx.String(http.StatusBadRequest, "Failed to get uploaded file")
	}

	thumbnail, err := service.coreService.Preview(upload, previewWidth)
	if err != nil {
		status, message := common.UserFacing(err)
		slog.Warn("htmxPreviewHandler: preview failed", "status", status, "filename", upload.Filename, "error", err)
		return ctx.String(status, message)
	}

	service.setNoCache(ctx)
	return ctx.Blob(http.StatusOK, imageio.MimePNG, thumbnail)
}

func (service *FrontendService) resultImageHandler(ctx echo.Context) error {
	result, err := service.lookupResult(ctx)
	if err != nil || result == nil {
		return ctx.String(http.StatusNotFound, "No result available")
	}
	service.setNoCache(ctx)
	return ctx.Blob(http.StatusOK, imageio.MimePNG, result.PNG)
}

func (service *FrontendService) resultDownloadHandler(ctx echo.Context) error {
	result, err := service.lookupResult(ctx)
	if err != nil || result == nil {
		return ctx.String(http.StatusNotFound, "No result available")
	}
	service.setNoCache(ctx)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", DownloadFilename))
	return ctx.Blob(http.StatusOK, imageio.MimePNG, result.PNG)
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}

func (service *FrontendService) iconPNGHandler(ctx echo.Context) error {
	service.iconOnce.Do(func() {
		data, err := assetsFS.ReadFile("views/icon.svg")
		if err != nil {
			service.iconErr = err
			return
		}
		service.iconPNG, service.iconErr = rasterizeSVG(data, iconPNGSize)
	})
	if service.iconErr != nil {
		slog.Error("iconPNGHandler: failed to render icon", "status", http.StatusInternalServerError, "error", service.iconErr)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, imageio.MimePNG, service.iconPNG)
}

func (service *FrontendService) renderResult(ctx echo.Context, status int, view resultView) error {
	service.setNoCache(ctx)
	return ctx.Render(status, resultFragment, view)
}

// renderError shows message above the result the session still holds.
func (service *FrontendService) renderError(ctx echo.Context, sessionID string, status int, message string) error {
	view := service.currentResultView(sessionID)
	view.Error = message
	return service.renderResult(ctx, status, view)
}

func (service *FrontendService) currentResultView(sessionID string) resultView {
	result, err := service.coreService.Result(sessionID)
	if err != nil {
		slog.Error("currentResultView: failed to read result", "session", sessionID, "error", err)
		return resultView{Error: "The previous result could not be loaded."}
	}
	return service.newResultView(result)
}

func (service *FrontendService) newResultView(result *session.Result) resultView {
	return resultView{
		Result:       result,
		Timestamp:    service.timestampNanoStr(),
		DownloadName: DownloadFilename,
	}
}

// lookupResult reads the result of an existing session without creating one.
func (service *FrontendService) lookupResult(ctx echo.Context) (*session.Result, error) {
	cookie, err := ctx.Cookie(SessionCookie)
	if err != nil || !session.ValidID(cookie.Value) {
		return nil, nil
	}
	return service.coreService.Result(cookie.Value)
}

// sessionID returns the id from the session cookie, issuing a new cookie when
// none or an invalid one was sent.
func (service *FrontendService) sessionID(ctx echo.Context) string {
	if cookie, err := ctx.Cookie(SessionCookie); err == nil && session.ValidID(cookie.Value) {
		return cookie.Value
	}

	id := session.NewID()
	ctx.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// make the id visible to later reads within this request
	ctx.Request().AddCookie(&http.Cookie{Name: SessionCookie, Value: id})
	return id
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) timestampNanoStr() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func acceptAttribute(extensions []string) string {
	parts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		parts = append(parts, "."+strings.TrimPrefix(strings.ToLower(ext), "."))
	}
	return strings.Join(parts, ",")
}
