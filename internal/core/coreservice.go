package core

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/faceswap/internal/facemodel"
	"github.com/jo-hoe/faceswap/internal/faceswap"
	"github.com/jo-hoe/faceswap/internal/imageio"
	"github.com/jo-hoe/faceswap/internal/session"
)

// ModelProvider is the model source of the service.
type ModelProvider interface {
	faceswap.ModelProvider
	Loaded() bool
	Close() error
}

// Upload is one uploaded image file.
type Upload struct {
	Filename string
	Data     []byte
}

// SwapRequest carries the two uploads and the detection confidence.
type SwapRequest struct {
	Source     Upload
	Target     Upload
	Confidence float32
}

// Health reports the state of the service dependencies.
type Health struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"modelsLoaded"`
	SessionStore string `json:"sessionStore"`
}

type CoreService struct {
	config   *ServiceConfig
	decoder  *imageio.Decoder
	provider ModelProvider
	store    session.Store
}

func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	store, err := session.NewStore(config.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	return NewCoreServiceWith(config, facemodel.NewProvider(config.Models), store), nil
}

// NewCoreServiceWith creates a service over explicit dependencies.
func NewCoreServiceWith(config *ServiceConfig, provider ModelProvider, store session.Store) *CoreService {
	return &CoreService{
		config:   config,
		decoder:  imageio.NewDecoder(config.Upload.AllowedExtensions, config.Upload.MaxBytes),
		provider: provider,
		store:    store,
	}
}

// SwapImages runs a swap without touching any session. Every failure is
// returned as *UserError.
func (service *CoreService) SwapImages(request SwapRequest) (result *session.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("SwapImages: recovered from panic", "panic", r)
			result = nil
			err = classify(fmt.Errorf("%w: %v", faceswap.ErrSwap, r))
		}
	}()

	source, err := service.decode(faceswap.RoleSource, request.Source)
	if err != nil {
		return nil, err
	}
	target, err := service.decode(faceswap.RoleTarget, request.Target)
	if err != nil {
		return nil, err
	}

	detector, swapper, err := service.provider.Models()
	if err != nil {
		return nil, service.fail(err)
	}

	swapped, err := faceswap.NewOrchestrator(detector, swapper).Swap(source, target, faceswap.Options{
		MinScore: service.config.Confidence.Clamp(request.Confidence),
	})
	if err != nil {
		return nil, service.fail(err)
	}

	encoded, err := imageio.EncodePNG(swapped.Image)
	if err != nil {
		return nil, service.fail(fmt.Errorf("%w: %w", faceswap.ErrSwap, err))
	}

	return &session.Result{
		PNG:          encoded,
		Width:        swapped.Image.Width,
		Height:       swapped.Image.Height,
		FacesSwapped: swapped.TargetFaces,
		SourceFaces:  swapped.SourceFaces,
		TargetFaces:  swapped.TargetFaces,
		CreatedAt:    time.Now(),
	}, nil
}

// Swap runs a swap and stores the result for the session. A failed swap keeps
// the previous result.
func (service *CoreService) Swap(sessionID string, request SwapRequest) (*session.Result, error) {
	result, err := service.SwapImages(request)
	if err != nil {
		return nil, err
	}
	if err := service.store.Put(sessionID, result); err != nil {
		return nil, service.fail(fmt.Errorf("could not store result: %w", err))
	}
	slog.Info("Swap: result stored", "session", sessionID, "faces_swapped", result.FacesSwapped)
	return result, nil
}

// Result returns the current result of the session or nil.
func (service *CoreService) Result(sessionID string) (*session.Result, error) {
	return service.store.Get(sessionID)
}

// ClearResult discards the result of the session.
func (service *CoreService) ClearResult(sessionID string) error {
	return service.store.Clear(sessionID)
}

// Preview decodes an upload and returns a PNG thumbnail at most width pixels wide.
func (service *CoreService) Preview(upload Upload, width int) ([]byte, error) {
	img, err := service.decoder.Decode(upload.Filename, upload.Data)
	if err != nil {
		return nil, classify(err)
	}
	thumbnail, err := imageio.Thumbnail(img, width)
	if err != nil {
		return nil, classify(err)
	}
	return thumbnail, nil
}

func (service *CoreService) Health() Health {
	health := Health{
		Status:       "ok",
		ModelsLoaded: service.provider.Loaded(),
		SessionStore: "ok",
	}
	if err := service.store.Ping(); err != nil {
		health.Status = "degraded"
		health.SessionStore = err.Error()
	}
	return health
}

func (service *CoreService) Close() error {
	return errors.Join(service.provider.Close(), service.store.Close())
}

func (service *CoreService) decode(role faceswap.Role, upload Upload) (*imageio.Image, error) {
	img, err := service.decoder.Decode(upload.Filename, upload.Data)
	if err != nil {
		userErr := classify(err)
		userErr.Message = fmt.Sprintf("Problem with the %s image. %s", role, userErr.Message)
		slog.Warn("decode: rejected upload", "role", role, "file", upload.Filename, "error", err)
		return nil, userErr
	}
	return img, nil
}

func (service *CoreService) fail(err error) *UserError {
	userErr := classify(err)
	if userErr.Kind == KindUnclassified {
		slog.Error("swap failed", "error", err)
	} else {
		slog.Warn("swap rejected", "kind", userErr.Kind, "error", err)
	}
	return userErr
}
