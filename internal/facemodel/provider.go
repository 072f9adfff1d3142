package facemodel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/jo-hoe/faceswap/internal/faceswap"
)

// Config selects the model artifacts and runtime settings.
type Config struct {
	CacheDir       string   `yaml:"cacheDir" validate:"required"`
	RuntimeLibrary string   `yaml:"runtimeLibrary"`
	DetectionSize  int      `yaml:"detectionSize" validate:"gte=0"`
	NMSThreshold   float32  `yaml:"nmsThreshold" validate:"gte=0,lte=1"`
	Detector       Artifact `yaml:"detector"`
	Recognizer     Artifact `yaml:"recognizer"`
	Swapper        Artifact `yaml:"swapper"`
}

const (
	buffaloURL = "https://github.com/deepinsight/insightface/releases/download/v0.7/buffalo_l.zip"
	swapperURL = "https://huggingface.co/ezioruan/inswapper_128.onnx/resolve/main/inswapper_128.onnx"
)

// DefaultConfig returns the standard model set: SCRFD-10G and ArcFace R50 from
// the buffalo_l pack plus inswapper_128.
func DefaultConfig() Config {
	return Config{
		CacheDir:      "models",
		DetectionSize: DefaultDetectionSize,
		NMSThreshold:  DefaultNMSThreshold,
		Detector:      Artifact{File: "det_10g.onnx", URL: buffaloURL, ArchiveMember: "det_10g.onnx"},
		Recognizer:    Artifact{File: "w600k_r50.onnx", URL: buffaloURL, ArchiveMember: "w600k_r50.onnx"},
		Swapper:       Artifact{File: "inswapper_128.onnx", URL: swapperURL},
	}
}

// Artifacts lists all artifacts of the config.
func (c Config) Artifacts() []Artifact {
	return []Artifact{c.Detector, c.Recognizer, c.Swapper}
}

// loadFunc builds the models; the returned close function releases them.
type loadFunc func() (faceswap.Detector, faceswap.Swapper, func() error, error)

// Provider loads the detector and swapper on first use and shares them for
// the lifetime of the process. A failed load is not remembered; the next call
// tries again.
type Provider struct {
	// loadMu serialises loading; mu guards the held models and is never held
	// during a load, so Loaded and Close answer while models download.
	loadMu   sync.Mutex
	mu       sync.RWMutex
	load     loadFunc
	detector faceswap.Detector
	swapper  faceswap.Swapper
	closeFn  func() error
}

// NewProvider creates a provider that fetches missing artifacts and opens
// ONNX Runtime sessions lazily.
func NewProvider(config Config) *Provider {
	return newProviderWithLoader(func() (faceswap.Detector, faceswap.Swapper, func() error, error) {
		return loadModels(config)
	})
}

func newProviderWithLoader(load loadFunc) *Provider {
	return &Provider{load: load}
}

// Models implements faceswap.ModelProvider.
func (p *Provider) Models() (faceswap.Detector, faceswap.Swapper, error) {
	if detector, swapper, ok := p.held(); ok {
		return detector, swapper, nil
	}

	p.loadMu.Lock()
	defer p.loadMu.Unlock()

	// another caller may have finished loading while we waited
	if detector, swapper, ok := p.held(); ok {
		return detector, swapper, nil
	}

	detector, swapper, closeFn, err := p.safeLoad()
	if err != nil {
		slog.Error("provider: model load failed", "error", err)
		return nil, nil, fmt.Errorf("%w: %w", faceswap.ErrModelLoad, err)
	}

	p.mu.Lock()
	p.detector, p.swapper, p.closeFn = detector, swapper, closeFn
	p.mu.Unlock()

	slog.Info("provider: models loaded")
	return detector, swapper, nil
}

func (p *Provider) held() (faceswap.Detector, faceswap.Swapper, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.detector, p.swapper, p.detector != nil && p.swapper != nil
}

func (p *Provider) safeLoad() (detector faceswap.Detector, swapper faceswap.Swapper, closeFn func() error, err error) {
	defer func() {
		if r := recover(); r != nil {
			detector, swapper, closeFn = nil, nil, nil
			err = fmt.Errorf("panic while loading models: %v", r)
		}
	}()

	detector, swapper, closeFn, err = p.load()
	if err == nil && (detector == nil || swapper == nil) {
		err = fmt.Errorf("loader returned no models")
	}
	return detector, swapper, closeFn, err
}

// Loaded reports whether the models are currently held.
func (p *Provider) Loaded() bool {
	_, _, ok := p.held()
	return ok
}

// Close releases the loaded models without waiting for a load in progress.
// A later Models call loads them again.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.closeFn != nil {
		err = p.closeFn()
	}
	p.detector, p.swapper, p.closeFn = nil, nil, nil
	return err
}

// FetchAll downloads every missing artifact of config.
func FetchAll(ctx context.Context, config Config, client *http.Client, showProgress bool) ([]string, error) {
	fetcher := NewFetcher(config.CacheDir, client, showProgress)
	paths := make([]string, 0, 3)
	for _, artifact := range config.Artifacts() {
		p, err := fetcher.Ensure(ctx, artifact)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func loadModels(config Config) (faceswap.Detector, faceswap.Swapper, func() error, error) {
	paths, err := FetchAll(context.Background(), config, nil, false)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := InitializeRuntime(config.RuntimeLibrary); err != nil {
		return nil, nil, nil, err
	}

	analyzer, err := NewFaceAnalyzer(paths[0], paths[1], config.DetectionSize, config.NMSThreshold)
	if err != nil {
		return nil, nil, nil, err
	}

	swapper, err := NewInswapper(paths[2])
	if err != nil {
		_ = analyzer.Close()
		return nil, nil, nil, err
	}

	closeFn := func() error {
		err := analyzer.Close()
		if swapErr := swapper.Close(); err == nil {
			err = swapErr
		}
		return err
	}
	return analyzer, swapper, closeFn, nil
}
