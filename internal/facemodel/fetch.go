package facemodel

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
)

// Artifact describes one model file and where to obtain it.
type Artifact struct {
	// File is the model file name inside the cache directory.
	File string `yaml:"file" validate:"required"`
	// URL points at the model file, or at a zip archive when ArchiveMember is set.
	URL string `yaml:"url" validate:"omitempty,url"`
	// ArchiveMember names the file to extract from the downloaded archive.
	ArchiveMember string `yaml:"archiveMember"`
	// SHA256 optionally pins the hex digest of File.
	SHA256 string `yaml:"sha256"`
}

// Fetcher downloads missing model artifacts into a cache directory.
type Fetcher struct {
	cacheDir     string
	client       *http.Client
	showProgress bool
}

// NewFetcher creates a fetcher; a nil client uses http.DefaultClient.
func NewFetcher(cacheDir string, client *http.Client, showProgress bool) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{cacheDir: cacheDir, client: client, showProgress: showProgress}
}

// Ensure returns the local path of the artifact, downloading it first if it is missing.
func (f *Fetcher) Ensure(ctx context.Context, artifact Artifact) (string, error) {
	if artifact.File == "" {
		return "", errors.New("artifact has no file name")
	}
	target := filepath.Join(f.cacheDir, artifact.File)

	if _, err := os.Stat(target); err == nil {
		return target, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if artifact.URL == "" {
		return "", fmt.Errorf("model %s not found in %s and no download url configured", artifact.File, f.cacheDir)
	}
	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("could not create model cache %s: %w", f.cacheDir, err)
	}

	if artifact.ArchiveMember == "" {
		if err := f.download(ctx, artifact.URL, target, artifact.File); err != nil {
			return "", err
		}
	} else {
		archive, err := f.ensureArchive(ctx, artifact.URL)
		if err != nil {
			return "", err
		}
		if err := extractMember(archive, artifact.ArchiveMember, target); err != nil {
			return "", err
		}
	}

	if artifact.SHA256 != "" {
		if err := verifyChecksum(target, artifact.SHA256); err != nil {
			_ = os.Remove(target)
			return "", err
		}
	}

	slog.Info("model artifact ready", "file", target)
	return target, nil
}

// ensureArchive downloads the archive at rawURL unless it is already cached.
func (f *Fetcher) ensureArchive(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid archive url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("cannot derive archive name from %q", rawURL)
	}

	archive := filepath.Join(f.cacheDir, name)
	if _, err := os.Stat(archive); err == nil {
		return archive, nil
	}
	if err := f.download(ctx, rawURL, archive, name); err != nil {
		return "", err
	}
	return archive, nil
}

// download writes the body of rawURL to target through a temporary file.
func (f *Fetcher) download(ctx context.Context, rawURL, target, description string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	slog.Info("downloading model artifact", "url", rawURL, "target", target)
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download of %s failed: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status %s", rawURL, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	var w io.Writer = tmp
	if f.showProgress {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		w = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download of %s interrupted: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// extractMember copies the archive entry whose path or base name equals member to target.
func extractMember(archive, member, target string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("could not open archive %s: %w", archive, err)
	}
	defer r.Close()

	for _, file := range r.File {
		if file.FileInfo().IsDir() {
			continue
		}
		if file.Name != member && path.Base(strings.ReplaceAll(file.Name, "\\", "/")) != member {
			continue
		}

		src, err := file.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.part")
		if err != nil {
			return err
		}
		defer func() {
			_ = os.Remove(tmp.Name())
		}()

		if _, err := io.Copy(tmp, src); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("could not extract %s from %s: %w", member, archive, err)
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), target)
	}
	return fmt.Errorf("archive %s has no member %s", archive, member)
}

func verifyChecksum(file, expected string) error {
	fh, err := os.Open(file)
	if err != nil {
		return err
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return err
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch for %s: expected %s, got %s", file, expected, actual)
	}
	return nil
}
