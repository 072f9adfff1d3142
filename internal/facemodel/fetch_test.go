package facemodel

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func newArtifactServer(t *testing.T, files map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func zipArchive(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, data := range members {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFetcher_DownloadsPlainFile(t *testing.T) {
	server, _ := newArtifactServer(t, map[string][]byte{"/swap.onnx": []byte("model")})
	dir := t.TempDir()

	path, err := NewFetcher(dir, server.Client(), false).Ensure(context.Background(), Artifact{
		File: "swap.onnx",
		URL:  server.URL + "/swap.onnx",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "model" {
		t.Errorf("Expected downloaded content, got %q", data)
	}
	if path != filepath.Join(dir, "swap.onnx") {
		t.Errorf("Expected file in cache dir, got %s", path)
	}
}

func TestFetcher_ExtractsArchiveMembersOnce(t *testing.T) {
	archive := zipArchive(t, map[string][]byte{
		"pack/det.onnx": []byte("detector"),
		"pack/rec.onnx": []byte("recognizer"),
	})
	server, requests := newArtifactServer(t, map[string][]byte{"/pack.zip": archive})
	fetcher := NewFetcher(t.TempDir(), server.Client(), false)

	for member, want := range map[string]string{"det.onnx": "detector", "rec.onnx": "recognizer"} {
		path, err := fetcher.Ensure(context.Background(), Artifact{
			File:          member,
			URL:           server.URL + "/pack.zip",
			ArchiveMember: member,
		})
		if err != nil {
			t.Fatalf("Expected no error for %s, got %v", member, err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != want {
			t.Errorf("Expected %q, got %q", want, data)
		}
	}

	if requests.Load() != 1 {
		t.Errorf("Expected archive to be downloaded once, got %d requests", requests.Load())
	}
}

func TestFetcher_SkipsExistingFile(t *testing.T) {
	server, requests := newArtifactServer(t, nil)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "det.onnx"), []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewFetcher(dir, server.Client(), false).Ensure(context.Background(), Artifact{
		File: "det.onnx",
		URL:  server.URL + "/det.onnx",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if requests.Load() != 0 {
		t.Errorf("Expected no download, got %d requests", requests.Load())
	}
}

func TestFetcher_Checksum(t *testing.T) {
	content := []byte("model")
	sum := sha256.Sum256(content)
	server, _ := newArtifactServer(t, map[string][]byte{"/m.onnx": content})

	t.Run("match", func(t *testing.T) {
		_, err := NewFetcher(t.TempDir(), server.Client(), false).Ensure(context.Background(), Artifact{
			File: "m.onnx", URL: server.URL + "/m.onnx", SHA256: hex.EncodeToString(sum[:]),
		})
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		dir := t.TempDir()
		_, err := NewFetcher(dir, server.Client(), false).Ensure(context.Background(), Artifact{
			File: "m.onnx", URL: server.URL + "/m.onnx", SHA256: "deadbeef",
		})
		if err == nil {
			t.Fatal("Expected checksum error")
		}
		if _, statErr := os.Stat(filepath.Join(dir, "m.onnx")); !os.IsNotExist(statErr) {
			t.Error("Expected corrupt file to be removed")
		}
	})
}

func TestFetcher_Errors(t *testing.T) {
	server, _ := newArtifactServer(t, map[string][]byte{"/pack.zip": zipArchive(t, map[string][]byte{"a.onnx": nil})})
	fetcher := NewFetcher(t.TempDir(), server.Client(), false)

	tests := []struct {
		name     string
		artifact Artifact
	}{
		{"no file name", Artifact{URL: server.URL + "/x"}},
		{"no url", Artifact{File: "x.onnx"}},
		{"not found", Artifact{File: "x.onnx", URL: server.URL + "/x.onnx"}},
		{"missing member", Artifact{File: "b.onnx", URL: server.URL + "/pack.zip", ArchiveMember: "b.onnx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fetcher.Ensure(context.Background(), tt.artifact); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
