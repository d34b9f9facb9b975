package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/core"
)

func TestFirmwareHandler(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "firmware.bin")
	image := []byte{0xE9, 0x03, 0x02, 0x20, 0x00, 0xFF}
	if err := os.WriteFile(path, image, 0644); err != nil {
		t.Fatalf("Failed to write firmware: %v", err)
	}

	rec := httptest.NewRecorder()
	FirmwareHandler(path).ServeHTTP(rec, httptest.NewRequest("GET", "/ota", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Expected application/octet-stream, got %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "firmware.bin") {
		t.Errorf("Expected attachment filename, got %q", cd)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != string(image) {
		t.Errorf("Firmware bytes differ")
	}
}

func TestFirmwareHandlerMissing(t *testing.T) {
	for name, path := range map[string]string{
		"missing file": filepath.Join(t.TempDir(), "nope.bin"),
		"directory":    t.TempDir(),
		"unset":        "",
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			FirmwareHandler(path).ServeHTTP(rec, httptest.NewRequest("GET", "/ota", nil))

			if rec.Code != http.StatusNotFound {
				t.Fatalf("Expected 404, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), core.MsgNoFirmware) {
				t.Errorf("Expected firmware message, got %s", rec.Body.String())
			}
		})
	}
}

func TestIndexHandler(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Health Monitor</h1>"), 0644)

	rec := httptest.NewRecorder()
	IndexHandler(dir).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Health Monitor") {
		t.Errorf("Expected index page, got %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected text/html, got %s", ct)
	}

	rec = httptest.NewRecorder()
	IndexHandler("").ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without web root, got %d", rec.Code)
	}
}
