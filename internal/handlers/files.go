package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/core"
)

// FirmwareHandler serves the OTA firmware image as a binary download, or
// a JSON 404 when no image is installed.
func FirmwareHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isFile(path) {
			writeJSON(w, http.StatusNotFound, core.Message{Message: core.MsgNoFirmware})
			return
		}

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
		http.ServeFile(w, r, path)
	}
}

// IndexHandler serves index.html from webRoot. An empty webRoot disables
// the page.
func IndexHandler(webRoot string) http.HandlerFunc {
	index := filepath.Join(webRoot, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if webRoot == "" || !isFile(index) {
			writeJSON(w, http.StatusNotFound, core.Message{Message: core.MsgRouteNotFound})
			return
		}
		http.ServeFile(w, r, index)
	}
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
