package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

var allowedUploadTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// handleUpload stores an image attachment and returns its public URL
// for embedding in a chat message.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		respondError(w, http.StatusBadRequest, "upload too large or malformed")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	if !allowedUploadTypes[header.Header.Get("Content-Type")] {
		respondError(w, http.StatusBadRequest, "invalid file type")
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0750); err != nil {
		log.Error().Err(err).Msg("Failed to create upload dir")
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(header.Filename))
	dst, err := os.Create(filepath.Join(h.uploadDir, name))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create upload file")
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		log.Error().Err(err).Msg("Failed to write upload file")
		respondError(w, http.StatusInternalServerError, "server error")
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"filePath": fmt.Sprintf("%s://%s/uploads/%s", scheme, r.Host, name),
	})
}
