package api

import (
	"net/http"
	"os"

	"github.com/starford/lexicon/internal/termservice"
)

const maxUploadBytes = 50 << 20 // 50 MB

// AttachmentHandler accepts uploads and serves the files attached to terms.
type AttachmentHandler struct {
	svc *termservice.Service
}

// NewAttachmentHandler creates a handler over svc.
func NewAttachmentHandler(svc *termservice.Service) *AttachmentHandler {
	return &AttachmentHandler{svc: svc}
}

// ServeFile handles GET /api/terms/{name}/files/{file}.
func (h *AttachmentHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	abs, err := h.svc.FilePath(r.Context(), urlParam(r, "name"), urlParam(r, "file"))
	if err != nil {
		writeError(w, "serve file", err)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/terms/{name}/attachments (multipart/form-data,
// field "file"). The file is staged and linked to the term; it is copied
// into the term directory on the next save.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	d, err := h.svc.Attach(r.Context(), urlParam(r, "name"), header.Filename, file)
	if err != nil {
		writeError(w, "upload attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}
