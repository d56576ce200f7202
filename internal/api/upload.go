package api

import (
	"encoding/json"
	"net/http"

	"github.com/starford/editor-server/internal/apperr"
	"github.com/starford/editor-server/internal/models"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadFile handles POST /file.upload (multipart/form-data, fields "file"
// and optional "meta" holding a JSON object).
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	const route = "/file.upload"
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.fail(w, r, route, apperr.New(apperr.ErrInvalid, "File too large or invalid multipart", err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, route, apperr.New(apperr.ErrInvalid, "Missing 'file' field in multipart form", ""))
		return
	}
	defer file.Close()

	meta := map[string]any{}
	if raw := r.FormValue("meta"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			h.fail(w, r, route, apperr.New(apperr.ErrInvalid, "Invalid 'meta' field", err.Error()))
			return
		}
	}

	resp, err := h.conn.UploadFile(r.Context(), models.UploadFileRequest{
		File: models.UploadedFile{
			Name:    header.Filename,
			Size:    header.Size,
			Content: file,
		},
		Meta: meta,
	})
	if err != nil {
		h.fail(w, r, route, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
