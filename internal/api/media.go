package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"inbox/internal/blob"
	"inbox/internal/db"
)

type AttachmentLookup interface {
	FindAttachment(ctx context.Context, key string) (*db.Attachment, error)
}

// MediaHandler serves attachments kept by the local blob store.
type MediaHandler struct {
	attachments AttachmentLookup
	blobs       *blob.Service
}

func NewMediaHandler(attachments AttachmentLookup, blobs *blob.Service) *MediaHandler {
	return &MediaHandler{attachments: attachments, blobs: blobs}
}

// GET /media/{blobID}
func (h *MediaHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	row, ok := h.lookup(w, r, "Media not found")
	if !ok {
		return
	}

	file, err := h.blobs.OpenBlob(row.Key)
	if errors.Is(err, os.ErrNotExist) {
		notFound(w, "Media not found")
		return
	}
	if err != nil {
		slog.Error("error opening blob", "error", err, "blob_id", row.Key)
		internalError(w)
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.Header().Set("ETag", fmt.Sprintf("\"%s\"", row.Key))
	if row.MimeType != "" {
		w.Header().Set("Content-Type", row.MimeType)
	}

	fileName := sanitizeDispositionFilename(row.Name)
	if !shouldForceDownload(r) && shouldRenderInline(row.MimeType) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", fileName))
	} else {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	}

	http.ServeContent(w, r, row.Name, row.CreatedAt, file)
}

// GET /media/{blobID}/preview
func (h *MediaHandler) GetBlobPreview(w http.ResponseWriter, r *http.Request) {
	row, ok := h.lookup(w, r, "Media preview not found")
	if !ok {
		return
	}

	file, err := h.blobs.OpenPreview(row.Key)
	if errors.Is(err, os.ErrNotExist) {
		notFound(w, "Media preview not found")
		return
	}
	if err != nil {
		slog.Error("error opening blob preview", "error", err, "blob_id", row.Key)
		internalError(w)
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.Header().Set("ETag", fmt.Sprintf("\"%s-preview\"", row.Key))
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", sanitizeDispositionFilename(row.Name)))

	http.ServeContent(w, r, row.Name, row.CreatedAt, file)
}

func (h *MediaHandler) lookup(w http.ResponseWriter, r *http.Request, missing string) (*db.Attachment, bool) {
	blobID := strings.TrimSpace(chi.URLParam(r, "blobID"))
	if !db.IsValidID(blob.IDPrefix, blobID) {
		notFound(w, missing)
		return nil, false
	}

	row, err := h.attachments.FindAttachment(r.Context(), blobID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, missing)
		return nil, false
	}
	if err != nil {
		slog.Error("error finding attachment", "error", err, "blob_id", blobID)
		internalError(w)
		return nil, false
	}
	return row, true
}

func sanitizeDispositionFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "download"
	}
	name = strings.ReplaceAll(name, "\\", "")
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.ReplaceAll(name, "\r", "")
	name = strings.ReplaceAll(name, "\n", "")
	if name == "" {
		return "download"
	}
	return name
}

func shouldRenderInline(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"),
		strings.HasPrefix(mimeType, "video/"),
		strings.HasPrefix(mimeType, "audio/"):
		return true
	}
	return mimeType == "application/pdf"
}

func shouldForceDownload(r *http.Request) bool {
	download := strings.TrimSpace(r.URL.Query().Get("download"))
	if download == "" {
		return false
	}

	force, err := strconv.ParseBool(download)
	if err != nil {
		return false
	}

	return force
}
