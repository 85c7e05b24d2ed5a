package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
)

const (
	// multipartSlackBytes covers form fields and part headers on top of the file.
	multipartSlackBytes = 1 << 20
	multipartMemory     = 1 << 20
)

// attachmentForm is a parsed send-file request. Close releases the temp
// files the multipart reader may have spilled to disk.
type attachmentForm struct {
	RecipientID string `validate:"required"`
	Content     string
	File        multipart.File
	Header      *multipart.FileHeader
	form        *multipart.Form
}

func (f *attachmentForm) Close() {
	if f.File != nil {
		f.File.Close()
	}
	if f.form != nil {
		f.form.RemoveAll()
	}
}

// parseAttachmentForm reads the recipientId, content and file fields. On
// failure it has already written the error response.
func parseAttachmentForm(w http.ResponseWriter, r *http.Request, maxFileBytes int64) (*attachmentForm, bool) {
	if maxFileBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes+multipartSlackBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLargeError(err) {
			payloadTooLarge(w, "File exceeds maximum upload size")
		} else {
			badRequest(w, "Invalid multipart upload")
		}
		return nil, false
	}

	form := &attachmentForm{
		RecipientID: strings.TrimSpace(r.FormValue("recipientId")),
		Content:     r.FormValue("content"),
		form:        r.MultipartForm,
	}
	if err := requestValidator.Struct(form); err != nil {
		form.Close()
		badRequest(w, "recipientId is required")
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		form.Close()
		badRequest(w, "File field 'file' is required")
		return nil, false
	}
	form.File, form.Header = file, header

	if strings.TrimSpace(header.Filename) == "" {
		form.Close()
		badRequest(w, "File name is required")
		return nil, false
	}

	return form, true
}

func isBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}
