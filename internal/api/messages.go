package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"inbox/internal/messaging"
	"inbox/internal/models"
)

type MessageHandler struct {
	service        *messaging.Service
	maxUploadBytes int64
}

func NewMessageHandler(service *messaging.Service, maxUploadBytes int64) *MessageHandler {
	return &MessageHandler{service: service, maxUploadBytes: maxUploadBytes}
}

type SendMessageRequest struct {
	RecipientID  string `json:"recipientId" validate:"required"`
	Content      string `json:"content"`
	SharedPostID string `json:"sharedPostId"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}

// POST /api/v1/messages/send
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	var req SendMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		if isBodyTooLargeError(err) {
			payloadTooLarge(w, "Request body too large")
			return
		}
		badRequest(w, err.Error())
		return
	}

	msg, err := h.service.SendMessage(r.Context(), messaging.SendInput{
		SenderID:     userID,
		RecipientID:  strings.TrimSpace(req.RecipientID),
		Content:      req.Content,
		SharedPostID: strings.TrimSpace(req.SharedPostID),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, msg)
}

// POST /api/v1/messages/send-file
func (h *MessageHandler) SendFile(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	form, ok := parseAttachmentForm(w, r, h.maxUploadBytes)
	if !ok {
		return
	}
	defer form.Close()

	msg, err := h.service.SendMessageWithAttachment(r.Context(), messaging.SendInput{
		SenderID:    userID,
		RecipientID: form.RecipientID,
		Content:     form.Content,
	}, messaging.Upload{
		Name:   form.Header.Filename,
		Size:   form.Header.Size,
		Reader: form.File,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, msg)
}

// GET /api/v1/messages/conversations
func (h *MessageHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	conversations, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}

	writeData(w, http.StatusOK, conversations)
}

// GET /api/v1/messages/unread-count
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, UnreadCountResponse{Count: count})
}

// GET /api/v1/messages/{counterpartId}
func (h *MessageHandler) ListThread(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	counterpartID := strings.TrimSpace(chi.URLParam(r, "counterpartId"))
	if counterpartID == "" {
		badRequest(w, "counterpartId is required")
		return
	}

	messages, err := h.service.ListMessages(r.Context(), userID, counterpartID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	writeData(w, http.StatusOK, messages)
}

// POST /api/v1/messages/{counterpartId}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r)
	if userID == "" {
		unauthorized(w, "User not found in context")
		return
	}

	counterpartID := strings.TrimSpace(chi.URLParam(r, "counterpartId"))
	if counterpartID == "" {
		badRequest(w, "counterpartId is required")
		return
	}

	updated, err := h.service.MarkRead(r.Context(), userID, counterpartID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeData(w, http.StatusOK, MarkReadResponse{Updated: updated})
}
