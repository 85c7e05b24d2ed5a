package api

import (
	"net/http"
	"time"
)

type ServerInfoHandler struct {
	info ServerInfoResponse
}

type ServerInfoResponse struct {
	Name                   string `json:"name"`
	MaxContentLength       int    `json:"maxContentLength"`
	MaxAttachmentBytes     int64  `json:"maxAttachmentBytes"`
	ConversationPollMillis int64  `json:"conversationPollMs"`
	ThreadPollMillis       int64  `json:"threadPollMs"`
}

func NewServerInfoHandler(name string, maxContentLength int, maxAttachmentBytes int64, conversationPoll, threadPoll time.Duration) *ServerInfoHandler {
	return &ServerInfoHandler{info: ServerInfoResponse{
		Name:                   name,
		MaxContentLength:       maxContentLength,
		MaxAttachmentBytes:     maxAttachmentBytes,
		ConversationPollMillis: conversationPoll.Milliseconds(),
		ThreadPollMillis:       threadPoll.Milliseconds(),
	}}
}

// GET /api/v1/server/info
func (h *ServerInfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.info)
}
