package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"inbox/internal/models"
)

// APIError is a failed call as reported by the server envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("inbox api: status %d", e.Status)
	}
	return fmt.Sprintf("inbox api: %s: %s", e.Code, e.Message)
}

// HTTPAPI talks to the /api/v1 routes with a bearer token.
type HTTPAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPAPI(baseURL, token string, client *http.Client) *HTTPAPI {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out any) error {
	if body == nil {
		return a.send(ctx, method, path, nil, "", out)
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return a.send(ctx, method, path, bytes.NewReader(encoded), "application/json", out)
}

// send performs one call and unwraps the response envelope into out.
func (a *HTTPAPI) send(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+"/api/v1"+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("decoding %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding %s %s data: %w", method, path, err)
	}
	return nil
}

func (a *HTTPAPI) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	if err := a.do(ctx, http.MethodGet, "/messages/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) ListMessages(ctx context.Context, counterpartID string) ([]*models.Message, error) {
	var out []*models.Message
	if err := a.do(ctx, http.MethodGet, "/messages/"+url.PathEscape(counterpartID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) MarkThreadRead(ctx context.Context, counterpartID string) error {
	return a.do(ctx, http.MethodPost, "/messages/"+url.PathEscape(counterpartID)+"/read", nil, nil)
}

func (a *HTTPAPI) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var out models.User
	if err := a.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) SendMessage(ctx context.Context, msg Outgoing) (*models.Message, error) {
	var out models.Message
	if err := a.do(ctx, http.MethodPost, "/messages/send", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendFile posts a multipart send-file request. The body is streamed
// through a pipe so large files are never held in memory.
func (a *HTTPAPI) SendFile(ctx context.Context, recipientID, content string, file Attachment) (*models.Message, error) {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := writeAttachmentForm(form, recipientID, content, file)
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	var out models.Message
	err := a.send(ctx, http.MethodPost, "/messages/send-file", pr, form.FormDataContentType(), &out)
	pr.Close()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func writeAttachmentForm(form *multipart.Writer, recipientID, content string, file Attachment) error {
	if err := form.WriteField("recipientId", recipientID); err != nil {
		return err
	}
	if content != "" {
		if err := form.WriteField("content", content); err != nil {
			return err
		}
	}
	part, err := form.CreateFormFile("file", file.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file.Reader)
	return err
}

func (a *HTTPAPI) RequestStatus(ctx context.Context, counterpartID string) (*models.RequestStatusView, error) {
	var out models.RequestStatusView
	if err := a.do(ctx, http.MethodGet, "/messages/request-status/"+url.PathEscape(counterpartID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *HTTPAPI) AcceptRequest(ctx context.Context, requestID string) (*models.MessageRequest, error) {
	return a.respond(ctx, requestID, "accept")
}

func (a *HTTPAPI) RejectRequest(ctx context.Context, requestID string) (*models.MessageRequest, error) {
	return a.respond(ctx, requestID, "reject")
}

func (a *HTTPAPI) respond(ctx context.Context, requestID, action string) (*models.MessageRequest, error) {
	var out models.MessageRequest
	if err := a.do(ctx, http.MethodPost, "/messages/requests/"+url.PathEscape(requestID)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UnreadCount fetches the total unread badge.
func (a *HTTPAPI) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := a.do(ctx, http.MethodGet, "/messages/unread-count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}
