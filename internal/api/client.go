// Package api wraps the chat service's REST endpoints behind a typed client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"social-chat/internal/message"
)

// Client issues same-origin JSON/multipart requests against the chat API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// New builds a client for the given base URL. The bearer token identifies
// the current user on every request.
func New(base, token string) *Client {
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}
}

// SendMessageRequest carries one outgoing chat message.
type SendMessageRequest struct {
	FriendID    int64  `json:"friend_id"`
	Message     string `json:"message"`
	RecipientID int64  `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
	Room        string `json:"room"`
	SenderID    int64  `json:"sender_id"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type historyResponse struct {
	Messages []message.Wire `json:"messages"`
	Error    string         `json:"error,omitempty"`
}

// ShareResult is the server's answer to a completed (synchronous) upload.
type ShareResult struct {
	Success  bool   `json:"success"`
	TaskID   string `json:"task_id,omitempty"`
	FileLink string `json:"file_link,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UploadStatus reports progress of a deferred upload task.
type UploadStatus struct {
	Status   string `json:"status"` // pending | processing | completed | error
	FileLink string `json:"file_link,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SendMessage posts one message. An application-level failure surfaces as an
// error so callers treat it the same as a transport failure.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	var resp statusResponse
	if err := c.postJSON(ctx, "/api/send_message", req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("send_message: %s", resp.Error)
	}
	return nil
}

// ChatHistory fetches the full message history for one peer.
func (c *Client) ChatHistory(ctx context.Context, peerID int64) ([]message.Wire, error) {
	var resp historyResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/api/chat_history/%d", peerID), &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ClearChat removes the caller's copy of the conversation with peerID.
func (c *Client) ClearChat(ctx context.Context, peerID int64) error {
	var resp statusResponse
	if err := c.postJSON(ctx, fmt.Sprintf("/api/clear_chat/%d", peerID), nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		if resp.Error != "" {
			return fmt.Errorf("clear_chat: %s", resp.Error)
		}
		return fmt.Errorf("clear_chat failed")
	}
	return nil
}

// ShareFile uploads a file as multipart form data and returns the stored
// file's download link.
func (c *Client) ShareFile(ctx context.Context, filename string, src io.Reader) (ShareResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return ShareResult{}, err
	}
	if _, err := io.Copy(part, src); err != nil {
		return ShareResult{}, err
	}
	if err := writer.WriteField("filename", filename); err != nil {
		return ShareResult{}, err
	}
	if err := writer.Close(); err != nil {
		return ShareResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/share_file", &body)
	if err != nil {
		return ShareResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	var result ShareResult
	if err := c.do(req, &result); err != nil {
		return ShareResult{}, err
	}
	if !result.Success {
		if result.Error == "" {
			result.Error = "upload failed"
		}
		return result, fmt.Errorf("share_file: %s", result.Error)
	}
	return result, nil
}

// CheckUploadStatus polls a deferred upload task once.
func (c *Client) CheckUploadStatus(ctx context.Context, taskID string) (UploadStatus, error) {
	var status UploadStatus
	if err := c.getJSON(ctx, "/api/upload_status/"+taskID, &status); err != nil {
		return UploadStatus{}, err
	}
	return status, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	return c.do(req, out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%s: status %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
