// Package api is the REST fallback client: history fetches, per-room message
// sends, attachment uploads and downloads. Every request carries the bearer
// credential; a 401 surfaces auth.ErrExpired instead of being retried here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"console-chat/internal/auth"
	"console-chat/internal/types"
)

const requestTimeout = 15 * time.Second

type Client struct {
	base string
	http *http.Client
	cred *auth.Credential
}

func New(base string, cred *auth.Credential) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: requestTimeout},
		cred: cred,
	}
}

// FetchHistory returns the full message list for a room, oldest first as the
// server stores it.
func (c *Client) FetchHistory(ctx context.Context, roomID string) ([]types.APIMessage, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/messages", c.base, url.PathEscape(roomID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var records []types.APIMessage
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	log.Debug().Str("room", roomID).Int("count", len(records)).Msg("[api] history fetched")
	return records, nil
}

// PostMessage sends one text message through the fallback path. Backends
// that finalize synchronously return the confirmed record; others return no
// body and the caller refetches.
func (c *Client) PostMessage(ctx context.Context, roomID, content, clientID string) (*types.APIMessage, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/messages", c.base, url.PathEscape(roomID))

	body, err := json.Marshal(map[string]string{
		"content":   content,
		"client_id": clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeOptionalMessage(resp)
}

// UploadAttachment sends a file as multipart form data. Attachments never
// travel over the push channel.
func (c *Client) UploadAttachment(ctx context.Context, roomID, filename string, file io.Reader) (*types.APIMessage, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/files", c.base, url.PathEscape(roomID))

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy attachment: %w", err)
	}
	if err := form.WriteField("room_id", roomID); err != nil {
		return nil, fmt.Errorf("write form field: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	log.Debug().Str("room", roomID).Str("file", filename).Msg("[api] attachment uploaded")
	return decodeOptionalMessage(resp)
}

// DownloadFile streams an attachment by its server path. The caller owns the
// returned body.
func (c *Client) DownloadFile(ctx context.Context, roomID, filePath string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/rooms/%s/files?path=%s", c.base, url.PathEscape(roomID), url.QueryEscape(filePath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if token := c.cred.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, auth.ErrExpired)
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}

func decodeOptionalMessage(resp *http.Response) (*types.APIMessage, error) {
	if resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 {
		return nil, nil
	}

	var rec types.APIMessage
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rec, nil
}
