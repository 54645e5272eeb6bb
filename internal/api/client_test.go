package api

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"console-chat/internal/auth"
	"console-chat/internal/types"
)

func TestFetchHistoryAttachesBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rooms/room-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode([]types.APIMessage{
			{ID: "1", SenderName: "Alice", Content: "hi", Timestamp: 1700000000},
			{ID: "2", SenderName: "Bob", Content: "yo", Timestamp: 1700000001},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, auth.NewCredential("tok-abc"))
	records, err := c.FetchHistory(context.Background(), "room-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Alice", records[0].SenderName)
}

func TestUnauthorizedSurfacesExpiredCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, auth.NewCredential("stale"))
	_, err := c.FetchHistory(context.Background(), "room-1")
	assert.ErrorIs(t, err, auth.ErrExpired)
}

func TestPostMessageSendsClientIDAndHandlesEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["content"])
		assert.Equal(t, "local-1", body["client_id"])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, auth.NewCredential("tok"))
	rec, err := c.PostMessage(context.Background(), "room-1", "hello", "local-1")
	require.NoError(t, err)
	assert.Nil(t, rec, "204 means the caller refetches instead of correlating")
}

func TestPostMessageReturnsConfirmedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.APIMessage{ID: "srv-1", ClientID: "local-1", Content: "hello"})
	}))
	defer srv.Close()

	c := New(srv.URL, auth.NewCredential("tok"))
	rec, err := c.PostMessage(context.Background(), "room-1", "hello", "local-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "srv-1", rec.ID)
	assert.Equal(t, "local-1", rec.ClientID)
}

func TestUploadAttachmentBuildsMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		assert.Equal(t, "multipart/form-data", mediaType)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "room-1", r.FormValue("room_id"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.pdf", header.Filename)

		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "pdf-bytes", string(data))

		json.NewEncoder(w).Encode(types.APIMessage{ID: "f-1", IsFile: true, FilePath: "uploads/report.pdf"})
	}))
	defer srv.Close()

	c := New(srv.URL, auth.NewCredential("tok"))
	rec, err := c.UploadAttachment(context.Background(), "room-1", "report.pdf", strings.NewReader("pdf-bytes"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsFile)
	assert.Equal(t, "uploads/report.pdf", rec.FilePath)
}

func TestDownloadFileStreamsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "uploads/report.pdf", r.URL.Query().Get("path"))
		io.WriteString(w, "file-contents")
	}))
	defer srv.Close()

	c := New(srv.URL, auth.NewCredential("tok"))
	body, err := c.DownloadFile(context.Background(), "room-1", "uploads/report.pdf")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "file-contents", string(data))
}

func TestServerErrorIsReportedWithStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, auth.NewCredential("tok"))
	_, err := c.FetchHistory(context.Background(), "room-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.NotErrorIs(t, err, auth.ErrExpired)
}
