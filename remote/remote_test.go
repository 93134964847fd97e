package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendsRegistered(t *testing.T) {
	found := map[string]bool{}
	for _, b := range Backends() {
		found[b.ID] = true
	}
	assert.True(t, found["ctfd_token"])
	assert.True(t, found["ctfd_cookie"])
}

func TestBuildCTFdToken(t *testing.T) {
	c, err := Build("ctfd_token", map[string]string{
		"url":          "https://ctf.example.com",
		"access_token": "test-token",
	}, logr.Discard())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestBuildMissingRequired(t *testing.T) {
	_, err := Build("ctfd_token", map[string]string{"url": "https://ctf.example.com"}, logr.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Access Token is required")
}

func TestBuildUnknownBackend(t *testing.T) {
	_, err := Build("unknown", map[string]string{}, logr.Discard())
	assert.Error(t, err)
}

func TestDefaultBackend(t *testing.T) {
	assert.Equal(t, "ctfd_token", DefaultBackend(map[string]string{"access_token": "x"}))
	assert.Equal(t, "ctfd_cookie", DefaultBackend(map[string]string{"cookie": "session=1"}))
	assert.Equal(t, "ctfd_token", DefaultBackend(map[string]string{}))
}

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewCTFd(srv.URL+"/", "secret", logr.Discard())
	require.NoError(t, err)
	return c
}

func TestClientUnwrapsEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v1/challenges", r.URL.Path)
		assert.Equal(t, "admin", r.URL.Query().Get("view"))
		_, _ = io.WriteString(w, `{"success": true, "data": [{"id": 1, "name": "A"}]}`)
	})

	data, err := c.Get(context.Background(), "/api/v1/challenges?view=admin")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id": 1, "name": "A"}]`, string(data))
}

func TestClientSendsJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "visible", body["state"])
		_, _ = io.WriteString(w, `{"success": true, "data": {"id": 4}}`)
	})

	data, err := c.Patch(context.Background(), "/api/v1/challenges/4", map[string]any{"state": "visible"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 4}`, string(data))
}

func TestClientStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message": "not here"}`)
	})

	err := c.Delete(context.Background(), "/api/v1/flags/9")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, http.MethodDelete, se.Method)
	assert.Contains(t, se.Error(), "not here")
}

func TestClientUnsuccessfulEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success": false, "errors": {"name": ["taken"]}}`)
	})

	_, err := c.Post(context.Background(), "/api/v1/challenges", map[string]any{"name": "A"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusOK, se.StatusCode)
}

func TestClientUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "3", r.FormValue("challenge_id"))
		assert.Equal(t, "challenge", r.FormValue("type"))
		parts := r.MultipartForm.File["file"]
		require.Len(t, parts, 2)
		assert.Equal(t, "a.txt", parts[0].Filename)
		assert.Equal(t, "b.txt", parts[1].Filename)
		_, _ = io.WriteString(w, `{"success": true, "data": []}`)
	})

	_, err := c.Upload(context.Background(), "/api/v1/files",
		map[string]string{"challenge_id": "3", "type": "challenge"},
		[]File{
			{Name: "a.txt", Reader: strings.NewReader("aaa")},
			{Name: "b.txt", Reader: strings.NewReader("bbb")},
		})
	require.NoError(t, err)
}

func TestClientDownload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files/abc/a.txt", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		_, _ = io.WriteString(w, "raw contents")
	})

	data, err := c.Download(context.Background(), "/files/abc/a.txt?token=tok")
	require.NoError(t, err)
	assert.Equal(t, "raw contents", string(data))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "a.txt", Filename("/files/0123abcd/a.txt?token=xyz"))
	assert.Equal(t, "b.zip", Filename("https://cdn.example.com/files/b.zip"))
	assert.Equal(t, "c.txt", Filename("c.txt"))
}
