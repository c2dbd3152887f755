package storage

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("mp4-bytes"))
	}))
	defer srv.Close()

	s := NewWithClient(srv.Client())
	asset, err := s.Fetch(context.Background(), srv.URL+"/output/a.mp4", "scene_0.mp4")
	require.NoError(t, err)

	assert.Equal(t, []byte("mp4-bytes"), asset.Data)
	assert.Equal(t, "video/mp4", asset.ContentType)
	assert.Equal(t, "scene_0.mp4", asset.Filename)
}

func TestFetchHTTPErrorStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewWithClient(srv.Client())
	_, err := s.Fetch(context.Background(), srv.URL+"/x", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, 1, calls, "downloads must not be retried")
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := NewWithClient(srv.Client()).Fetch(context.Background(), srv.URL, "x")
	assert.Error(t, err)
}

func TestFetchDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	asset, err := New().Fetch(context.Background(), "data:image/png;base64,"+payload, "scene_1.png")
	require.NoError(t, err)

	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, asset.Data)
	assert.Equal(t, "image/png", asset.ContentType)
}

func TestDecodeDataURI(t *testing.T) {
	data, ct, err := DecodeDataURI("data:,hello%20world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, "application/octet-stream", ct)

	_, _, err = DecodeDataURI("data:image/png;base64")
	assert.ErrorIs(t, err, ErrInvalidDataURI)

	_, _, err = DecodeDataURI("data:image/png;base64,!!!")
	assert.ErrorIs(t, err, ErrInvalidDataURI)

	_, _, err = DecodeDataURI("http://example.com")
	assert.ErrorIs(t, err, ErrInvalidDataURI)
}

func TestFetchRejectsGarbageURL(t *testing.T) {
	_, err := New().Fetch(context.Background(), "not a url", "x")
	assert.Error(t, err)
}
