package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// Download timeout. Generated videos are a few MB, the services sit behind slow GPU hosts.
	downloadTimeout = 120 * time.Second

	defaultContentType = "application/octet-stream"
)

var ErrInvalidDataURI = errors.New("invalid data URI")

// Asset is a fetched file held in memory so it can be re-uploaded as a multipart field.
type Asset struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Storage fetches generated assets (images, videos, audio) from the generation services.
// Assets are never persisted locally: each one is downloaded, forwarded and dropped.
type Storage struct {
	client *http.Client
}

func New() *Storage {
	return NewWithClient(&http.Client{
		Timeout: downloadTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
		},
	})
}

// NewWithClient lets tests point the fetcher at an httptest server client.
func NewWithClient(client *http.Client) *Storage {
	return &Storage{client: client}
}

// Fetch loads an asset from an http(s) URL or a data: URI.
// filename is attached to the result for the multipart upload that usually follows.
// There is no retry: a failed download fails the caller's stage.
func (s *Storage) Fetch(ctx context.Context, source, filename string) (*Asset, error) {
	if strings.HasPrefix(source, "data:") {
		data, contentType, err := DecodeDataURI(source)
		if err != nil {
			return nil, err
		}
		return &Asset{Data: data, ContentType: contentType, Filename: filename}, nil
	}

	if _, err := url.ParseRequestURI(source); err != nil {
		return nil, fmt.Errorf("invalid asset URL %q: %w", truncate(source, 80), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("download failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("downloaded asset is empty (0 bytes): %s", source)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	log.Debug().Str("component", "storage").Str("url", source).Int("bytes", len(data)).Msg("asset downloaded")

	return &Asset{Data: data, ContentType: contentType, Filename: filename}, nil
}

// DecodeDataURI decodes "data:<mime>[;base64],<payload>" as produced by browser file readers.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", ErrInvalidDataURI
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}

	contentType := defaultContentType
	isBase64 := false
	for i, part := range strings.Split(meta, ";") {
		if i == 0 && part != "" {
			contentType = part
			continue
		}
		if part == "base64" {
			isBase64 = true
		}
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		return []byte(decoded), contentType, nil
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrInvalidDataURI)
	}

	return data, contentType, nil
}

// truncate limits a string to maxLen characters for log output
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
