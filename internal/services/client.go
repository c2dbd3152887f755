package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/bobarin/gigi/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Shared plumbing for the generation services.
// Every service speaks the same dialect: a JSON or multipart POST that answers
// with {success, output_file | filename, error?}. Output assets are addressed by
// concatenating the service base URL with the returned filename.
// ---------------------------------------------------------------------------

var (
	// ErrServiceStatus wraps any non-2xx response from a generation service.
	ErrServiceStatus = errors.New("service returned non-success status")
	// ErrServiceFailed wraps a 2xx response carrying success:false or missing its output field.
	ErrServiceFailed = errors.New("service reported failure")
)

const maxErrorBody = 512

// NewHTTPClient returns the client shared by the generation services.
// GPU-backed calls routinely take minutes, so the timeout is generous.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// serviceResult is the common response envelope.
type serviceResult struct {
	Success    *bool   `json:"success"`
	OutputFile string  `json:"output_file"`
	Filename   string  `json:"filename"`
	Duration   float64 `json:"duration"`
	Error      string  `json:"error"`
	Message    string  `json:"message"`
}

// failed reports an explicit success:false.
func (r *serviceResult) failed() bool {
	return r.Success != nil && !*r.Success
}

func (r *serviceResult) reason() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Message != "" {
		return r.Message
	}
	return "success=false"
}

// requireOutput returns the output file or an ErrServiceFailed describing why there is none.
func (r *serviceResult) requireOutput(service string) (string, error) {
	if r.failed() {
		return "", fmt.Errorf("%s: %w: %s", service, ErrServiceFailed, r.reason())
	}
	if r.OutputFile == "" {
		return "", fmt.Errorf("%s: %w: response has no output_file", service, ErrServiceFailed)
	}
	return r.OutputFile, nil
}

// formField is one plain multipart field. Order is preserved on the wire.
type formField struct {
	Name  string
	Value string
}

// formFile is one binary multipart field.
type formFile struct {
	Field string
	Asset *storage.Asset
}

// caller holds the per-service HTTP client and logger.
type caller struct {
	name    string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func newCaller(name, baseURL string, client *http.Client) caller {
	if client == nil {
		client = NewHTTPClient(15 * time.Minute)
	}
	return caller{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log.With().Str("component", name).Logger(),
	}
}

// url joins the base URL and path segments with single slashes.
func (c *caller) url(parts ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(strings.Trim(p, "/"))
	}
	return b.String()
}

func (c *caller) postJSON(ctx context.Context, url string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *caller) postMultipart(ctx context.Context, url string, fields []formField, files []formFile, out any) error {
	body, contentType, err := encodeMultipart(fields, files)
	if err != nil {
		return fmt.Errorf("failed to build %s form: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", contentType)

	return c.do(req, out)
}

func (c *caller) do(req *http.Request, out any) error {
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("service call finished")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: %w: %d %s", c.name, ErrServiceStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: invalid response body: %v", c.name, ErrServiceFailed, err)
	}
	return nil
}

func encodeMultipart(fields []formField, files []formFile) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		if f.Asset == nil {
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Asset.Filename))
		contentType := f.Asset.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Asset.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
