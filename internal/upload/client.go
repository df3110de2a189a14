package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"hillview/internal/config"
	"hillview/internal/exif"
	"hillview/internal/queue"
	"hillview/internal/services"
)

const component = "upload-client"

// PhotoRef identifies a photo accepted by the backend.
type PhotoRef struct {
	PhotoID          string `json:"photo_id"`
	Filename         string `json:"filename"`
	ProcessingStatus string `json:"processing_status"`
}

// Client sends one capture to the backend per call.
type Client interface {
	Upload(ctx context.Context, item *queue.Item) (PhotoRef, error)
}

// HTTPDoer describes the HTTP client used by the upload service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type httpClient struct {
	baseURL   string
	authToken string
	timeout   time.Duration
	client    HTTPDoer
}

// NewClient builds an HTTP upload client from configuration.
func NewClient(cfg *config.Config) Client {
	timeout := 30 * time.Second
	if cfg.Upload.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Upload.TimeoutSeconds) * time.Second
	}
	return &httpClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.Upload.BaseURL), "/"),
		authToken: strings.TrimSpace(cfg.Upload.AuthToken),
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
	}
}

// NewHTTPClient constructs an upload client with an explicit HTTP doer,
// primarily for tests.
func NewHTTPClient(baseURL, authToken string, doer HTTPDoer) Client {
	return &httpClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		authToken: strings.TrimSpace(authToken),
		timeout:   30 * time.Second,
		client:    doer,
	}
}

// Upload embeds the capture's location into the JPEG, posts it to the
// backend, and classifies any failure so the caller can decide whether
// the capture deserves another attempt.
func (c *httpClient) Upload(ctx context.Context, item *queue.Item) (PhotoRef, error) {
	if item == nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "missing queue item", nil)
	}
	if c.baseURL == "" {
		return PhotoRef{}, services.Wrap(services.ErrClient, component, "upload", "backend base URL is not configured", nil)
	}

	payload, err := c.preparePayload(item)
	if err != nil {
		return PhotoRef{}, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := createImagePart(writer, item.ID+".jpg")
	if err != nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "build multipart body", err)
	}
	if _, err := part.Write(payload); err != nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "write multipart body", err)
	}
	if err := writer.WriteField("description", describeCapture(item)); err != nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "write description field", err)
	}
	if err := writer.WriteField("is_public", "true"); err != nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "write is_public field", err)
	}
	if err := writer.Close(); err != nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "finalize multipart body", err)
	}

	uploadURL := c.baseURL + "/api/photos/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "build upload request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return PhotoRef{}, services.Wrap(services.ErrNetwork, component, "upload", "post photo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return PhotoRef{}, services.Wrap(services.ErrServer, component, "upload",
			fmt.Sprintf("backend returned %d: %s", resp.StatusCode, readErrorBody(resp.Body)), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return PhotoRef{}, services.Wrap(services.ErrClient, component, "upload",
			fmt.Sprintf("backend rejected upload with %d: %s", resp.StatusCode, readErrorBody(resp.Body)), nil)
	}

	var ref PhotoRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return PhotoRef{}, services.Wrap(services.ErrEncoding, component, "upload", "decode upload response", err)
	}
	return ref, nil
}

// preparePayload splices the capture's geodata into the JPEG so the
// backend can index it without extra form fields.
func (c *httpClient) preparePayload(item *queue.Item) ([]byte, error) {
	if len(item.ImageData) == 0 {
		return nil, services.Wrap(services.ErrEncoding, component, "upload", "capture has no image data", nil)
	}
	meta := exif.Metadata{
		Latitude:  item.Location.Latitude,
		Longitude: item.Location.Longitude,
		Altitude:  item.Location.Altitude,
		Bearing:   item.Location.Heading,
		Timestamp: item.CapturedAt / 1000,
	}
	payload, err := exif.Embed(item.ImageData, meta)
	if err != nil {
		return nil, services.Wrap(services.ErrEncoding, component, "upload", "embed capture metadata", err)
	}
	return payload, nil
}

func describeCapture(item *queue.Item) string {
	return fmt.Sprintf("Hillview capture %s (%s mode)", item.ID, item.Mode)
}

func createImagePart(writer *multipart.Writer, filename string) (io.Writer, error) {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", "image/jpeg")
	return writer.CreatePart(header)
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	return strings.TrimSpace(string(data))
}
