package upload_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hillview/internal/capture"
	"hillview/internal/queue"
	"hillview/internal/services"
	"hillview/internal/testsupport"
	"hillview/internal/upload"
)

func testItem() *queue.Item {
	return &queue.Item{
		ID:            "capture_1712000000000",
		PlaceholderID: "capture_1712000000000",
		ImageData:     testsupport.TinyJPEG(),
		Location: capture.Location{
			Latitude:  52.520008,
			Longitude: 13.404954,
			Accuracy:  5.0,
			Source:    capture.SourceGPS,
		},
		CapturedAt: time.Now().UnixMilli(),
		Mode:       capture.ModeSingle,
		Status:     queue.StatusUploading,
	}
}

func TestUploadPostsMultipartAndParsesResponse(t *testing.T) {
	var gotAuth, gotRequestID, gotPath string
	var gotDescription, gotPublic string
	var gotFilename, gotContentType string
	var gotPayload []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotPath = r.URL.Path

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotDescription = r.FormValue("description")
		gotPublic = r.FormValue("is_public")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFilename = header.Filename
		gotContentType = header.Header.Get("Content-Type")
		buf := &bytes.Buffer{}
		if _, err := buf.ReadFrom(file); err != nil {
			t.Errorf("read file part: %v", err)
		}
		gotPayload = buf.Bytes()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"photo_id":"ph_42","filename":"capture_1712000000000.jpg","processing_status":"queued"}`))
	}))
	defer server.Close()

	client := upload.NewHTTPClient(server.URL, "secret-token", server.Client())
	ref, err := client.Upload(context.Background(), testItem())
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if ref.PhotoID != "ph_42" || ref.ProcessingStatus != "queued" {
		t.Fatalf("unexpected photo ref: %+v", ref)
	}
	if gotPath != "/api/photos/upload" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatal("expected correlation header")
	}
	if gotDescription == "" || gotPublic != "true" {
		t.Fatalf("unexpected form fields: description=%q is_public=%q", gotDescription, gotPublic)
	}
	if gotFilename != "capture_1712000000000.jpg" {
		t.Fatalf("unexpected filename %q", gotFilename)
	}
	if gotContentType != "image/jpeg" {
		t.Fatalf("unexpected part content type %q", gotContentType)
	}
	// The posted payload carries the embedded geodata so it grows past
	// the raw capture. It must still be a JPEG.
	if len(gotPayload) <= len(testsupport.TinyJPEG()) {
		t.Fatalf("expected payload with embedded metadata, got %d bytes", len(gotPayload))
	}
	if gotPayload[0] != 0xFF || gotPayload[1] != 0xD8 {
		t.Fatal("payload is not a JPEG")
	}
}

func TestUploadClassifiesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database offline", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := upload.NewHTTPClient(server.URL, "", server.Client())
	_, err := client.Upload(context.Background(), testItem())
	if !errors.Is(err, services.ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("server errors must be retryable")
	}
}

func TestUploadClassifiesClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := upload.NewHTTPClient(server.URL, "bad-token", server.Client())
	_, err := client.Upload(context.Background(), testItem())
	if !errors.Is(err, services.ErrClient) {
		t.Fatalf("expected ErrClient, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("client errors must not be retryable")
	}
}

func TestUploadClassifiesTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close() // connection refused from here on

	client := upload.NewHTTPClient(url, "", &http.Client{Timeout: time.Second})
	_, err := client.Upload(context.Background(), testItem())
	if !errors.Is(err, services.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestUploadClassifiesBadPayload(t *testing.T) {
	client := upload.NewHTTPClient("http://127.0.0.1:0", "", &http.Client{})

	item := testItem()
	item.ImageData = []byte("not a jpeg")
	_, err := client.Upload(context.Background(), item)
	if !errors.Is(err, services.ErrEncoding) {
		t.Fatalf("expected ErrEncoding for bad payload, got %v", err)
	}

	item = testItem()
	item.ImageData = nil
	_, err = client.Upload(context.Background(), item)
	if !errors.Is(err, services.ErrEncoding) {
		t.Fatalf("expected ErrEncoding for empty payload, got %v", err)
	}
}

func TestUploadRequiresBaseURL(t *testing.T) {
	client := upload.NewHTTPClient("", "", &http.Client{})
	_, err := client.Upload(context.Background(), testItem())
	if !errors.Is(err, services.ErrClient) {
		t.Fatalf("expected ErrClient for missing base URL, got %v", err)
	}
}

func TestUploadClassifiesMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := upload.NewHTTPClient(server.URL, "", server.Client())
	_, err := client.Upload(context.Background(), testItem())
	if !errors.Is(err, services.ErrEncoding) {
		t.Fatalf("expected ErrEncoding for malformed response, got %v", err)
	}
}
