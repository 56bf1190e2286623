package imgur_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmorand/cadenza/internal/infra/providers/imgur"
)

func TestUploadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Client-ID test-id" {
			t.Errorf("Unexpected auth header: %q", r.Header.Get("Authorization"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("image"); got != "fake-image-bytes" {
			t.Errorf("Unexpected image payload: %q", got)
		}
		w.Write([]byte(`{"success": true, "data": {"link": "https://i.imgur.com/abc123.png"}}`))
	}))
	defer server.Close()

	client := imgur.New("test-id", server.Client(), imgur.WithUploadURL(server.URL))

	link, err := client.Upload(context.Background(), []byte("fake-image-bytes"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if link != "https://i.imgur.com/abc123.png" {
		t.Errorf("Unexpected link: %q", link)
	}
}

func TestUploadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"success": false, "data": {}}`))
	}))
	defer server.Close()

	client := imgur.New("test-id", server.Client(), imgur.WithUploadURL(server.URL))

	if _, err := client.Upload(context.Background(), []byte("payload")); err == nil {
		t.Error("Expected an error for a rejected upload")
	}
}

func TestUploadEmptyImage(t *testing.T) {
	client := imgur.New("test-id", http.DefaultClient)

	if _, err := client.Upload(context.Background(), nil); err == nil {
		t.Error("Expected an error for an empty image")
	}
}
