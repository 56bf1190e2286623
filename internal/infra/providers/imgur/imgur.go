// Package imgur implements anonymous image uploads to the Imgur API. It is
// the artwork source of last resort: the player's own thumbnail is pushed
// up so downstream consumers get a stable public URL.
package imgur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/rs/zerolog/log"
)

const defaultUploadURL = "https://api.imgur.com/3/image"

// Client uploads images anonymously with a registered application
// client ID.
type Client struct {
	clientID  string
	uploadURL string
	client    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithUploadURL overrides the upload endpoint, for tests.
func WithUploadURL(u string) Option {
	return func(c *Client) {
		c.uploadURL = u
	}
}

// New creates an Imgur client.
func New(clientID string, client *http.Client, opts ...Option) *Client {
	c := &Client{
		clientID:  clientID,
		uploadURL: defaultUploadURL,
		client:    client,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

// Upload posts the image bytes and returns the public link.
func (c *Client) Upload(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("imgur: empty image")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormField("image")
	if err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.clientID)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform upload: %w", err)
	}
	defer resp.Body.Close()

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !parsed.Success || parsed.Data.Link == "" {
		return "", fmt.Errorf("imgur upload rejected (status %d)", resp.StatusCode)
	}

	log.Debug().Str("link", parsed.Data.Link).Int("bytes", len(image)).Msg("Uploaded image to Imgur")
	return parsed.Data.Link, nil
}
