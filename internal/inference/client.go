package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config for the model server client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// BBox is a face box as returned by the model server
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// FaceDetection is the best face found in an image
type FaceDetection struct {
	FacesFound int     `json:"faces_found"`
	Confidence float64 `json:"confidence"`
	BBox       *BBox   `json:"bbox"`
}

// Client talks to the model server hosting the vision models. The server
// loads each model once and keeps it warm, so the first call can be slow.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a model server client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Score returns the 0-100 AI suspicion score of the named model
func (c *Client) Score(ctx context.Context, model string, image []byte) (float64, error) {
	var out struct {
		Score *float64 `json:"score"`
	}
	if err := c.post(ctx, "/v1/score/"+url.PathEscape(model), image, &out); err != nil {
		return 0, err
	}
	if out.Score == nil {
		return 0, fmt.Errorf("model %s returned no score", model)
	}
	return *out.Score, nil
}

// DetectFace returns the most confident face in the image
func (c *Client) DetectFace(ctx context.Context, image []byte) (FaceDetection, error) {
	var out FaceDetection
	if err := c.post(ctx, "/v1/face", image, &out); err != nil {
		return FaceDetection{}, err
	}
	return out, nil
}

// GradCAM returns a base64 encoded PNG heatmap for the named model
func (c *Client) GradCAM(ctx context.Context, model string, image []byte) (string, error) {
	var out struct {
		Heatmap string `json:"heatmap"`
	}
	if err := c.post(ctx, "/v1/gradcam/"+url.PathEscape(model), image, &out); err != nil {
		return "", err
	}
	return out.Heatmap, nil
}

func (c *Client) post(ctx context.Context, path string, image []byte, out any) error {
	rid := uuid.New().String()
	start := time.Now()
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Request-ID", rid)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("inference.http.send_error",
			"req_id", rid, "path", path, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return fmt.Errorf("model server http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("inference.http.response_body_close_error", "req_id", rid, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("inference.http.response",
		"req_id", rid,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("model server status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode model server response: %w", err)
	}
	return nil
}
