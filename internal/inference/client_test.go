package inference

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_Score(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/score/efficientnet", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte("img"), body)
		_, _ = w.Write([]byte(`{"score": 72.5}`))
	})

	score, err := client.Score(context.Background(), "efficientnet", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 72.5, score)
}

func TestClient_ScoreErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "oom", wantErr: "status 500"},
		{name: "missing score", status: http.StatusOK, body: `{}`, wantErr: "no score"},
		{name: "bad json", status: http.StatusOK, body: `{`, wantErr: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Score(context.Background(), "clip", []byte("img"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestClient_DetectFace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/face", r.URL.Path)
		_, _ = w.Write([]byte(`{"faces_found": 2, "confidence": 97.1, "bbox": {"x1": 10, "y1": 20, "x2": 110, "y2": 140}}`))
	})

	face, err := client.DetectFace(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, 2, face.FacesFound)
	require.NotNil(t, face.BBox)
	assert.Equal(t, BBox{X1: 10, Y1: 20, X2: 110, Y2: 140}, *face.BBox)
}

func TestClient_GradCAM(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/gradcam/efficientnet", r.URL.Path)
		_, _ = w.Write([]byte(`{"heatmap": "aGVhdG1hcA=="}`))
	})

	heatmap, err := client.GradCAM(context.Background(), "efficientnet", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "aGVhdG1hcA==", heatmap)
}
