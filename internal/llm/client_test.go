package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Reason(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"verdict\":\"LIKELY_AI\"}  "}}]}`))
	}))
	defer server.Close()

	c := NewClient(Config{APIKey: "key", BaseURL: server.URL + "/", Temperature: DefaultTemperature}, nil)
	content, err := c.Reason(context.Background(), "system prompt", "brief")
	require.NoError(t, err)

	assert.Equal(t, `{"verdict":"LIKELY_AI"}`, content)
	assert.Equal(t, DefaultModel, got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])

	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "brief", messages[1].(map[string]any)["content"])
}

func TestClient_ReasonErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantErr: "llm status 429"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrNoChoices.Error()},
		{name: "not json", status: http.StatusOK, body: `oops`, wantErr: "decode completion response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewClient(Config{BaseURL: server.URL}, nil)
			_, err := c.Reason(context.Background(), "s", "b")
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
