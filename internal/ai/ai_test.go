package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestMistralComplete(t *testing.T) {
	var got mistralChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "mistral-small-latest",
			"choices": [{"message": {"role": "assistant", "content": "MATCHED: yes\nPO_NUMBER: 1012"}}],
			"usage": {"prompt_tokens": 812, "completion_tokens": 41, "total_tokens": 853}
		}`))
	}))
	defer srv.Close()

	p := NewMistralProvider("test-key", "mistral-small-latest", "mistral-ocr-latest", srv.URL+"/", nil, nil)
	reply, usage, err := p.Complete(context.Background(), "find the PO")

	require.NoError(t, err)
	assert.Equal(t, "MATCHED: yes\nPO_NUMBER: 1012", reply)
	assert.Equal(t, 812, usage.InputTokens)
	assert.Equal(t, 41, usage.OutputTokens)
	assert.Equal(t, 853, usage.TotalTokens)
	assert.Equal(t, "mistral-small-latest", got.Model)
	assert.Equal(t, AssistMaxOutputTokens, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "find the PO", got.Messages[0].Content)
}

func TestMistralRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ocr", r.URL.Path)
		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "image_url", req.Document.Type)
		assert.True(t, strings.HasPrefix(req.Document.ImageURL, "data:image/png;base64,"))

		_, _ = w.Write([]byte(`{"model":"mistral-ocr-latest","pages":[{"index":0,"markdown":"INVOICE # 784512"},{"index":1,"markdown":"TOTAL 10.00"}],"usage_info":{"pages_processed":1}}`))
	}))
	defer srv.Close()

	p := NewMistralProvider("k", "chat", "mistral-ocr-latest", srv.URL, nil, nil)
	text, err := p.Recognize(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")

	require.NoError(t, err)
	assert.Equal(t, "INVOICE # 784512\n\nTOTAL 10.00", text)

	_, err = p.Recognize(context.Background(), []byte("%PDF"), "application/pdf")
	assert.Error(t, err)
}

func TestMistralErrorIsCategorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"Requests rate limit exceeded"}`))
	}))
	defer srv.Close()

	p := NewMistralProvider("k", "chat", "ocr", srv.URL, nil, nil)
	_, _, err := p.Complete(context.Background(), "prompt")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "rate_limit", apiErr.Category)
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable)
	assert.Contains(t, apiErr.Err.Error(), "Requests rate limit exceeded")
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		category  string
		retryable bool
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, "unauthorized", false},
		{"wrapped server error", errors.Join(errors.New("call"), &googleapi.Error{Code: 503}), "server_error", true},
		{"odd status", &googleapi.Error{Code: 418, Message: "teapot"}, "unknown_api_error", false},
		{"deadline", context.DeadlineExceeded, "timeout", true},
		{"canceled", context.Canceled, "canceled", false},
		{"quota text", errors.New("Quota exhausted for project"), "quota_exceeded", false},
		{"network text", errors.New("connection refused"), "network_error", true},
		{"other", errors.New("boom"), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := Categorize("gemini", tt.err)
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.category, apiErr.Category)
			assert.Equal(t, tt.retryable, apiErr.Retryable)
			assert.ErrorIs(t, apiErr, tt.err)
			assert.NotEmpty(t, apiErr.Suggestion())
		})
	}

	assert.Nil(t, Categorize("gemini", nil))
}

func TestNewCompleterNone(t *testing.T) {
	c, err := NewCompleter(context.Background(), ProviderConfig{Provider: "none"}, nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewCompleter(context.Background(), ProviderConfig{Provider: "mistral"}, nil, nil)
	assert.Error(t, err)

	_, err = NewCompleter(context.Background(), ProviderConfig{Provider: "openai"}, nil, nil)
	assert.Error(t, err)

	_, err = NewRecognizer(context.Background(), ProviderConfig{Provider: "tesseract"}, nil, nil)
	assert.Error(t, err)
}
