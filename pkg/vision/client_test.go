package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-smart-go/internal/config"
)

func TestDetectImageFormat(t *testing.T) {
	cases := []struct {
		name   string
		data   []byte
		format string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, "jpeg"},
		{"png", []byte("\x89PNG\r\n\x1a\n...."), "png"},
		{"gif87", []byte("GIF87a...."), "gif"},
		{"gif89", []byte("GIF89a...."), "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"bmp", []byte("BM\x00\x00"), "bmp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			format, err := DetectImageFormat(tc.data)
			require.NoError(t, err)
			assert.Equal(t, tc.format, format)
		})
	}
}

func TestDetectImageFormatUnsupported(t *testing.T) {
	_, err := DetectImageFormat([]byte("not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedImageFormat)

	_, err = DetectImageFormat(nil)
	assert.ErrorIs(t, err, ErrUnsupportedImageFormat)
}

func TestExtractTextSendsInstructionAndImages(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"product_name\":\"Chair\"} "}}]}`))
	}))
	defer srv.Close()

	client := NewClient(config.VisionConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-mini",
	})

	images := []ImagePart{
		{MimeType: "image/png", Data: []byte("\x89PNG\r\n\x1a\nxxxx")},
		{MimeType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
	}
	content, err := client.ExtractText(context.Background(), "describe the product", images)
	require.NoError(t, err)
	// 响应两端的空白被去除
	assert.Equal(t, `{"product_name":"Chair"}`, content)

	require.Len(t, captured.Messages, 1)
	parts := captured.Messages[0].Content
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "describe the product", parts[0].Text)
	// 图片顺序必须与传入顺序一致
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
	assert.True(t, strings.HasPrefix(parts[2].ImageURL.URL, "data:image/jpeg;base64,"))
	assert.Equal(t, "high", parts[1].ImageURL.Detail)
}

func TestExtractTextNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(config.VisionConfig{BaseURL: srv.URL})
	_, err := client.ExtractText(context.Background(), "x", nil)
	assert.Error(t, err)
}

func TestExtractTextEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient(config.VisionConfig{BaseURL: srv.URL})
	_, err := client.ExtractText(context.Background(), "x", nil)
	assert.Error(t, err)
}
