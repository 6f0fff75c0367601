// Package vision provides a client for interacting with vision-understanding models.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"catalog-smart-go/internal/config"
	"catalog-smart-go/pkg/log"
)

// ErrUnsupportedImageFormat 表示无法识别的图片格式。
var ErrUnsupportedImageFormat = errors.New("unsupported image format")

// ImagePart 是一次视觉提取请求中携带的单张图片。
type ImagePart struct {
	MimeType string
	Data     []byte
}

// Client defines the interface for a vision-extraction client.
// 返回值是模型的原始自由文本，JSON 归一化由调用方负责。
type Client interface {
	ExtractText(ctx context.Context, instruction string, images []ImagePart) (string, error)
}

type openAICompatibleClient struct {
	cfg    config.VisionConfig
	client *http.Client
}

// NewClient creates a new vision client based on the provider in the config.
func NewClient(cfg config.VisionConfig) Client {
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractText 以指令 + 有序图片部件调用视觉模型的 chat 接口，返回原始文本响应。
func (c *openAICompatibleClient) ExtractText(ctx context.Context, instruction string, images []ImagePart) (string, error) {
	log.Infof("[VisionClient] 开始调用视觉提取 API, model: %s, 图片数: %d", c.cfg.Model, len(images))

	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{Type: "text", Text: instruction})
	for _, img := range images {
		b64 := base64.StdEncoding.EncodeToString(img.Data)
		parts = append(parts, contentPart{
			Type: "image_url",
			ImageURL: &imageURLPart{
				URL:    fmt.Sprintf("data:%s;base64,%s", img.MimeType, b64),
				Detail: "high",
			},
		})
	}

	reqBody := chatRequest{
		Model:     c.cfg.Model,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: c.cfg.MaxTokens,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[VisionClient] 调用视觉提取 API 失败, error: %v", err)
		return "", fmt.Errorf("failed to call vision api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[VisionClient] 视觉提取 API 返回非 200 状态码: %s", resp.Status)
		return "", fmt.Errorf("vision api returned non-200 status: %s", resp.Status)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		log.Errorf("[VisionClient] 解析视觉提取 API 响应失败, error: %v", err)
		return "", fmt.Errorf("failed to decode vision response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		log.Warnf("[VisionClient] 视觉提取 API 返回了空的 choices")
		return "", errors.New("received empty response from vision api")
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	log.Infof("[VisionClient] 视觉提取 API 调用成功, 响应长度: %d", len(content))
	return content, nil
}

// DetectImageFormat 通过魔数识别图片格式，返回不带 "image/" 前缀的格式名。
// 无法识别时返回 ErrUnsupportedImageFormat，交由调用方决定兜底行为。
func DetectImageFormat(data []byte) (string, error) {
	switch {
	case len(data) >= 2 && data[0] == 0xff && data[1] == 0xd8:
		return "jpeg", nil
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "png", nil
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "gif", nil
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp", nil
	case bytes.HasPrefix(data, []byte("BM")):
		return "bmp", nil
	}
	return "", ErrUnsupportedImageFormat
}
