// Package s3proxy 提供了与 S3 上传代理服务交互的客户端。
// 该服务负责把原始商品图片持久化到对象存储并返回公开访问 URL。
package s3proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"catalog-smart-go/internal/config"
	"catalog-smart-go/pkg/log"
)

// User 标识发起上传的用户，随上传请求透传给代理服务。
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// productUpload 是按组上传时的请求负载，图片以 base64 编码内联。
type productUpload struct {
	TmpCode string   `json:"tmp_code"`
	Images  []string `json:"images"`
}

type zipFolderUpload struct {
	URL string `json:"url"`
}

type uploadFileRequest struct {
	User    User          `json:"user"`
	Product productUpload `json:"product"`
	Tenant  string        `json:"tenant"`
}

type uploadZipRequest struct {
	User      User            `json:"user"`
	ZipFolder zipFolderUpload `json:"zip_folder"`
	Tenant    string          `json:"tenant"`
}

type uploadResponse struct {
	S3URLs map[string][]string `json:"s3_urls"`
}

// Client 是 S3 上传代理服务的 HTTP 客户端。
// 每次上传只尝试一次，失败由调用方决定是否重新提交，这里不做自动重试。
type Client struct {
	fileURL   string
	folderURL string
	authToken string
	client    *http.Client
}

// NewClient 创建一个新的 s3proxy 客户端实例。
func NewClient(cfg config.S3ProxyConfig) *Client {
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		fileURL:   cfg.BaseURL + "/s3/upload/oaas/files",
		folderURL: cfg.BaseURL + "/s3/upload/oaas/folder",
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}
}

// UploadProductImages 上传一个商品分组的全部图片，返回 product_code 到存储 URL 列表的映射。
func (c *Client) UploadProductImages(ctx context.Context, user User, tmpCode string, images [][]byte, tenant string) (map[string][]string, error) {
	encoded := make([]string, 0, len(images))
	for _, img := range images {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(img))
	}
	reqBody := uploadFileRequest{
		User:    user,
		Product: productUpload{TmpCode: tmpCode, Images: encoded},
		Tenant:  tenant,
	}
	return c.post(ctx, c.fileURL, reqBody)
}

// UploadZipFolder 以整包方式上传一个压缩包（按 URL 引用），由代理服务展开并归档。
func (c *Client) UploadZipFolder(ctx context.Context, user User, zipURL string, tenant string) (map[string][]string, error) {
	reqBody := uploadZipRequest{
		User:      user,
		ZipFolder: zipFolderUpload{URL: zipURL},
		Tenant:    tenant,
	}
	return c.post(ctx, c.folderURL, reqBody)
}

func (c *Client) post(ctx context.Context, url string, body interface{}) (map[string][]string, error) {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal s3proxy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create s3proxy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[S3Proxy] 调用上传代理服务失败, url: %s, error: %v", url, err)
		return nil, fmt.Errorf("failed to upload to s3: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Errorf("[S3Proxy] 上传代理服务返回错误, status: %s, body: %s", resp.Status, string(respBody))
		return nil, fmt.Errorf("s3 upload returned status %d", resp.StatusCode)
	}

	var uploadResp uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return nil, fmt.Errorf("failed to decode s3proxy response: %w", err)
	}
	return uploadResp.S3URLs, nil
}
