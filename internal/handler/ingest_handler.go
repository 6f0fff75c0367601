package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"catalog-smart-go/internal/middleware"
	"catalog-smart-go/internal/service"
	"catalog-smart-go/pkg/archive"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/s3proxy"
	"catalog-smart-go/pkg/token"
)

// IngestHandler 结构体定义了目录摄取相关的处理器。
type IngestHandler struct {
	ingestService service.IngestService
}

// NewIngestHandler 创建一个新的 IngestHandler 实例。
func NewIngestHandler(ingestService service.IngestService) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
	}
}

// FetchProductInfo 是处理商品资料摄取请求的 Gin 处理函数。
// 源文档通过 multipart 的 file 字段上传，或通过 file_url 字段给出远端地址，
// 两者必须且只能提供其一。
func (h *IngestHandler) FetchProductInfo(c *gin.Context) {
	h.handleIngest(c, service.IngestOptions{})
}

// ProcessCatalog 是处理整本目录摄取请求的 Gin 处理函数。
// expected_count 大于 0 时所有图片合并为一次提取调用，期望产出恰好 N 条记录；
// is_invoice 为 true 时额外提取价格字段。
func (h *IngestHandler) ProcessCatalog(c *gin.Context) {
	opts := service.IngestOptions{}
	if raw := c.PostForm("expected_count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 expected_count 参数"})
			return
		}
		opts.ExpectedCount = n
	}
	if raw := c.PostForm("is_invoice"); raw != "" {
		opts.WithPrice = raw == "true" || raw == "1"
	}
	h.handleIngest(c, opts)
}

func (h *IngestHandler) handleIngest(c *gin.Context, opts service.IngestOptions) {
	claims, user, tenant, ok := callerIdentity(c)
	if !ok {
		return
	}
	log.Infof("[IngestHandler] 收到摄取请求, user: %s, tenant: %s", claims.Username, tenant)

	fileURL := c.PostForm("file_url")
	fileHeader, fileErr := c.FormFile("file")

	if fileURL == "" && fileErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "必须提供 file 或 file_url 之一"})
		return
	}
	if fileURL != "" && fileErr == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file 与 file_url 不能同时提供"})
		return
	}

	ctx := c.Request.Context()
	if fileURL != "" {
		resp, err := h.ingestService.IngestFromURL(ctx, user, tenant, fileURL, opts)
		h.writeIngestResult(c, resp, err)
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取上传文件"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法读取上传文件"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err := h.ingestService.IngestFromFile(ctx, user, tenant, fileHeader.Filename, contentType, data, opts)
	h.writeIngestResult(c, resp, err)
}

// writeIngestResult 把摄取结果映射到 HTTP 响应，区分客户端错误与服务端错误。
func (h *IngestHandler) writeIngestResult(c *gin.Context, resp interface{}, err error) {
	if err != nil {
		switch {
		case errors.Is(err, archive.ErrEmptyArchive), errors.Is(err, archive.ErrBadArchive):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrIngestInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "该文档正在处理中，请稍后重试"})
		case errors.Is(err, archive.ErrPDFConversion):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrAllGroupsFailed):
			c.JSON(http.StatusBadGateway, gin.H{"error": "所有分组的视觉提取均失败"})
		default:
			log.Errorf("[IngestHandler] 摄取失败, error: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "摄取失败"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp, "message": "success"})
}

// callerIdentity 从 Gin 上下文中取出认证中间件写入的租户声明。
func callerIdentity(c *gin.Context) (*token.TenantClaims, s3proxy.User, string, bool) {
	value, exists := c.Get(middleware.ContextKeyClaims)
	if !exists {
		log.Errorf("[IngestHandler] 无法从 Gin 上下文中获取租户信息")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取租户信息"})
		return nil, s3proxy.User{}, "", false
	}
	claims, ok := value.(*token.TenantClaims)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "租户数据类型错误"})
		return nil, s3proxy.User{}, "", false
	}
	user := s3proxy.User{ID: claims.UserID, Name: claims.Username}
	return claims, user, claims.Tenant, true
}
