package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/internal/service"
	"catalog-smart-go/pkg/es"
	"catalog-smart-go/pkg/kafka"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/tasks"
)

// ProductHandler 结构体定义了向量索引维护与推荐相关的处理器。
type ProductHandler struct {
	recommendService service.RecommendService
	producer         *kafka.Producer
}

// NewProductHandler 创建一个新的 ProductHandler 实例。
func NewProductHandler(recommendService service.RecommendService, producer *kafka.Producer) *ProductHandler {
	return &ProductHandler{
		recommendService: recommendService,
		producer:         producer,
	}
}

// BulkInsert 是处理批量重建向量索引请求的 Gin 处理函数。
// codes 为空表示全量重建。单条失败不令整批失败，失败条数随响应返回。
func (h *ProductHandler) BulkInsert(c *gin.Context) {
	var req model.BulkInsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	log.Infof("[ProductHandler] 收到批量重建请求, codes: %d", len(req.Codes))

	total, failed, err := h.recommendService.BulkUpsert(c.Request.Context(), req.Codes)
	if err != nil {
		log.Errorf("[ProductHandler] 批量重建失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "批量重建索引失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"data":    gin.H{"total": total, "failed": failed},
		"message": "success",
	})
}

// UpdateProduct 是处理部分更新向量索引请求的 Gin 处理函数。
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	var req model.ProductUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	if len(req.Codes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "codes 不能为空"})
		return
	}
	log.Infof("[ProductHandler] 收到部分更新请求, codes: %d", len(req.Codes))

	total, failed, err := h.recommendService.Update(c.Request.Context(), req.Codes)
	if err != nil {
		log.Errorf("[ProductHandler] 部分更新失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "更新索引失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    200,
		"data":    gin.H{"total": total, "failed": failed},
		"message": "success",
	})
}

// DeleteProduct 是按 id 删除单个向量文档的 Gin 处理函数。
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少商品 id"})
		return
	}

	if err := h.recommendService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, es.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "商品不存在"})
			return
		}
		log.Errorf("[ProductHandler] 删除商品 '%s' 失败, error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// DeleteProducts 是按编码集合批量删除向量文档的 Gin 处理函数。
func (h *ProductHandler) DeleteProducts(c *gin.Context) {
	var req model.ProductDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}
	if len(req.Codes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "codes 不能为空"})
		return
	}

	if err := h.recommendService.DeleteMany(c.Request.Context(), req.Codes); err != nil {
		log.Errorf("[ProductHandler] 批量删除失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "批量删除失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// DeleteAllProducts 是清空整个向量索引的 Gin 处理函数。
func (h *ProductHandler) DeleteAllProducts(c *gin.Context) {
	log.Warnf("[ProductHandler] 收到清空整个索引的请求")

	if err := h.recommendService.DeleteAll(c.Request.Context()); err != nil {
		log.Errorf("[ProductHandler] 清空索引失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "清空索引失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "success"})
}

// Recommendations 是处理同类商品推荐请求的 Gin 处理函数。
// 以已索引的商品 id 为种子执行 k-NN 搜索，种子不存在时返回 404。
func (h *ProductHandler) Recommendations(c *gin.Context) {
	id := c.Param("id")
	topK := parseTopK(c.DefaultQuery("top_k", "5"))
	log.Infof("[ProductHandler] 收到推荐请求, id: %s, topK: %d", id, topK)

	results, err := h.recommendService.RecommendByID(c.Request.Context(), id, topK)
	if err != nil {
		if errors.Is(err, es.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "商品不存在或尚未建立索引"})
			return
		}
		log.Errorf("[ProductHandler] 推荐服务返回错误, id: %s, error: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "推荐失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// RecommendationsByQuery 是处理自由文本推荐请求的 Gin 处理函数。
func (h *ProductHandler) RecommendationsByQuery(c *gin.Context) {
	var req model.ProductQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的查询参数"})
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 5
	}
	log.Infof("[ProductHandler] 收到文本推荐请求, query: '%s', topK: %d", req.Query, topK)

	results, err := h.recommendService.RecommendByQuery(c.Request.Context(), req.Query, topK)
	if err != nil {
		log.Errorf("[ProductHandler] 文本推荐服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "推荐失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// Reindex 是异步触发全量重建的 Gin 处理函数。
// 任务投递到 Kafka 后立即返回 202，由消费端执行实际重建。
func (h *ProductHandler) Reindex(c *gin.Context) {
	var req model.BulkInsertRequest
	// 请求体可以为空，表示全量重建
	_ = c.ShouldBindJSON(&req)

	task := tasks.CatalogChangeTask{
		TaskID: uuid.NewString(),
		Event:  tasks.EventUpsert,
		Codes:  req.Codes,
	}
	log.Infof("[ProductHandler] 投递重建任务, taskID: %s, codes: %d", task.TaskID, len(task.Codes))

	ctx := c.Request.Context()
	if err := h.producer.ProduceCatalogChange(ctx, task); err != nil {
		log.Errorf("[ProductHandler] 投递重建任务失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "投递重建任务失败"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    202,
		"data":    gin.H{"taskId": task.TaskID, "submittedAt": time.Now().Format(time.RFC3339)},
		"message": "accepted",
	})
}

func parseTopK(raw string) int {
	topK, err := strconv.Atoi(raw)
	if err != nil || topK <= 0 {
		return 5
	}
	return topK
}
