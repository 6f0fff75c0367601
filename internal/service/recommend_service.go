package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/internal/repository"
	"catalog-smart-go/pkg/embedding"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/offload"
)

// VectorIndex 抽象了商品向量索引的全部操作，生产实现是 pkg/es 的客户端。
type VectorIndex interface {
	IndexDocument(ctx context.Context, doc model.ProductDocument) error
	UpdateDocument(ctx context.Context, doc model.ProductDocument) error
	DeleteDocument(ctx context.Context, id string) error
	DeleteByCodes(ctx context.Context, codes []string) error
	DeleteAll(ctx context.Context) error
	GetEmbedding(ctx context.Context, id string) ([]float32, error)
	SearchByVector(ctx context.Context, vector []float32, topK int) ([]model.RecommendationDTO, error)
}

// RecommendService 接口定义了向量索引维护与 k-NN 推荐操作。
// 批量写入是尽力而为的：单条失败只计数并记日志，整批调用不因此失败，
// 失败条数会随响应返回给调用方。
type RecommendService interface {
	BulkUpsert(ctx context.Context, codes []string) (total, failed int, err error)
	Update(ctx context.Context, codes []string) (total, failed int, err error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, codes []string) error
	DeleteAll(ctx context.Context) error
	RecommendByID(ctx context.Context, id string, topK int) ([]model.RecommendationDTO, error)
	RecommendByQuery(ctx context.Context, query string, topK int) ([]model.RecommendationDTO, error)
}

type recommendService struct {
	productRepo     repository.ProductRepository
	embeddingClient embedding.Client
	index           VectorIndex
	pool            *offload.Pool
}

// NewRecommendService 创建一个新的 RecommendService 实例。
func NewRecommendService(
	productRepo repository.ProductRepository,
	embeddingClient embedding.Client,
	index VectorIndex,
	pool *offload.Pool,
) RecommendService {
	return &recommendService{
		productRepo:     productRepo,
		embeddingClient: embeddingClient,
		index:           index,
		pool:            pool,
	}
}

// ComposeEmbeddingText 把商品实体及其动态属性确定性地渲染为用于向量化的规范文本。
// 固定字段按既定顺序以 "Label: value" 拼接，空值字段跳过；
// gross_weight 为 NaN 时先归一化为 0.0；动态属性按查询返回顺序追加，单空格连接。
func ComposeEmbeddingText(product *model.Product, attrs []*model.ProductAttribute) string {
	grossWeight := product.GrossWeight
	if math.IsNaN(grossWeight) {
		grossWeight = 0.0
	}

	fields := []struct {
		label string
		value string
	}{
		{"Name", product.Name},
		{"Seller", product.SellerName},
		{"Category", product.CategoryID},
		{"Manufacturer", product.ManufacturerName},
		{"Short Description", product.ShortDescription},
		{"Long Description", product.LongDescription},
		{"Country of Origin", product.CountryOfOrigin},
		{"Gross Weight", formatWeight(grossWeight)},
		{"Dimension", product.Dimension},
		{"Domain Category Code", product.DomainCategoryCode},
	}

	parts := make([]string, 0, len(fields)+len(attrs))
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.label, f.value))
	}
	for _, attr := range attrs {
		parts = append(parts, fmt.Sprintf("%s: %s", attr.AttributeKey, attr.AttributeValue))
	}
	return strings.Join(parts, " ")
}

// formatWeight 渲染重量数值，整数值保留一位小数（0.0 而不是 0）。
func formatWeight(w float64) string {
	if w == math.Trunc(w) && !math.IsInf(w, 0) {
		return strconv.FormatFloat(w, 'f', 1, 64)
	}
	return strconv.FormatFloat(w, 'f', -1, 64)
}

// embed 通过有界工作池调用向量化，避免同步推理阻塞 I/O 协程。
func (s *recommendService) embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := s.pool.Do(ctx, func() error {
		var eErr error
		vector, eErr = s.embeddingClient.CreateEmbedding(ctx, text)
		return eErr
	})
	return vector, err
}

// BulkUpsert 重建 codes 对应的向量文档；codes 为空表示全量重建，
// 此时先无条件清空整个索引再写入。覆盖语义保证同 id 不产生重复文档。
func (s *recommendService) BulkUpsert(ctx context.Context, codes []string) (int, int, error) {
	replaceAll := len(codes) == 0
	log.Infof("[RecommendService] 开始批量重建索引, codes: %d, 全量: %v", len(codes), replaceAll)

	products, attributeMapping, err := s.loadProducts(codes)
	if err != nil {
		return 0, 0, err
	}

	if replaceAll {
		if err := s.index.DeleteAll(ctx); err != nil {
			return 0, 0, fmt.Errorf("清空索引失败: %w", err)
		}
		log.Info("[RecommendService] 已清空整个索引")
	}

	failed := 0
	for _, product := range products {
		doc, err := s.buildDocument(ctx, product, attributeMapping[product.Code])
		if err != nil {
			log.Errorf("[RecommendService] 商品 '%s' 向量化失败: %v", product.Code, err)
			failed++
			continue
		}
		if err := s.index.IndexDocument(ctx, doc); err != nil {
			// 尽力而为：单条写失败只记日志并计数，不令整批失败
			log.Errorf("[RecommendService] 商品 '%s' 写入索引失败: %v", product.Code, err)
			failed++
		}
	}

	log.Infof("[RecommendService] 批量重建完成, 总数: %d, 失败: %d", len(products), failed)
	return len(products), failed, nil
}

// Update 对 codes 对应的向量文档执行部分更新。
func (s *recommendService) Update(ctx context.Context, codes []string) (int, int, error) {
	log.Infof("[RecommendService] 开始部分更新索引, codes: %d", len(codes))

	products, attributeMapping, err := s.loadProducts(codes)
	if err != nil {
		return 0, 0, err
	}

	failed := 0
	for _, product := range products {
		doc, err := s.buildDocument(ctx, product, attributeMapping[product.Code])
		if err != nil {
			log.Errorf("[RecommendService] 商品 '%s' 向量化失败: %v", product.Code, err)
			failed++
			continue
		}
		if err := s.index.UpdateDocument(ctx, doc); err != nil {
			log.Errorf("[RecommendService] 商品 '%s' 更新索引失败: %v", product.Code, err)
			failed++
		}
	}

	log.Infof("[RecommendService] 部分更新完成, 总数: %d, 失败: %d", len(products), failed)
	return len(products), failed, nil
}

// Delete 按 id 删除单个向量文档。
func (s *recommendService) Delete(ctx context.Context, id string) error {
	return s.index.DeleteDocument(ctx, id)
}

// DeleteMany 按编码集合删除向量文档。
func (s *recommendService) DeleteMany(ctx context.Context, codes []string) error {
	return s.index.DeleteByCodes(ctx, codes)
}

// DeleteAll 无条件清空整个向量索引。
func (s *recommendService) DeleteAll(ctx context.Context) error {
	return s.index.DeleteAll(ctx)
}

// RecommendByID 取出种子商品的已存向量并执行 k-NN 搜索。
// 种子 id 不存在是 not-found 错误，向上传播而不是返回空结果。
func (s *recommendService) RecommendByID(ctx context.Context, id string, topK int) ([]model.RecommendationDTO, error) {
	vector, err := s.index.GetEmbedding(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.index.SearchByVector(ctx, vector, topK)
}

// RecommendByQuery 先向量化自由文本，再执行 k-NN 搜索。
func (s *recommendService) RecommendByQuery(ctx context.Context, query string, topK int) ([]model.RecommendationDTO, error) {
	vector, err := s.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	return s.index.SearchByVector(ctx, vector, topK)
}

func (s *recommendService) loadProducts(codes []string) ([]*model.Product, map[string][]*model.ProductAttribute, error) {
	products, err := s.productRepo.GetProducts(codes)
	if err != nil {
		return nil, nil, fmt.Errorf("查询商品失败: %w", err)
	}
	attributeMapping, err := s.productRepo.GetAttributeMapping(codes)
	if err != nil {
		return nil, nil, fmt.Errorf("查询商品属性失败: %w", err)
	}
	return products, attributeMapping, nil
}

func (s *recommendService) buildDocument(ctx context.Context, product *model.Product, attrs []*model.ProductAttribute) (model.ProductDocument, error) {
	text := ComposeEmbeddingText(product, attrs)
	vector, err := s.embed(ctx, text)
	if err != nil {
		return model.ProductDocument{}, err
	}
	return model.ProductDocument{
		ID:        product.ID,
		Code:      product.Code,
		Name:      product.Name,
		Embedding: vector,
	}, nil
}
