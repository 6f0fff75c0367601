// Package es 提供了与 Elasticsearch 向量索引交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"catalog-smart-go/internal/config"
	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrDocumentNotFound 表示按 id 查询的文档不存在于索引中。
var ErrDocumentNotFound = errors.New("document not found")

// Client 封装了针对固定商品索引的全部向量索引操作。
// 以 id 为键的写操作是幂等的，但跨多文档的批量写不保证原子性。
type Client struct {
	es        *elasticsearch.Client
	indexName string
	dims      int
}

// NewClient 初始化 Elasticsearch 客户端并确保商品索引存在。
// dims 是 dense_vector 字段的维度，必须与 embedding 模型输出一致。
func NewClient(esCfg config.ElasticsearchConfig, dims int) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{es: client, indexName: esCfg.IndexName, dims: dims}
	if err := c.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return c, nil
}

// createIndexIfNotExists 检查商品索引是否存在，如果不存在则创建它。
func (c *Client) createIndexIfNotExists() error {
	res, err := c.es.Indices.Exists([]string{c.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", c.indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// embedding 使用 cosine 相似度，维度来自配置
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"id": { "type": "keyword" },
				"code": { "type": "keyword" },
				"name": {
					"type": "text",
					"fields": { "raw": { "type": "keyword" } }
				},
				"embedding": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, c.dims)

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", c.indexName)
	return nil
}

// Dims 返回索引配置的向量维度。
func (c *Client) Dims() int {
	return c.dims
}

// IndexDocument 以覆盖语义将单个商品文档写入索引（同 id 重复写不会产生副本）。
func (c *Client) IndexDocument(ctx context.Context, doc model.ProductDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// UpdateDocument 对单个商品文档执行部分更新（doc merge），文档不存在时返回错误。
func (c *Client) UpdateDocument(ctx context.Context, doc model.ProductDocument) error {
	body, err := json.Marshal(map[string]interface{}{"doc": doc})
	if err != nil {
		return err
	}

	req := esapi.UpdateRequest{
		Index:      c.indexName,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrDocumentNotFound
	}
	if res.IsError() {
		log.Errorf("更新 Elasticsearch 文档出错: %s", res.String())
		return errors.New("failed to update document")
	}
	return nil
}

// DeleteDocument 按 id 删除单个文档。
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	req := esapi.DeleteRequest{
		Index:      c.indexName,
		DocumentID: id,
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return ErrDocumentNotFound
	}
	if res.IsError() {
		log.Errorf("删除 Elasticsearch 文档出错: %s", res.String())
		return errors.New("failed to delete document")
	}
	return nil
}

// DeleteByCodes 按商品编码集合批量删除文档。
func (c *Client) DeleteByCodes(ctx context.Context, codes []string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"terms": map[string]interface{}{"code": codes},
		},
	}
	return c.deleteByQuery(ctx, query)
}

// DeleteAll 无条件清空整个商品索引。
func (c *Client) DeleteAll(ctx context.Context) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"match_all": map[string]interface{}{},
		},
	}
	return c.deleteByQuery(ctx, query)
}

func (c *Client) deleteByQuery(ctx context.Context, query map[string]interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return err
	}

	res, err := c.es.DeleteByQuery(
		[]string{c.indexName},
		&buf,
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("delete_by_query 出错: %s", res.String())
		return errors.New("failed to delete by query")
	}

	var deleted struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&deleted); err == nil {
		log.Infof("delete_by_query 删除了 %d 个文档", deleted.Deleted)
	}
	return nil
}

// GetEmbedding 按 id 读取已存储的向量，文档不存在时返回 ErrDocumentNotFound。
func (c *Client) GetEmbedding(ctx context.Context, id string) ([]float32, error) {
	req := esapi.GetRequest{
		Index:      c.indexName,
		DocumentID: id,
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrDocumentNotFound
	}
	if res.IsError() {
		log.Errorf("读取 Elasticsearch 文档出错: %s", res.String())
		return nil, errors.New("failed to get document")
	}

	var getResp struct {
		Source model.ProductDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&getResp); err != nil {
		return nil, fmt.Errorf("解析 Elasticsearch 响应失败: %w", err)
	}
	return getResp.Source.Embedding, nil
}

// SearchByVector 以 script_score 余弦相似度（加 1.0 平移到 [0,2]）对全索引打分，
// 返回得分最高的 topK 条。并列得分的先后顺序沿用 Elasticsearch 的默认排序。
func (c *Client) SearchByVector(ctx context.Context, vector []float32, topK int) ([]model.RecommendationDTO, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{"match_all": map[string]interface{}{}},
				"script": map[string]interface{}{
					"source": "cosineSimilarity(params.query_vector, 'embedding') + 1.0",
					"params": map[string]interface{}{"query_vector": vector},
				},
			},
		},
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				ID     string                `json:"_id"`
				Source model.ProductDocument `json:"_source"`
				Score  float64               `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	results := make([]model.RecommendationDTO, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, model.RecommendationDTO{
			ID:    hit.ID,
			Name:  hit.Source.Name,
			Score: hit.Score,
		})
	}
	return results, nil
}
