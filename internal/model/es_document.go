package model

// ProductDocument 代表存储在 Elasticsearch 中的商品向量文档结构。
type ProductDocument struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Embedding []float32 `json:"embedding"` // 商品文本的向量表示
}

// RecommendationDTO 定义了返回给前端的单条推荐结果。
// Score 为 cosineSimilarity + 1.0，取值范围 [0, 2]。
type RecommendationDTO struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}
