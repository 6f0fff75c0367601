// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// 目录变更事件类型。
const (
	EventUpsert    = "upsert"     // 重建 codes 对应的向量文档，codes 为空表示全量重建
	EventUpdate    = "update"     // 部分更新 codes 对应的向量文档
	EventDelete    = "delete"     // 删除 codes 对应的向量文档
	EventDeleteAll = "delete_all" // 清空整个向量索引
)

// CatalogChangeTask represents a catalog change event that drives reindexing.
type CatalogChangeTask struct {
	TaskID string   `json:"task_id"`
	Event  string   `json:"event"`
	Codes  []string `json:"codes"`
}
