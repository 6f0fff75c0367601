package pipeline

import (
	"context"

	"catalog-smart-go/internal/service"
	"catalog-smart-go/pkg/kafka"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/tasks"
)

// CatalogChangeProcessor 消费目录变更任务并驱动向量索引维护。
// 返回 error 时消费端会按既定策略重试，所以只有可重试的失败才向上返回。
type CatalogChangeProcessor struct {
	recommendService service.RecommendService
}

// NewCatalogChangeProcessor 创建一个新的 CatalogChangeProcessor 实例。
func NewCatalogChangeProcessor(recommendService service.RecommendService) *CatalogChangeProcessor {
	return &CatalogChangeProcessor{recommendService: recommendService}
}

// Process 根据任务事件类型分发到对应的索引维护操作。
func (p *CatalogChangeProcessor) Process(ctx context.Context, task tasks.CatalogChangeTask) error {
	switch task.Event {
	case tasks.EventUpsert:
		total, failed, err := p.recommendService.BulkUpsert(ctx, task.Codes)
		if err != nil {
			return err
		}
		if failed > 0 {
			log.Warnf("[Pipeline] 任务 %s 部分失败: 总数 %d, 失败 %d", task.TaskID, total, failed)
		}
		return nil
	case tasks.EventUpdate:
		total, failed, err := p.recommendService.Update(ctx, task.Codes)
		if err != nil {
			return err
		}
		if failed > 0 {
			log.Warnf("[Pipeline] 任务 %s 部分失败: 总数 %d, 失败 %d", task.TaskID, total, failed)
		}
		return nil
	case tasks.EventDelete:
		return p.recommendService.DeleteMany(ctx, task.Codes)
	case tasks.EventDeleteAll:
		return p.recommendService.DeleteAll(ctx)
	default:
		// 未知事件类型重试没有意义，记日志后直接吞掉
		log.Errorf("[Pipeline] 未知的任务事件类型: %s", task.Event)
		return nil
	}
}

var _ kafka.TaskProcessor = (*CatalogChangeProcessor)(nil)
