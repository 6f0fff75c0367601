package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/vision"
)

// ErrAllGroupsFailed 表示逐组提取时没有任何一组成功。
var ErrAllGroupsFailed = errors.New("extraction failed for every product group")

// ExtractService 接口定义了视觉提取编排操作。
// 逐组模式下每个 ProductGroup 对应一次模型调用并独立容错；
// 合并模式下单次调用携带全部图片，由调用方声明期望的商品数量。
type ExtractService interface {
	ExtractGroups(ctx context.Context, groups []model.ProductGroup) ([]model.ExtractedRecord, map[string]string, error)
	ExtractCombined(ctx context.Context, groups []model.ProductGroup, expectedCount int, withPrice bool) ([]model.ExtractedRecord, error)
	ExtractSingle(ctx context.Context, image []byte) (model.ExtractedRecord, error)
}

type extractService struct {
	visionClient  vision.Client
	maxConcurrent int
}

// NewExtractService 创建一个新的 ExtractService 实例。
func NewExtractService(visionClient vision.Client, maxConcurrent int) ExtractService {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &extractService{
		visionClient:  visionClient,
		maxConcurrent: maxConcurrent,
	}
}

// ExtractGroups 以有界并发对每个分组发起一次提取调用。
// 完成顺序不保证，结果以分组键寻址后按输入顺序回排；
// 某组调用失败只会把该组记入失败表并从聚合结果中剔除，
// 整体成功要求至少一组成功。
func (s *extractService) ExtractGroups(ctx context.Context, groups []model.ProductGroup) ([]model.ExtractedRecord, map[string]string, error) {
	log.Infof("[ExtractService] 开始逐组提取, 分组数: %d, 并发上限: %d", len(groups), s.maxConcurrent)

	var (
		mu       sync.Mutex
		byKey    = make(map[string]model.ExtractedRecord, len(groups))
		failures = make(map[string]string)
	)

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group model.ProductGroup) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			record, err := s.extractGroup(ctx, group)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Errorf("[ExtractService] 分组 '%s' 提取失败: %v", group.Key, err)
				failures[group.Key] = err.Error()
				return
			}
			byKey[group.Key] = record
		}(group)
	}
	wg.Wait()

	// 按输入分组顺序回排，避免乱序完成带来的不确定输出
	records := make([]model.ExtractedRecord, 0, len(byKey))
	for _, group := range groups {
		if record, ok := byKey[group.Key]; ok {
			records = append(records, record)
		}
	}

	if len(records) == 0 && len(groups) > 0 {
		return nil, failures, ErrAllGroupsFailed
	}
	log.Infof("[ExtractService] 逐组提取完成, 成功: %d, 失败: %d", len(records), len(failures))
	return records, failures, nil
}

// extractGroup 对单个分组发起一次调用，携带该组全部图片。
func (s *extractService) extractGroup(ctx context.Context, group model.ProductGroup) (model.ExtractedRecord, error) {
	parts, fileNames, firstFormat, err := buildImageParts(group.Images)
	if err != nil {
		return model.ExtractedRecord{}, err
	}

	raw, err := s.visionClient.ExtractText(ctx, buildSingleInstruction(), parts)
	if err != nil {
		return model.ExtractedRecord{}, fmt.Errorf("视觉提取调用失败: %w", err)
	}

	payload := decodeBestEffort(raw)
	if payload.Outcome == DefaultedEmpty {
		log.Warnf("[ExtractService] 分组 '%s' 的响应无法解析, 产出全默认记录", group.Key)
	}
	record := recordFromObject(payload.Object, group.Key)
	if record.FileType == "" {
		record.FileType = "image/" + firstFormat
	}
	if len(record.FileNames) == 0 {
		record.FileNames = fileNames
	}
	return record, nil
}

// ExtractCombined 以单次调用携带所有分组的全部图片。
// 返回条数与 expectedCount 不一致时只记录日志，不重试，接受返回的集合。
func (s *extractService) ExtractCombined(ctx context.Context, groups []model.ProductGroup, expectedCount int, withPrice bool) ([]model.ExtractedRecord, error) {
	var images []model.ImageAsset
	for _, group := range groups {
		images = append(images, group.Images...)
	}
	log.Infof("[ExtractService] 开始合并提取, 图片数: %d, 期望商品数: %d, 提取价格: %v", len(images), expectedCount, withPrice)

	parts, fileNames, _, err := buildImageParts(images)
	if err != nil {
		return nil, err
	}

	raw, err := s.visionClient.ExtractText(ctx, buildCombinedInstruction(expectedCount, fileNames, withPrice), parts)
	if err != nil {
		return nil, fmt.Errorf("视觉提取调用失败: %w", err)
	}

	payload := decodeBestEffort(raw)
	var objects []map[string]interface{}
	switch {
	case payload.Array != nil:
		objects = payload.Array
	case payload.Object != nil:
		objects = []map[string]interface{}{payload.Object}
	default:
		log.Warnf("[ExtractService] 合并提取的响应无法解析, 产出全默认记录")
		objects = []map[string]interface{}{nil}
	}

	if len(objects) != expectedCount {
		// 数量不符只记日志，接受模型给出的集合
		log.Warnf("[ExtractService] 合并提取返回条数与期望不符, 期望: %d, 实际: %d", expectedCount, len(objects))
	}

	records := make([]model.ExtractedRecord, 0, len(objects))
	for i, obj := range objects {
		record := recordFromObject(obj, "")
		record.GroupKey = record.ProductCode
		if record.GroupKey == "" {
			record.GroupKey = fmt.Sprintf("product_%d", i+1)
		}
		records = append(records, record)
	}
	return records, nil
}

// ExtractSingle 对单张图片执行提取，供单文件直传的商品信息接口使用。
func (s *extractService) ExtractSingle(ctx context.Context, image []byte) (model.ExtractedRecord, error) {
	group := model.ProductGroup{Key: "single", Images: []model.ImageAsset{{Data: image}}}
	return s.extractGroup(ctx, group)
}

// buildImageParts 嗅探每张图片的格式并构造请求部件，返回部件、文件名与首图格式。
// 无法识别的图片格式是该次调用的错误。
func buildImageParts(images []model.ImageAsset) ([]vision.ImagePart, []string, string, error) {
	parts := make([]vision.ImagePart, 0, len(images))
	fileNames := make([]string, 0, len(images))
	firstFormat := ""
	for _, img := range images {
		format, err := vision.DetectImageFormat(img.Data)
		if err != nil {
			return nil, nil, "", fmt.Errorf("图片 '%s' 格式无法识别: %w", img.FileName, err)
		}
		if firstFormat == "" {
			firstFormat = format
		}
		parts = append(parts, vision.ImagePart{
			MimeType: "image/" + format,
			Data:     img.Data,
		})
		if img.FileName != "" {
			fileNames = append(fileNames, img.FileName)
		}
	}
	return parts, fileNames, firstFormat, nil
}
