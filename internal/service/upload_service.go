package service

import (
	"context"
	"sync"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/s3proxy"
)

// UploadService 接口定义了原始图片的持久化操作。
// 每组只发起一次上传尝试，失败对该组是终态的，由调用方决定是否重新提交；
// 上传与提取互为独立失败域，任何一方的失败都不影响另一方。
type UploadService interface {
	UploadGroups(ctx context.Context, user s3proxy.User, tenant string, groups []model.ProductGroup) (map[string][]string, map[string]string)
	UploadArchive(ctx context.Context, user s3proxy.User, tenant, zipURL string) (map[string][]string, error)
}

// blobUploader 抽象了 S3 代理客户端，便于在测试中替换。
type blobUploader interface {
	UploadProductImages(ctx context.Context, user s3proxy.User, tmpCode string, images [][]byte, tenant string) (map[string][]string, error)
	UploadZipFolder(ctx context.Context, user s3proxy.User, zipURL string, tenant string) (map[string][]string, error)
}

type uploadService struct {
	uploader blobUploader
}

// NewUploadService 创建一个新的 UploadService 实例。
func NewUploadService(uploader blobUploader) UploadService {
	return &uploadService{uploader: uploader}
}

// UploadGroups 并发上传每个分组的全部图片，返回按组的 URL 列表与按组的失败信息。
func (s *uploadService) UploadGroups(ctx context.Context, user s3proxy.User, tenant string, groups []model.ProductGroup) (map[string][]string, map[string]string) {
	log.Infof("[UploadService] 开始按组上传原始图片, 分组数: %d, tenant: %s", len(groups), tenant)

	var (
		mu      sync.Mutex
		urls    = make(map[string][]string)
		errsMap = make(map[string]string)
	)

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group model.ProductGroup) {
			defer wg.Done()

			images := make([][]byte, 0, len(group.Images))
			for _, asset := range group.Images {
				images = append(images, asset.Data)
			}

			result, err := s.uploader.UploadProductImages(ctx, user, group.Key, images, tenant)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// 只尝试一次，失败记入错误表，不做重试
				log.Errorf("[UploadService] 分组 '%s' 上传失败: %v", group.Key, err)
				errsMap[group.Key] = err.Error()
				return
			}
			for code, groupURLs := range result {
				urls[code] = append(urls[code], groupURLs...)
			}
		}(group)
	}
	wg.Wait()

	log.Infof("[UploadService] 按组上传完成, 成功组: %d, 失败组: %d", len(urls), len(errsMap))
	return urls, errsMap
}

// UploadArchive 以整包方式上传一个压缩包（按来源 URL 引用），一次尝试。
func (s *uploadService) UploadArchive(ctx context.Context, user s3proxy.User, tenant, zipURL string) (map[string][]string, error) {
	log.Infof("[UploadService] 开始整包上传, url: %s, tenant: %s", zipURL, tenant)
	urls, err := s.uploader.UploadZipFolder(ctx, user, zipURL, tenant)
	if err != nil {
		log.Errorf("[UploadService] 整包上传失败: %v", err)
		return nil, err
	}
	return urls, nil
}
