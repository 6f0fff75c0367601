package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/archive"
	"catalog-smart-go/pkg/log"
	"catalog-smart-go/pkg/s3proxy"
)

// ErrIngestInProgress 表示同一份源文档正在被另一个请求处理。
var ErrIngestInProgress = errors.New("document ingestion already in progress")

// ingestLockTTL 是摄取去重锁的保底过期时间，防止进程崩溃后锁永久残留。
const ingestLockTTL = 10 * time.Minute

// sourceURLExpiry 是归档原件预签名 URL 的有效期。
const sourceURLExpiry = 24 * time.Hour

// SourceArchiver 归档源文档原件，并为归档对象生成预签名访问 URL。
type SourceArchiver interface {
	PutSource(ctx context.Context, md5Sum, fileName, contentType string, data []byte) (string, error)
	PresignedSourceURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// IngestOptions 控制单次摄取的提取模式。
// ExpectedCount > 0 时所有图片合并为一次提取调用，期望产出恰好 N 条记录；
// WithPrice 表示源文档是发票类，需要额外提取价格字段。
type IngestOptions struct {
	ExpectedCount int
	WithPrice     bool
}

// IngestService 是摄取管线的门面：取回源文档、拆解分组，
// 然后并行执行视觉提取与对象存储上传，最后合并为一个响应。
type IngestService interface {
	IngestFromURL(ctx context.Context, user s3proxy.User, tenant, fileURL string, opts IngestOptions) (*model.IngestResponse, error)
	IngestFromFile(ctx context.Context, user s3proxy.User, tenant, fileName, contentType string, data []byte, opts IngestOptions) (*model.IngestResponse, error)
}

type ingestService struct {
	extractor      *archive.Extractor
	extractService ExtractService
	uploadService  UploadService
	store          SourceArchiver
	rdb            *redis.Client
	httpClient     *http.Client
}

// NewIngestService 创建一个新的 IngestService 实例。
func NewIngestService(
	extractor *archive.Extractor,
	extractService ExtractService,
	uploadService UploadService,
	store SourceArchiver,
	rdb *redis.Client,
) IngestService {
	return &ingestService{
		extractor:      extractor,
		extractService: extractService,
		uploadService:  uploadService,
		store:          store,
		rdb:            rdb,
		httpClient:     &http.Client{Timeout: 120 * time.Second},
	}
}

// IngestFromURL 从远端 URL 取回源文档后执行完整摄取流程。
// ZIP 压缩包走整包上传路径，由代理服务自行按目录展开。
func (s *ingestService) IngestFromURL(ctx context.Context, user s3proxy.User, tenant, fileURL string, opts IngestOptions) (*model.IngestResponse, error) {
	log.Infof("[IngestService] 步骤1: 取回远端文档, url: %s", fileURL)
	data, fileName, contentType, err := s.fetch(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	return s.ingest(ctx, user, tenant, fileName, contentType, data, fileURL, opts)
}

// IngestFromFile 对直接上传的文件内容执行完整摄取流程。
func (s *ingestService) IngestFromFile(ctx context.Context, user s3proxy.User, tenant, fileName, contentType string, data []byte, opts IngestOptions) (*model.IngestResponse, error) {
	return s.ingest(ctx, user, tenant, fileName, contentType, data, "", opts)
}

func (s *ingestService) ingest(ctx context.Context, user s3proxy.User, tenant, fileName, contentType string, data []byte, sourceURL string, opts IngestOptions) (*model.IngestResponse, error) {
	sum := md5.Sum(data)
	md5Hex := hex.EncodeToString(sum[:])
	log.Infof("[IngestService] 步骤2: 文档指纹 %s, 大小 %d 字节, 类型 %s", md5Hex, len(data), contentType)

	release, err := s.acquireLock(ctx, md5Hex)
	if err != nil {
		return nil, err
	}
	defer release()

	// 源文档归档是尽力而为的，失败不阻断摄取
	var archivedURL string
	if s.store != nil {
		if objectName, aErr := s.store.PutSource(ctx, md5Hex, fileName, contentType, data); aErr != nil {
			log.Warnf("[IngestService] 源文档归档失败: %v", aErr)
		} else {
			log.Infof("[IngestService] 源文档已归档: %s", objectName)
			if signed, sErr := s.store.PresignedSourceURL(ctx, objectName, sourceURLExpiry); sErr != nil {
				log.Warnf("[IngestService] 生成归档访问 URL 失败: %v", sErr)
			} else {
				archivedURL = signed
			}
		}
	}

	log.Info("[IngestService] 步骤3: 拆解源文档为图片分组")
	entries, err := s.extractor.Extract(ctx, data, contentType)
	if err != nil {
		return nil, err
	}
	groups := archive.GroupEntries(entries)
	log.Infof("[IngestService] 拆解完成, 共 %d 个分组", len(groups))

	isZip := strings.Contains(contentType, "zip")

	// 提取与上传是两个独立的失败域，并行执行且互不抑制
	var (
		wg           sync.WaitGroup
		records      []model.ExtractedRecord
		extractErrs  map[string]string
		extractFatal error
		uploadURLs   map[string][]string
		uploadErrs   map[string]string
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		log.Info("[IngestService] 步骤4: 开始视觉提取")
		if opts.ExpectedCount > 0 {
			records, extractFatal = s.extractService.ExtractCombined(ctx, groups, opts.ExpectedCount, opts.WithPrice)
		} else {
			records, extractErrs, extractFatal = s.extractService.ExtractGroups(ctx, groups)
		}
	}()
	go func() {
		defer wg.Done()
		log.Info("[IngestService] 步骤5: 开始上传对象存储")
		if isZip && sourceURL != "" {
			urls, uErr := s.uploadService.UploadArchive(ctx, user, tenant, sourceURL)
			uploadURLs = urls
			if uErr != nil {
				uploadErrs = map[string]string{archive.DefaultGroupKey: uErr.Error()}
			}
		} else {
			uploadURLs, uploadErrs = s.uploadService.UploadGroups(ctx, user, tenant, groups)
		}
	}()
	wg.Wait()

	if extractFatal != nil {
		return nil, extractFatal
	}

	log.Infof("[IngestService] 步骤6: 摄取完成, 记录 %d 条, 提取失败 %d 组, 上传失败 %d 组",
		len(records), len(extractErrs), len(uploadErrs))
	return &model.IngestResponse{
		Products:      records,
		SourceURL:     archivedURL,
		ExtractErrors: extractErrs,
		UploadURLs:    uploadURLs,
		UploadErrors:  uploadErrs,
	}, nil
}

// fetch 下载远端文档，返回内容、文件名与内容类型。
// 文件名取 URL 路径的最后一段，内容类型优先使用响应头。
func (s *ingestService) fetch(ctx context.Context, fileURL string) ([]byte, string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("无效的文档 URL: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("下载源文档失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", "", fmt.Errorf("下载源文档失败, status: %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", "", fmt.Errorf("读取源文档内容失败: %w", err)
	}

	fileName := "document"
	if u, pErr := url.Parse(fileURL); pErr == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			fileName = base
		}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return data, fileName, contentType, nil
}

// acquireLock 以文档指纹为键获取在途去重锁，防止同一文档被并发重复摄取。
// Redis 不可用时降级为不去重，只记一条告警。
func (s *ingestService) acquireLock(ctx context.Context, md5Hex string) (func(), error) {
	if s.rdb == nil {
		return func() {}, nil
	}
	key := "ingest:inflight:" + md5Hex
	ok, err := s.rdb.SetNX(ctx, key, 1, ingestLockTTL).Result()
	if err != nil {
		log.Warnf("[IngestService] 获取去重锁失败, 降级为不去重: %v", err)
		return func() {}, nil
	}
	if !ok {
		return nil, ErrIngestInProgress
	}
	return func() {
		if dErr := s.rdb.Del(context.Background(), key).Err(); dErr != nil {
			log.Warnf("[IngestService] 释放去重锁失败: %v", dErr)
		}
	}, nil
}
