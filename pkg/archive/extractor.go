// Package archive 负责把单个源文档（原始图片 / PDF / ZIP 压缩包）
// 拆解为按商品分组的有序图片序列。
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/offload"
	"catalog-smart-go/pkg/pdf"
)

var (
	// ErrBadArchive 表示 ZIP 压缩包结构无效。
	ErrBadArchive = errors.New("invalid zip archive")
	// ErrEmptyArchive 表示 ZIP 压缩包中没有任何符合条件的图片条目。
	ErrEmptyArchive = errors.New("no image files found in zip archive")
	// ErrPDFConversion 表示 PDF 文档转换失败，是该文档的致命错误。
	ErrPDFConversion = errors.New("pdf conversion failed")
)

// DefaultGroupKey 是非 ZIP 文档（单图、PDF）的合成分组键。
const DefaultGroupKey = "document"

// imageSuffixes 是 ZIP 条目按后缀过滤时接受的图片类型。
var imageSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}

// Entry 是拆解产物：分组键 + 一张图片。序列顺序与压缩包条目顺序或 PDF 页序一致。
type Entry struct {
	GroupKey string
	Asset    model.ImageAsset
}

// Extractor 按声明的 MIME 类型把源文档拆解为 Entry 序列。
// 此处不校验图片像素数据，损坏图片交由下游视觉提取能力处理。
type Extractor struct {
	rasterizer pdf.Rasterizer
	pool       *offload.Pool
}

// NewExtractor 创建 Extractor。PDF 栅格化通过 pool 提交，避免阻塞 I/O 协程。
func NewExtractor(rasterizer pdf.Rasterizer, pool *offload.Pool) *Extractor {
	return &Extractor{rasterizer: rasterizer, pool: pool}
}

// Extract 按 contentType（大小写不敏感，允许携带参数）分派拆解逻辑。
func (e *Extractor) Extract(ctx context.Context, data []byte, contentType string) ([]Entry, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch mimeType {
	case "application/zip", "application/x-zip-compressed":
		return e.extractZip(data)
	case "application/pdf":
		return e.extractPDF(ctx, data)
	default:
		// 其他/未知类型：整个负载作为单张图片，文件名留空
		return []Entry{{
			GroupKey: DefaultGroupKey,
			Asset:    model.ImageAsset{Data: data},
		}}, nil
	}
}

// extractZip 按压缩包条目顺序枚举图片条目，并以父目录的最后一段路径分组。
// 位于压缩包根目录（没有父文件夹）的条目被跳过。
func (e *Extractor) extractZip(data []byte) ([]Entry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}

	var entries []Entry
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !hasImageSuffix(f.Name) {
			continue
		}

		parent := path.Dir(f.Name)
		if parent == "." || parent == "/" {
			continue
		}
		groupKey := path.Base(parent)

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: 读取条目 %s 失败: %v", ErrBadArchive, f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			rc.Close()
			return nil, fmt.Errorf("%w: 读取条目 %s 失败: %v", ErrBadArchive, f.Name, err)
		}
		rc.Close()

		entries = append(entries, Entry{
			GroupKey: groupKey,
			Asset: model.ImageAsset{
				Data:     buf.Bytes(),
				FileName: path.Base(f.Name),
			},
		})
	}

	if len(entries) == 0 {
		return nil, ErrEmptyArchive
	}
	return entries, nil
}

// extractPDF 把每一页独立栅格化为一张 JPEG，命名为 page_<n>.jpg（从 1 开始），保持页序。
func (e *Extractor) extractPDF(ctx context.Context, data []byte) ([]Entry, error) {
	var pages [][]byte
	err := e.pool.Do(ctx, func() error {
		var rErr error
		pages, rErr = e.rasterizer.RasterizePages(data)
		return rErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFConversion, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: 文档不包含任何页面", ErrPDFConversion)
	}

	entries := make([]Entry, 0, len(pages))
	for i, page := range pages {
		entries = append(entries, Entry{
			GroupKey: DefaultGroupKey,
			Asset: model.ImageAsset{
				Data:     page,
				FileName: fmt.Sprintf("page_%d.jpg", i+1),
			},
		})
	}
	return entries, nil
}

// GroupEntries 把有序 Entry 序列聚合为 ProductGroup 列表，保持组内顺序与组间首见顺序。
// 没有任何图片的组在进入下游前被丢弃。
func GroupEntries(entries []Entry) []model.ProductGroup {
	index := make(map[string]int)
	var groups []model.ProductGroup
	for _, entry := range entries {
		if len(entry.Asset.Data) == 0 {
			continue
		}
		i, ok := index[entry.GroupKey]
		if !ok {
			i = len(groups)
			index[entry.GroupKey] = i
			groups = append(groups, model.ProductGroup{Key: entry.GroupKey})
		}
		groups[i].Images = append(groups[i].Images, entry.Asset)
	}
	return groups
}

func hasImageSuffix(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range imageSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
