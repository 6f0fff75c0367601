// Package pdf 提供把 PDF 文档逐页栅格化为 JPEG 图片的能力。
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
)

// jpegQuality 与上游视觉模型可接受的画质权衡后取值。
const jpegQuality = 85

// Rasterizer 把一份 PDF 的每一页独立渲染为一张 JPEG 图片。
// 渲染是 CPU 密集操作，调用方应通过工作池进行提交。
type Rasterizer interface {
	// RasterizePages 按页序返回 JPEG 编码的页面图片。
	// 零页或任何一页转换失败都是整份文档的致命错误，不做部分页挽救。
	RasterizePages(data []byte) ([][]byte, error)
}

type fitzRasterizer struct{}

// NewRasterizer 创建基于 mupdf (go-fitz) 的 Rasterizer。
func NewRasterizer() Rasterizer {
	return &fitzRasterizer{}
}

func (r *fitzRasterizer) RasterizePages(data []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("打开 PDF 文档失败: %w", err)
	}
	defer doc.Close()

	total := doc.NumPage()
	if total == 0 {
		return nil, errors.New("PDF 文档不包含任何页面")
	}

	pages := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("渲染第 %d 页失败: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("编码第 %d 页为 JPEG 失败: %w", i+1, err)
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}
