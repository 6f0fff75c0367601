package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/offload"
)

// fakeRasterizer 以固定结果替代真实的 PDF 栅格化。
type fakeRasterizer struct {
	pages [][]byte
	err   error
}

func (f *fakeRasterizer) RasterizePages(data []byte) ([][]byte, error) {
	return f.pages, f.err
}

func newTestExtractor(t *testing.T, r *fakeRasterizer) *Extractor {
	t.Helper()
	pool, err := offload.NewPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	if r == nil {
		r = &fakeRasterizer{}
	}
	return NewExtractor(r, pool)
}

// zipEntry 保证测试压缩包的条目顺序确定。
type zipEntry struct {
	name    string
	content []byte
}

func buildZip(t *testing.T, files []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		fw, err := w.Create(f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractZipGroupsByParentFolder(t *testing.T) {
	e := newTestExtractor(t, nil)
	data := buildZip(t, []zipEntry{
		{"catalog/chair/front.jpg", []byte("a")},
		{"catalog/chair/back.png", []byte("b")},
		{"catalog/table/top.jpeg", []byte("c")},
		{"catalog/chair/specs.txt", []byte("ignored")},
	})

	entries, err := e.Extract(context.Background(), data, "application/zip")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	groups := GroupEntries(entries)
	byKey := map[string]model.ProductGroup{}
	for _, g := range groups {
		byKey[g.Key] = g
	}
	require.Contains(t, byKey, "chair")
	require.Contains(t, byKey, "table")
	assert.Len(t, byKey["chair"].Images, 2)
	assert.Len(t, byKey["table"].Images, 1)
	assert.Equal(t, "top.jpeg", byKey["table"].Images[0].FileName)
}

func TestExtractZipPreservesArchiveOrderWithinGroup(t *testing.T) {
	e := newTestExtractor(t, nil)
	// 条目写入顺序刻意不按字典序
	data := buildZip(t, []zipEntry{
		{"chair/side.jpg", []byte("1")},
		{"chair/front.jpg", []byte("2")},
		{"chair/back.jpg", []byte("3")},
	})

	entries, err := e.Extract(context.Background(), data, "application/zip")
	require.NoError(t, err)

	groups := GroupEntries(entries)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Images, 3)
	// 组内图片按压缩包迭代顺序排列，不按文件名排序
	assert.Equal(t, "side.jpg", groups[0].Images[0].FileName)
	assert.Equal(t, "front.jpg", groups[0].Images[1].FileName)
	assert.Equal(t, "back.jpg", groups[0].Images[2].FileName)
}

func TestExtractZipSkipsRootEntries(t *testing.T) {
	e := newTestExtractor(t, nil)
	data := buildZip(t, []zipEntry{
		{"loose.jpg", []byte("root level, no folder")},
		{"chair/front.jpg", []byte("grouped")},
	})

	entries, err := e.Extract(context.Background(), data, "application/zip")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "chair", entries[0].GroupKey)
}

func TestExtractZipEmptyArchive(t *testing.T) {
	e := newTestExtractor(t, nil)

	// 压缩包只含非图片条目
	data := buildZip(t, []zipEntry{
		{"chair/readme.txt", []byte("no images here")},
	})
	_, err := e.Extract(context.Background(), data, "application/zip")
	assert.ErrorIs(t, err, ErrEmptyArchive)

	// 完全为空的压缩包
	data = buildZip(t, nil)
	_, err = e.Extract(context.Background(), data, "application/zip")
	assert.ErrorIs(t, err, ErrEmptyArchive)
}

func TestExtractZipBadArchive(t *testing.T) {
	e := newTestExtractor(t, nil)
	_, err := e.Extract(context.Background(), []byte("definitely not a zip"), "application/zip")
	assert.ErrorIs(t, err, ErrBadArchive)
}

func TestExtractContentTypeNormalization(t *testing.T) {
	e := newTestExtractor(t, nil)
	data := buildZip(t, []zipEntry{
		{"chair/front.jpg", []byte("a")},
	})

	// 大小写与参数都应被忽略
	entries, err := e.Extract(context.Background(), data, "Application/ZIP; charset=utf-8")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = e.Extract(context.Background(), data, "application/x-zip-compressed")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExtractPDFNamesPagesInOrder(t *testing.T) {
	r := &fakeRasterizer{pages: [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")}}
	e := newTestExtractor(t, r)

	entries, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "application/pdf")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, DefaultGroupKey, entry.GroupKey)
		assert.Equal(t, fmt.Sprintf("page_%d.jpg", i+1), entry.Asset.FileName)
	}
	assert.Equal(t, []byte("p1"), entries[0].Asset.Data)
	assert.Equal(t, []byte("p3"), entries[2].Asset.Data)
}

func TestExtractPDFConversionFailure(t *testing.T) {
	r := &fakeRasterizer{err: errors.New("corrupt document")}
	e := newTestExtractor(t, r)

	_, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "application/pdf")
	assert.ErrorIs(t, err, ErrPDFConversion)
}

func TestExtractPDFZeroPages(t *testing.T) {
	r := &fakeRasterizer{pages: [][]byte{}}
	e := newTestExtractor(t, r)

	_, err := e.Extract(context.Background(), []byte("%PDF-1.7"), "application/pdf")
	assert.ErrorIs(t, err, ErrPDFConversion)
}

func TestExtractUnknownTypePassthrough(t *testing.T) {
	e := newTestExtractor(t, nil)
	payload := []byte{0xff, 0xd8, 0xff, 0xe0}

	entries, err := e.Extract(context.Background(), payload, "application/octet-stream")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultGroupKey, entries[0].GroupKey)
	assert.Equal(t, payload, entries[0].Asset.Data)
	assert.Empty(t, entries[0].Asset.FileName)
}

func TestGroupEntriesPreservesOrderAndDropsEmpty(t *testing.T) {
	entries := []Entry{
		{GroupKey: "b", Asset: model.ImageAsset{Data: []byte("1"), FileName: "1.jpg"}},
		{GroupKey: "a", Asset: model.ImageAsset{Data: []byte("2"), FileName: "2.jpg"}},
		{GroupKey: "b", Asset: model.ImageAsset{Data: []byte("3"), FileName: "3.jpg"}},
		{GroupKey: "c", Asset: model.ImageAsset{FileName: "empty.jpg"}},
	}

	groups := GroupEntries(entries)
	require.Len(t, groups, 2)
	// 组间顺序按首次出现，组内顺序按条目顺序
	assert.Equal(t, "b", groups[0].Key)
	assert.Equal(t, "a", groups[1].Key)
	require.Len(t, groups[0].Images, 2)
	assert.Equal(t, "1.jpg", groups[0].Images[0].FileName)
	assert.Equal(t, "3.jpg", groups[0].Images[1].FileName)
}
