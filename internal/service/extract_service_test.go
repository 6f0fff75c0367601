package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/vision"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\npixels")

// fakeVisionClient 按调用时携带的图片内容返回预设响应。
type fakeVisionClient struct {
	mu        sync.Mutex
	responses map[string]string // 首图内容 -> 响应
	errs      map[string]error
	calls     int
	lastParts []vision.ImagePart
	lastText  string
}

func (f *fakeVisionClient) ExtractText(ctx context.Context, instruction string, images []vision.ImagePart) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastParts = images
	f.lastText = instruction

	key := ""
	if len(images) > 0 {
		key = string(images[0].Data)
	}
	if err, ok := f.errs[key]; ok {
		return "", err
	}
	if resp, ok := f.responses[key]; ok {
		return resp, nil
	}
	return "{}", nil
}

func pngImage(marker string) model.ImageAsset {
	return model.ImageAsset{
		Data:     append(append([]byte{}, pngBytes...), []byte(marker)...),
		FileName: marker + ".png",
	}
}

func TestExtractGroupsAssociatesResultsByKey(t *testing.T) {
	chairImg := pngImage("chair")
	tableImg := pngImage("table")
	fake := &fakeVisionClient{
		responses: map[string]string{
			string(chairImg.Data): `{"product_code":"C-1","product_name":"Chair"}`,
			string(tableImg.Data): `{"product_code":"T-1","product_name":"Table"}`,
		},
	}
	svc := NewExtractService(fake, 3)

	groups := []model.ProductGroup{
		{Key: "chair", Images: []model.ImageAsset{chairImg}},
		{Key: "table", Images: []model.ImageAsset{tableImg}},
	}
	records, failures, err := svc.ExtractGroups(context.Background(), groups)
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, records, 2)

	// 并发完成，但输出按输入分组顺序回排
	assert.Equal(t, "chair", records[0].GroupKey)
	assert.Equal(t, "Chair", records[0].ProductName)
	assert.Equal(t, "table", records[1].GroupKey)
	assert.Equal(t, "Table", records[1].ProductName)
}

func TestExtractGroupsPartialFailure(t *testing.T) {
	okImg := pngImage("ok")
	badImg := pngImage("bad")
	fake := &fakeVisionClient{
		responses: map[string]string{string(okImg.Data): `{"product_name":"Good"}`},
		errs:      map[string]error{string(badImg.Data): errors.New("model timeout")},
	}
	svc := NewExtractService(fake, 2)

	groups := []model.ProductGroup{
		{Key: "good", Images: []model.ImageAsset{okImg}},
		{Key: "broken", Images: []model.ImageAsset{badImg}},
	}
	records, failures, err := svc.ExtractGroups(context.Background(), groups)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].GroupKey)
	require.Contains(t, failures, "broken")
	assert.Contains(t, failures["broken"], "model timeout")
}

func TestExtractGroupsAllFailed(t *testing.T) {
	badImg := pngImage("bad")
	fake := &fakeVisionClient{
		errs: map[string]error{string(badImg.Data): errors.New("down")},
	}
	svc := NewExtractService(fake, 2)

	groups := []model.ProductGroup{
		{Key: "only", Images: []model.ImageAsset{badImg}},
	}
	records, failures, err := svc.ExtractGroups(context.Background(), groups)
	assert.ErrorIs(t, err, ErrAllGroupsFailed)
	assert.Nil(t, records)
	assert.Contains(t, failures, "only")
}

func TestExtractGroupsEmptyInput(t *testing.T) {
	svc := NewExtractService(&fakeVisionClient{}, 2)
	records, failures, err := svc.ExtractGroups(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, failures)
}

func TestExtractGroupFillsFallbackFileTypeAndNames(t *testing.T) {
	img := pngImage("plain")
	fake := &fakeVisionClient{
		responses: map[string]string{string(img.Data): `{"product_name":"Plain"}`},
	}
	svc := NewExtractService(fake, 1)

	records, _, err := svc.ExtractGroups(context.Background(), []model.ProductGroup{
		{Key: "g", Images: []model.ImageAsset{img}},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	// 模型未返回的字段由嗅探结果与原始文件名兜底
	assert.Equal(t, "image/png", records[0].FileType)
	assert.Equal(t, []string{"plain.png"}, records[0].FileNames)
}

func TestExtractGroupRejectsUnrecognizableImage(t *testing.T) {
	fake := &fakeVisionClient{}
	svc := NewExtractService(fake, 1)

	_, failures, err := svc.ExtractGroups(context.Background(), []model.ProductGroup{
		{Key: "g", Images: []model.ImageAsset{{Data: []byte("not an image"), FileName: "x.bin"}}},
	})
	assert.ErrorIs(t, err, ErrAllGroupsFailed)
	assert.Contains(t, failures, "g")
	// 格式无法识别时不应发起模型调用
	assert.Equal(t, 0, fake.calls)
}

func TestExtractCombinedKeysRecordsByProductCode(t *testing.T) {
	img := pngImage("all")
	fake := &fakeVisionClient{
		responses: map[string]string{
			string(img.Data): `[{"product_code":"A-1","product_name":"First"},{"product_name":"No Code"}]`,
		},
	}
	svc := NewExtractService(fake, 1)

	records, err := svc.ExtractCombined(context.Background(), []model.ProductGroup{
		{Key: "g", Images: []model.ImageAsset{img}},
	}, 2, false)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A-1", records[0].GroupKey)
	// 无编码的记录获得合成键
	assert.Equal(t, "product_2", records[1].GroupKey)
}

func TestExtractCombinedCountMismatchIsAccepted(t *testing.T) {
	img := pngImage("all")
	fake := &fakeVisionClient{
		responses: map[string]string{
			string(img.Data): `[{"product_name":"Only One"}]`,
		},
	}
	svc := NewExtractService(fake, 1)

	// 期望 3 条但模型只给了 1 条：接受返回的集合，不报错不重试
	records, err := svc.ExtractCombined(context.Background(), []model.ProductGroup{
		{Key: "g", Images: []model.ImageAsset{img}},
	}, 3, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, fake.calls)
}

func TestExtractCombinedInstructionMentionsCountAndPrice(t *testing.T) {
	img := pngImage("inv")
	fake := &fakeVisionClient{
		responses: map[string]string{string(img.Data): `[]`},
	}
	svc := NewExtractService(fake, 1)

	_, err := svc.ExtractCombined(context.Background(), []model.ProductGroup{
		{Key: "g", Images: []model.ImageAsset{img}},
	}, 4, true)
	require.NoError(t, err)
	assert.Contains(t, fake.lastText, fmt.Sprintf("%d", 4))
	assert.Contains(t, fake.lastText, "price")
}

func TestExtractSingle(t *testing.T) {
	img := pngImage("solo")
	fake := &fakeVisionClient{
		responses: map[string]string{string(img.Data): `{"product_name":"Solo"}`},
	}
	svc := NewExtractService(fake, 1)

	record, err := svc.ExtractSingle(context.Background(), img.Data)
	require.NoError(t, err)
	assert.Equal(t, "Solo", record.ProductName)
	assert.Equal(t, "image/png", record.FileType)
}
