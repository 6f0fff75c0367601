package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-smart-go/internal/model"
	"catalog-smart-go/pkg/s3proxy"
)

// fakeBlobUploader 按 tmpCode 返回预设结果，并记录调用次数。
type fakeBlobUploader struct {
	mu       sync.Mutex
	results  map[string]map[string][]string
	errs     map[string]error
	calls    map[string]int
	zipURLs  map[string][]string
	zipErr   error
	zipCalls int
}

func (f *fakeBlobUploader) UploadProductImages(ctx context.Context, user s3proxy.User, tmpCode string, images [][]byte, tenant string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[tmpCode]++
	if err, ok := f.errs[tmpCode]; ok {
		return nil, err
	}
	return f.results[tmpCode], nil
}

func (f *fakeBlobUploader) UploadZipFolder(ctx context.Context, user s3proxy.User, zipURL string, tenant string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.zipCalls++
	if f.zipErr != nil {
		return nil, f.zipErr
	}
	return map[string][]string{"folder": f.zipURLs[zipURL]}, nil
}

func TestUploadGroupsCollectsURLsPerGroup(t *testing.T) {
	fake := &fakeBlobUploader{
		results: map[string]map[string][]string{
			"chair": {"chair": {"s3://b/chair/1.jpg", "s3://b/chair/2.jpg"}},
			"table": {"table": {"s3://b/table/1.jpg"}},
		},
	}
	svc := NewUploadService(fake)

	groups := []model.ProductGroup{
		{Key: "chair", Images: []model.ImageAsset{{Data: []byte("a")}, {Data: []byte("b")}}},
		{Key: "table", Images: []model.ImageAsset{{Data: []byte("c")}}},
	}
	urls, errsMap := svc.UploadGroups(context.Background(), s3proxy.User{ID: "u1"}, "acme", groups)
	assert.Empty(t, errsMap)
	require.Len(t, urls, 2)
	assert.Len(t, urls["chair"], 2)
	assert.Len(t, urls["table"], 1)
}

func TestUploadGroupsSingleAttemptPerGroup(t *testing.T) {
	fake := &fakeBlobUploader{
		results: map[string]map[string][]string{
			"ok": {"ok": {"s3://b/ok/1.jpg"}},
		},
		errs: map[string]error{"broken": errors.New("proxy unavailable")},
	}
	svc := NewUploadService(fake)

	groups := []model.ProductGroup{
		{Key: "ok", Images: []model.ImageAsset{{Data: []byte("a")}}},
		{Key: "broken", Images: []model.ImageAsset{{Data: []byte("b")}}},
	}
	urls, errsMap := svc.UploadGroups(context.Background(), s3proxy.User{}, "acme", groups)

	// 失败组记入错误表，成功组不受影响
	require.Contains(t, errsMap, "broken")
	assert.Contains(t, errsMap["broken"], "proxy unavailable")
	assert.Len(t, urls, 1)

	// 失败是终态的：每组只尝试一次
	assert.Equal(t, 1, fake.calls["broken"])
	assert.Equal(t, 1, fake.calls["ok"])
}

func TestUploadArchive(t *testing.T) {
	fake := &fakeBlobUploader{
		zipURLs: map[string][]string{"http://files/catalog.zip": {"s3://b/folder/1.jpg"}},
	}
	svc := NewUploadService(fake)

	urls, err := svc.UploadArchive(context.Background(), s3proxy.User{}, "acme", "http://files/catalog.zip")
	require.NoError(t, err)
	assert.Equal(t, []string{"s3://b/folder/1.jpg"}, urls["folder"])
	assert.Equal(t, 1, fake.zipCalls)
}

func TestUploadArchiveFailure(t *testing.T) {
	fake := &fakeBlobUploader{zipErr: errors.New("bad gateway")}
	svc := NewUploadService(fake)

	_, err := svc.UploadArchive(context.Background(), s3proxy.User{}, "acme", "http://files/catalog.zip")
	assert.Error(t, err)
	assert.Equal(t, 1, fake.zipCalls)
}
