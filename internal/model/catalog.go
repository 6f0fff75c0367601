package model

// ImageAsset 是从源文档中拆解出的一张图片，产生后不再被修改。
type ImageAsset struct {
	Data     []byte `json:"-"`
	FileName string `json:"fileName"`
}

// ProductGroup 是被认为属于同一件实物商品的一组图片。
// Key 来自压缩包的父目录名、显式商品编码，或单文件上传时的合成键。
type ProductGroup struct {
	Key    string
	Images []ImageAsset
}

// ExtractedRecord 是视觉提取归一化后的结构化目录记录。
// 缺失字段以空字符串 / 零值填充，即使提取部分失败也保证结构完整。
type ExtractedRecord struct {
	GroupKey         string   `json:"groupKey"`
	ProductCode      string   `json:"productCode"`
	ProductName      string   `json:"productName"`
	ShortDescription string   `json:"shortDescription"`
	LongDescription  string   `json:"longDescription"`
	Price            float64  `json:"price,omitempty"`
	FileType         string   `json:"fileType"`
	FileNames        []string `json:"fileNames"`
}

// IngestResponse 是一次摄取请求的合并结果：
// 提取出的记录、按组的存储 URL，以及按组的上传失败信息。
// 提取与上传是两个独立的失败域，互不抑制。
type IngestResponse struct {
	Products      []ExtractedRecord   `json:"products"`
	SourceURL     string              `json:"sourceUrl,omitempty"`
	ExtractErrors map[string]string   `json:"extractErrors,omitempty"`
	UploadURLs    map[string][]string `json:"uploadUrls"`
	UploadErrors  map[string]string   `json:"uploadErrors,omitempty"`
}

// BulkInsertRequest 定义批量重建向量索引的请求体，codes 为空表示全量重建。
type BulkInsertRequest struct {
	Codes []string `json:"codes"`
}

// ProductUpdateRequest 定义部分更新向量索引的请求体。
type ProductUpdateRequest struct {
	Codes []string `json:"codes"`
}

// ProductDeleteRequest 定义按编码批量删除的请求体。
type ProductDeleteRequest struct {
	Codes []string `json:"codes"`
}

// ProductQueryRequest 定义基于自由文本的推荐请求体。
type ProductQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}
