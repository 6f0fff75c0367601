package service

import (
	"encoding/json"
	"fmt"
)

// singleProductTemplate 是单商品提取时要求模型填充的 JSON 模板。
var singleProductTemplate = map[string]string{
	"product_name":      "",
	"product_code":      "",
	"short_description": "",
	"long_description":  "",
}

// buildSingleInstruction 构造单商品（每组一次调用）模式的提取指令。
func buildSingleInstruction() string {
	templateJSON, _ := json.MarshalIndent(singleProductTemplate, "", "  ")
	return fmt.Sprintf(`You are an expert at extracting product information from images. Carefully analyze the provided product images and extract the following details into JSON format.

Return ONLY the completed JSON with these fields:
%s

Extraction guidelines:

1. Product Name:
- Look for the primary product name/title displayed prominently
- Typically found at the top of packaging or near the brand logo
- May include model names or variants (e.g., "Pro", "Max")

2. Product Code:
- Search for alphanumeric codes, SKUs, or model numbers
- Common labels: "Item #", "Model", "SKU", "Product Code"
- Often found near barcodes or in technical specifications

3. Short Description:
- Extract concise product highlights (1-2 sentences)
- Look for bullet points or brief feature summaries
- Typically emphasizes key selling points

4. Long Description:
- Find detailed technical specifications or full product narratives
- May be in paragraphs or sections labeled "Description"
- Includes materials, dimensions, capabilities, usage instructions

Important instructions:
- Prioritize text clarity over decorative elements
- Convert measurements to standard units when possible
- Preserve technical terminology exactly as written
- If any field isn't visible, leave it as empty string
- Return ONLY valid JSON without additional text
- Never invent information - only extract visible data
- Maintain original language terms from the product`, string(templateJSON))
}

// buildCombinedInstruction 构造合并模式的提取指令：一次调用携带全部图片，
// 要求模型恰好给出 expectedCount 条记录，每条标注其使用的文件名子集。
// withPrice 为 true 时（发票类单据）额外要求提取价格。
func buildCombinedInstruction(expectedCount int, fileNames []string, withPrice bool) string {
	namesJSON, _ := json.Marshal(fileNames)
	priceLine := ""
	if withPrice {
		priceLine = "\n- \"price\": the numeric unit price found on the invoice for this product (0 if not visible)"
	}
	return fmt.Sprintf(`You are an expert at extracting product information from images. The attached images together describe exactly %d distinct products. The image file names, in order, are: %s.

Return ONLY a JSON array containing exactly %d objects, one per product. Each object must have these fields:
- "product_code": alphanumeric code, SKU or model number ("" if not visible)
- "product_name": the product name/title
- "short_description": concise highlights (1-2 sentences)
- "long_description": a three-sentence detailed description
- "file_type": the mime type of the source images, e.g. "image/jpeg"
- "file_names": the subset of the file names listed above that you used for this product%s

Important instructions:
- Emit exactly %d array elements, no more, no fewer
- Every file name must be assigned to at most one product
- If any field isn't visible, leave it as empty string
- Return ONLY valid JSON without additional text
- Never invent information - only extract visible data`, expectedCount, string(namesJSON), expectedCount, priceLine, expectedCount)
}
