package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBestEffortStrictObject(t *testing.T) {
	payload := decodeBestEffort(`{"product_name":"Chair","price":12.5}`)
	assert.Equal(t, StrictlyParsed, payload.Outcome)
	require.NotNil(t, payload.Object)
	assert.Equal(t, "Chair", payload.Object["product_name"])
}

func TestDecodeBestEffortStrictArray(t *testing.T) {
	payload := decodeBestEffort(`[{"product_name":"A"},{"product_name":"B"}]`)
	assert.Equal(t, StrictlyParsed, payload.Outcome)
	require.Len(t, payload.Array, 2)
	assert.Equal(t, "B", payload.Array[1]["product_name"])
}

func TestDecodeBestEffortRecoversFromMarkdownFence(t *testing.T) {
	raw := "Here is the extracted data:\n```json\n{\"product_name\":\"Desk\"}\n```\nLet me know if you need more."
	payload := decodeBestEffort(raw)
	assert.Equal(t, RecoveredFromSubstring, payload.Outcome)
	require.NotNil(t, payload.Object)
	assert.Equal(t, "Desk", payload.Object["product_name"])
}

func TestDecodeBestEffortBracketMatchingIsStringAware(t *testing.T) {
	// 字符串字面量中的花括号不能干扰括号匹配
	raw := `noise {"product_name":"Brace {inside} string","note":"ok"} trailing`
	payload := decodeBestEffort(raw)
	assert.Equal(t, RecoveredFromSubstring, payload.Outcome)
	require.NotNil(t, payload.Object)
	assert.Equal(t, "Brace {inside} string", payload.Object["product_name"])
}

func TestDecodeBestEffortDefaultsOnGarbage(t *testing.T) {
	payload := decodeBestEffort("the model refused to answer")
	assert.Equal(t, DefaultedEmpty, payload.Outcome)
	assert.Nil(t, payload.Object)
	assert.Nil(t, payload.Array)

	// 括号不闭合时同样落入全默认
	payload = decodeBestEffort(`some text {"product_name": "never closed`)
	assert.Equal(t, DefaultedEmpty, payload.Outcome)
}

func TestRecordFromObjectReconcilesTemplate(t *testing.T) {
	obj := map[string]interface{}{
		"product_code":  "SKU-1",
		"product_name":  "Chair",
		"price":         "42.5",
		"file_names":    []interface{}{"a.jpg", "b.jpg"},
		"hallucination": "dropped silently",
	}

	rec := recordFromObject(obj, "chair")
	assert.Equal(t, "chair", rec.GroupKey)
	assert.Equal(t, "SKU-1", rec.ProductCode)
	assert.Equal(t, "Chair", rec.ProductName)
	// 模板外的字段被丢弃，缺失的字段以默认值填充
	assert.Equal(t, "", rec.ShortDescription)
	assert.Equal(t, "", rec.LongDescription)
	assert.Equal(t, 42.5, rec.Price)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, rec.FileNames)
}

func TestRecordFromObjectNilProducesDefaults(t *testing.T) {
	rec := recordFromObject(nil, "g")
	assert.Equal(t, "g", rec.GroupKey)
	assert.Equal(t, "", rec.ProductName)
	assert.Equal(t, 0.0, rec.Price)
	assert.NotNil(t, rec.FileNames)
	assert.Empty(t, rec.FileNames)
}

func TestRecordFromObjectIgnoresWrongTypes(t *testing.T) {
	obj := map[string]interface{}{
		"product_name": 123,
		"price":        "not a number",
		"file_names":   "should be a list",
	}
	rec := recordFromObject(obj, "g")
	assert.Equal(t, "", rec.ProductName)
	assert.Equal(t, 0.0, rec.Price)
	assert.Empty(t, rec.FileNames)
}
