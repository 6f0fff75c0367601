// Package service 包含了应用的业务逻辑层。
package service

import (
	"encoding/json"
	"strconv"

	"catalog-smart-go/internal/model"
)

// DecodeOutcome 标记视觉模型响应的归一化走到了哪一层。
type DecodeOutcome int

const (
	// StrictlyParsed 表示原始文本整体就是合法 JSON。
	StrictlyParsed DecodeOutcome = iota
	// RecoveredFromSubstring 表示通过括号匹配截取的子串解析成功。
	RecoveredFromSubstring
	// DefaultedEmpty 表示两层解析都失败，产出全默认值记录。
	// 注意这不是错误：该兜底没有显式失败标记，只能通过空字段观察到。
	DefaultedEmpty
)

// DecodedPayload 是分层解码的结果。单对象响应填充 Object，数组响应填充 Array。
type DecodedPayload struct {
	Outcome DecodeOutcome
	Object  map[string]interface{}
	Array   []map[string]interface{}
}

// decodeBestEffort 对模型的原始文本执行分层解析：
// 严格 JSON -> 括号匹配子串 -> 全默认。任何情况下都不返回错误。
func decodeBestEffort(raw string) DecodedPayload {
	if payload, ok := tryParse(raw); ok {
		payload.Outcome = StrictlyParsed
		return payload
	}

	if span, ok := firstJSONSpan(raw); ok {
		if payload, ok := tryParse(span); ok {
			payload.Outcome = RecoveredFromSubstring
			return payload
		}
	}

	return DecodedPayload{Outcome: DefaultedEmpty}
}

func tryParse(s string) (DecodedPayload, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return DecodedPayload{Object: obj}, true
	}

	var arr []map[string]interface{}
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		return DecodedPayload{Array: arr}, true
	}
	return DecodedPayload{}, false
}

// firstJSONSpan 在原始文本中定位第一个顶层 {…} 或 […] 区间。
// 扫描时跳过字符串字面量与转义符，深度归零即为匹配的闭括号。
func firstJSONSpan(s string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// recordFromObject 把解码出的对象与记录模板对账：
// 模板中缺失的字段以默认值填充，对象中多余的字段被丢弃。纯函数。
func recordFromObject(obj map[string]interface{}, groupKey string) model.ExtractedRecord {
	rec := model.ExtractedRecord{GroupKey: groupKey, FileNames: []string{}}
	if obj == nil {
		return rec
	}
	rec.ProductCode = stringField(obj, "product_code")
	rec.ProductName = stringField(obj, "product_name")
	rec.ShortDescription = stringField(obj, "short_description")
	rec.LongDescription = stringField(obj, "long_description")
	rec.FileType = stringField(obj, "file_type")
	rec.Price = numberField(obj, "price")
	rec.FileNames = stringListField(obj, "file_names")
	return rec
}

func stringField(obj map[string]interface{}, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}

func numberField(obj map[string]interface{}, key string) float64 {
	switch v := obj[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}

func stringListField(obj map[string]interface{}, key string) []string {
	out := []string{}
	if list, ok := obj[key].([]interface{}); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
