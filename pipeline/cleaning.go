package pipeline

import (
	"math"
	"strconv"
	"strings"
)

// 视为缺失值的单元格文本
var missingMarkers = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"NULL": true,
	"null": true,
	"#N/A": true,
}

// ColumnKind 列类型
type ColumnKind string

const (
	KindInt    ColumnKind = "int64"
	KindFloat  ColumnKind = "float64"
	KindObject ColumnKind = "object"
)

// IsMissing 判断单元格是否缺失
func IsMissing(cell string) bool {
	return missingMarkers[strings.TrimSpace(cell)]
}

// ParseNumeric 解析数值单元格，缺失或非数值返回false
func ParseNumeric(cell string) (float64, bool) {
	if IsMissing(cell) {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// InferKind 推断列类型；含缺失值的整数列按float64处理
func InferKind(values []string) ColumnKind {
	kind := KindInt
	seen := false
	for _, cell := range values {
		if IsMissing(cell) {
			if kind == KindInt {
				kind = KindFloat
			}
			continue
		}
		value, ok := ParseNumeric(cell)
		if !ok {
			return KindObject
		}
		seen = true
		if kind == KindInt && (value != math.Trunc(value) || strings.ContainsAny(cell, ".eE")) {
			kind = KindFloat
		}
	}
	if !seen {
		return KindObject
	}
	return kind
}

// NumericValues 返回列中全部非缺失数值
func NumericValues(values []string) []float64 {
	result := make([]float64, 0, len(values))
	for _, cell := range values {
		if value, ok := ParseNumeric(cell); ok {
			result = append(result, value)
		}
	}
	return result
}

// CountMissing 统计缺失单元格数量
func CountMissing(values []string) int {
	count := 0
	for _, cell := range values {
		if IsMissing(cell) {
			count++
		}
	}
	return count
}
