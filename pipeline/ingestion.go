package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrDatasetNotFound 数据集文件不存在
var ErrDatasetNotFound = errors.New("dataset not found")

// Table 表格数据集（所有单元格保留原始文本）
type Table struct {
	Columns []string
	Rows    [][]string
}

// LoadTable 从CSV文件加载数据集
func LoadTable(path string) (*Table, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	table, err := ReadTable(file)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return table, nil
}

// ReadTable 解析CSV，自动去除UTF-8/UTF-16 BOM
func ReadTable(r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("dataset is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = strings.TrimSpace(name)
	}

	table := &Table{Columns: columns}
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		table.Rows = append(table.Rows, record)
	}
	return table, nil
}

// ColumnIndex 返回列下标
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, column := range t.Columns {
		if column == name {
			return i, true
		}
	}
	return -1, false
}

// Column 返回整列原始值
func (t *Table) Column(name string) ([]string, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return nil, fmt.Errorf("missing required column: %s", name)
	}
	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}
	return values, nil
}
