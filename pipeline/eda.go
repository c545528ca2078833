package pipeline

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"go.uber.org/multierr"
)

const overviewRows = 10

// Describe 数值列描述统计
type Describe struct {
	Column string
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// RunEDA 读取数据集并写出文本报告
func RunEDA(datasetPath, reportPath string) error {
	table, err := LoadTable(datasetPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := writeFileAtomic(reportPath, []byte(BuildReport(table))); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// writeFileAtomic 先写同目录临时文件再重命名，并发请求不会读到交错内容
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmpName))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// BuildReport 生成概览、类型、缺失值与描述统计四个部分
func BuildReport(t *Table) string {
	var b strings.Builder

	b.WriteString("DATA OVERVIEW\n\n")
	writeOverview(&b, t)

	b.WriteString("\n\nDATA TYPES\n\n")
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, column := range t.Columns {
		values, _ := t.Column(column)
		fmt.Fprintf(tw, "%s\t%s\n", column, InferKind(values))
	}
	tw.Flush()

	b.WriteString("\n\nNULL VALUES\n\n")
	tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, column := range t.Columns {
		values, _ := t.Column(column)
		fmt.Fprintf(tw, "%s\t%d\n", column, CountMissing(values))
	}
	tw.Flush()

	b.WriteString("\n\nDESCRIPTIVE STATS\n\n")
	writeDescribe(&b, DescribeTable(t))
	return b.String()
}

func writeOverview(b *strings.Builder, t *Table) {
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\t%s\t\n", strings.Join(t.Columns, "\t"))
	for i, row := range t.Rows {
		if i >= overviewRows {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t\n", i, strings.Join(row, "\t"))
	}
	tw.Flush()
}

// DescribeTable 对所有数值列计算描述统计
func DescribeTable(t *Table) []Describe {
	stats := make([]Describe, 0, len(t.Columns))
	for _, column := range t.Columns {
		values, _ := t.Column(column)
		if InferKind(values) == KindObject {
			continue
		}
		stats = append(stats, describe(column, NumericValues(values)))
	}
	return stats
}

func describe(column string, values []float64) Describe {
	d := Describe{Column: column, Count: len(values)}
	if len(values) == 0 {
		nan := math.NaN()
		d.Mean, d.Std, d.Min, d.Q25, d.Median, d.Q75, d.Max = nan, nan, nan, nan, nan, nan, nan
		return d
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	d.Mean = sum / float64(len(sorted))
	d.Std = math.NaN()
	if len(sorted) > 1 {
		variance := 0.0
		for _, v := range sorted {
			diff := v - d.Mean
			variance += diff * diff
		}
		d.Std = math.Sqrt(variance / float64(len(sorted)-1))
	}
	d.Min = sorted[0]
	d.Max = sorted[len(sorted)-1]
	d.Q25 = Quantile(sorted, 0.25)
	d.Median = Quantile(sorted, 0.5)
	d.Q75 = Quantile(sorted, 0.75)
	return d
}

// Quantile 线性插值分位数，sorted须已升序
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func writeDescribe(b *strings.Builder, stats []Describe) {
	if len(stats) == 0 {
		b.WriteString("(no numeric columns)\n")
		return
	}
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := make([]string, len(stats))
	for i, d := range stats {
		header[i] = d.Column
	}
	fmt.Fprintf(tw, "\t%s\t\n", strings.Join(header, "\t"))

	rows := []struct {
		name string
		pick func(Describe) float64
	}{
		{"count", func(d Describe) float64 { return float64(d.Count) }},
		{"mean", func(d Describe) float64 { return d.Mean }},
		{"std", func(d Describe) float64 { return d.Std }},
		{"min", func(d Describe) float64 { return d.Min }},
		{"25%", func(d Describe) float64 { return d.Q25 }},
		{"50%", func(d Describe) float64 { return d.Median }},
		{"75%", func(d Describe) float64 { return d.Q75 }},
		{"max", func(d Describe) float64 { return d.Max }},
	}
	for _, row := range rows {
		cells := make([]string, len(stats))
		for i, d := range stats {
			cells[i] = strconv.FormatFloat(row.pick(d), 'f', 6, 64)
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", row.name, strings.Join(cells, "\t"))
	}
	tw.Flush()
}
