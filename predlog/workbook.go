package predlog

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/multierr"
)

const sheetName = "Sheet1"

// writeWorkbook renders records as a single-sheet workbook with the header row first.
func writeWorkbook(w io.Writer, records []Record) (err error) {
	f := excelize.NewFile()
	defer func() { err = multierr.Append(err, f.Close()) }()

	header := make([]interface{}, 0, len(Columns()))
	for _, column := range Columns() {
		header = append(header, column)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := rec.cells()
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return f.Write(w)
}

// readWorkbook decodes the first sheet of a workbook written by writeWorkbook.
func readWorkbook(r io.Reader) (records []Record, err error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}
	records = make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
