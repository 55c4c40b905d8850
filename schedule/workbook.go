package schedule

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Normalize expands every merged cell range in the workbook: each cell of
// a range that holds no value receives the range's top-left value. The
// tabular parser needs every data row to carry its own day/time cells,
// while the source workbooks merge them across a whole day.
//
// When no sheet has merged ranges the input is returned as is, so
// normalizing an already-normalized workbook is a no-op.
func Normalize(raw []byte) ([]byte, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &ParseError{Err: errors.Wrap(err, "open workbook")}
	}
	defer wb.Close()

	changed := false
	for _, sheet := range wb.GetSheetList() {
		merges, err := wb.GetMergeCells(sheet)
		if err != nil {
			return nil, &ParseError{Sheet: sheet, Err: errors.Wrap(err, "list merged cells")}
		}
		if len(merges) == 0 {
			continue
		}
		changed = true
		for _, merge := range merges {
			if err := fillMergedRange(wb, sheet, merge); err != nil {
				return nil, &ParseError{Sheet: sheet, Err: err}
			}
		}
	}

	if !changed {
		return raw, nil
	}

	out, err := wb.WriteToBuffer()
	if err != nil {
		return nil, &ParseError{Err: errors.Wrap(err, "serialize workbook")}
	}
	return out.Bytes(), nil
}

func fillMergedRange(wb *excelize.File, sheet string, merge excelize.MergeCell) error {
	startCol, startRow, err := excelize.CellNameToCoordinates(merge.GetStartAxis())
	if err != nil {
		return errors.Wrap(err, "merge range start")
	}
	endCol, endRow, err := excelize.CellNameToCoordinates(merge.GetEndAxis())
	if err != nil {
		return errors.Wrap(err, "merge range end")
	}
	value := merge.GetCellValue()

	if err := wb.UnmergeCell(sheet, merge.GetStartAxis(), merge.GetEndAxis()); err != nil {
		return errors.Wrap(err, "unmerge")
	}
	for row := startRow; row <= endRow; row++ {
		for col := startCol; col <= endCol; col++ {
			axis, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return errors.Wrap(err, "cell name")
			}
			current, err := wb.GetCellValue(sheet, axis)
			if err != nil {
				return errors.Wrap(err, "read cell")
			}
			if current != "" {
				continue
			}
			if err := wb.SetCellStr(sheet, axis, value); err != nil {
				return errors.Wrap(err, "fill cell")
			}
		}
	}
	return nil
}
