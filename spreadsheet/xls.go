package spreadsheet

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/shakinm/xlsReader/xls/structure"
)

// xlsRows reads the first sheet of a legacy BIFF workbook. Data in other
// sheets is ignored.
//
// The cell decoder skips formula records and misreads some error codes, so
// a second pass over the workbook stream supplies cached formula results,
// BOOLERR cells and the workbook date system.
func xlsRows(rs io.ReadSeeker, logger *slog.Logger) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		ra, size, err := readerAt(rs)
		if err != nil {
			yield(nil, fmt.Errorf("xls: %w", err))
			return
		}
		src, ok := ra.(io.ReadSeeker)
		if !ok {
			src = io.NewSectionReader(ra, 0, size)
		}
		wb, err := openXLS(src)
		if err != nil {
			yield(nil, err)
			return
		}
		sheet, err := wb.GetSheet(0)
		if err != nil || sheet == nil {
			yield(nil, fmt.Errorf("xls: read first sheet: %v", err))
			return
		}
		ov, err := readBIFFOverlay(ra, size)
		if err != nil {
			yield(nil, err)
			return
		}

		rows := sheet.GetRows()
		for i := range max(len(rows), ov.rows) {
			var cols []structure.CellData
			if i < len(rows) && rows[i] != nil {
				cols = rows[i].GetCols()
			}
			row := make(Row, max(len(cols), ov.widths[i]))
			for j := range row {
				if c, ok := ov.cells[biffPos{i, j}]; ok {
					if c.numeric {
						row[j] = xlsNumber(&wb, c.num, c.xf, ov.date1904, logger, i, j)
					} else {
						row[j] = c.value
					}
					if row[j].IsError() {
						logger.Warn("xls: error cell", "row", i, "col", j, "value", row[j].String())
					}
					continue
				}
				if j < len(cols) {
					row[j] = xlsCell(&wb, cols[j], ov.date1904, logger, i, j)
				}
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// openXLS wraps xls.OpenReader; the decoder panics on some truncated files.
func openXLS(rs io.ReadSeeker) (wb xls.Workbook, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("xls: decode: %v", r)
		}
	}()
	wb, err = xls.OpenReader(rs)
	if err != nil {
		return wb, fmt.Errorf("xls: open: %w", err)
	}
	return wb, nil
}

func xlsCell(wb *xls.Workbook, cell structure.CellData, date1904 bool, logger *slog.Logger, row, col int) Value {
	if cell == nil {
		return Null
	}
	typ := cell.GetType()
	switch {
	case strings.Contains(typ, "Blank"):
		return Null
	case strings.Contains(typ, "BoolErr"):
		// Read by the overlay pass.
		return Null
	case strings.Contains(typ, "Number"), strings.Contains(typ, "Rk"):
		return xlsNumber(wb, cell.GetFloat64(), cell.GetXFIndex(), date1904, logger, row, col)
	default:
		return StringValue(cell.GetString())
	}
}

// xlsNumber turns a numeric cell into a date when its XF carries a date
// format, otherwise into an integer or float.
func xlsNumber(wb *xls.Workbook, f float64, xf int, date1904 bool, logger *slog.Logger, row, col int) Value {
	if xlsDateXF(wb, xf) {
		v, err := SerialDate(f, date1904)
		if err == nil {
			return v
		}
		logger.Debug("xls: date serial out of range", "row", row, "col", col, "serial", f)
	}
	return NumberValue(f)
}

func xlsDateXF(wb *xls.Workbook, index int) (date bool) {
	// Out-of-range XF indexes panic inside the reader.
	defer func() {
		if recover() != nil {
			date = false
		}
	}()
	xf := wb.GetXFbyIndex(index)
	return isDateFormat(xf.GetFormatIndex(), "")
}
