package spreadsheet

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// xlsxRows reads the first sheet of an Office Open XML workbook, honouring
// the workbook's 1900/1904 date system.
func xlsxRows(r io.Reader, logger *slog.Logger) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		f, err := excelize.OpenReader(r)
		if err != nil {
			yield(nil, fmt.Errorf("xlsx: open: %w", err))
			return
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			yield(nil, fmt.Errorf("xlsx: no sheets found"))
			return
		}
		sheet := sheets[0]

		date1904 := false
		if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
			date1904 = *props.Date1904
		}
		c := &xlsxCells{f: f, sheet: sheet, date1904: date1904, logger: logger, dateStyles: map[int]bool{}}

		rows, err := f.Rows(sheet)
		if err != nil {
			yield(nil, fmt.Errorf("xlsx: read %s: %w", sheet, err))
			return
		}
		defer rows.Close()

		rowNum := 0
		for rows.Next() {
			rowNum++
			raw, err := rows.Columns(excelize.Options{RawCellValue: true})
			if err != nil {
				yield(nil, fmt.Errorf("xlsx: row %d: %w", rowNum, err))
				return
			}
			row := make(Row, len(raw))
			for i, s := range raw {
				row[i] = c.value(rowNum, i+1, s)
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(nil, fmt.Errorf("xlsx: %w", err))
		}
	}
}

type xlsxCells struct {
	f          *excelize.File
	sheet      string
	date1904   bool
	logger     *slog.Logger
	dateStyles map[int]bool
}

func (c *xlsxCells) value(row, col int, raw string) Value {
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return StringValue(raw)
	}
	typ, err := c.f.GetCellType(c.sheet, axis)
	if err != nil {
		typ = excelize.CellTypeUnset
	}

	switch typ {
	case excelize.CellTypeError:
		c.logger.Warn("xlsx: error cell", "cell", axis, "value", raw)
		return ErrorValue(raw)
	case excelize.CellTypeBool:
		return BoolValue(raw == "1" || strings.EqualFold(raw, "true"))
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return StringValue(raw)
	case excelize.CellTypeDate:
		if t, ok := ParseDate(raw); ok {
			return DateValue(t)
		}
		return StringValue(raw)
	}

	if raw == "" {
		return Null
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// Formula results cached as text, e.g. t="str".
		return StringValue(raw)
	}
	if c.isDate(axis) {
		if v, err := SerialDate(f, c.date1904); err == nil {
			return v
		}
		c.logger.Debug("xlsx: date serial out of range", "cell", axis, "serial", f)
	}
	return NumberValue(f)
}

func (c *xlsxCells) isDate(axis string) bool {
	idx, err := c.f.GetCellStyle(c.sheet, axis)
	if err != nil || idx == 0 {
		return false
	}
	if date, ok := c.dateStyles[idx]; ok {
		return date
	}
	date := false
	if style, err := c.f.GetStyle(idx); err == nil && style != nil {
		code := ""
		if style.CustomNumFmt != nil {
			code = *style.CustomNumFmt
		}
		date = isDateFormat(style.NumFmt, code)
	}
	c.dateStyles[idx] = date
	return date
}

// isDateFormat reports whether a number format renders a date or time:
// a built-in date format ID, or a custom code using date/time letters.
func isDateFormat(numFmtID int, formatCode string) bool {
	switch numFmtID {
	case 14, 15, 16, 17, 18, 19, 20, 21, 22,
		27, 28, 29, 30, 31, 32, 33, 34, 35, 36,
		45, 46, 47, 50, 51, 52, 53, 54, 55, 56, 57, 58:
		return true
	}
	if formatCode == "" {
		return false
	}
	code := strings.ToLower(formatCode)
	// Quoted literals and escaped characters never carry date tokens.
	var b strings.Builder
	quoted := false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch == '"':
			quoted = !quoted
		case quoted:
		case ch == '\\' || ch == '_' || ch == '*':
			i++
		case ch == '[':
			// [Red], [$-409]: skip, but keep elapsed-time [h]/[mm]/[ss].
			end := strings.IndexByte(code[i:], ']')
			if end < 0 {
				i = len(code)
				continue
			}
			inner := code[i+1 : i+end]
			if strings.Trim(inner, "hms") == "" {
				b.WriteString(inner)
			}
			i += end
		default:
			b.WriteByte(ch)
		}
	}
	return strings.ContainsAny(b.String(), "ymdhs")
}
