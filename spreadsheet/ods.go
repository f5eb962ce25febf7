package spreadsheet

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"strings"
)

// maxColumnRepeat caps table:number-columns-repeated on a typed cell.
// Exports pad the last column with repeats in the thousands.
const maxColumnRepeat = 1024

// maxCellText is the most characters a spreadsheet cell holds. text:s
// runs never pad a cell past it.
const maxCellText = 32767

const odsErrorMarker = "#ERR"

var errNoTable = errors.New("ods: no table in document")

// odsRows reads the first table of an OpenDocument spreadsheet by
// streaming content.xml. Later tables are ignored.
// When line is non-nil it holds the sheet row of each row as the row is
// yielded.
func odsRows(rs io.ReadSeeker, logger *slog.Logger, line *int) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		rc, err := openODSContent(rs)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rc.Close()

		dec := xml.NewDecoder(rc)
		if err := seekFirstTable(dec); err != nil {
			yield(nil, err)
			return
		}
		o := odsTable{dec: dec, logger: logger}
		for {
			row, ok, err := o.nextRow()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if row == nil {
				continue
			}
			if line != nil {
				*line = o.rowNum
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// openODSContent opens content.xml inside the package.
func openODSContent(rs io.ReadSeeker) (io.ReadCloser, error) {
	ra, size, err := readerAt(rs)
	if err != nil {
		return nil, fmt.Errorf("ods: %w", err)
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("ods: open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.Name == "content.xml" {
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("ods: open content.xml: %w", err)
			}
			return rc, nil
		}
	}
	return nil, fmt.Errorf("ods: content.xml not found in archive")
}

// readerAt adapts a seekable stream to the random access the zip and
// compound file readers need. Files and in-memory readers are used
// directly; anything else is buffered.
func readerAt(rs io.ReadSeeker) (io.ReaderAt, int64, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, 0, fmt.Errorf("size: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("rewind: %w", err)
	}
	if ra, ok := rs.(io.ReaderAt); ok {
		return ra, size, nil
	}
	data, err := io.ReadAll(rs)
	if err != nil {
		return nil, 0, fmt.Errorf("read: %w", err)
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// seekFirstTable advances dec past the start of the first table:table in
// the spreadsheet body.
func seekFirstTable(dec *xml.Decoder) error {
	inBody := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return errNoTable
		}
		if err != nil {
			return fmt.Errorf("ods: content.xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "spreadsheet":
			inBody = true
		case "table":
			if inBody {
				return nil
			}
		}
	}
}

type odsTable struct {
	dec    *xml.Decoder
	logger *slog.Logger
	// rowNum is the sheet row of the row being read; rows repeated with
	// table:number-rows-repeated count once per repeat.
	rowNum int
	next   int
}

// nextRow returns the next row of the current table. ok is false once the
// table ends. A nil row with ok set means the row held no cells.
func (o *odsTable) nextRow() (row Row, ok bool, err error) {
	for {
		tok, err := o.dec.Token()
		if err != nil {
			return nil, false, fmt.Errorf("ods: content.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table-row":
				o.rowNum = o.next + 1
				o.next += rowsRepeated(t)
				row, err := o.readRow()
				return row, true, err
			case "table-header-rows", "table-rows", "table-row-group", "table-header-row-group":
				// Row containers: descend.
			default:
				if err := o.dec.Skip(); err != nil {
					return nil, false, fmt.Errorf("ods: content.xml: %w", err)
				}
			}
		case xml.EndElement:
			if t.Name.Local == "table" {
				return nil, false, nil
			}
		}
	}
}

// rowsRepeated reads table:number-rows-repeated. A repeated data row still
// yields once.
func rowsRepeated(start xml.StartElement) int {
	for _, a := range start.Attr {
		if a.Name.Local == "number-rows-repeated" {
			if n, err := strconv.Atoi(a.Value); err == nil && n > 1 {
				return n
			}
		}
	}
	return 1
}

// readRow consumes one table:table-row. Only typed cells produce values.
func (o *odsTable) readRow() (Row, error) {
	var row Row
	cells := 0
	for {
		tok, err := o.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("ods: row %d: %w", o.rowNum, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "table-cell" && t.Name.Local != "covered-table-cell" {
				if err := o.dec.Skip(); err != nil {
					return nil, err
				}
				continue
			}
			cells++
			v, repeat, typed, err := o.readCell(t)
			if err != nil {
				return nil, err
			}
			if !typed {
				continue
			}
			for range repeat {
				row = append(row, v)
			}
		case xml.EndElement:
			if t.Name.Local == "table-row" {
				if cells == 0 {
					return nil, nil
				}
				if row == nil {
					row = Row{}
				}
				return row, nil
			}
		}
	}
}

// readCell consumes a cell element and converts it by its value type.
func (o *odsTable) readCell(start xml.StartElement) (v Value, repeat int, typed bool, err error) {
	var valueType, calcType, value, dateValue string
	repeat = 1
	for _, a := range start.Attr {
		switch {
		case a.Name.Local == "value-type" && strings.Contains(a.Name.Space, "calcext"):
			calcType = a.Value
		case a.Name.Local == "value-type":
			valueType = a.Value
		case a.Name.Local == "value":
			value = a.Value
		case a.Name.Local == "date-value":
			dateValue = a.Value
		case a.Name.Local == "number-columns-repeated":
			if n, err := strconv.Atoi(a.Value); err == nil && n > 1 {
				repeat = min(n, maxColumnRepeat)
			}
		}
	}

	text, err := cellText(o.dec)
	if err != nil {
		return Null, 0, false, fmt.Errorf("ods: row %d: %w", o.rowNum, err)
	}

	if calcType == "error" {
		desc := text
		if desc == "" {
			desc = odsErrorMarker
		}
		o.logger.Warn("ods: error cell", "row", o.rowNum, "value", desc)
		return ErrorValue(desc), repeat, true, nil
	}

	switch valueType {
	case "":
		return Null, 0, false, nil
	case "date":
		if t, ok := ParseDate(dateValue); ok {
			return DateValue(t), repeat, true, nil
		}
		o.logger.Info("ods: unparseable date", "row", o.rowNum, "value", dateValue)
		return Null, repeat, true, nil
	case "string":
		return StringValue(text), repeat, true, nil
	case "float":
		n, err := NumberText(value)
		if err != nil {
			o.logger.Info("ods: unparseable number", "row", o.rowNum, "value", value)
			return Null, repeat, true, nil
		}
		return n, repeat, true, nil
	default:
		o.logger.Info("ods: unsupported value type", "row", o.rowNum, "type", valueType)
		return Null, repeat, true, nil
	}
}

// cellText consumes the rest of a cell and returns its display text:
// paragraphs joined by newlines, with text:s, text:tab and text:line-break
// expanded. Annotations are skipped.
func cellText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	paragraphs, open := 0, 0
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "annotation":
				if err := dec.Skip(); err != nil {
					return "", err
				}
				continue
			case "p", "h":
				if paragraphs > 0 {
					b.WriteByte('\n')
				}
				paragraphs++
				open++
			case "s":
				n := 1
				for _, a := range t.Attr {
					if a.Name.Local == "c" {
						if c, err := strconv.Atoi(a.Value); err == nil && c > 0 {
							n = c
						}
					}
				}
				n = min(n, max(maxCellText-b.Len(), 0))
				b.WriteString(strings.Repeat(" ", n))
			case "tab":
				b.WriteByte('\t')
			case "line-break":
				b.WriteByte('\n')
			}
			depth++
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "h" {
				open--
			}
			depth--
		case xml.CharData:
			if open > 0 {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
