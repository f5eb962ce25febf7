package spreadsheet

import (
	"fmt"
	"iter"
)

// SchemaError reports a data row whose length differs from the header.
// Row is the 1-based physical row: the line number in delimited text,
// the sheet row in a workbook.
type SchemaError struct {
	Row     int
	Values  int
	Columns int
}

func (e *SchemaError) Error() string {
	direction := "more"
	if e.Values < e.Columns {
		direction = "fewer"
	}
	return fmt.Sprintf("row %d has %s values than columns (%d values, %d columns)", e.Row, direction, e.Values, e.Columns)
}

// ToRecords zips every data row with the header row. Blank rows are
// dropped. A single mismatched row fails the whole call; no partial result
// is returned.
func ToRecords(rows iter.Seq2[Row, error]) ([]Record, error) {
	return toRecords(rows, nil)
}

// toRecords is ToRecords with row numbers taken from line when it is set,
// for sources that skip lines before yielding.
func toRecords(rows iter.Seq2[Row, error], line *int) ([]Record, error) {
	var (
		header  []string
		records []Record
		n       int
	)
	for row, err := range rows {
		if err != nil {
			return nil, err
		}
		n++
		if header == nil {
			if row.IsBlank() {
				continue
			}
			header = make([]string, len(row))
			for i, v := range row {
				header[i] = v.String()
			}
			continue
		}
		if row.IsBlank() {
			continue
		}
		if len(row) != len(header) {
			at := n
			if line != nil {
				at = *line
			}
			return nil, &SchemaError{Row: at, Values: len(row), Columns: len(header)}
		}
		rec := make(Record, len(header))
		for i, name := range header {
			rec[name] = row[i]
		}
		records = append(records, rec)
	}
	return records, nil
}
