package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNonUTF8 is returned when a delimited upload is not valid UTF-8.
var ErrNonUTF8 = errors.New("file contains non-UTF-8 characters")

// commentColumn is the header name of a column that is never ingested.
const commentColumn = "comment"

// delimitedRows parses comma- or tab-separated text. Stages are lazy: a
// malformed input fails on the first bad line without buffering the rest.
// When line is non-nil it holds the physical line of each row as the row
// is yielded.
func delimitedRows(r io.Reader, comma rune, line *int) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		// Only a UTF-8 BOM is dropped; a UTF-16 BOM fails validation.
		src := transform.NewReader(r, transform.Chain(
			unicode.UTF8BOM.NewDecoder(),
			encoding.UTF8Validator,
		))
		var idx lineIndex
		lr := newLineReader(idx.withoutComments(Lines(src)))
		defer lr.Close()

		cr := csv.NewReader(lr)
		cr.Comma = comma
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true

		commentCol := -1
		header := true
		for {
			fields, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, delimitedError(err))
				return
			}
			if header {
				commentCol = slices.Index(fields, commentColumn)
				header = false
			}
			if commentCol >= 0 && commentCol < len(fields) {
				fields = slices.Delete(fields, commentCol, commentCol+1)
			}
			if blankFields(fields) {
				continue
			}
			row := make(Row, len(fields))
			for i, f := range fields {
				row[i] = Coerce(f)
			}
			if line != nil {
				n, _ := cr.FieldPos(0)
				*line = idx.physical(n)
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func blankFields(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}

func delimitedError(err error) error {
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		return ErrNonUTF8
	}
	return fmt.Errorf("read delimited text: %w", err)
}
