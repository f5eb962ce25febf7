package spreadsheet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

// BIFF record types read by the formula pass.
const (
	biffFormula  = 0x0006
	biffEOF      = 0x000A
	biffDateMode = 0x0022
	biffSheet    = 0x0085
	biffBoolErr  = 0x0205
	biffString   = 0x0207
	biffBOF      = 0x0809
)

var errBIFFTruncated = errors.New("xls: truncated record")

// biffErrors maps BIFF error codes to the text a spreadsheet displays.
var biffErrors = map[byte]string{
	0x00: "#NULL!",
	0x07: "#DIV/0!",
	0x0F: "#VALUE!",
	0x17: "#REF!",
	0x1D: "#NAME?",
	0x24: "#NUM!",
	0x2A: "#N/A",
}

type biffPos struct{ row, col int }

// biffCell is a cell the cell decoder does not report correctly: a cached
// formula result or a BOOLERR constant. Numeric results keep their XF
// index so dates can be recognised.
type biffCell struct {
	value   Value
	num     float64
	numeric bool
	xf      int
}

// biffOverlay is what the formula pass found in the first worksheet.
type biffOverlay struct {
	date1904 bool
	cells    map[biffPos]biffCell
	rows     int
	widths   map[int]int
}

func (o *biffOverlay) set(p biffPos, c biffCell) {
	o.cells[p] = c
	if p.row >= o.rows {
		o.rows = p.row + 1
	}
	if p.col >= o.widths[p.row] {
		o.widths[p.row] = p.col + 1
	}
}

// readBIFFOverlay opens the compound file behind ra and scans its workbook
// stream. The stream is chosen the way the cell decoder chooses it: "Book"
// wins over "Workbook".
func readBIFFOverlay(ra io.ReaderAt, size int64) (*biffOverlay, error) {
	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, fmt.Errorf("xls: compound file: %w", err)
	}
	var book *mscfb.File
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		switch {
		case entry.Name == "Book":
			book = entry
		case entry.Name == "Workbook" && book == nil:
			book = entry
		}
	}
	if book == nil {
		return nil, errors.New("xls: no workbook stream")
	}
	if book.Size < 0 || book.Size > size {
		return nil, fmt.Errorf("xls: workbook stream claims %d bytes in a %d byte file", book.Size, size)
	}
	stream := make([]byte, book.Size)
	if _, err := io.ReadFull(book, stream); err != nil {
		return nil, fmt.Errorf("xls: read %s stream: %w", book.Name, err)
	}
	return parseBIFF(stream)
}

// parseBIFF reads DATEMODE and the first BOUNDSHEET from the globals
// substream, then the formula results and BOOLERR cells of that sheet.
func parseBIFF(stream []byte) (*biffOverlay, error) {
	ov := &biffOverlay{cells: map[biffPos]biffCell{}, widths: map[int]int{}}
	biff8 := false
	first := -1
	err := walkBIFF(stream, 0, func(typ uint16, data []byte) {
		switch typ {
		case biffBOF:
			if len(data) >= 2 {
				biff8 = binary.LittleEndian.Uint16(data) == 0x0600
			}
		case biffDateMode:
			if len(data) >= 2 {
				ov.date1904 = binary.LittleEndian.Uint16(data) == 1
			}
		case biffSheet:
			if first < 0 && len(data) >= 4 {
				first = int(binary.LittleEndian.Uint32(data))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if first < 0 {
		return ov, nil
	}

	// A string result arrives in the STRING record after its FORMULA.
	var pending *biffPos
	err = walkBIFF(stream, first, func(typ uint16, data []byte) {
		switch typ {
		case biffFormula:
			pending = nil
			if len(data) < 14 {
				return
			}
			p := biffCellPos(data)
			num := data[6:14]
			if num[6] != 0xFF || num[7] != 0xFF {
				ov.set(p, biffCell{
					num:     math.Float64frombits(binary.LittleEndian.Uint64(num)),
					numeric: true,
					xf:      int(binary.LittleEndian.Uint16(data[4:])),
				})
				return
			}
			switch num[0] {
			case 0:
				ov.set(p, biffCell{value: StringValue("")})
				pending = &p
			case 1:
				ov.set(p, biffCell{value: BoolValue(num[2] != 0)})
			case 2:
				ov.set(p, biffCell{value: biffError(num[2])})
			case 3:
				ov.set(p, biffCell{value: StringValue("")})
			}
		case biffString:
			if pending != nil {
				ov.set(*pending, biffCell{value: StringValue(biffText(data, biff8))})
				pending = nil
			}
		case biffBoolErr:
			if len(data) < 8 {
				return
			}
			if data[7] != 0 {
				ov.set(biffCellPos(data), biffCell{value: biffError(data[6])})
			} else {
				ov.set(biffCellPos(data), biffCell{value: BoolValue(data[6] != 0)})
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return ov, nil
}

// walkBIFF visits the records of the substream starting at off up to its
// EOF. Records of embedded substreams, such as charts, are skipped.
func walkBIFF(stream []byte, off int, visit func(typ uint16, data []byte)) error {
	depth := 0
	for {
		if off < 0 || off+4 > len(stream) {
			return errBIFFTruncated
		}
		typ := binary.LittleEndian.Uint16(stream[off:])
		n := int(binary.LittleEndian.Uint16(stream[off+2:]))
		off += 4
		if off+n > len(stream) {
			return errBIFFTruncated
		}
		data := stream[off : off+n]
		off += n

		switch typ {
		case biffBOF:
			depth++
		case biffEOF:
			depth--
			if depth <= 0 {
				return nil
			}
			continue
		}
		if depth == 0 {
			return fmt.Errorf("xls: substream starts with record %#04x, not BOF", typ)
		}
		if depth == 1 {
			visit(typ, data)
		}
	}
}

func biffCellPos(data []byte) biffPos {
	return biffPos{
		row: int(binary.LittleEndian.Uint16(data[0:])),
		col: int(binary.LittleEndian.Uint16(data[2:])),
	}
}

func biffError(code byte) Value {
	if s, ok := biffErrors[code]; ok {
		return ErrorValue(s)
	}
	return ErrorValue(fmt.Sprintf("#ERR%d", code))
}

// biffText decodes a STRING record. BIFF8 flags UTF-16 text in a byte after
// the length; compressed text and BIFF5 text are read as Latin-1. Text
// continued in a CONTINUE record is cut at the record boundary.
func biffText(data []byte, biff8 bool) string {
	if len(data) < 2 {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(data))
	data = data[2:]
	wide := false
	if biff8 {
		if len(data) == 0 {
			return ""
		}
		wide = data[0]&1 == 1
		data = data[1:]
	}
	if wide {
		n = min(n, len(data)/2)
		u := make([]uint16, n)
		for i := range u {
			u[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
		return string(utf16.Decode(u))
	}
	n = min(n, len(data))
	r := make([]rune, n)
	for i, b := range data[:n] {
		r[i] = rune(b)
	}
	return string(r)
}
