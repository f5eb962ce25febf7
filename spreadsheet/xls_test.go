package spreadsheet

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testdata/formulas.xls is a BIFF8 workbook with two sheets. The first,
// "Data", holds plain cells, formula results and BOOLERR cells; row 4 has
// only formula cells. The second, "Notes", must be ignored.
func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestXLSRows(t *testing.T) {
	date := func(day int) Value { return DateValue(time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)) }
	want := []Row{
		{StringValue("name"), StringValue("count"), StringValue("ratio"), StringValue("when"),
			StringValue("ok"), StringValue("total"), StringValue("greeting"), StringValue("bad")},
		{StringValue("a"), IntValue(10), FloatValue(1.5), date(1),
			BoolValue(true), IntValue(11), StringValue("héllo"), ErrorValue("#DIV/0!")},
		{StringValue("b"), IntValue(7), FloatValue(0.25), date(2),
			ErrorValue("#N/A"), BoolValue(true), StringValue(""), FloatValue(2.5)},
		{StringValue("c"), Null, Null, Null, Null, Null, Null, IntValue(4)},
	}

	var got []Row
	for row, err := range xlsRows(bytes.NewReader(readTestdata(t, "formulas.xls")), New(Config{}).logger) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, row)
	}
	if len(got) != len(want) {
		t.Fatalf("rows: got %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if len(got[i]) != len(want[i]) {
			t.Fatalf("row %d: got %v, want %v", i, got[i], want[i])
		}
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("cell %d,%d: got %v (%s), want %v (%s)", i, j, got[i][j], got[i][j].Kind(), want[i][j], want[i][j].Kind())
			}
		}
	}
}

func TestParse_XLS(t *testing.T) {
	res, err := New(Config{}).Parse(bytes.NewReader(readTestdata(t, "formulas.xls")), Options{Filename: "data.csv"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != FormatXLS {
		t.Fatalf("format: got %s", res.Format)
	}
	if len(res.Records) != 3 {
		t.Fatalf("records: %v", res.Records)
	}
	if r := res.Records[0]; r["total"] != IntValue(11) || !r["bad"].IsError() {
		t.Errorf("record 0: %v", r)
	}
	if r := res.Records[2]; r["name"] != StringValue("c") || r["bad"] != IntValue(4) {
		t.Errorf("record 2: %v", r)
	}
}

// biffStream joins records into a workbook stream.
func biffStream(records ...[]byte) []byte {
	var b []byte
	for _, r := range records {
		b = append(b, r...)
	}
	return b
}

func biffRecord(typ uint16, data []byte) []byte {
	b := binary.LittleEndian.AppendUint16(nil, typ)
	b = binary.LittleEndian.AppendUint16(b, uint16(len(data)))
	return append(b, data...)
}

func biffBOFRecord(dt uint16) []byte {
	d := binary.LittleEndian.AppendUint16(nil, 0x0600)
	d = binary.LittleEndian.AppendUint16(d, dt)
	return biffRecord(biffBOF, append(d, make([]byte, 12)...))
}

var biffEOFRecord = biffRecord(biffEOF, nil)

func biffCellHeader(row, col, xf uint16) []byte {
	d := binary.LittleEndian.AppendUint16(nil, row)
	d = binary.LittleEndian.AppendUint16(d, col)
	return binary.LittleEndian.AppendUint16(d, xf)
}

func biffFormulaRecord(row, col uint16, num []byte) []byte {
	d := append(biffCellHeader(row, col, 15), num...)
	return biffRecord(biffFormula, append(d, make([]byte, 8)...))
}

func biffSpecial(kind, value byte) []byte {
	return []byte{kind, 0, value, 0, 0, 0, 0xFF, 0xFF}
}

// biffWorkbook puts globals, then one sheet, in a stream with the
// BOUNDSHEET offset filled in.
func biffWorkbook(globals [][]byte, sheet ...[]byte) []byte {
	head := biffStream(append([][]byte{biffBOFRecord(0x0005)}, globals...)...)
	bs := func(pos int) []byte {
		d := binary.LittleEndian.AppendUint32(nil, uint32(pos))
		return biffRecord(biffSheet, append(d, 0, 0, 1, 0, 'S'))
	}
	pos := len(head) + len(bs(0)) + len(biffEOFRecord)
	return biffStream(head, bs(pos), biffEOFRecord, biffStream(sheet...))
}

func TestParseBIFF(t *testing.T) {
	numeric := make([]byte, 8)
	binary.LittleEndian.PutUint64(numeric, math.Float64bits(3.25))

	tests := []struct {
		name     string
		stream   []byte
		date1904 bool
		cells    map[biffPos]Value
	}{
		{
			name: "formula results",
			stream: biffWorkbook(nil,
				biffBOFRecord(0x0010),
				biffFormulaRecord(0, 0, biffSpecial(1, 0)),
				biffFormulaRecord(0, 1, biffSpecial(2, 0x17)),
				biffFormulaRecord(0, 2, biffSpecial(2, 0x99)),
				biffFormulaRecord(0, 3, biffSpecial(3, 0)),
				biffFormulaRecord(1, 0, biffSpecial(0, 0)),
				biffRecord(biffString, []byte{2, 0, 0, 'o', 'k'}),
				biffEOFRecord,
			),
			cells: map[biffPos]Value{
				{0, 0}: BoolValue(false),
				{0, 1}: ErrorValue("#REF!"),
				{0, 2}: ErrorValue("#ERR153"),
				{0, 3}: StringValue(""),
				{1, 0}: StringValue("ok"),
			},
		},
		{
			name: "boolerr cells",
			stream: biffWorkbook(nil,
				biffBOFRecord(0x0010),
				biffRecord(biffBoolErr, append(biffCellHeader(2, 1, 15), 0x24, 1)),
				biffRecord(biffBoolErr, append(biffCellHeader(2, 2, 15), 1, 0)),
				biffEOFRecord,
			),
			cells: map[biffPos]Value{
				{2, 1}: ErrorValue("#NUM!"),
				{2, 2}: BoolValue(true),
			},
		},
		{
			name: "1904 date system",
			stream: biffWorkbook([][]byte{biffRecord(biffDateMode, []byte{1, 0})},
				biffBOFRecord(0x0010),
				biffEOFRecord,
			),
			date1904: true,
			cells:    map[biffPos]Value{},
		},
		{
			name: "chart substream skipped",
			stream: biffWorkbook(nil,
				biffBOFRecord(0x0010),
				biffBOFRecord(0x0020),
				biffFormulaRecord(5, 5, biffSpecial(1, 1)),
				biffEOFRecord,
				biffFormulaRecord(0, 0, biffSpecial(1, 1)),
				biffEOFRecord,
			),
			cells: map[biffPos]Value{{0, 0}: BoolValue(true)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ov, err := parseBIFF(tt.stream)
			if err != nil {
				t.Fatal(err)
			}
			if ov.date1904 != tt.date1904 {
				t.Errorf("date1904: got %v", ov.date1904)
			}
			if len(ov.cells) != len(tt.cells) {
				t.Fatalf("cells: got %v, want %v", ov.cells, tt.cells)
			}
			for pos, want := range tt.cells {
				if got := ov.cells[pos]; got.numeric || got.value != want {
					t.Errorf("cell %v: got %+v, want %v", pos, got, want)
				}
			}
		})
	}

	ov, err := parseBIFF(biffWorkbook(nil,
		biffBOFRecord(0x0010),
		biffFormulaRecord(3, 4, numeric),
		biffEOFRecord,
	))
	if err != nil {
		t.Fatal(err)
	}
	if c := ov.cells[biffPos{3, 4}]; !c.numeric || c.num != 3.25 || c.xf != 15 {
		t.Fatalf("numeric result: %+v", c)
	}
	if ov.rows != 4 || ov.widths[3] != 5 {
		t.Fatalf("extent: rows %d widths %v", ov.rows, ov.widths)
	}
}

func TestParseBIFF_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
	}{
		{"empty", nil},
		{"no BOF", biffStream(biffRecord(biffDateMode, []byte{0, 0}), biffEOFRecord)},
		{"truncated record", biffStream(biffBOFRecord(0x0005), []byte{0x22, 0x00, 0x10, 0x00, 1})},
		{"missing EOF", biffStream(biffBOFRecord(0x0005))},
		{"sheet offset past end", biffStream(
			biffBOFRecord(0x0005),
			biffRecord(biffSheet, []byte{0xFF, 0xFF, 0, 0, 0, 0, 1, 0, 'S'}),
			biffEOFRecord,
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseBIFF(tt.stream); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestReadBIFFOverlay_NotCompoundFile(t *testing.T) {
	data := []byte("a,b\n1,2\n")
	_, err := readBIFFOverlay(bytes.NewReader(data), int64(len(data)))
	if err == nil {
		t.Fatalf("got %v", err)
	}
}
