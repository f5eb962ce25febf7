package spreadsheet

import (
	"archive/zip"
	"bytes"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

// buildXLSX writes a two-sheet workbook. Only the first sheet is data.
func buildXLSX(t *testing.T, date1904 bool) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if date1904 {
		on := true
		if err := f.SetWorkbookProps(&excelize.WorkbookPropsOptions{Date1904: &on}); err != nil {
			t.Fatal(err)
		}
	}

	const sheet = "Sheet1"
	when := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cells := map[string]any{
		"A1": "name", "B1": "count", "C1": "when", "D1": "ok",
		"A2": "a", "B2": 10.0, "C2": when, "D2": true,
		"A3": "b", "B3": 1.5, "D3": false,
	}
	for axis, v := range cells {
		if err := f.SetCellValue(sheet, axis, v); err != nil {
			t.Fatal(err)
		}
	}

	// A raw serial under a built-in date format.
	serial := 45353.0
	if date1904 {
		serial -= 1462
	}
	if err := f.SetCellValue(sheet, "C3", serial); err != nil {
		t.Fatal(err)
	}
	style, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellStyle(sheet, "C3", "C3", style); err != nil {
		t.Fatal(err)
	}

	if _, err := f.NewSheet("Notes"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Notes", "A1", "ignored"); err != nil {
		t.Fatal(err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParse_XLSX(t *testing.T) {
	for _, date1904 := range []bool{false, true} {
		res, err := New(Config{}).Parse(bytes.NewReader(buildXLSX(t, date1904)), Options{Filename: "data.tsv"})
		if err != nil {
			t.Fatalf("date1904=%v: %v", date1904, err)
		}
		if res.Format != FormatXLSX {
			t.Fatalf("format: got %s", res.Format)
		}
		if len(res.Records) != 2 {
			t.Fatalf("records: %v", res.Records)
		}

		r := res.Records[0]
		if r["name"] != StringValue("a") || r["count"] != IntValue(10) || r["ok"] != BoolValue(true) {
			t.Errorf("date1904=%v record 0: %v", date1904, r)
		}
		if r["when"].Kind() != KindDate || r["when"].String() != "2024-03-01T00:00:00+00:00" {
			t.Errorf("date1904=%v when: %s %q", date1904, r["when"].Kind(), r["when"])
		}

		r = res.Records[1]
		if r["count"] != FloatValue(1.5) || r["ok"] != BoolValue(false) {
			t.Errorf("date1904=%v record 1: %v", date1904, r)
		}
		if r["when"].String() != "2024-03-02T00:00:00+00:00" {
			t.Errorf("date1904=%v serial date: %q", date1904, r["when"])
		}
	}
}

// patchXLSXCell rewrites one cell of the first sheet to raw XML, for cell
// types the writer cannot produce.
func patchXLSXCell(t *testing.T, data []byte, axis, cell string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatal(err)
	}
	re := regexp.MustCompile(`<c r="` + axis + `"[^>]*?(/>|>.*?</c>)`)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	patched := false
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if f.Name == "xl/worksheets/sheet1.xml" {
			if !re.Match(b) {
				t.Fatalf("cell %s not found in %s", axis, b)
			}
			b = re.ReplaceAllLiteral(b, []byte(cell))
			patched = true
		}
		w, err := zw.Create(f.Name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(b); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if !patched {
		t.Fatal("sheet1.xml not found")
	}
	return buf.Bytes()
}

func TestParse_XLSXErrorCell(t *testing.T) {
	tests := []struct {
		name string
		cell string
		want Value
	}{
		{"division", `<c r="B3" t="e"><v>#DIV/0!</v></c>`, ErrorValue("#DIV/0!")},
		{"formula", `<c r="B3" t="e"><f>VLOOKUP(1,A1:A2,2,0)</f><v>#N/A</v></c>`, ErrorValue("#N/A")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := patchXLSXCell(t, buildXLSX(t, false), "B3", tt.cell)
			res, err := New(Config{}).Parse(bytes.NewReader(data), Options{})
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Records) != 2 {
				t.Fatalf("records: %v", res.Records)
			}
			r := res.Records[1]
			if r["count"] != tt.want {
				t.Errorf("error cell: %v (%s)", r["count"], r["count"].Kind())
			}
			if r["name"] != StringValue("b") {
				t.Errorf("neighbour cell: %v", r["name"])
			}
		})
	}
}

func TestIsDateFormat(t *testing.T) {
	tests := []struct {
		id   int
		code string
		want bool
	}{
		{0, "", false},
		{2, "", false},
		{14, "", true},
		{22, "", true},
		{47, "", true},
		{164, "yyyy-mm-dd", true},
		{164, "dd/mm/yyyy hh:mm", true},
		{164, "[h]:mm:ss", true},
		{164, "0.00", false},
		{164, "#,##0", false},
		{164, `0.0 "days"`, false},
		{164, `[Red]0.00`, false},
		{164, `[$-409]0.00`, false},
		{164, `0\d`, false},
	}
	for _, tt := range tests {
		if got := isDateFormat(tt.id, tt.code); got != tt.want {
			t.Errorf("isDateFormat(%d, %q) = %v, want %v", tt.id, tt.code, got, tt.want)
		}
	}
}
